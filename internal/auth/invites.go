package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

// DefaultInviteExpiry is how long an invite stays valid when no duration is given.
const DefaultInviteExpiry = 24 * time.Hour

// MinInviteExpiry is the shortest invite lifetime that can be requested.
const MinInviteExpiry = time.Hour

const msgInviteNotValid = "Invite is no longer valid."

// InviteIssuer creates, lists, revokes and redeems project invites.
type InviteIssuer struct {
	store         store.Store
	authority     *MembershipAuthority
	defaultExpiry time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// InviteOption configures an InviteIssuer.
type InviteOption func(*InviteIssuer)

// WithDefaultExpiry overrides DefaultInviteExpiry.
func WithDefaultExpiry(d time.Duration) InviteOption {
	return func(i *InviteIssuer) {
		if d > 0 {
			i.defaultExpiry = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) InviteOption {
	return func(i *InviteIssuer) { i.now = now }
}

// NewInviteIssuer creates a new invite issuer.
func NewInviteIssuer(st store.Store, authority *MembershipAuthority, logger *slog.Logger, opts ...InviteOption) *InviteIssuer {
	if logger == nil {
		logger = slog.Default()
	}
	i := &InviteIssuer{
		store:         st,
		authority:     authority,
		defaultExpiry: DefaultInviteExpiry,
		now:           time.Now,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// GenerateInviteToken returns 32 random bytes encoded as URL-safe base64.
func GenerateInviteToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (i *InviteIssuer) ownedProject(ctx context.Context, projectID, userID string) (*models.Project, error) {
	project, err := i.store.Projects().Get(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NotFound("Project not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}
	if _, err := i.authority.Require(ctx, projectID, userID, PermissionManageInvites); err != nil {
		return nil, err
	}
	return project, nil
}

// Create issues a new invite for the project. A zero expiresIn selects the
// default lifetime; anything shorter than an hour is raised to an hour.
func (i *InviteIssuer) Create(ctx context.Context, projectID, userID string, expiresIn time.Duration) (*models.ProjectInvite, error) {
	if _, err := i.ownedProject(ctx, projectID, userID); err != nil {
		return nil, err
	}

	if expiresIn == 0 {
		expiresIn = i.defaultExpiry
	}
	if expiresIn < MinInviteExpiry {
		expiresIn = MinInviteExpiry
	}

	token, err := GenerateInviteToken()
	if err != nil {
		return nil, err
	}

	now := i.now().UTC()
	invite := &models.ProjectInvite{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Token:     token,
		InvitedBy: userID,
		ExpiresAt: now.Add(expiresIn),
		IsActive:  true,
		CreatedAt: now,
	}
	if err := i.store.Invites().Create(ctx, invite); err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}

	i.logger.Info("invite created",
		"project_id", projectID,
		"invite_id", invite.ID,
		"expires_at", invite.ExpiresAt,
	)

	return i.store.Invites().Get(ctx, invite.ID)
}

// List returns every invite of the project, newest first.
func (i *InviteIssuer) List(ctx context.Context, projectID, userID string) ([]*models.ProjectInvite, error) {
	if _, err := i.ownedProject(ctx, projectID, userID); err != nil {
		return nil, err
	}
	invites, err := i.store.Invites().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	return invites, nil
}

// Revoke deactivates an invite of the project.
func (i *InviteIssuer) Revoke(ctx context.Context, projectID, inviteID, userID string) error {
	if _, err := i.ownedProject(ctx, projectID, userID); err != nil {
		return err
	}

	invite, err := i.store.Invites().Get(ctx, inviteID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && invite.ProjectID != projectID) {
		return models.NotFound("Invite not found.")
	}
	if err != nil {
		return fmt.Errorf("reading invite: %w", err)
	}

	if err := i.store.Invites().Deactivate(ctx, inviteID); err != nil {
		return fmt.Errorf("deactivating invite: %w", err)
	}
	i.logger.Info("invite revoked", "project_id", projectID, "invite_id", inviteID)
	return nil
}

// Info returns the public description of an invite. No authentication is needed.
func (i *InviteIssuer) Info(ctx context.Context, token string) (*models.InviteInfo, error) {
	invite, err := i.store.Invites().GetByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NotFound("Invite not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("reading invite: %w", err)
	}

	project, err := i.store.Projects().Get(ctx, invite.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}

	now := i.now()
	return &models.InviteInfo{
		ProjectID:          project.ID,
		ProjectName:        project.Name,
		ProjectDescription: project.Description,
		OwnerUsername:      project.Owner,
		IsValid:            invite.IsValidAt(now),
		IsExpired:          invite.IsExpiredAt(now),
		ExpiresAt:          invite.ExpiresAt,
	}, nil
}

// Accept redeems an invite for userID and returns the project ID. Membership
// creation and consumption happen in one transaction; an existing membership
// keeps its role. A second accept of the same token fails.
func (i *InviteIssuer) Accept(ctx context.Context, token, userID string) (string, error) {
	var projectID string
	err := i.store.WithTx(ctx, func(tx store.Store) error {
		invite, err := tx.Invites().GetByToken(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return models.InvalidInvite(msgInviteNotValid)
		}
		if err != nil {
			return fmt.Errorf("reading invite: %w", err)
		}

		now := i.now()
		if !invite.IsValidAt(now) {
			return models.InvalidInvite(msgInviteNotValid)
		}

		if _, err := tx.Projects().AddMember(ctx, invite.ProjectID, userID, models.RoleEditor); err != nil {
			return fmt.Errorf("adding member: %w", err)
		}

		err = tx.Invites().MarkUsed(ctx, invite.ID, userID, now)
		if errors.Is(err, store.ErrInviteConsumed) {
			return models.InvalidInvite(msgInviteNotValid)
		}
		if err != nil {
			return fmt.Errorf("consuming invite: %w", err)
		}

		projectID = invite.ProjectID
		return nil
	})
	if err != nil {
		return "", err
	}

	i.logger.Info("invite accepted", "project_id", projectID, "user_id", userID)
	return projectID, nil
}
