package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

// Messages returned with Forbidden errors.
const (
	MsgNoProjectAccess = "You do not have access to this project."
	MsgOwnerOnly       = "Only project owners can perform this action."
)

// MembershipAuthority answers whether a user may act on a project.
type MembershipAuthority struct {
	store  store.Store
	logger *slog.Logger
}

// NewMembershipAuthority creates a new membership authority.
func NewMembershipAuthority(st store.Store, logger *slog.Logger) *MembershipAuthority {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipAuthority{store: st, logger: logger}
}

// WithStore returns an authority reading through st, typically a transaction.
func (a *MembershipAuthority) WithStore(st store.Store) *MembershipAuthority {
	return &MembershipAuthority{store: st, logger: a.logger}
}

// RequireMember returns the user's membership or a Forbidden error.
func (a *MembershipAuthority) RequireMember(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error) {
	m, err := a.store.Projects().GetMembership(ctx, projectID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.Forbidden(MsgNoProjectAccess)
	}
	if err != nil {
		return nil, fmt.Errorf("reading membership: %w", err)
	}
	return m, nil
}

// RequireOwner returns the user's membership when it carries the owner role.
func (a *MembershipAuthority) RequireOwner(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error) {
	return a.Require(ctx, projectID, userID, PermissionManageProject)
}

// Require returns the user's membership when its role grants permission.
func (a *MembershipAuthority) Require(ctx context.Context, projectID, userID string, permission Permission) (*models.ProjectMembership, error) {
	m, err := a.RequireMember(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if !HasPermission(m.Role, permission) {
		a.logger.Debug("permission denied",
			"project_id", projectID,
			"user_id", userID,
			"role", m.Role,
			"permission", permission,
		)
		return nil, models.Forbidden(MsgOwnerOnly)
	}
	return m, nil
}
