package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

// InviteStore implements store.InviteStore using PostgreSQL.
type InviteStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *InviteStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const inviteColumns = `
	i.id, i.project_id, i.token, i.invited_by, u.username, i.expires_at,
	i.is_active, i.accepted_by, i.accepted_at, i.created_at`

const inviteFrom = `
	FROM project_invites i
	INNER JOIN users u ON u.id = i.invited_by`

func scanInvite(row interface{ Scan(...any) error }) (*models.ProjectInvite, error) {
	var inv models.ProjectInvite
	var acceptedBy sql.NullString
	var acceptedAt sql.NullTime

	err := row.Scan(
		&inv.ID, &inv.ProjectID, &inv.Token, &inv.InvitedBy, &inv.Inviter,
		&inv.ExpiresAt, &inv.IsActive, &acceptedBy, &acceptedAt, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if acceptedBy.Valid {
		inv.AcceptedBy = &acceptedBy.String
	}
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return &inv, nil
}

// Create creates a new invite.
func (s *InviteStore) Create(ctx context.Context, invite *models.ProjectInvite) error {
	if invite.ID == "" {
		invite.ID = uuid.New().String()
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO project_invites (id, project_id, token, invited_by, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.conn().ExecContext(ctx, query,
		invite.ID,
		invite.ProjectID,
		invite.Token,
		invite.InvitedBy,
		invite.ExpiresAt,
		invite.IsActive,
		invite.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("inserting invite: %w", err)
	}
	return nil
}

// Get retrieves an invite by ID.
func (s *InviteStore) Get(ctx context.Context, id string) (*models.ProjectInvite, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	return s.getOne(ctx, `SELECT `+inviteColumns+inviteFrom+` WHERE i.id = $1`, id)
}

// GetByToken retrieves an invite by its token.
func (s *InviteStore) GetByToken(ctx context.Context, token string) (*models.ProjectInvite, error) {
	return s.getOne(ctx, `SELECT `+inviteColumns+inviteFrom+` WHERE i.token = $1`, token)
}

func (s *InviteStore) getOne(ctx context.Context, query string, arg string) (*models.ProjectInvite, error) {
	inv, err := scanInvite(s.conn().QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invite: %w", err)
	}
	return inv, nil
}

// ListByProject retrieves all invites of a project, newest first.
func (s *InviteStore) ListByProject(ctx context.Context, projectID string) ([]*models.ProjectInvite, error) {
	query := `SELECT ` + inviteColumns + inviteFrom + `
		WHERE i.project_id = $1
		ORDER BY i.created_at DESC`

	rows, err := s.conn().QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying invites: %w", err)
	}
	defer rows.Close()

	var invites []*models.ProjectInvite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invite row: %w", err)
		}
		invites = append(invites, inv)
	}

	return invites, rows.Err()
}

// Deactivate clears the active flag of an invite.
func (s *InviteStore) Deactivate(ctx context.Context, id string) error {
	if !validID(id) {
		return store.ErrNotFound
	}

	result, err := s.conn().ExecContext(ctx, `UPDATE project_invites SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivating invite: %w", err)
	}
	return expectOneRow(result)
}

// MarkUsed consumes an active invite. The is_active predicate makes two
// concurrent accepts race on the row: exactly one of them updates it.
func (s *InviteStore) MarkUsed(ctx context.Context, id, userID string, at time.Time) error {
	query := `
		UPDATE project_invites
		SET is_active = FALSE, accepted_by = $2, accepted_at = $3
		WHERE id = $1 AND is_active`

	result, err := s.conn().ExecContext(ctx, query, id, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("marking invite used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrInviteConsumed
	}
	return nil
}
