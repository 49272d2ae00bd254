package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

// DiagramStore implements store.DiagramStore using PostgreSQL.
type DiagramStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *DiagramStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const diagramColumns = `
	d.id, d.project_id, d.name, d.description, d.diagram_type, d.data,
	d.is_locked, d.locked_by, d.locked_at, h.username, h.email,
	d.created_at, d.updated_at`

func scanDiagram(row interface{ Scan(...any) error }) (*models.Diagram, error) {
	d := &models.Diagram{}
	var (
		diagramType string
		data        []byte
		lockedBy    sql.NullString
		lockedAt    sql.NullTime
		holderName  sql.NullString
		holderEmail sql.NullString
	)
	err := row.Scan(
		&d.ID,
		&d.ProjectID,
		&d.Name,
		&d.Description,
		&diagramType,
		&data,
		&d.IsLocked,
		&lockedBy,
		&lockedAt,
		&holderName,
		&holderEmail,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Type = models.DiagramType(diagramType)
	d.Data = json.RawMessage(data)
	if lockedBy.Valid {
		d.LockedBy = &lockedBy.String
		d.Holder = &models.UserRef{ID: lockedBy.String, Username: holderName.String, Email: holderEmail.String}
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		d.LockedAt = &t
	}
	return d, nil
}

func normalizeData(data json.RawMessage) string {
	if len(data) == 0 {
		return "{}"
	}
	return string(data)
}

// Create creates a new, unlocked diagram.
func (s *DiagramStore) Create(ctx context.Context, diagram *models.Diagram) error {
	if err := diagram.Validate(); err != nil {
		return fmt.Errorf("validating diagram: %w", err)
	}

	query := `
		INSERT INTO diagrams (id, project_id, name, description, diagram_type, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`

	now := time.Now().UTC()
	if diagram.CreatedAt.IsZero() {
		diagram.CreatedAt = now
	}
	diagram.UpdatedAt = diagram.CreatedAt
	diagram.Data = json.RawMessage(normalizeData(diagram.Data))
	diagram.IsLocked, diagram.LockedBy, diagram.LockedAt, diagram.Holder = false, nil, nil, nil

	_, err := s.conn().ExecContext(ctx, query,
		diagram.ID,
		diagram.ProjectID,
		diagram.Name,
		diagram.Description,
		string(diagram.Type),
		string(diagram.Data),
		diagram.CreatedAt,
		diagram.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("inserting diagram: %w", err)
	}

	return nil
}

// Get retrieves a diagram by ID.
func (s *DiagramStore) Get(ctx context.Context, id string) (*models.Diagram, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}

	query := `SELECT ` + diagramColumns + `
		FROM diagrams d
		LEFT JOIN users h ON h.id = d.locked_by
		WHERE d.id = $1`

	diagram, err := scanDiagram(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying diagram: %w", err)
	}
	return diagram, nil
}

// ListByProject retrieves all diagrams of a project, most recently updated first.
func (s *DiagramStore) ListByProject(ctx context.Context, projectID string) ([]*models.Diagram, error) {
	if !validID(projectID) {
		return nil, nil
	}

	query := `SELECT ` + diagramColumns + `
		FROM diagrams d
		LEFT JOIN users h ON h.id = d.locked_by
		WHERE d.project_id = $1
		ORDER BY d.updated_at DESC`

	rows, err := s.conn().QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying diagrams: %w", err)
	}
	defer rows.Close()

	var diagrams []*models.Diagram
	for rows.Next() {
		diagram, err := scanDiagram(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning diagram row: %w", err)
		}
		diagrams = append(diagrams, diagram)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diagram rows: %w", err)
	}

	return diagrams, nil
}

// ListSummaries retrieves id, name and type of every diagram in the given
// projects, keyed by project ID and ordered by name.
func (s *DiagramStore) ListSummaries(ctx context.Context, projectIDs []string) (map[string][]models.DiagramSummary, error) {
	summaries := make(map[string][]models.DiagramSummary, len(projectIDs))
	if len(projectIDs) == 0 {
		return summaries, nil
	}

	query := `
		SELECT project_id, id, name, diagram_type
		FROM diagrams
		WHERE project_id::text = ANY($1)
		ORDER BY name ASC, id ASC`

	rows, err := s.conn().QueryContext(ctx, query, pq.Array(projectIDs))
	if err != nil {
		return nil, fmt.Errorf("querying diagram summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var projectID, diagramType string
		var summary models.DiagramSummary
		if err := rows.Scan(&projectID, &summary.ID, &summary.Name, &diagramType); err != nil {
			return nil, fmt.Errorf("scanning diagram summary row: %w", err)
		}
		summary.Type = models.DiagramType(diagramType)
		summaries[projectID] = append(summaries[projectID], summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating diagram summary rows: %w", err)
	}

	return summaries, nil
}

// Update writes name, description, type and data. The lock columns are untouched.
func (s *DiagramStore) Update(ctx context.Context, diagram *models.Diagram) error {
	if err := diagram.Validate(); err != nil {
		return fmt.Errorf("validating diagram: %w", err)
	}

	query := `
		UPDATE diagrams
		SET name = $2, description = $3, diagram_type = $4, data = $5::jsonb, updated_at = $6
		WHERE id = $1`

	diagram.UpdatedAt = time.Now().UTC()
	diagram.Data = json.RawMessage(normalizeData(diagram.Data))

	result, err := s.conn().ExecContext(ctx, query,
		diagram.ID,
		diagram.Name,
		diagram.Description,
		string(diagram.Type),
		string(diagram.Data),
		diagram.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating diagram: %w", err)
	}

	return expectOneRow(result)
}

// Delete deletes a diagram. Links touching it cascade.
func (s *DiagramStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return store.ErrNotFound
	}

	result, err := s.conn().ExecContext(ctx, `DELETE FROM diagrams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting diagram: %w", err)
	}

	return expectOneRow(result)
}

// lockSelect enriches a lock row with the holder's identity.
const lockSelect = `
	SELECT l.id, l.is_locked, l.locked_by, l.locked_at, h.username, h.email
	FROM l
	LEFT JOIN users h ON h.id = l.locked_by`

func scanLock(row interface{ Scan(...any) error }) (*models.LockState, error) {
	state := &models.LockState{}
	var (
		lockedBy    sql.NullString
		lockedAt    sql.NullTime
		holderName  sql.NullString
		holderEmail sql.NullString
	)
	if err := row.Scan(&state.DiagramID, &state.IsLocked, &lockedBy, &lockedAt, &holderName, &holderEmail); err != nil {
		return nil, err
	}
	if lockedBy.Valid {
		state.LockedBy = &lockedBy.String
		state.Holder = &models.UserRef{ID: lockedBy.String, Username: holderName.String, Email: holderEmail.String}
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		state.LockedAt = &t
	}
	return state, nil
}

// GetLock reads the lock triple.
func (s *DiagramStore) GetLock(ctx context.Context, diagramID string) (*models.LockState, error) {
	if !validID(diagramID) {
		return nil, store.ErrNotFound
	}

	query := `WITH l AS (
			SELECT id, is_locked, locked_by, locked_at FROM diagrams WHERE id = $1
		)` + lockSelect

	state, err := scanLock(s.conn().QueryRowContext(ctx, query, diagramID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying diagram lock: %w", err)
	}
	return state, nil
}

// AcquireLock locks the diagram for userID in a single conditional UPDATE.
// When another user holds the lock no row matches and the current state is
// returned instead.
func (s *DiagramStore) AcquireLock(ctx context.Context, diagramID, userID string, at time.Time) (*models.LockState, error) {
	if !validID(diagramID) {
		return nil, store.ErrNotFound
	}

	query := `WITH l AS (
			UPDATE diagrams
			SET is_locked = TRUE, locked_by = $2, locked_at = $3
			WHERE id = $1 AND (NOT is_locked OR locked_by = $2)
			RETURNING id, is_locked, locked_by, locked_at
		)` + lockSelect

	state, err := scanLock(s.conn().QueryRowContext(ctx, query, diagramID, userID, at.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return s.GetLock(ctx, diagramID)
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring diagram lock: %w", err)
	}
	return state, nil
}

// ReleaseLock clears the lock when userID holds it.
func (s *DiagramStore) ReleaseLock(ctx context.Context, diagramID, userID string) (*models.LockState, error) {
	if !validID(diagramID) {
		return nil, store.ErrNotFound
	}

	query := `WITH l AS (
			UPDATE diagrams
			SET is_locked = FALSE, locked_by = NULL, locked_at = NULL
			WHERE id = $1 AND is_locked AND locked_by = $2
			RETURNING id, is_locked, locked_by, locked_at
		)` + lockSelect

	state, err := scanLock(s.conn().QueryRowContext(ctx, query, diagramID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.GetLock(ctx, diagramID); err != nil {
			return nil, err
		}
		return nil, store.ErrNotLockHolder
	}
	if err != nil {
		return nil, fmt.Errorf("releasing diagram lock: %w", err)
	}
	return state, nil
}
