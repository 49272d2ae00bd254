package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

// ProjectStore implements store.ProjectStore using PostgreSQL.
type ProjectStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *ProjectStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const projectColumns = `
	p.id, p.name, p.description, p.owner_id, u.username, p.created_at, p.updated_at`

func scanProject(row interface{ Scan(...any) error }) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.OwnerID,
		&p.Owner,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

// Create creates a new project.
func (s *ProjectStore) Create(ctx context.Context, project *models.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("validating project: %w", err)
	}

	query := `
		INSERT INTO projects (id, name, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	if project.UpdatedAt.IsZero() {
		project.UpdatedAt = now
	}

	err := s.conn().QueryRowContext(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.OwnerID,
		project.CreatedAt,
		project.UpdatedAt,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("inserting project: %w", err)
	}

	return nil
}

// Get retrieves a project by ID.
func (s *ProjectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}

	query := `SELECT ` + projectColumns + `
		FROM projects p
		INNER JOIN users u ON u.id = p.owner_id
		WHERE p.id = $1`

	project, err := scanProject(s.conn().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying project: %w", err)
	}
	return project, nil
}

// ListForUser retrieves all projects the user is a member of.
func (s *ProjectStore) ListForUser(ctx context.Context, userID string) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + `
		FROM projects p
		INNER JOIN users u ON u.id = p.owner_id
		INNER JOIN project_memberships m ON m.project_id = p.id
		WHERE m.user_id = $1
		ORDER BY p.created_at ASC`

	rows, err := s.conn().QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}

	return projects, nil
}

// Update updates a project's name and description.
func (s *ProjectStore) Update(ctx context.Context, project *models.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("validating project: %w", err)
	}

	query := `
		UPDATE projects
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1`

	project.UpdatedAt = time.Now().UTC()

	result, err := s.conn().ExecContext(ctx, query,
		project.ID,
		project.Name,
		project.Description,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}

	return expectOneRow(result)
}

// Delete deletes a project. Memberships, invites, diagrams and links cascade.
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return store.ErrNotFound
	}

	result, err := s.conn().ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}

	return expectOneRow(result)
}

// AddMember adds a user to a project with a role. An existing membership
// keeps its role.
func (s *ProjectStore) AddMember(ctx context.Context, projectID, userID string, role models.Role) (bool, error) {
	query := `
		INSERT INTO project_memberships (project_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, user_id) DO NOTHING`

	result, err := s.conn().ExecContext(ctx, query, projectID, userID, string(role), time.Now().UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, store.ErrNotFound
		}
		return false, fmt.Errorf("adding member to project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// GetMembership retrieves the membership of a user in a project.
func (s *ProjectStore) GetMembership(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error) {
	if !validID(projectID) || !validID(userID) {
		return nil, store.ErrNotFound
	}

	query := `
		SELECT m.project_id, m.user_id, u.username, u.email, m.role, m.created_at
		FROM project_memberships m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.project_id = $1 AND m.user_id = $2`

	m, err := scanMembership(s.conn().QueryRowContext(ctx, query, projectID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying membership: %w", err)
	}
	return m, nil
}

// ListMembers retrieves all members of a project.
func (s *ProjectStore) ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMembership, error) {
	query := `
		SELECT m.project_id, m.user_id, u.username, u.email, m.role, m.created_at
		FROM project_memberships m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.project_id = $1
		ORDER BY m.created_at ASC`

	rows, err := s.conn().QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying project members: %w", err)
	}
	defer rows.Close()

	var members []*models.ProjectMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning membership row: %w", err)
		}
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating membership rows: %w", err)
	}

	return members, nil
}

func scanMembership(row interface{ Scan(...any) error }) (*models.ProjectMembership, error) {
	m := &models.ProjectMembership{}
	var role string
	err := row.Scan(
		&m.ProjectID,
		&m.UserID,
		&m.Username,
		&m.Email,
		&role,
		&m.CreatedAt,
	)
	m.Role = models.Role(role)
	return m, err
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
