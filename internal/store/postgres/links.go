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

// LinkStore implements store.LinkStore using PostgreSQL.
type LinkStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *LinkStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// linkSelect reads a link together with the names and types of both
// endpoints and the creator's username.
const linkSelect = `
	SELECT l.id, l.source_diagram_id, l.source_element_id, l.source_element_label,
	       l.target_diagram_id, l.target_element_id, l.link_type, l.description,
	       l.created_by, l.created_at,
	       sd.name, sd.diagram_type, td.name, td.diagram_type, u.username
	FROM diagram_links l
	INNER JOIN diagrams sd ON sd.id = l.source_diagram_id
	INNER JOIN diagrams td ON td.id = l.target_diagram_id
	INNER JOIN users u ON u.id = l.created_by`

func scanLink(row interface{ Scan(...any) error }) (*models.DiagramLink, error) {
	var l models.DiagramLink
	var targetElement sql.NullString
	var linkType, sourceType, targetType string

	err := row.Scan(
		&l.ID, &l.SourceDiagramID, &l.SourceElementID, &l.SourceElementLabel,
		&l.TargetDiagramID, &targetElement, &linkType, &l.Description,
		&l.CreatedBy, &l.CreatedAt,
		&l.SourceDiagramName, &sourceType, &l.TargetDiagramName, &targetType, &l.CreatorUsername,
	)
	if err != nil {
		return nil, err
	}
	if targetElement.Valid {
		l.TargetElementID = &targetElement.String
	}
	l.LinkType = models.LinkType(linkType)
	l.SourceDiagramType = models.DiagramType(sourceType)
	l.TargetDiagramType = models.DiagramType(targetType)
	return &l, nil
}

// Create creates a new link and fills its display fields.
func (s *LinkStore) Create(ctx context.Context, link *models.DiagramLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO diagram_links (id, source_diagram_id, source_element_id, source_element_label,
			target_diagram_id, target_element_id, link_type, description, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.conn().ExecContext(ctx, query,
		link.ID,
		link.SourceDiagramID,
		link.SourceElementID,
		link.SourceElementLabel,
		link.TargetDiagramID,
		nullString(link.TargetElementID),
		string(link.LinkType),
		link.Description,
		link.CreatedBy,
		link.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("inserting link: %w", err)
	}

	stored, err := s.Get(ctx, link.ID)
	if err != nil {
		return err
	}
	*link = *stored
	return nil
}

// Get retrieves a link by ID.
func (s *LinkStore) Get(ctx context.Context, id string) (*models.DiagramLink, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}

	link, err := scanLink(s.conn().QueryRowContext(ctx, linkSelect+` WHERE l.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying link: %w", err)
	}
	return link, nil
}

// Update writes the mutable fields of a link. Endpoints never change.
func (s *LinkStore) Update(ctx context.Context, link *models.DiagramLink) error {
	query := `
		UPDATE diagram_links
		SET source_element_label = $2, target_element_id = $3, link_type = $4, description = $5
		WHERE id = $1`

	result, err := s.conn().ExecContext(ctx, query,
		link.ID,
		link.SourceElementLabel,
		nullString(link.TargetElementID),
		string(link.LinkType),
		link.Description,
	)
	if err != nil {
		return fmt.Errorf("updating link: %w", err)
	}
	return expectOneRow(result)
}

// Delete removes a link.
func (s *LinkStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return store.ErrNotFound
	}

	result, err := s.conn().ExecContext(ctx, `DELETE FROM diagram_links WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting link: %w", err)
	}
	return expectOneRow(result)
}

// ListOutgoing retrieves links whose source is the diagram, newest first.
func (s *LinkStore) ListOutgoing(ctx context.Context, diagramID string) ([]*models.DiagramLink, error) {
	return s.list(ctx, linkSelect+` WHERE l.source_diagram_id = $1 ORDER BY l.created_at DESC`, diagramID)
}

// ListIncoming retrieves links whose target is the diagram, newest first.
func (s *LinkStore) ListIncoming(ctx context.Context, diagramID string) ([]*models.DiagramLink, error) {
	return s.list(ctx, linkSelect+` WHERE l.target_diagram_id = $1 ORDER BY l.created_at DESC`, diagramID)
}

// ListByElement retrieves outgoing links of one source element, newest first.
func (s *LinkStore) ListByElement(ctx context.Context, diagramID, elementID string) ([]*models.DiagramLink, error) {
	return s.list(ctx, linkSelect+`
		WHERE l.source_diagram_id = $1 AND l.source_element_id = $2
		ORDER BY l.created_at DESC`, diagramID, elementID)
}

// ListByProject retrieves links with either endpoint in the project, newest first.
func (s *LinkStore) ListByProject(ctx context.Context, projectID string) ([]*models.DiagramLink, error) {
	return s.list(ctx, linkSelect+`
		WHERE sd.project_id = $1 OR td.project_id = $1
		ORDER BY l.created_at DESC`, projectID)
}

func (s *LinkStore) list(ctx context.Context, query string, args ...any) ([]*models.DiagramLink, error) {
	// The first argument is always the diagram or project ID.
	if id, ok := args[0].(string); ok && !validID(id) {
		return nil, nil
	}

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var links []*models.DiagramLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning link row: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating link rows: %w", err)
	}
	return links, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
