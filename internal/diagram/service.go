// Package diagram implements diagram CRUD and the advisory single-editor lock.
package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/narvanalabs/diagrams/internal/auth"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

const msgDiagramNotFound = "Diagram not found."

// CreateInput is the payload for a new diagram.
type CreateInput struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Type        models.DiagramType `json:"diagram_type"`
	Data        json.RawMessage    `json:"data"`
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	Type        *models.DiagramType `json:"diagram_type"`
	Data        json.RawMessage     `json:"data"`
}

// Service manages diagrams inside projects.
type Service struct {
	store     store.Store
	authority *auth.MembershipAuthority
	logger    *slog.Logger
}

// NewService creates a new diagram service.
func NewService(st store.Store, authority *auth.MembershipAuthority, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, authority: authority, logger: logger}
}

// NormalizeData accepts any JSON value. A JSON string holding an encoded
// document is unwrapped to that document; every other value, including a
// string that does not decode, is stored as sent. Only a body that is not
// JSON at all is a validation error.
func NormalizeData(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, models.NewValidationError("data", "Value must be valid JSON.")
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil && encoded != "" && json.Valid([]byte(encoded)) {
		return json.RawMessage(encoded), nil
	}
	return raw, nil
}

// load fetches a diagram and asserts membership in its project.
func (s *Service) load(ctx context.Context, diagramID, userID string) (*models.Diagram, error) {
	return loadDiagram(ctx, s.store, s.authority, diagramID, userID)
}

func loadDiagram(ctx context.Context, st store.Store, authority *auth.MembershipAuthority, diagramID, userID string) (*models.Diagram, error) {
	d, err := st.Diagrams().Get(ctx, diagramID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NotFound(msgDiagramNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading diagram: %w", err)
	}
	if _, err := authority.Require(ctx, d.ProjectID, userID, auth.PermissionEditDiagrams); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) requireProject(ctx context.Context, projectID, userID string) error {
	if _, err := s.store.Projects().Get(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.NotFound("Project not found.")
		}
		return fmt.Errorf("reading project: %w", err)
	}
	_, err := s.authority.RequireMember(ctx, projectID, userID)
	return err
}

// List returns the diagrams of a project, most recently updated first.
func (s *Service) List(ctx context.Context, projectID, userID string) ([]*models.Diagram, error) {
	if err := s.requireProject(ctx, projectID, userID); err != nil {
		return nil, err
	}
	diagrams, err := s.store.Diagrams().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing diagrams: %w", err)
	}
	return diagrams, nil
}

// Create adds an unlocked diagram to a project.
func (s *Service) Create(ctx context.Context, projectID, userID string, in CreateInput) (*models.Diagram, error) {
	if err := s.requireProject(ctx, projectID, userID); err != nil {
		return nil, err
	}

	data, err := NormalizeData(in.Data)
	if err != nil {
		return nil, err
	}
	d := &models.Diagram{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        in.Name,
		Description: in.Description,
		Type:        in.Type,
		Data:        data,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Diagrams().Create(ctx, d); err != nil {
		return nil, fmt.Errorf("creating diagram: %w", err)
	}

	s.logger.Info("diagram created",
		"diagram_id", d.ID,
		"project_id", projectID,
		"type", d.Type,
	)
	return d, nil
}

// Get returns a diagram to a member of its project.
func (s *Service) Get(ctx context.Context, diagramID, userID string) (*models.Diagram, error) {
	return s.load(ctx, diagramID, userID)
}

// Update applies a partial update. The lock is not consulted; concurrent
// writers overwrite each other.
func (s *Service) Update(ctx context.Context, diagramID, userID string, in UpdateInput) (*models.Diagram, error) {
	d, err := s.load(ctx, diagramID, userID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		d.Name = *in.Name
	}
	if in.Description != nil {
		d.Description = *in.Description
	}
	if in.Type != nil {
		d.Type = *in.Type
	}
	if len(in.Data) > 0 {
		data, err := NormalizeData(in.Data)
		if err != nil {
			return nil, err
		}
		d.Data = data
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Diagrams().Update(ctx, d); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.NotFound(msgDiagramNotFound)
		}
		return nil, fmt.Errorf("updating diagram: %w", err)
	}
	return s.store.Diagrams().Get(ctx, d.ID)
}

// Delete removes a diagram and every link touching it.
func (s *Service) Delete(ctx context.Context, diagramID, userID string) error {
	if _, err := s.load(ctx, diagramID, userID); err != nil {
		return err
	}
	if err := s.store.Diagrams().Delete(ctx, diagramID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.NotFound(msgDiagramNotFound)
		}
		return fmt.Errorf("deleting diagram: %w", err)
	}
	s.logger.Info("diagram deleted", "diagram_id", diagramID)
	return nil
}
