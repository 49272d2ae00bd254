// Package projects implements project CRUD and membership listing.
package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/narvanalabs/diagrams/internal/auth"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

// Input is the payload of a project create or update. Nil fields are left
// unchanged on update.
type Input struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Service manages projects.
type Service struct {
	store     store.Store
	authority *auth.MembershipAuthority
	logger    *slog.Logger
}

// NewService creates a new project service.
func NewService(st store.Store, authority *auth.MembershipAuthority, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, authority: authority, logger: logger}
}

func (s *Service) get(ctx context.Context, projectID string) (*models.Project, error) {
	p, err := s.store.Projects().Get(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NotFound("Project not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("reading project: %w", err)
	}
	return p, nil
}

// Create creates a project owned by userID together with the owner membership.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*models.Project, error) {
	p := &models.Project{ID: uuid.New().String(), OwnerID: userID}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Projects().Create(ctx, p); err != nil {
			return fmt.Errorf("creating project: %w", err)
		}
		if _, err := tx.Projects().AddMember(ctx, p.ID, userID, models.RoleOwner); err != nil {
			return fmt.Errorf("adding owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("project created", "project_id", p.ID, "owner_id", userID)
	return s.get(ctx, p.ID)
}

// List returns the projects the user is a member of.
func (s *Service) List(ctx context.Context, userID string) ([]*models.Project, error) {
	projects, err := s.store.Projects().ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	return projects, nil
}

// Get returns a project to one of its members.
func (s *Service) Get(ctx context.Context, projectID, userID string) (*models.Project, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authority.RequireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return p, nil
}

// Update renames or re-describes a project. Owner only.
func (s *Service) Update(ctx context.Context, projectID, userID string, in Input) (*models.Project, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authority.RequireOwner(ctx, projectID, userID); err != nil {
		return nil, err
	}

	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.Projects().Update(ctx, p); err != nil {
		return nil, fmt.Errorf("updating project: %w", err)
	}
	return s.get(ctx, projectID)
}

// Delete removes a project with everything it owns. Owner only.
func (s *Service) Delete(ctx context.Context, projectID, userID string) error {
	if _, err := s.get(ctx, projectID); err != nil {
		return err
	}
	if _, err := s.authority.RequireOwner(ctx, projectID, userID); err != nil {
		return err
	}
	if err := s.store.Projects().Delete(ctx, projectID); err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	s.logger.Info("project deleted", "project_id", projectID)
	return nil
}

// Members lists the memberships of a project to one of its members.
func (s *Service) Members(ctx context.Context, projectID, userID string) ([]*models.ProjectMembership, error) {
	if _, err := s.Get(ctx, projectID, userID); err != nil {
		return nil, err
	}
	members, err := s.store.Projects().ListMembers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}
