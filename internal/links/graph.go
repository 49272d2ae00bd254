// Package links maintains typed, directed edges between diagram elements.
package links

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

// Messages returned by the graph.
const (
	msgDiagramNotFound = "Diagram not found."
	msgLinkNotFound    = "Link not found."
	msgProjectNotFound = "Project not found."
	msgNoTargetAccess  = "You don't have access to the target diagram."
)

// CreateInput is the payload of a new link. The source diagram comes from the route.
type CreateInput struct {
	SourceElementID    string          `json:"source_element_id"`
	SourceElementLabel string          `json:"source_element_label"`
	TargetDiagramID    string          `json:"target_diagram"`
	TargetElementID    *string         `json:"target_element_id"`
	LinkType           models.LinkType `json:"link_type"`
	Description        string          `json:"description"`
}

// UpdateInput is a partial update of the mutable link fields. An empty
// TargetElementID clears the target element.
type UpdateInput struct {
	SourceElementLabel *string          `json:"source_element_label"`
	TargetElementID    *string          `json:"target_element_id"`
	LinkType           *models.LinkType `json:"link_type"`
	Description        *string          `json:"description"`
}

// Graph creates, lists and removes diagram links.
type Graph struct {
	store     store.Store
	authority *auth.MembershipAuthority
	logger    *slog.Logger
}

// NewGraph creates a new link graph.
func NewGraph(st store.Store, authority *auth.MembershipAuthority, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{store: st, authority: authority, logger: logger}
}

func (g *Graph) diagram(ctx context.Context, id string) (*models.Diagram, error) {
	d, err := g.store.Diagrams().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NotFound(msgDiagramNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading diagram: %w", err)
	}
	return d, nil
}

// memberDiagram fetches a diagram and asserts membership in its project.
func (g *Graph) memberDiagram(ctx context.Context, id, userID string) (*models.Diagram, error) {
	d, err := g.diagram(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := g.authority.Require(ctx, d.ProjectID, userID, auth.PermissionEditDiagrams); err != nil {
		return nil, err
	}
	return d, nil
}

// memberLink fetches a link and asserts membership in its source project.
func (g *Graph) memberLink(ctx context.Context, linkID, userID string) (*models.DiagramLink, *models.Diagram, error) {
	link, err := g.store.Links().Get(ctx, linkID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, models.NotFound(msgLinkNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading link: %w", err)
	}
	source, err := g.memberDiagram(ctx, link.SourceDiagramID, userID)
	if err != nil {
		return nil, nil, err
	}
	return link, source, nil
}

// Create links an element of the source diagram to a target diagram. The
// returned warnings are advisory and are not stored.
func (g *Graph) Create(ctx context.Context, sourceDiagramID, userID string, in CreateInput) (*models.DiagramLink, []models.LinkWarning, error) {
	source, err := g.memberDiagram(ctx, sourceDiagramID, userID)
	if err != nil {
		return nil, nil, err
	}

	if in.LinkType == "" {
		in.LinkType = models.LinkTypeReference
	}
	link := &models.DiagramLink{
		ID:                 uuid.New().String(),
		SourceDiagramID:    source.ID,
		SourceElementID:    in.SourceElementID,
		SourceElementLabel: in.SourceElementLabel,
		TargetDiagramID:    in.TargetDiagramID,
		TargetElementID:    emptyToNil(in.TargetElementID),
		LinkType:           in.LinkType,
		Description:        in.Description,
		CreatedBy:          userID,
	}

	fields := link.ValidateFields()
	var target *models.Diagram
	switch {
	case in.TargetDiagramID == "":
		fields.Add("target_diagram", "This field is required.")
	case in.TargetDiagramID == source.ID:
		fields.Add("target_diagram", "A diagram cannot link to itself.")
	default:
		target, err = g.store.Diagrams().Get(ctx, in.TargetDiagramID)
		if errors.Is(err, store.ErrNotFound) {
			fields.Add("target_diagram", fmt.Sprintf("Invalid pk %q - object does not exist.", in.TargetDiagramID))
		} else if err != nil {
			return nil, nil, fmt.Errorf("reading target diagram: %w", err)
		}
	}
	if err := fields.OrNil(); err != nil {
		return nil, nil, err
	}

	if _, err := g.authority.RequireMember(ctx, target.ProjectID, userID); err != nil {
		if errors.Is(err, models.ErrForbidden) {
			return nil, nil, models.Forbidden(msgNoTargetAccess)
		}
		return nil, nil, err
	}

	if err := g.store.Links().Create(ctx, link); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, models.NotFound(msgDiagramNotFound)
		}
		return nil, nil, fmt.Errorf("creating link: %w", err)
	}

	warnings := Lint(link.LinkType, source.Type, target.Type)
	g.logger.Info("link created",
		"link_id", link.ID,
		"source_diagram_id", link.SourceDiagramID,
		"target_diagram_id", link.TargetDiagramID,
		"link_type", link.LinkType,
		"warnings", len(warnings),
	)
	return link, warnings, nil
}

// List partitions the links touching a diagram into outgoing and incoming,
// each newest first.
func (g *Graph) List(ctx context.Context, diagramID, userID string) (*models.LinkSet, error) {
	d, err := g.memberDiagram(ctx, diagramID, userID)
	if err != nil {
		return nil, err
	}

	outgoing, err := g.store.Links().ListOutgoing(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("listing outgoing links: %w", err)
	}
	incoming, err := g.store.Links().ListIncoming(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("listing incoming links: %w", err)
	}
	return &models.LinkSet{Outgoing: nonNil(outgoing), Incoming: nonNil(incoming)}, nil
}

// ListForElement returns the outgoing links of one element, newest first.
func (g *Graph) ListForElement(ctx context.Context, diagramID, elementID, userID string) ([]*models.DiagramLink, error) {
	d, err := g.memberDiagram(ctx, diagramID, userID)
	if err != nil {
		return nil, err
	}
	links, err := g.store.Links().ListByElement(ctx, d.ID, elementID)
	if err != nil {
		return nil, fmt.Errorf("listing element links: %w", err)
	}
	return nonNil(links), nil
}

// ListForProject returns every link with an endpoint in the project.
func (g *Graph) ListForProject(ctx context.Context, projectID, userID string) ([]*models.DiagramLink, error) {
	if _, err := g.store.Projects().Get(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, models.NotFound(msgProjectNotFound)
		}
		return nil, fmt.Errorf("reading project: %w", err)
	}
	if _, err := g.authority.RequireMember(ctx, projectID, userID); err != nil {
		return nil, err
	}
	links, err := g.store.Links().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing project links: %w", err)
	}
	return nonNil(links), nil
}

// Get returns a link to a member of its source project.
func (g *Graph) Get(ctx context.Context, linkID, userID string) (*models.DiagramLink, error) {
	link, _, err := g.memberLink(ctx, linkID, userID)
	return link, err
}

// Update changes the mutable fields of a link and recomputes its warnings.
func (g *Graph) Update(ctx context.Context, linkID, userID string, in UpdateInput) (*models.DiagramLink, []models.LinkWarning, error) {
	link, source, err := g.memberLink(ctx, linkID, userID)
	if err != nil {
		return nil, nil, err
	}

	if in.SourceElementLabel != nil {
		link.SourceElementLabel = *in.SourceElementLabel
	}
	if in.TargetElementID != nil {
		link.TargetElementID = emptyToNil(in.TargetElementID)
	}
	if in.LinkType != nil {
		link.LinkType = *in.LinkType
	}
	if in.Description != nil {
		link.Description = *in.Description
	}
	if err := link.ValidateFields().OrNil(); err != nil {
		return nil, nil, err
	}

	if err := g.store.Links().Update(ctx, link); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, models.NotFound(msgLinkNotFound)
		}
		return nil, nil, fmt.Errorf("updating link: %w", err)
	}

	updated, err := g.store.Links().Get(ctx, link.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("reading link: %w", err)
	}
	return updated, Lint(updated.LinkType, source.Type, updated.TargetDiagramType), nil
}

// Delete removes a link. Any member of the source project may delete it.
func (g *Graph) Delete(ctx context.Context, linkID, userID string) error {
	link, _, err := g.memberLink(ctx, linkID, userID)
	if err != nil {
		return err
	}
	if err := g.store.Links().Delete(ctx, link.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.NotFound(msgLinkNotFound)
		}
		return fmt.Errorf("deleting link: %w", err)
	}
	g.logger.Info("link deleted", "link_id", link.ID)
	return nil
}

// ListLinkable returns every project the user belongs to with its diagrams,
// for choosing link targets.
func (g *Graph) ListLinkable(ctx context.Context, userID string) ([]models.LinkableProject, error) {
	projects, err := g.store.Projects().ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	summaries, err := g.store.Diagrams().ListSummaries(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("listing diagrams: %w", err)
	}

	result := make([]models.LinkableProject, 0, len(projects))
	for _, p := range projects {
		diagrams := summaries[p.ID]
		if diagrams == nil {
			diagrams = []models.DiagramSummary{}
		}
		result = append(result, models.LinkableProject{ID: p.ID, Name: p.Name, Diagrams: diagrams})
	}
	return result, nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func nonNil(links []*models.DiagramLink) []*models.DiagramLink {
	if links == nil {
		return []*models.DiagramLink{}
	}
	return links
}
