package memory

import (
	"context"
	"time"

	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

type linkStore struct{ s *Store }

func (st *state) linkView(l *models.DiagramLink) *models.DiagramLink {
	out := *l
	if l.TargetElementID != nil {
		target := *l.TargetElementID
		out.TargetElementID = &target
	}
	if d, ok := st.diagrams[l.SourceDiagramID]; ok {
		out.SourceDiagramName, out.SourceDiagramType = d.Name, d.Type
	}
	if d, ok := st.diagrams[l.TargetDiagramID]; ok {
		out.TargetDiagramName, out.TargetDiagramType = d.Name, d.Type
	}
	if rec, ok := st.users[l.CreatedBy]; ok {
		out.CreatorUsername = rec.user.Username
	}
	return &out
}

func (l *linkStore) Create(ctx context.Context, link *models.DiagramLink) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	st := l.s.st

	if _, ok := st.diagrams[link.SourceDiagramID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := st.diagrams[link.TargetDiagramID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := st.links[link.ID]; ok {
		return store.ErrDuplicate
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = l.s.now()
	}
	stored := *link
	st.links[link.ID] = &stored
	st.track(link.ID)
	*link = *st.linkView(&stored)
	return nil
}

func (l *linkStore) Get(ctx context.Context, id string) (*models.DiagramLink, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	link, ok := l.s.st.links[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return l.s.st.linkView(link), nil
}

func (l *linkStore) Update(ctx context.Context, link *models.DiagramLink) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	stored, ok := l.s.st.links[link.ID]
	if !ok {
		return store.ErrNotFound
	}
	stored.SourceElementLabel = link.SourceElementLabel
	stored.TargetElementID = link.TargetElementID
	stored.LinkType = link.LinkType
	stored.Description = link.Description
	return nil
}

func (l *linkStore) Delete(ctx context.Context, id string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	if _, ok := l.s.st.links[id]; !ok {
		return store.ErrNotFound
	}
	delete(l.s.st.links, id)
	return nil
}

func (l *linkStore) ListOutgoing(ctx context.Context, diagramID string) ([]*models.DiagramLink, error) {
	return l.filter(func(link *models.DiagramLink, _ *state) bool {
		return link.SourceDiagramID == diagramID
	}), nil
}

func (l *linkStore) ListIncoming(ctx context.Context, diagramID string) ([]*models.DiagramLink, error) {
	return l.filter(func(link *models.DiagramLink, _ *state) bool {
		return link.TargetDiagramID == diagramID
	}), nil
}

func (l *linkStore) ListByElement(ctx context.Context, diagramID, elementID string) ([]*models.DiagramLink, error) {
	return l.filter(func(link *models.DiagramLink, _ *state) bool {
		return link.SourceDiagramID == diagramID && link.SourceElementID == elementID
	}), nil
}

func (l *linkStore) ListByProject(ctx context.Context, projectID string) ([]*models.DiagramLink, error) {
	return l.filter(func(link *models.DiagramLink, st *state) bool {
		src, tgt := st.diagrams[link.SourceDiagramID], st.diagrams[link.TargetDiagramID]
		return (src != nil && src.ProjectID == projectID) || (tgt != nil && tgt.ProjectID == projectID)
	}), nil
}

func (l *linkStore) filter(match func(*models.DiagramLink, *state) bool) []*models.DiagramLink {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	st := l.s.st

	var ids []string
	for id, link := range st.links {
		if match(link, st) {
			ids = append(ids, id)
		}
	}
	st.newestFirst(ids, func(id string) time.Time { return st.links[id].CreatedAt })

	out := make([]*models.DiagramLink, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.linkView(st.links[id]))
	}
	return out
}
