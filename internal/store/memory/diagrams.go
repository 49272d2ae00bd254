package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

type diagramStore struct{ s *Store }

func (st *state) holder(lockedBy *string) *models.UserRef {
	if lockedBy == nil {
		return nil
	}
	if rec, ok := st.users[*lockedBy]; ok {
		return rec.user.Ref()
	}
	return &models.UserRef{ID: *lockedBy}
}

func (st *state) diagramView(d *models.Diagram) *models.Diagram {
	out := *d
	out.Data = append(json.RawMessage(nil), d.Data...)
	out.Holder = st.holder(d.LockedBy)
	return &out
}

func (st *state) lockView(d *models.Diagram) *models.LockState {
	return &models.LockState{
		DiagramID: d.ID,
		IsLocked:  d.IsLocked,
		LockedBy:  d.LockedBy,
		LockedAt:  d.LockedAt,
		Holder:    st.holder(d.LockedBy),
	}
}

// deleteDiagram removes a diagram and every link touching it.
func (st *state) deleteDiagram(id string) {
	for linkID, l := range st.links {
		if l.SourceDiagramID == id || l.TargetDiagramID == id {
			delete(st.links, linkID)
		}
	}
	delete(st.diagrams, id)
}

func (d *diagramStore) Create(ctx context.Context, diagram *models.Diagram) error {
	if err := diagram.Validate(); err != nil {
		return fmt.Errorf("validating diagram: %w", err)
	}

	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	st := d.s.st

	if _, ok := st.projects[diagram.ProjectID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := st.diagrams[diagram.ID]; ok {
		return store.ErrDuplicate
	}
	if diagram.CreatedAt.IsZero() {
		diagram.CreatedAt = d.s.now()
	}
	diagram.UpdatedAt = diagram.CreatedAt
	if len(diagram.Data) == 0 {
		diagram.Data = json.RawMessage("{}")
	}
	diagram.IsLocked, diagram.LockedBy, diagram.LockedAt, diagram.Holder = false, nil, nil, nil

	stored := *diagram
	stored.Data = append(json.RawMessage(nil), diagram.Data...)
	st.diagrams[diagram.ID] = &stored
	st.track(diagram.ID)
	return nil
}

func (d *diagramStore) Get(ctx context.Context, id string) (*models.Diagram, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	diagram, ok := d.s.st.diagrams[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d.s.st.diagramView(diagram), nil
}

func (d *diagramStore) ListByProject(ctx context.Context, projectID string) ([]*models.Diagram, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	st := d.s.st

	var ids []string
	for id, diagram := range st.diagrams {
		if diagram.ProjectID == projectID {
			ids = append(ids, id)
		}
	}
	st.newestFirst(ids, func(id string) time.Time { return st.diagrams[id].UpdatedAt })

	out := make([]*models.Diagram, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.diagramView(st.diagrams[id]))
	}
	return out, nil
}

func (d *diagramStore) ListSummaries(ctx context.Context, projectIDs []string) (map[string][]models.DiagramSummary, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	wanted := make(map[string]bool, len(projectIDs))
	for _, id := range projectIDs {
		wanted[id] = true
	}

	summaries := make(map[string][]models.DiagramSummary, len(projectIDs))
	for _, diagram := range d.s.st.diagrams {
		if !wanted[diagram.ProjectID] {
			continue
		}
		summaries[diagram.ProjectID] = append(summaries[diagram.ProjectID], models.DiagramSummary{
			ID:   diagram.ID,
			Name: diagram.Name,
			Type: diagram.Type,
		})
	}
	for _, list := range summaries {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Name != list[j].Name {
				return list[i].Name < list[j].Name
			}
			return list[i].ID < list[j].ID
		})
	}
	return summaries, nil
}

func (d *diagramStore) Update(ctx context.Context, diagram *models.Diagram) error {
	if err := diagram.Validate(); err != nil {
		return fmt.Errorf("validating diagram: %w", err)
	}

	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	stored, ok := d.s.st.diagrams[diagram.ID]
	if !ok {
		return store.ErrNotFound
	}
	if len(diagram.Data) == 0 {
		diagram.Data = json.RawMessage("{}")
	}
	// Bump strictly so list order follows the write order even on coarse clocks.
	diagram.UpdatedAt = d.s.now()
	if !diagram.UpdatedAt.After(stored.UpdatedAt) {
		diagram.UpdatedAt = stored.UpdatedAt.Add(time.Microsecond)
	}
	stored.Name = diagram.Name
	stored.Description = diagram.Description
	stored.Type = diagram.Type
	stored.Data = append(json.RawMessage(nil), diagram.Data...)
	stored.UpdatedAt = diagram.UpdatedAt
	return nil
}

func (d *diagramStore) Delete(ctx context.Context, id string) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if _, ok := d.s.st.diagrams[id]; !ok {
		return store.ErrNotFound
	}
	d.s.st.deleteDiagram(id)
	return nil
}

func (d *diagramStore) GetLock(ctx context.Context, diagramID string) (*models.LockState, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	diagram, ok := d.s.st.diagrams[diagramID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d.s.st.lockView(diagram), nil
}

func (d *diagramStore) AcquireLock(ctx context.Context, diagramID, userID string, at time.Time) (*models.LockState, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	diagram, ok := d.s.st.diagrams[diagramID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !diagram.IsLocked || (diagram.LockedBy != nil && *diagram.LockedBy == userID) {
		holder := userID
		stamp := at.UTC()
		diagram.IsLocked = true
		diagram.LockedBy = &holder
		diagram.LockedAt = &stamp
	}
	return d.s.st.lockView(diagram), nil
}

func (d *diagramStore) ReleaseLock(ctx context.Context, diagramID, userID string) (*models.LockState, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	diagram, ok := d.s.st.diagrams[diagramID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !diagram.IsLocked || diagram.LockedBy == nil || *diagram.LockedBy != userID {
		return nil, store.ErrNotLockHolder
	}
	diagram.IsLocked = false
	diagram.LockedBy = nil
	diagram.LockedAt = nil
	return d.s.st.lockView(diagram), nil
}
