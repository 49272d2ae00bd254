package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

type projectStore struct{ s *Store }

func (st *state) projectView(p *models.Project) *models.Project {
	out := *p
	if rec, ok := st.users[p.OwnerID]; ok {
		out.Owner = rec.user.Username
	}
	return &out
}

func (st *state) membershipView(m *models.ProjectMembership) *models.ProjectMembership {
	out := *m
	if rec, ok := st.users[m.UserID]; ok {
		out.Username = rec.user.Username
		out.Email = rec.user.Email
	}
	return &out
}

func (p *projectStore) Create(ctx context.Context, project *models.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("validating project: %w", err)
	}

	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	st := p.s.st

	if _, ok := st.projects[project.ID]; ok {
		return store.ErrDuplicate
	}
	if _, ok := st.users[project.OwnerID]; !ok {
		return store.ErrNotFound
	}
	now := p.s.now()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	if project.UpdatedAt.IsZero() {
		project.UpdatedAt = now
	}
	stored := *project
	stored.Owner = ""
	st.projects[project.ID] = &stored
	st.track(project.ID)
	return nil
}

func (p *projectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	project, ok := p.s.st.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.s.st.projectView(project), nil
}

func (p *projectStore) ListForUser(ctx context.Context, userID string) ([]*models.Project, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	st := p.s.st

	var ids []string
	for projectID, members := range st.members {
		if _, ok := members[userID]; ok {
			ids = append(ids, projectID)
		}
	}
	st.oldestFirst(ids, func(id string) time.Time { return st.projects[id].CreatedAt })

	projects := make([]*models.Project, 0, len(ids))
	for _, id := range ids {
		projects = append(projects, st.projectView(st.projects[id]))
	}
	return projects, nil
}

func (p *projectStore) Update(ctx context.Context, project *models.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("validating project: %w", err)
	}

	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	stored, ok := p.s.st.projects[project.ID]
	if !ok {
		return store.ErrNotFound
	}
	project.UpdatedAt = p.s.now()
	stored.Name = project.Name
	stored.Description = project.Description
	stored.UpdatedAt = project.UpdatedAt
	return nil
}

func (p *projectStore) Delete(ctx context.Context, id string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	st := p.s.st

	if _, ok := st.projects[id]; !ok {
		return store.ErrNotFound
	}
	for diagramID, d := range st.diagrams {
		if d.ProjectID == id {
			st.deleteDiagram(diagramID)
		}
	}
	for inviteID, inv := range st.invites {
		if inv.ProjectID == id {
			delete(st.invites, inviteID)
		}
	}
	delete(st.members, id)
	delete(st.projects, id)
	return nil
}

func (p *projectStore) AddMember(ctx context.Context, projectID, userID string, role models.Role) (bool, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	st := p.s.st

	if _, ok := st.projects[projectID]; !ok {
		return false, store.ErrNotFound
	}
	if _, ok := st.users[userID]; !ok {
		return false, store.ErrNotFound
	}
	members, ok := st.members[projectID]
	if !ok {
		members = make(map[string]*models.ProjectMembership)
		st.members[projectID] = members
	}
	if _, ok := members[userID]; ok {
		return false, nil
	}
	members[userID] = &models.ProjectMembership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		CreatedAt: p.s.now(),
	}
	st.track(projectID + "/" + userID)
	return true, nil
}

func (p *projectStore) GetMembership(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	m, ok := p.s.st.members[projectID][userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p.s.st.membershipView(m), nil
}

func (p *projectStore) ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMembership, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	st := p.s.st

	members := st.members[projectID]
	keys := make([]string, 0, len(members))
	for userID := range members {
		keys = append(keys, projectID+"/"+userID)
	}
	st.oldestFirst(keys, func(key string) time.Time {
		return members[key[len(projectID)+1:]].CreatedAt
	})

	out := make([]*models.ProjectMembership, 0, len(keys))
	for _, key := range keys {
		out = append(out, st.membershipView(members[key[len(projectID)+1:]]))
	}
	return out, nil
}
