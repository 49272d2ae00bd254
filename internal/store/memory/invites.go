package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

type inviteStore struct{ s *Store }

func (st *state) inviteView(inv *models.ProjectInvite) *models.ProjectInvite {
	out := *inv
	if rec, ok := st.users[inv.InvitedBy]; ok {
		out.Inviter = rec.user.Username
	}
	return &out
}

func (i *inviteStore) Create(ctx context.Context, invite *models.ProjectInvite) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	st := i.s.st

	if _, ok := st.projects[invite.ProjectID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range st.invites {
		if existing.Token == invite.Token {
			return store.ErrDuplicate
		}
	}
	if invite.ID == "" {
		invite.ID = uuid.New().String()
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = i.s.now()
	}
	stored := *invite
	st.invites[invite.ID] = &stored
	st.track(invite.ID)
	return nil
}

func (i *inviteStore) Get(ctx context.Context, id string) (*models.ProjectInvite, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()

	inv, ok := i.s.st.invites[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return i.s.st.inviteView(inv), nil
}

func (i *inviteStore) GetByToken(ctx context.Context, token string) (*models.ProjectInvite, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()

	for _, inv := range i.s.st.invites {
		if inv.Token == token {
			return i.s.st.inviteView(inv), nil
		}
	}
	return nil, store.ErrNotFound
}

func (i *inviteStore) ListByProject(ctx context.Context, projectID string) ([]*models.ProjectInvite, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	st := i.s.st

	var ids []string
	for id, inv := range st.invites {
		if inv.ProjectID == projectID {
			ids = append(ids, id)
		}
	}
	st.newestFirst(ids, func(id string) time.Time { return st.invites[id].CreatedAt })

	out := make([]*models.ProjectInvite, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.inviteView(st.invites[id]))
	}
	return out, nil
}

func (i *inviteStore) Deactivate(ctx context.Context, id string) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()

	inv, ok := i.s.st.invites[id]
	if !ok {
		return store.ErrNotFound
	}
	inv.IsActive = false
	return nil
}

func (i *inviteStore) MarkUsed(ctx context.Context, id, userID string, at time.Time) error {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()

	inv, ok := i.s.st.invites[id]
	if !ok {
		return store.ErrNotFound
	}
	if !inv.IsActive {
		return store.ErrInviteConsumed
	}
	acceptedBy := userID
	acceptedAt := at.UTC()
	inv.IsActive = false
	inv.AcceptedBy = &acceptedBy
	inv.AcceptedAt = &acceptedAt
	return nil
}
