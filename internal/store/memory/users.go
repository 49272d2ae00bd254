package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type userStore struct{ s *Store }

func (u *userStore) Create(ctx context.Context, username, email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.s.cost)
	if err != nil {
		return nil, err
	}

	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	st := u.s.st

	if _, ok := st.byName[username]; ok {
		return nil, store.ErrDuplicate
	}
	rec := &userRecord{
		user: models.User{ID: uuid.New().String(), Username: username, Email: email, CreatedAt: u.s.now()},
		hash: hash,
	}
	st.users[rec.user.ID] = rec
	st.byName[username] = rec.user.ID
	st.track(rec.user.ID)

	user := rec.user
	return &user, nil
}

func (u *userStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	rec, ok := u.s.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := rec.user
	return &user, nil
}

func (u *userStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	id, ok := u.s.st.byName[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := u.s.st.users[id].user
	return &user, nil
}

func (u *userStore) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	u.s.mu.Lock()
	id, ok := u.s.st.byName[username]
	var rec userRecord
	if ok {
		rec = *u.s.st.users[id]
	}
	u.s.mu.Unlock()

	if !ok {
		return nil, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.hash, []byte(password)); err != nil {
		return nil, store.ErrInvalidCredentials
	}
	return &rec.user, nil
}
