// Package memory provides an in-process implementation of the store
// interfaces. It backs the test suites and the --store=memory server mode.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// Store implements store.Store on maps guarded by a single mutex.
type Store struct {
	mu     sync.Mutex
	st     *state
	logger *slog.Logger
	cost   int
}

// Option configures a Store.
type Option func(*Store)

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

// New returns an empty store.
func New(logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{st: newState(), logger: logger, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type userRecord struct {
	user models.User
	hash []byte
}

type state struct {
	seq      int64
	order    map[string]int64
	users    map[string]*userRecord
	byName   map[string]string
	projects map[string]*models.Project
	members  map[string]map[string]*models.ProjectMembership
	diagrams map[string]*models.Diagram
	links    map[string]*models.DiagramLink
	invites  map[string]*models.ProjectInvite
}

func newState() *state {
	return &state{
		order:    make(map[string]int64),
		users:    make(map[string]*userRecord),
		byName:   make(map[string]string),
		projects: make(map[string]*models.Project),
		members:  make(map[string]map[string]*models.ProjectMembership),
		diagrams: make(map[string]*models.Diagram),
		links:    make(map[string]*models.DiagramLink),
		invites:  make(map[string]*models.ProjectInvite),
	}
}

// clone copies every record so a transaction can be discarded on error.
func (st *state) clone() *state {
	c := newState()
	c.seq = st.seq
	for k, v := range st.order {
		c.order[k] = v
	}
	for k, v := range st.users {
		rec := *v
		c.users[k] = &rec
	}
	for k, v := range st.byName {
		c.byName[k] = v
	}
	for k, v := range st.projects {
		p := *v
		c.projects[k] = &p
	}
	for k, ms := range st.members {
		c.members[k] = make(map[string]*models.ProjectMembership, len(ms))
		for uid, m := range ms {
			mc := *m
			c.members[k][uid] = &mc
		}
	}
	for k, v := range st.diagrams {
		d := *v
		c.diagrams[k] = &d
	}
	for k, v := range st.links {
		l := *v
		c.links[k] = &l
	}
	for k, v := range st.invites {
		i := *v
		c.invites[k] = &i
	}
	return c
}

// track records insertion order so equal timestamps still sort deterministically.
func (st *state) track(id string) {
	st.seq++
	st.order[id] = st.seq
}

func (s *Store) Users() store.UserStore { return &userStore{s} }
func (s *Store) Projects() store.ProjectStore { return &projectStore{s} }
func (s *Store) Diagrams() store.DiagramStore { return &diagramStore{s} }
func (s *Store) Links() store.LinkStore { return &linkStore{s} }
func (s *Store) Invites() store.InviteStore { return &inviteStore{s} }

// WithTx runs fn against a snapshot and publishes it only when fn succeeds.
// Other callers block until the transaction finishes.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{st: s.st.clone(), logger: s.logger, cost: s.cost}
	if err := fn(tx); err != nil {
		return err
	}
	tx.mu.Lock()
	s.st = tx.st
	tx.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) now() time.Time { return time.Now().UTC() }

// newestFirst sorts ids by created time descending, newest insert winning ties.
func (st *state) newestFirst(ids []string, created func(string) time.Time) {
	sort.Slice(ids, func(i, j int) bool {
		ci, cj := created(ids[i]), created(ids[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return st.order[ids[i]] > st.order[ids[j]]
	})
}

// oldestFirst sorts ids by created time ascending.
func (st *state) oldestFirst(ids []string, created func(string) time.Time) {
	sort.Slice(ids, func(i, j int) bool {
		ci, cj := created(ids[i]), created(ids[j])
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return st.order[ids[i]] < st.order[ids[j]]
	})
}
