package diagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/narvanalabs/diagrams/internal/auth"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
)

const msgNotLockHolder = "Only the locking user can release this diagram."

// LockManager arbitrates the advisory single-editor lock of diagrams.
// There is no expiry: a lock is held until its holder releases it.
type LockManager struct {
	store     store.Store
	authority *auth.MembershipAuthority
	logger    *slog.Logger
	now       func() time.Time
}

// NewLockManager creates a new lock manager.
func NewLockManager(st store.Store, authority *auth.MembershipAuthority, logger *slog.Logger) *LockManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &LockManager{store: st, authority: authority, logger: logger, now: time.Now}
}

// Inspect returns the current lock state.
func (m *LockManager) Inspect(ctx context.Context, diagramID, userID string) (*models.LockState, error) {
	d, err := loadDiagram(ctx, m.store, m.authority, diagramID, userID)
	if err != nil {
		return nil, err
	}
	state, err := m.store.Diagrams().GetLock(ctx, d.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NotFound(msgDiagramNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading lock: %w", err)
	}
	return state, nil
}

// Acquire locks the diagram for userID. Re-acquiring refreshes the timestamp.
// When another user holds the lock nothing changes and the holder's state is
// returned without an error; callers compare the holder to decide.
func (m *LockManager) Acquire(ctx context.Context, diagramID, userID string) (*models.LockState, error) {
	d, err := loadDiagram(ctx, m.store, m.authority, diagramID, userID)
	if err != nil {
		return nil, err
	}

	state, err := m.store.Diagrams().AcquireLock(ctx, d.ID, userID, m.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.NotFound(msgDiagramNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}

	if state.HeldBy(userID) {
		m.logger.Debug("diagram locked", "diagram_id", d.ID, "user_id", userID)
	} else {
		m.logger.Debug("diagram lock collision", "diagram_id", d.ID, "user_id", userID)
	}
	return state, nil
}

// Release unlocks the diagram. Only the holder may release; everyone else,
// including callers of an unlocked diagram, gets Forbidden.
func (m *LockManager) Release(ctx context.Context, diagramID, userID string) (*models.LockState, error) {
	d, err := loadDiagram(ctx, m.store, m.authority, diagramID, userID)
	if err != nil {
		return nil, err
	}

	state, err := m.store.Diagrams().ReleaseLock(ctx, d.ID, userID)
	switch {
	case errors.Is(err, store.ErrNotLockHolder):
		return nil, models.Forbidden(msgNotLockHolder)
	case errors.Is(err, store.ErrNotFound):
		return nil, models.NotFound(msgDiagramNotFound)
	case err != nil:
		return nil, fmt.Errorf("releasing lock: %w", err)
	}

	m.logger.Debug("diagram unlocked", "diagram_id", d.ID, "user_id", userID)
	return state, nil
}
