// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/narvanalabs/diagrams/internal/models"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("duplicate key")

	// ErrNotLockHolder is returned by ReleaseLock when the caller does not hold the lock.
	ErrNotLockHolder = errors.New("diagram is not locked by this user")

	// ErrInviteConsumed is returned by MarkInviteUsed when the invite is no longer active.
	ErrInviteConsumed = errors.New("invite is no longer active")

	// ErrInvalidCredentials is returned by Authenticate for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserStore defines operations for user accounts.
type UserStore interface {
	// Create creates a new user with a hashed password.
	Create(ctx context.Context, username, email, password string) (*models.User, error)
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	// Authenticate verifies credentials and returns the user.
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
}

// ProjectStore defines operations for projects and their memberships.
type ProjectStore interface {
	// Create creates a new project.
	Create(ctx context.Context, project *models.Project) error
	// Get retrieves a project by ID.
	Get(ctx context.Context, id string) (*models.Project, error)
	// ListForUser retrieves every project the user is a member of.
	ListForUser(ctx context.Context, userID string) ([]*models.Project, error)
	// Update updates name and description.
	Update(ctx context.Context, project *models.Project) error
	// Delete deletes a project and everything it owns.
	Delete(ctx context.Context, id string) error
	// AddMember creates a membership unless one exists; an existing role is kept.
	// It reports whether a row was created.
	AddMember(ctx context.Context, projectID, userID string, role models.Role) (bool, error)
	// GetMembership retrieves the membership of a user in a project.
	GetMembership(ctx context.Context, projectID, userID string) (*models.ProjectMembership, error)
	// ListMembers retrieves all members of a project.
	ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMembership, error)
}

// DiagramStore defines operations for diagrams, including the lock triple.
type DiagramStore interface {
	// Create creates a new, unlocked diagram.
	Create(ctx context.Context, diagram *models.Diagram) error
	// Get retrieves a diagram by ID.
	Get(ctx context.Context, id string) (*models.Diagram, error)
	// ListByProject retrieves all diagrams of a project.
	ListByProject(ctx context.Context, projectID string) ([]*models.Diagram, error)
	// ListSummaries retrieves id, name and type of every diagram in the given projects.
	ListSummaries(ctx context.Context, projectIDs []string) (map[string][]models.DiagramSummary, error)
	// Update writes name, description, type and data. The lock is not consulted.
	Update(ctx context.Context, diagram *models.Diagram) error
	// Delete deletes a diagram and the links touching it.
	Delete(ctx context.Context, id string) error

	// GetLock reads the lock triple.
	GetLock(ctx context.Context, diagramID string) (*models.LockState, error)
	// AcquireLock atomically locks the diagram for userID when it is unlocked or
	// already held by userID, stamping at. When another user holds the lock the
	// row is left untouched. The resulting state is returned either way.
	AcquireLock(ctx context.Context, diagramID, userID string, at time.Time) (*models.LockState, error)
	// ReleaseLock atomically unlocks the diagram if userID holds the lock and
	// returns ErrNotLockHolder otherwise.
	ReleaseLock(ctx context.Context, diagramID, userID string) (*models.LockState, error)
}

// LinkStore defines operations for cross-diagram links.
type LinkStore interface {
	// Create creates a new link.
	Create(ctx context.Context, link *models.DiagramLink) error
	// Get retrieves a link by ID with display fields filled.
	Get(ctx context.Context, id string) (*models.DiagramLink, error)
	// Update writes label, target element, type and description.
	Update(ctx context.Context, link *models.DiagramLink) error
	// Delete removes a link.
	Delete(ctx context.Context, id string) error
	// ListOutgoing retrieves links whose source is the diagram, newest first.
	ListOutgoing(ctx context.Context, diagramID string) ([]*models.DiagramLink, error)
	// ListIncoming retrieves links whose target is the diagram, newest first.
	ListIncoming(ctx context.Context, diagramID string) ([]*models.DiagramLink, error)
	// ListByElement retrieves outgoing links of one source element, newest first.
	ListByElement(ctx context.Context, diagramID, elementID string) ([]*models.DiagramLink, error)
	// ListByProject retrieves links with either endpoint in the project, newest first.
	ListByProject(ctx context.Context, projectID string) ([]*models.DiagramLink, error)
}

// InviteStore defines operations for project invites.
type InviteStore interface {
	// Create creates a new invite.
	Create(ctx context.Context, invite *models.ProjectInvite) error
	// Get retrieves an invite by ID.
	Get(ctx context.Context, id string) (*models.ProjectInvite, error)
	// GetByToken retrieves an invite by its token.
	GetByToken(ctx context.Context, token string) (*models.ProjectInvite, error)
	// ListByProject retrieves all invites of a project, newest first.
	ListByProject(ctx context.Context, projectID string) ([]*models.ProjectInvite, error)
	// Deactivate clears the active flag.
	Deactivate(ctx context.Context, id string) error
	// MarkUsed consumes an active invite, recording the acceptor. It returns
	// ErrInviteConsumed when the invite is already inactive.
	MarkUsed(ctx context.Context, id, userID string, at time.Time) error
}

// Store is the main interface for database operations.
type Store interface {
	// Users returns the UserStore for account operations.
	Users() UserStore
	// Projects returns the ProjectStore for project and membership operations.
	Projects() ProjectStore
	// Diagrams returns the DiagramStore for diagram and lock operations.
	Diagrams() DiagramStore
	// Links returns the LinkStore for link operations.
	Links() LinkStore
	// Invites returns the InviteStore for invite operations.
	Invites() InviteStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
