package memory

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(logger, WithHashCost(bcrypt.MinCost))
}

func seed(t *testing.T, s *Store, diagramTypes ...models.DiagramType) (*models.User, *models.Project, []*models.Diagram) {
	t.Helper()
	ctx := context.Background()

	owner, err := s.Users().Create(ctx, "owner-"+uuid.New().String()[:8], "", "secret1")
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	project := &models.Project{ID: uuid.New().String(), Name: "Project", OwnerID: owner.ID}
	if err := s.Projects().Create(ctx, project); err != nil {
		t.Fatalf("creating project: %v", err)
	}
	if _, err := s.Projects().AddMember(ctx, project.ID, owner.ID, models.RoleOwner); err != nil {
		t.Fatalf("adding owner: %v", err)
	}

	var diagrams []*models.Diagram
	for _, dt := range diagramTypes {
		d := &models.Diagram{ID: uuid.New().String(), ProjectID: project.ID, Name: string(dt), Type: dt}
		if err := s.Diagrams().Create(ctx, d); err != nil {
			t.Fatalf("creating diagram: %v", err)
		}
		diagrams = append(diagrams, d)
	}
	return owner, project, diagrams
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner, _, _ := seed(t, s)

	boom := errors.New("boom")
	var created string
	err := s.WithTx(ctx, func(tx store.Store) error {
		p := &models.Project{ID: uuid.New().String(), Name: "Doomed", OwnerID: owner.ID}
		if err := tx.Projects().Create(ctx, p); err != nil {
			return err
		}
		created = p.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}
	if _, err := s.Projects().Get(ctx, created); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("rolled back project still visible: %v", err)
	}
}

func TestWithTxCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner, _, _ := seed(t, s)

	p := &models.Project{ID: uuid.New().String(), Name: "Kept", OwnerID: owner.ID}
	err := s.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Projects().Create(ctx, p); err != nil {
			return err
		}
		_, err := tx.Projects().AddMember(ctx, p.ID, owner.ID, models.RoleOwner)
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	got, err := s.Projects().Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Owner != owner.Username {
		t.Errorf("Owner = %q, want %q", got.Owner, owner.Username)
	}
}

// For any sequence of acquire and release operations by two users, the lock
// triple is consistent and releases by non-holders are rejected.
func TestLockOperationsProperty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice, _, diagrams := seed(t, s, models.DiagramTypeBPMN)
	bob, err := s.Users().Create(ctx, "bob", "", "secret1")
	if err != nil {
		t.Fatalf("creating bob: %v", err)
	}
	diagramID := diagrams[0].ID
	users := []string{alice.ID, bob.ID}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("lock state follows the first acquirer", prop.ForAll(
		func(ops []int) bool {
			// Start each run unlocked.
			for _, u := range users {
				_, _ = s.Diagrams().ReleaseLock(ctx, diagramID, u)
			}

			holder := ""
			for _, op := range ops {
				user := users[op%2]
				if op < 2 {
					state, err := s.Diagrams().AcquireLock(ctx, diagramID, user, time.Now())
					if err != nil {
						return false
					}
					if holder == "" {
						holder = user
					}
					if !state.HeldBy(holder) || !state.Consistent() || state.Holder == nil {
						return false
					}
					continue
				}
				_, err := s.Diagrams().ReleaseLock(ctx, diagramID, user)
				if user == holder {
					if err != nil {
						return false
					}
					holder = ""
				} else if !errors.Is(err, store.ErrNotLockHolder) {
					return false
				}
			}

			state, err := s.Diagrams().GetLock(ctx, diagramID)
			return err == nil && state.Consistent() && state.IsLocked == (holder != "")
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

func TestDiagramUpdateLeavesLockAlone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner, _, diagrams := seed(t, s, models.DiagramTypeDFD)
	d := diagrams[0]

	if _, err := s.Diagrams().AcquireLock(ctx, d.ID, owner.ID, time.Now()); err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}

	update := *d
	update.Name = "Renamed"
	update.IsLocked = false
	update.LockedBy = nil
	if err := s.Diagrams().Update(ctx, &update); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := s.Diagrams().Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Renamed" || !got.IsLocked || got.Holder == nil || got.Holder.ID != owner.ID {
		t.Errorf("diagram after update = %+v", got)
	}
}

func TestDeletingProjectCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner, project, diagrams := seed(t, s, models.DiagramTypeBPMN, models.DiagramTypeERD)

	_, _, otherDiagrams := seed(t, s, models.DiagramTypeDFD)

	cross := &models.DiagramLink{
		ID:              uuid.New().String(),
		SourceDiagramID: otherDiagrams[0].ID,
		SourceElementID: "Process_1",
		TargetDiagramID: diagrams[1].ID,
		LinkType:        models.LinkTypeReference,
		CreatedBy:       owner.ID,
	}
	if err := s.Links().Create(ctx, cross); err != nil {
		t.Fatalf("Create link: %v", err)
	}
	invite := &models.ProjectInvite{ProjectID: project.ID, Token: "tok", InvitedBy: owner.ID, ExpiresAt: time.Now().Add(time.Hour), IsActive: true}
	if err := s.Invites().Create(ctx, invite); err != nil {
		t.Fatalf("Create invite: %v", err)
	}

	if err := s.Projects().Delete(ctx, project.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	for _, d := range diagrams {
		if _, err := s.Diagrams().Get(ctx, d.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("diagram %s survived: %v", d.ID, err)
		}
	}
	if _, err := s.Links().Get(ctx, cross.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-project link survived: %v", err)
	}
	if _, err := s.Invites().GetByToken(ctx, "tok"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("invite survived: %v", err)
	}
	if _, err := s.Projects().GetMembership(ctx, project.ID, owner.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("membership survived: %v", err)
	}
}

func TestLinksAreNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner, _, diagrams := seed(t, s, models.DiagramTypeBPMN, models.DiagramTypeDFD)

	var ids []string
	for i := 0; i < 5; i++ {
		l := &models.DiagramLink{
			ID:              uuid.New().String(),
			SourceDiagramID: diagrams[0].ID,
			SourceElementID: "Task_1",
			TargetDiagramID: diagrams[1].ID,
			LinkType:        models.LinkTypeReference,
			CreatedBy:       owner.ID,
			CreatedAt:       time.Unix(1700000000, 0),
		}
		if err := s.Links().Create(ctx, l); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, l.ID)
	}

	got, err := s.Links().ListOutgoing(ctx, diagrams[0].ID)
	if err != nil {
		t.Fatalf("ListOutgoing: %v", err)
	}
	if len(got) != len(ids) {
		t.Fatalf("got %d links, want %d", len(got), len(ids))
	}
	for i, l := range got {
		if l.ID != ids[len(ids)-1-i] {
			t.Errorf("position %d = %s, want %s", i, l.ID, ids[len(ids)-1-i])
		}
	}
	if got[0].SourceDiagramType != models.DiagramTypeBPMN || got[0].CreatorUsername != owner.Username {
		t.Errorf("display fields not filled: %+v", got[0])
	}
}

func TestMarkUsedConsumesOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner, project, _ := seed(t, s)

	invite := &models.ProjectInvite{ProjectID: project.ID, Token: "abc", InvitedBy: owner.ID, ExpiresAt: time.Now().Add(time.Hour), IsActive: true}
	if err := s.Invites().Create(ctx, invite); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Invites().MarkUsed(ctx, invite.ID, owner.ID, time.Now()); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	if err := s.Invites().MarkUsed(ctx, invite.ID, owner.ID, time.Now()); !errors.Is(err, store.ErrInviteConsumed) {
		t.Errorf("second MarkUsed error = %v", err)
	}
}
