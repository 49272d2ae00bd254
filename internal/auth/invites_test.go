package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/store/memory"
	"golang.org/x/crypto/bcrypt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	store     *memory.Store
	authority *MembershipAuthority
	issuer    *InviteIssuer
	owner     *models.User
	project   *models.Project
	clock     *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.New(testLogger(), memory.WithHashCost(bcrypt.MinCost))
	owner, err := st.Users().Create(ctx, "owner", "owner@example.com", "secret1")
	if err != nil {
		t.Fatalf("creating owner: %v", err)
	}
	project := &models.Project{ID: uuid.New().String(), Name: "Alpha", Description: "first", OwnerID: owner.ID}
	if err := st.Projects().Create(ctx, project); err != nil {
		t.Fatalf("creating project: %v", err)
	}
	if _, err := st.Projects().AddMember(ctx, project.ID, owner.ID, models.RoleOwner); err != nil {
		t.Fatalf("adding owner: %v", err)
	}

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{store: st, owner: owner, project: project, clock: &now}
	f.authority = NewMembershipAuthority(st, testLogger())
	f.issuer = NewInviteIssuer(st, f.authority, testLogger(), WithClock(func() time.Time { return *f.clock }))
	return f
}

func (f *fixture) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := f.store.Users().Create(context.Background(), name, "", "secret1")
	if err != nil {
		t.Fatalf("creating %s: %v", name, err)
	}
	return u
}

func TestGenerateInviteToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GenerateInviteToken()
		if err != nil {
			t.Fatalf("GenerateInviteToken: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil || len(raw) != 32 {
			t.Fatalf("token %q is not 32 bytes of URL-safe base64", token)
		}
		if seen[token] {
			t.Fatalf("duplicate token %q", token)
		}
		seen[token] = true
	}
}

func TestCreateInviteExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		expiresIn time.Duration
		want      time.Duration
	}{
		{"default", 0, 24 * time.Hour},
		{"explicit", 48 * time.Hour, 48 * time.Hour},
		{"raised to minimum", -5 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invite, err := f.issuer.Create(ctx, f.project.ID, f.owner.ID, tt.expiresIn)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if got := invite.ExpiresAt.Sub(*f.clock); got != tt.want {
				t.Errorf("lifetime = %v, want %v", got, tt.want)
			}
			if !invite.IsActive || invite.Inviter != "owner" {
				t.Errorf("invite = %+v", invite)
			}
		})
	}
}

func TestInviteManagementRequiresOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	editor := f.user(t, "editor")
	stranger := f.user(t, "stranger")
	if _, err := f.store.Projects().AddMember(ctx, f.project.ID, editor.ID, models.RoleEditor); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if _, err := f.issuer.Create(ctx, f.project.ID, editor.ID, 0); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("editor Create error = %v, want Forbidden", err)
	}
	if _, err := f.issuer.List(ctx, f.project.ID, stranger.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("stranger List error = %v, want Forbidden", err)
	}
	if _, err := f.issuer.Create(ctx, uuid.New().String(), f.owner.ID, 0); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing project error = %v, want NotFound", err)
	}
}

func TestAcceptInviteGrantsEditor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	joiner := f.user(t, "joiner")

	invite, err := f.issuer.Create(ctx, f.project.ID, f.owner.ID, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	projectID, err := f.issuer.Accept(ctx, invite.Token, joiner.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if projectID != f.project.ID {
		t.Errorf("project id = %s, want %s", projectID, f.project.ID)
	}

	m, err := f.authority.RequireMember(ctx, f.project.ID, joiner.ID)
	if err != nil {
		t.Fatalf("RequireMember: %v", err)
	}
	if m.Role != models.RoleEditor {
		t.Errorf("role = %s, want editor", m.Role)
	}

	// The invite is single use.
	other := f.user(t, "other")
	if _, err := f.issuer.Accept(ctx, invite.Token, other.ID); !errors.Is(err, models.ErrInvalidInvite) {
		t.Errorf("second Accept error = %v, want InvalidInvite", err)
	}
	if _, err := f.authority.RequireMember(ctx, f.project.ID, other.ID); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("second acceptor became a member: %v", err)
	}
}

func TestAcceptKeepsExistingRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invite, err := f.issuer.Create(ctx, f.project.ID, f.owner.ID, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.issuer.Accept(ctx, invite.Token, f.owner.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	m, err := f.authority.RequireOwner(ctx, f.project.ID, f.owner.ID)
	if err != nil || m.Role != models.RoleOwner {
		t.Errorf("owner lost role: %v %v", m, err)
	}
}

func TestAcceptRejectsInvalidInvites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	joiner := f.user(t, "joiner")

	expired, err := f.issuer.Create(ctx, f.project.ID, f.owner.ID, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	revoked, err := f.issuer.Create(ctx, f.project.ID, f.owner.ID, time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.issuer.Revoke(ctx, f.project.ID, revoked.ID, f.owner.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	*f.clock = f.clock.Add(time.Hour)

	for name, token := range map[string]string{
		"expired": expired.Token,
		"revoked": revoked.Token,
		"missing": "no-such-token",
	} {
		if _, err := f.issuer.Accept(ctx, token, joiner.ID); !errors.Is(err, models.ErrInvalidInvite) {
			t.Errorf("%s: Accept error = %v, want InvalidInvite", name, err)
		}
	}

	info, err := f.issuer.Info(ctx, expired.Token)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.IsValid || !info.IsExpired || info.OwnerUsername != "owner" || info.ProjectName != "Alpha" {
		t.Errorf("info = %+v", info)
	}
	if _, err := f.issuer.Info(ctx, "no-such-token"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Info for missing token error = %v, want NotFound", err)
	}
}

func TestRevokeChecksProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invite, err := f.issuer.Create(ctx, f.project.ID, f.owner.ID, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	other := &models.Project{ID: uuid.New().String(), Name: "Beta", OwnerID: f.owner.ID}
	if err := f.store.Projects().Create(ctx, other); err != nil {
		t.Fatalf("creating project: %v", err)
	}
	if _, err := f.store.Projects().AddMember(ctx, other.ID, f.owner.ID, models.RoleOwner); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if err := f.issuer.Revoke(ctx, other.ID, invite.ID, f.owner.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("cross-project Revoke error = %v, want NotFound", err)
	}
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invite, err := f.issuer.Create(ctx, f.project.ID, f.owner.ID, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	users := make([]*models.User, 6)
	for i := range users {
		users[i] = f.user(t, "u"+uuid.New().String()[:6])
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if _, err := f.issuer.Accept(ctx, invite.Token, userID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, models.ErrInvalidInvite) {
				t.Errorf("Accept: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("accepts succeeded %d times, want 1", wins)
	}
}

// For any role, the owner-only permissions are granted exactly to owners and
// every role may view the project.
func TestRolePermissions(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("owner-only permissions", prop.ForAll(
		func(role models.Role) bool {
			isOwner := role == models.RoleOwner
			return HasPermission(role, PermissionViewProject) &&
				HasPermission(role, PermissionEditDiagrams) &&
				HasPermission(role, PermissionManageProject) == isOwner &&
				HasPermission(role, PermissionManageInvites) == isOwner
		},
		gen.OneConstOf(models.RoleOwner, models.RoleEditor, models.RoleViewer),
	))

	properties.Property("unknown roles have no permissions", prop.ForAll(
		func(role string) bool {
			r := models.Role(role)
			if r.Valid() {
				return true
			}
			return !HasPermission(r, PermissionViewProject)
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestAccountsRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := NewService(&Config{JWTSecret: []byte("0123456789abcdef0123456789abcdef"), TokenExpiry: time.Hour}, nil)
	accounts := NewAccounts(f.store, tokens, testLogger())

	_, err := accounts.Register(ctx, RegisterInput{Username: "carol", Password: "secret1", Password2: "nope"})
	var verr *models.ValidationError
	if !errors.As(err, &verr) || !verr.Has("password") {
		t.Fatalf("mismatched passwords error = %v", err)
	}
	if _, err := accounts.Register(ctx, RegisterInput{Username: "carol", Password: "short", ConfirmPassword: "short"}); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("short password error = %v", err)
	}

	user, err := accounts.Register(ctx, RegisterInput{Username: "carol", Email: "carol@example.com", Password: "secret1", ConfirmPassword: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := accounts.Register(ctx, RegisterInput{Username: "carol", Password: "secret1", Password2: "secret1"}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("duplicate username error = %v", err)
	}

	token, err := accounts.Login(ctx, "carol", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := tokens.ValidateToken(token)
	if err != nil || claims.UserID != user.ID {
		t.Fatalf("token claims = %+v, %v", claims, err)
	}
	if _, err := accounts.Login(ctx, "carol", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("bad password error = %v", err)
	}
}
