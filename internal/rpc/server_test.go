package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/narvanalabs/diagrams/internal/api/health"
	"github.com/narvanalabs/diagrams/internal/auth"
	"github.com/narvanalabs/diagrams/internal/diagram"
	"github.com/narvanalabs/diagrams/internal/models"
	"github.com/narvanalabs/diagrams/internal/projects"
	"github.com/narvanalabs/diagrams/internal/store/memory"
	"github.com/narvanalabs/diagrams/pkg/logger"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fixture struct {
	client    *LockServiceClient
	conn      *grpc.ClientConn
	diagramID string
	owner     string
	stranger  string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := logger.Discard()

	st := memory.New(log, memory.WithHashCost(bcrypt.MinCost))
	tokens := auth.NewService(&auth.Config{JWTSecret: []byte("test-secret-key-at-least-32-chars!"), TokenExpiry: time.Hour}, log)
	authority := auth.NewMembershipAuthority(st, log)

	owner, err := st.Users().Create(ctx, "owner", "owner@example.com", "secret123")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	stranger, err := st.Users().Create(ctx, "stranger", "stranger@example.com", "secret123")
	if err != nil {
		t.Fatalf("create stranger: %v", err)
	}

	name := "P"
	project, err := projects.NewService(st, authority, log).Create(ctx, owner.ID, projects.Input{Name: &name})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	d, err := diagram.NewService(st, authority, log).Create(ctx, project.ID, owner.ID, diagram.CreateInput{
		Name: "D", Type: models.DiagramTypeERD,
	})
	if err != nil {
		t.Fatalf("create diagram: %v", err)
	}

	srv := NewServer(tokens, NewLockServer(diagram.NewLockManager(st, authority, log), log), health.NewChecker(st, "test"), log)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(serveCtx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})

	ownerToken, err := tokens.GenerateToken(owner.ID, owner.Email)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	strangerToken, err := tokens.GenerateToken(stranger.ID, stranger.Email)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	return &fixture{
		client:    NewLockServiceClient(conn),
		conn:      conn,
		diagramID: d.ID,
		owner:     ownerToken,
		stranger:  strangerToken,
	}
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestLockLifecycle(t *testing.T) {
	f := setup(t)
	ctx := withToken(f.owner)

	got, err := f.client.GetLock(ctx, f.diagramID)
	if err != nil {
		t.Fatalf("GetLock: %v", err)
	}
	if got.Fields["is_locked"].GetBoolValue() {
		t.Fatalf("new diagram is locked: %v", got)
	}

	got, err = f.client.AcquireLock(ctx, f.diagramID)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	user := got.Fields["user"].GetStructValue()
	if !got.Fields["is_locked"].GetBoolValue() || user == nil || user.Fields["username"].GetStringValue() != "owner" {
		t.Fatalf("after acquire = %v", got)
	}
	if got.Fields["locked_at"].GetStringValue() == "" {
		t.Errorf("locked_at not set: %v", got)
	}

	got, err = f.client.ReleaseLock(ctx, f.diagramID)
	if err != nil {
		t.Fatalf("ReleaseLock: %v", err)
	}
	if got.Fields["is_locked"].GetBoolValue() || got.Fields["user"].GetStructValue() != nil {
		t.Errorf("after release = %v", got)
	}
}

func TestLockErrorCodes(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		ctx  context.Context
		call func(context.Context, string, ...grpc.CallOption) (any, error)
		id   string
		want codes.Code
	}{
		{"no token", context.Background(), wrap(f.client.GetLock), f.diagramID, codes.Unauthenticated},
		{"bad token", withToken("garbage"), wrap(f.client.GetLock), f.diagramID, codes.Unauthenticated},
		{"empty id", withToken(f.owner), wrap(f.client.GetLock), "", codes.InvalidArgument},
		{"unknown diagram", withToken(f.owner), wrap(f.client.AcquireLock), "not-a-uuid", codes.NotFound},
		{"non member", withToken(f.stranger), wrap(f.client.AcquireLock), f.diagramID, codes.PermissionDenied},
		{"release unheld", withToken(f.owner), wrap(f.client.ReleaseLock), f.diagramID, codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.call(tt.ctx, tt.id)
			if got := status.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestHealthServiceIsPublic(t *testing.T) {
	f := setup(t)

	resp, err := healthpb.NewHealthClient(f.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: LockServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", resp.GetStatus())
	}
}

func wrap[T any](fn func(context.Context, string, ...grpc.CallOption) (T, error)) func(context.Context, string, ...grpc.CallOption) (any, error) {
	return func(ctx context.Context, id string, opts ...grpc.CallOption) (any, error) {
		return fn(ctx, id, opts...)
	}
}
