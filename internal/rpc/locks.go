package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/narvanalabs/diagrams/internal/api/middleware"
	"github.com/narvanalabs/diagrams/internal/diagram"
	"github.com/narvanalabs/diagrams/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type lockServer struct {
	locks  *diagram.LockManager
	logger *slog.Logger
}

// NewLockServer returns a LockServiceServer backed by the lock manager.
func NewLockServer(locks *diagram.LockManager, logger *slog.Logger) LockServiceServer {
	return &lockServer{locks: locks, logger: logger}
}

func (s *lockServer) GetLock(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	return s.run(ctx, in, s.locks.Inspect)
}

func (s *lockServer) AcquireLock(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	return s.run(ctx, in, s.locks.Acquire)
}

func (s *lockServer) ReleaseLock(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	return s.run(ctx, in, s.locks.Release)
}

func (s *lockServer) run(ctx context.Context, in *wrapperspb.StringValue,
	op func(ctx context.Context, diagramID, userID string) (*models.LockState, error)) (*structpb.Struct, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "diagram id is required")
	}
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}

	state, err := op(ctx, in.GetValue(), userID)
	if err != nil {
		return nil, s.toStatus(err)
	}
	out, err := lockToStruct(state)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode lock state: %v", err)
	}
	return out, nil
}

// toStatus maps domain errors onto gRPC codes.
func (s *lockServer) toStatus(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, models.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, models.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, models.ErrInvalidInvite):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	s.logger.Error("lock operation failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

func lockToStruct(state *models.LockState) (*structpb.Struct, error) {
	fields := map[string]any{
		"diagram_id": state.DiagramID,
		"is_locked":  state.IsLocked,
		"locked_at":  nil,
		"user":       nil,
	}
	if state.LockedAt != nil {
		fields["locked_at"] = state.LockedAt.UTC().Format(time.RFC3339Nano)
	}
	if state.Holder != nil {
		fields["user"] = map[string]any{
			"id":       state.Holder.ID,
			"username": state.Holder.Username,
			"email":    state.Holder.Email,
		}
	}
	return structpb.NewStruct(fields)
}
