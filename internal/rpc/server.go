package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/narvanalabs/diagrams/internal/api/health"
	"github.com/narvanalabs/diagrams/internal/api/middleware"
	"github.com/narvanalabs/diagrams/internal/auth"
	"github.com/narvanalabs/diagrams/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// healthInterval is how often the serving status is refreshed from the checker.
	healthInterval = 10 * time.Second

	maxRecvMsgSize   = 4 * 1024 * 1024
	keepaliveTime    = 30 * time.Second
	keepaliveTimeout = 10 * time.Second
)

// publicMethods skip authentication.
var publicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
}

// Server hosts the lock service and the standard health service.
type Server struct {
	grpcServer *grpc.Server
	health     *grpchealth.Server
	checker    *health.Checker
	logger     *slog.Logger
}

// NewServer creates a gRPC server. Every lock call needs a bearer token in the
// "authorization" metadata; the health service is public.
func NewServer(tokens *auth.Service, locks LockServiceServer, checker *health.Checker, log *slog.Logger) *Server {
	log = logger.WithComponent(log, "grpc")
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.MaxRecvMsgSize(maxRecvMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    keepaliveTime,
			Timeout: keepaliveTimeout,
		}),
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(log),
			authInterceptor(tokens, log),
		),
	)

	healthServer := grpchealth.NewServer()
	RegisterLockServiceServer(grpcServer, locks)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	s := &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		checker:    checker,
		logger:     log,
	}
	s.refreshHealth(context.Background())
	return s
}

// Serve accepts connections on lis until ctx is cancelled, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("gRPC server listening", "addr", lis.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(lis)
	}()

	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refreshHealth(ctx)
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpcServer.GracefulStop()
			return ignoreStopped(<-serveErr)
		case err := <-serveErr:
			return ignoreStopped(err)
		}
	}
}

// Stop stops the server immediately.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.Stop()
}

func (s *Server) refreshHealth(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil && !s.checker.Serving(ctx) {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(LockServiceName, st)
}

func ignoreStopped(err error) error {
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return fmt.Errorf("serve gRPC: %w", err)
}

// authInterceptor validates the bearer token of lock service calls and stores
// the caller in the context the same way the HTTP middleware does.
func authInterceptor(tokens *auth.Service, log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				header = values[0]
			}
		}
		token := auth.ExtractBearerToken(header)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "Authentication credentials were not provided.")
		}
		claims, err := tokens.ValidateToken(token)
		if err != nil {
			log.Debug("JWT validation failed", "method", info.FullMethod, "error", err)
			if errors.Is(err, auth.ErrExpiredToken) {
				return nil, status.Error(codes.Unauthenticated, "Token has expired")
			}
			return nil, status.Error(codes.Unauthenticated, "Invalid token")
		}
		return handler(middleware.WithUser(ctx, claims.UserID), req)
	}
}

func loggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		level := slog.LevelInfo
		switch code {
		case codes.OK:
		case codes.Internal, codes.Unknown:
			level = slog.LevelError
		default:
			level = slog.LevelWarn
		}
		logger.WithTrace(ctx, log).Log(ctx, level, "gRPC request",
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
