package main

import (
	"context"
	"fmt"
	"net"

	"github.com/narvanalabs/diagrams/internal/api"
	"github.com/narvanalabs/diagrams/internal/api/health"
	"github.com/narvanalabs/diagrams/internal/auth"
	"github.com/narvanalabs/diagrams/internal/rpc"
	"github.com/narvanalabs/diagrams/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var runMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC lock service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
				Endpoint:       cfg.Telemetry.Endpoint,
				ServiceName:    cfg.Telemetry.ServiceName,
				ServiceVersion: api.Version,
			})
			if err != nil {
				return fmt.Errorf("setting up tracing: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				if err := shutdownTracing(shutdownCtx); err != nil {
					log.Warn("flushing traces", "error", err)
				}
			}()

			st, pg, err := openStore(cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			if runMigrations {
				if err := migrate(ctx, pg, log); err != nil {
					return err
				}
			}

			tokens := auth.NewService(&auth.Config{
				JWTSecret:   []byte(cfg.JWTSecret),
				TokenExpiry: cfg.JWTExpiry,
			}, log)
			services := api.NewServices(st, tokens, cfg.InviteDefaultExpiry, log)
			checker := health.NewChecker(st, api.Version)

			httpServer := api.NewServer(cfg, services, checker, log)
			grpcServer := rpc.NewServer(tokens, rpc.NewLockServer(services.Locks, log), checker, log)

			lis, err := net.Listen("tcp", cfg.GRPCAddr())
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr(), err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return httpServer.Start(gctx)
			})
			g.Go(func() error {
				return grpcServer.Serve(gctx, lis)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply database migrations before serving")
	return cmd
}
