package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/metricsd/internal/api"
	"github.com/conduit-lang/metricsd/internal/web/auth"
	"github.com/conduit-lang/metricsd/internal/web/profiling"
	"github.com/conduit-lang/metricsd/internal/web/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the metrics API",
		Long: `Serve the organization scoped metrics API until interrupted.

Requests are authenticated with bearer tokens signed with auth.secret; see
"metricsd token" to issue one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if address != "" {
				cfg.Server.Address = address
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := opts.newServices(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			handler := api.New(svc.dependencies(), logger).Handler(api.Config{
				Tokens:         auth.NewTokenService(cfg.Auth.Secret, cfg.Auth.TokenTTL),
				Logger:         logger,
				Gatherer:       svc.Gatherer,
				RequestTimeout: cfg.Server.RequestTimeout,
				RateLimiter:    svc.Limiter,
			})

			serverConfig := server.DefaultConfig()
			serverConfig.Address = cfg.Server.Address
			serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout

			srv, err := server.New(serverConfig, handler, logger)
			if err != nil {
				return err
			}
			srv.OnShutdown(func(context.Context) error {
				return svc.Close()
			})

			logger.Info("starting metricsd",
				zap.String("version", Version),
				zap.String("database_driver", cfg.Database.Driver),
				zap.String("cache_backend", cfg.Cache.Backend),
				zap.Bool("rate_limit", svc.Limiter != nil),
			)

			// Either server failing stops the other
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			if cfg.Server.ProfilingAddress != "" {
				profConfig := server.DefaultConfig()
				profConfig.Address = cfg.Server.ProfilingAddress
				profConfig.WriteTimeout = 2 * time.Minute
				profConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout

				profSrv, err := server.New(profConfig, profiling.Handler(profiling.Config{BlockRate: 1, MutexFraction: 1}), logger.Named("pprof"))
				if err != nil {
					return err
				}
				g.Go(func() error { return profSrv.Run(gctx) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "listen address (overrides server.address)")
	return cmd
}
