package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/upb/campaign-gateway/app"
	"github.com/upb/campaign-gateway/config"
	"github.com/upb/campaign-gateway/internal/observability"
	"github.com/upb/campaign-gateway/routes"
	"go.uber.org/zap"
)

type options struct {
	envFiles    []string
	migrate     bool
	migrateOnly bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("api-gateway", pflag.ContinueOnError)
	fs.StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")
	fs.BoolVar(&opts.migrate, "migrate", true, "apply pending migrations on startup")
	fs.BoolVar(&opts.migrateOnly, "migrate-only", false, "apply migrations and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.migrateOnly {
		opts.migrate = true
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "api-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx, opts.envFiles...)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		_ = logger.Sync()
		return err
	}

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	}

	if opts.migrate {
		if err := deps.DB.Migrate(ctx); err != nil {
			c, cancel := shutdownCtx()
			defer cancel()
			_ = deps.Close(c)
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("migrations applied")
	}
	if opts.migrateOnly {
		c, cancel := shutdownCtx()
		defer cancel()
		return deps.Close(c)
	}

	srv := newServer(cfg, routes.SetupRoutes(deps))

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api-gateway listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.Bool("tls", cfg.Server.TLS.Enabled))
		if cfg.Server.TLS.Enabled {
			serveErr <- srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		serveErr <- srv.ListenAndServe()
	}()

	var result error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			result = err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	c, cancel := shutdownCtx()
	defer cancel()

	if err := srv.Shutdown(c); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := deps.Close(c); err != nil {
		logger.Error("failed to close dependencies", zap.Error(err))
		if result == nil {
			result = err
		}
	}
	return result
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
}
