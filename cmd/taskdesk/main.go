package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/taskdesk/pkg/config"
	"github.com/platinummonkey/taskdesk/pkg/observability"
)

var version = "dev"

var (
	configPath  = flag.String("config", os.Getenv("TASKDESK_CONFIG"), "Path to a YAML config file")
	migrateOnly = flag.Bool("migrate-only", false, "Apply database migrations and exit")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("taskdesk exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	app.registerShutdown(shutdown)

	if *migrateOnly {
		logger.Info("Migrations applied, exiting")
		return shutdown.Shutdown(context.Background())
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      app.api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:        net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:     app.healthMux(),
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	shutdown.AddServer(apiServer)
	shutdown.AddServer(healthServer)

	app.scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	for _, server := range []*http.Server{apiServer, healthServer} {
		server := server
		g.Go(func() error {
			logger.Infof("Listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", server.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}
