package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/taskdesk/pkg/api"
	"github.com/platinummonkey/taskdesk/pkg/audit"
	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/config"
	"github.com/platinummonkey/taskdesk/pkg/database"
	"github.com/platinummonkey/taskdesk/pkg/middleware"
	"github.com/platinummonkey/taskdesk/pkg/news"
	"github.com/platinummonkey/taskdesk/pkg/observability"
	"github.com/platinummonkey/taskdesk/pkg/storage"
	"github.com/platinummonkey/taskdesk/pkg/tasks"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

// app holds the long-lived resources of a running taskdesk process
type app struct {
	db        *sql.DB
	redis     *redis.Client
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	otel      *observability.OTelProviders
	audit     audit.Logger
	scheduler *cron.Cron
	api       *api.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *observability.Logger) (_ *app, err error) {
	a := &app{scheduler: cron.New()}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.otel, err = observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a.db, err = database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	applied, err := database.Migrate(ctx, a.db, cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"driver":  cfg.Database.Driver,
		"applied": applied,
	}).Info("Database ready")

	if cfg.Redis.URL != "" {
		a.redis, err = newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		logger.Info("Redis connected")
	}

	if cfg.Observability.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = observability.NewMetrics(a.registry)
		if _, err := a.scheduler.AddFunc("@every 15s", func() {
			a.metrics.RecordDBStats(a.db.Stats())
		}); err != nil {
			return nil, fmt.Errorf("failed to schedule db stats: %w", err)
		}
	}

	dbAudit, err := audit.NewDBLogger(a.db)
	if err != nil {
		return nil, err
	}
	a.audit = audit.NewMultiLogger(audit.NewLogrusLogger(os.Stdout), dbAudit)

	pictures, err := newPictureStorage(ctx, cfg.Uploads)
	if err != nil {
		return nil, err
	}
	logger.Infof("Picture storage initialized (%s)", pictures.Backend())

	taskService := tasks.NewSQLService(a.db)
	store := users.NewSQLStore(a.db)
	tokens := auth.NewTokenIssuer(cfg.Auth)

	authService, err := auth.NewService(auth.ServiceConfig{
		Store:   store,
		Hasher:  auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tokens:  tokens,
		Tasks:   taskService,
		Audit:   a.audit,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, err
	}
	created, err := authService.Bootstrap(audit.WithLogger(ctx, a.audit), cfg.Bootstrap)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	if created {
		logger.WithField("username", cfg.Bootstrap.AdminUsername).Info("Bootstrap admin created")
	}

	userService := users.NewService(users.ServiceConfig{
		Store:         store,
		Tasks:         taskService,
		Pictures:      pictures,
		PicturePrefix: cfg.Uploads.Prefix,
		Audit:         a.audit,
		Metrics:       a.metrics,
	})

	authn, err := middleware.NewAuthenticator(tokens, cfg.Auth.TokenCacheSize)
	if err != nil {
		return nil, err
	}

	limiter, err := a.newCredentialLimiter(cfg.Auth)
	if err != nil {
		return nil, err
	}

	a.api, err = api.NewServer(api.Dependencies{
		Auth:              authService,
		Users:             userService,
		Tasks:             taskService,
		News:              news.NewSQLService(a.db),
		Authenticator:     authn,
		CredentialLimiter: limiter,
		Server:            cfg.Server,
		Uploads:           cfg.Uploads,
		Logger:            logger,
		Metrics:           a.metrics,
		Audit:             a.audit,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newCredentialLimiter shares limits through Redis when it is configured and
// falls back to a per-process token bucket otherwise
func (a *app) newCredentialLimiter(cfg config.AuthConfig) (middleware.Limiter, error) {
	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.LoginRateLimit,
		WindowDuration:    cfg.LoginRateWindow,
	}
	if a.redis != nil {
		return middleware.NewDistributedRateLimiter(a.redis, limits, "taskdesk:ratelimit:credentials"), nil
	}

	limiter := middleware.NewRateLimiter(limits)
	if _, err := a.scheduler.AddFunc("@every 1m", limiter.Cleanup); err != nil {
		return nil, fmt.Errorf("failed to schedule rate limiter cleanup: %w", err)
	}
	return limiter, nil
}

// healthMux serves probes and, when enabled, Prometheus metrics
func (a *app) healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	observability.RegisterHealthRoutes(mux, observability.NewHealthChecker(a.db, a.redis, version))
	if a.registry != nil {
		observability.RegisterMetricsEndpoint(mux, a.registry)
	}
	return mux
}

func (a *app) registerShutdown(sm *observability.ShutdownManager) {
	sm.RegisterShutdownFunc("resources", func(ctx context.Context) error {
		return a.close(ctx)
	})
}

// close stops the scheduler and releases resources in reverse start order
func (a *app) close(ctx context.Context) error {
	<-a.scheduler.Stop().Done()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.audit != nil {
		keep(a.audit.Close())
	}
	if a.redis != nil {
		keep(a.redis.Close())
	}
	if a.db != nil {
		keep(a.db.Close())
	}
	keep(a.otel.Shutdown(ctx))
	return firstErr
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func newPictureStorage(ctx context.Context, cfg config.UploadsConfig) (storage.BlobStorage, error) {
	switch cfg.Backend {
	case "", "filesystem":
		return storage.NewFileSystemStorage(cfg.Dir)
	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       "profile-pictures/",
			CreateBucket: cfg.S3Endpoint != "",
		})
	default:
		return nil, fmt.Errorf("unknown uploads backend %q", cfg.Backend)
	}
}
