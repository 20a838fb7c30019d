// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry setup.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Info("user logged in")
//
// Handlers use the request-scoped logger, which carries the request id:
//
//	observability.FromContext(r.Context()).WithError(err).Error("update failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	metrics.ObserveLogin(observability.ResultFailure)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, otelCfg, logger)
//	defer providers.Shutdown(ctx)
package observability
