// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Every error response has the body {"error": "<message>"}. WriteError picks
// the status from the apperr kind:
//
//	httputil.WriteError(w, apperr.NotFound("user %d not found", id)) // 404
//	httputil.WriteError(w, err)                                       // 500 for unclassified errors
//
// # Request Parsing
//
//	var req auth.RegisterRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		httputil.WriteError(w, err) // 400
//		return
//	}
//	id, err := httputil.ParsePathInt64(r, "id")
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.ClientIPMiddleware(cfg.Server.TrustProxy),
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware(cfg.Server.AllowedOrigins),
//		httputil.TimeoutMiddleware(cfg.Server.RequestTimeout),
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication, authorization and rate limiting
package httputil
