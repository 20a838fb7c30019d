// Package middleware provides HTTP middleware for authentication, authorization, and rate limiting.
//
// # Authentication
//
// Authenticator verifies "Authorization: Bearer <token>" access tokens and
// stores the caller's auth.Identity in the request context. Verified tokens
// are kept in an LRU cache until they expire.
//
//	authn, err := middleware.NewAuthenticator(tokens, cfg.Auth.TokenCacheSize)
//	router.Handle("/api/Tasks", authn.Required(handler))
//	router.Handle("/api/Auth/register", authn.Optional(handler))
//
// # Authorization
//
// RequireAction gates a route on the role policy table; handlers that need
// the target resource first call Authorize or AuthorizeSelfOr:
//
//	router.Handle("/api/User/all", authn.Required(middleware.RequireAction(auth.ActionListUsers)(h)))
//	if err := middleware.AuthorizeSelfOr(ctx, id, auth.ActionUpdateAnyUser); err != nil { ... }
//
// # Rate Limiting
//
// The credential endpoints are limited per client IP. RateLimiter keeps
// token buckets in memory; DistributedRateLimiter counts fixed windows in
// Redis so the limit holds across instances. Both satisfy Limiter.
//
//	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{
//		RequestsPerWindow: 10,
//		WindowDuration:    time.Minute,
//	})
//	login := middleware.NewRateLimitMiddleware("login", limiter, metrics)
//	router.Handle("/api/Auth/login", login.Handler(h))
//
// Rejected requests get 429 with Retry-After. A failing Redis lets the
// request through.
//
// # Related Packages
//
//   - pkg/auth: Tokens and the policy table
//   - pkg/httputil: Client IP resolution and error responses
package middleware
