package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/taskdesk/pkg/audit"
	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/config"
	"github.com/platinummonkey/taskdesk/pkg/httputil"
	"github.com/platinummonkey/taskdesk/pkg/middleware"
	"github.com/platinummonkey/taskdesk/pkg/news"
	"github.com/platinummonkey/taskdesk/pkg/observability"
	"github.com/platinummonkey/taskdesk/pkg/tasks"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

const defaultMaxBodyBytes = 1 << 20

// Dependencies are the services the API is built on
type Dependencies struct {
	Auth          *auth.Service
	Users         *users.Service
	Tasks         tasks.Service
	News          news.Service
	Authenticator *middleware.Authenticator

	// CredentialLimiter limits login, register and refresh per client IP.
	// Nil disables rate limiting.
	CredentialLimiter middleware.Limiter

	Server  config.ServerConfig
	Uploads config.UploadsConfig

	Logger  *observability.Logger
	Metrics *observability.Metrics // optional
	Audit   audit.Logger           // optional
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Auth == nil || deps.Users == nil || deps.Tasks == nil || deps.News == nil {
		return nil, fmt.Errorf("api: auth, users, tasks and news services are required")
	}
	if deps.Authenticator == nil {
		return nil, fmt.Errorf("api: authenticator is required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if deps.Audit == nil {
		deps.Audit = audit.NoOp()
	}

	s := &Server{router: mux.NewRouter()}
	s.router.NotFoundHandler = http.HandlerFunc(notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	if deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	var limit func(http.Handler) http.Handler
	if deps.CredentialLimiter != nil {
		limit = middleware.NewRateLimitMiddleware("credentials", deps.CredentialLimiter, deps.Metrics).Handler
	}

	s.RegisterRoutes(NewAuthHandlers(deps.Auth, deps.Authenticator, limit))
	s.RegisterRoutes(NewUserHandlers(deps.Auth, deps.Users, deps.Authenticator, deps.Uploads.MaxBytes))
	s.RegisterRoutes(NewTaskHandlers(deps.Tasks, deps.Authenticator))
	s.RegisterRoutes(NewNewsHandlers(deps.News, deps.Authenticator))

	chain := httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.ClientIPMiddleware(deps.Server.TrustProxy),
		httputil.LoggingMiddleware(deps.Logger),
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.CORSMiddleware(deps.Server.AllowedOrigins),
		httputil.TimeoutMiddleware(deps.Server.RequestTimeout),
		limitBody(deps.Server.MaxBodyBytes),
		auditContext(deps.Audit),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "taskdesk.api")
	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}

// limitBody caps request bodies at maxBytes. Multipart uploads set their
// own limit in the upload handler.
func limitBody(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	limit := httputil.MaxBytesMiddleware(maxBytes)
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

// auditContext makes the audit logger available to services
func auditContext(logger audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), logger)))
		})
	}
}

// gate wraps h with authentication and, when actions are given, the policy
// check for each of them
func gate(authn *middleware.Authenticator, h http.HandlerFunc, actions ...auth.Action) http.Handler {
	var handler http.Handler = h
	for i := len(actions) - 1; i >= 0; i-- {
		handler = middleware.RequireAction(actions[i])(handler)
	}
	return authn.Required(handler)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorMessage(w, http.StatusNotFound, "not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}
