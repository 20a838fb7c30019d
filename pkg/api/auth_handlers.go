package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/httputil"
	"github.com/platinummonkey/taskdesk/pkg/middleware"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	auth  *auth.Service
	authn *middleware.Authenticator
	limit func(http.Handler) http.Handler
}

// NewAuthHandlers creates a new auth handlers instance. limit wraps the
// credential endpoints and may be nil.
func NewAuthHandlers(service *auth.Service, authn *middleware.Authenticator, limit func(http.Handler) http.Handler) *AuthHandlers {
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}
	return &AuthHandlers{auth: service, authn: authn, limit: limit}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/Auth/login", h.limit(http.HandlerFunc(h.login))).Methods("POST")
	router.Handle("/api/Auth/register", h.limit(h.authn.Optional(http.HandlerFunc(h.register)))).Methods("POST")
	router.Handle("/api/Auth/refresh", h.limit(http.HandlerFunc(h.refresh))).Methods("POST")
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// login handles POST /api/Auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.auth.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

// register handles POST /api/Auth/register. Anyone may create a worker
// account without tasks; other roles need a caller allowed to change roles
// and initial task assignments need a caller allowed to write tasks.
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req, grantRegistration)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}

func grantRegistration(ctx context.Context, role users.Role, req auth.RegisterRequest) error {
	if role == users.RoleWorker && len(req.TaskIDs) == 0 {
		return nil
	}
	if _, ok := middleware.IdentityFrom(ctx); !ok {
		if role != users.RoleWorker {
			return apperr.Forbidden("only an administrator can register a %s account", role)
		}
		return apperr.Forbidden("only a manager or administrator can assign tasks")
	}
	if role != users.RoleWorker {
		if err := middleware.Authorize(ctx, auth.ActionChangeRole); err != nil {
			return err
		}
	}
	if len(req.TaskIDs) > 0 {
		return middleware.Authorize(ctx, auth.ActionWriteTasks)
	}
	return nil
}

// refresh handles POST /api/Auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}
