package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/taskdesk/pkg/audit"
	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/config"
	"github.com/platinummonkey/taskdesk/pkg/database/dbtest"
	"github.com/platinummonkey/taskdesk/pkg/httputil"
	"github.com/platinummonkey/taskdesk/pkg/middleware"
	"github.com/platinummonkey/taskdesk/pkg/news"
	"github.com/platinummonkey/taskdesk/pkg/observability"
	"github.com/platinummonkey/taskdesk/pkg/storage"
	"github.com/platinummonkey/taskdesk/pkg/tasks"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

type apiFixture struct {
	server  *Server
	auth    *auth.Service
	tasks   *tasks.SQLService
	audit   *audit.DBLogger
	metrics *observability.Metrics
	tokens  *auth.TokenIssuer
}

func newAPIFixture(t *testing.T, limiter middleware.Limiter) *apiFixture {
	t.Helper()

	db := dbtest.New(t)
	store := users.NewSQLStore(db)
	taskService := tasks.NewSQLService(db)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	auditLogger, err := audit.NewDBLogger(db)
	require.NoError(t, err)

	authCfg := config.AuthConfig{
		SigningKey:     "test-signing-key-0123456789abcdef0123",
		AccessTokenTTL: 15 * time.Minute,
		Issuer:         "taskdesk-test",
	}
	tokens := auth.NewTokenIssuer(authCfg)
	authService, err := auth.NewService(auth.ServiceConfig{
		Store:   store,
		Hasher:  auth.NewBcryptHasher(bcrypt.MinCost),
		Tokens:  tokens,
		Tasks:   taskService,
		Audit:   auditLogger,
		Metrics: metrics,
	})
	require.NoError(t, err)

	pictures, err := storage.NewFileSystemStorage(t.TempDir())
	require.NoError(t, err)
	userService := users.NewService(users.ServiceConfig{
		Store:         store,
		Tasks:         taskService,
		Pictures:      pictures,
		PicturePrefix: "uploads/profile-pictures",
		Audit:         auditLogger,
		Metrics:       metrics,
	})

	authn, err := middleware.NewAuthenticator(tokens, 64)
	require.NoError(t, err)

	server, err := NewServer(Dependencies{
		Auth:              authService,
		Users:             userService,
		Tasks:             taskService,
		News:              news.NewSQLService(db),
		Authenticator:     authn,
		CredentialLimiter: limiter,
		Server: config.ServerConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			RequestTimeout: 5 * time.Second,
			MaxBodyBytes:   4 << 10,
		},
		Uploads:           config.UploadsConfig{MaxBytes: 1 << 10},
		Logger:            observability.NewLogger(observability.ErrorLevel, io.Discard),
		Metrics:           metrics,
		Audit:             auditLogger,
	})
	require.NoError(t, err)

	return &apiFixture{
		server:  server,
		auth:    authService,
		tasks:   taskService,
		audit:   auditLogger,
		metrics: metrics,
		tokens:  tokens,
	}
}

// createUser registers an account directly through the service
func (f *apiFixture) createUser(t *testing.T, username string, role users.Role) *users.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), auth.RegisterRequest{
		Username:   username,
		Password:   username + "-password",
		FirstName:  "First " + username,
		LastName:   "Last " + username,
		Department: "Operations",
		Role:       string(role),
	}, nil)
	require.NoError(t, err)
	return u
}

// token returns an access token for u
func (f *apiFixture) token(t *testing.T, u *users.User) string {
	t.Helper()
	token, _, err := f.tokens.IssueAccessToken(auth.IdentityOf(u))
	require.NoError(t, err)
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	r := httptest.NewRequest(method, path, reader)
	r.RemoteAddr = "192.0.2.1:5000"
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body httputil.ErrorResponse
	decode(t, w, &body)
	return body.Error
}

func TestNewServer_RequiresServices(t *testing.T) {
	_, err := NewServer(Dependencies{})
	assert.Error(t, err)
}

func TestServer_NotFoundAndMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/Nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not found", errorMessage(t, w))

	w = f.do(t, http.MethodPatch, "/api/Tasks", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_LimitsRequestBodies(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.createUser(t, "alice", users.RoleWorker)

	w := f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{
		Username: "alice",
		Password: strings.Repeat("x", 8<<10),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request body too large", errorMessage(t, w))

	w = f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "alice", Password: "alice-password"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RequiresAuthentication(t *testing.T) {
	f := newAPIFixture(t, nil)

	for _, path := range []string{"/api/User/all", "/api/User/1", "/api/Tasks", "/api/Tasks/1", "/api/News"} {
		w := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "missing access token", errorMessage(t, w), path)
	}

	w := f.do(t, http.MethodGet, "/api/Tasks", "not.a.token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid token", errorMessage(t, w))
}

func TestServer_RequestIDAndMetrics(t *testing.T) {
	f := newAPIFixture(t, nil)
	admin := f.createUser(t, "root", users.RoleAdmin)

	w := f.do(t, http.MethodGet, "/api/Tasks", f.token(t, admin), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/Tasks", "200")))
}

func TestServer_CORSPreflight(t *testing.T) {
	f := newAPIFixture(t, nil)

	r := httptest.NewRequest(http.MethodOptions, "/api/Auth/login", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_AccessDeniedIsAudited(t *testing.T) {
	f := newAPIFixture(t, nil)
	worker := f.createUser(t, "wendy", users.RoleWorker)

	w := f.do(t, http.MethodGet, "/api/User/all", f.token(t, worker), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	events, err := f.audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	denied := events[0]
	assert.Equal(t, audit.EventTypeAuthzAccessDenied, denied.Type)
	assert.Equal(t, "wendy", denied.Username)
	assert.Equal(t, "192.0.2.1", denied.IPAddress)
	assert.NotEmpty(t, denied.RequestID)
}
