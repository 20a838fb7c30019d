package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/audit"
	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/config"
	"github.com/platinummonkey/taskdesk/pkg/contextkeys"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

func testTokens() *auth.TokenIssuer {
	return auth.NewTokenIssuer(config.AuthConfig{
		SigningKey:     "test-signing-key-0123456789abcdef0123",
		AccessTokenTTL: 15 * time.Minute,
		Issuer:         "taskdesk-test",
	})
}

func issue(t *testing.T, tokens *auth.TokenIssuer, id auth.Identity) string {
	t.Helper()
	token, _, err := tokens.IssueAccessToken(id)
	require.NoError(t, err)
	return token
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingAudit) Log(_ context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

var alice = auth.Identity{UserID: 1, Username: "alice", Role: users.RoleAdmin}
var bob = auth.Identity{UserID: 2, Username: "bob", Role: users.RoleWorker}

func TestNewAuthenticator(t *testing.T) {
	_, err := NewAuthenticator(nil, 10)
	assert.Error(t, err)

	a, err := NewAuthenticator(testTokens(), 0)
	require.NoError(t, err)
	assert.Nil(t, a.cache)
}

func TestAuthenticator_Required(t *testing.T) {
	tokens := testTokens()
	a, err := NewAuthenticator(tokens, 16)
	require.NoError(t, err)

	var seen auth.Identity
	var seenUserID string
	handler := a.Required(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFrom(r.Context())
		seenUserID = contextkeys.GetUserID(r.Context())
	}))

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/Tasks", nil)
		r.Header.Set("Authorization", "Bearer "+issue(t, tokens, alice))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, alice, seen)
		assert.Equal(t, "1", seenUserID)
	})

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "missing access token"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "missing access token"},
		{"garbage token", "Bearer not-a-jwt", "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/Tasks", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"error":"`+tt.message+`"}`, w.Body.String())
			assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
		})
	}
}

func TestAuthenticator_Cache(t *testing.T) {
	tokens := testTokens()
	a, err := NewAuthenticator(tokens, 16)
	require.NoError(t, err)

	token := issue(t, tokens, bob)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	id, err := a.authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, bob, id)
	hit, ok := a.cache.Get(token)
	require.True(t, ok)
	assert.Equal(t, bob, hit.identity)

	// An entry past its expiry is dropped and the token verified again
	a.cache.Add(token, cachedIdentity{identity: alice, expiresAt: time.Now().Add(-time.Second)})
	id, err = a.authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, bob, id)
}

func TestAuthenticator_Optional(t *testing.T) {
	tokens := testTokens()
	a, err := NewAuthenticator(tokens, 0)
	require.NoError(t, err)

	var authenticated bool
	handler := a.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, authenticated = IdentityFrom(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/Auth/register", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, authenticated)

	r := httptest.NewRequest(http.MethodPost, "/api/Auth/register", nil)
	r.Header.Set("Authorization", "Bearer "+issue(t, tokens, alice))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, authenticated)

	r = httptest.NewRequest(http.MethodPost, "/api/Auth/register", nil)
	r.Header.Set("Authorization", "Bearer broken")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAction(t *testing.T) {
	called := false
	handler := RequireAction(auth.ActionListUsers)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	tests := []struct {
		name     string
		identity *auth.Identity
		status   int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"worker", &bob, http.StatusForbidden},
		{"admin", &alice, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			recorder := &recordingAudit{}
			ctx := audit.WithLogger(context.Background(), recorder)
			if tt.identity != nil {
				ctx = withIdentity(ctx, *tt.identity)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/User/all", nil).WithContext(ctx))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.status == http.StatusOK, called)
			if tt.status == http.StatusForbidden {
				require.Len(t, recorder.events, 1)
				assert.Equal(t, audit.EventTypeAuthzAccessDenied, recorder.events[0].Type)
				assert.Equal(t, "users:list", recorder.events[0].Metadata["action"])
			} else {
				assert.Empty(t, recorder.events)
			}
		})
	}
}

func TestAuthorizeSelfOr(t *testing.T) {
	worker := withIdentity(context.Background(), bob)
	admin := withIdentity(context.Background(), alice)

	assert.NoError(t, AuthorizeSelfOr(worker, bob.UserID, auth.ActionUpdateAnyUser))
	assert.True(t, apperr.Is(AuthorizeSelfOr(worker, alice.UserID, auth.ActionUpdateAnyUser), apperr.KindForbidden))
	assert.NoError(t, AuthorizeSelfOr(admin, bob.UserID, auth.ActionUpdateAnyUser))
	assert.True(t, apperr.Is(AuthorizeSelfOr(context.Background(), 1, auth.ActionUpdateAnyUser), apperr.KindUnauthorized))
}
