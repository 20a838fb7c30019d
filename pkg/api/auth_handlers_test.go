package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/middleware"
	"github.com/platinummonkey/taskdesk/pkg/tasks"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

func TestAuthHandlers_Login(t *testing.T) {
	f := newAPIFixture(t, nil)
	alice := f.createUser(t, "alice", users.RoleManager)

	w := f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "alice", Password: "alice-password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp auth.AuthResponse
	decode(t, w, &resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, alice.ID, resp.ID)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, users.RoleManager, resp.Role)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	// The access token works against protected routes
	w = f.do(t, http.MethodGet, "/api/User/all", resp.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthHandlers_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.createUser(t, "alice", users.RoleWorker)

	wrong := f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "alice", Password: "nope"})
	unknown := f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "mallory", Password: "nope"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, "invalid username or password", errorMessage(t, wrong))
}

func TestAuthHandlers_LoginMalformedBody(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/Auth/login", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlers_Refresh(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.createUser(t, "alice", users.RoleWorker)

	w := f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "alice", Password: "alice-password"})
	require.Equal(t, http.StatusOK, w.Code)
	var first auth.AuthResponse
	decode(t, w, &first)

	w = f.do(t, http.MethodPost, "/api/Auth/refresh", "", refreshRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second auth.AuthResponse
	decode(t, w, &second)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated token is spent
	w = f.do(t, http.MethodPost, "/api/Auth/refresh", "", refreshRequest{RefreshToken: first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/Auth/refresh", "", refreshRequest{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlers_Register(t *testing.T) {
	f := newAPIFixture(t, nil)
	admin := f.createUser(t, "root", users.RoleAdmin)
	manager := f.createUser(t, "mona", users.RoleManager)
	worker := f.createUser(t, "wendy", users.RoleWorker)
	task, err := f.tasks.Create(context.Background(), tasks.CreateRequest{Title: "Onboarding"}, &manager.ID)
	require.NoError(t, err)
	withTasks := func(req auth.RegisterRequest) auth.RegisterRequest {
		req.TaskIDs = []int64{task.ID}
		return req
	}

	newUser := func(username, role string) auth.RegisterRequest {
		return auth.RegisterRequest{
			Username:   username,
			Password:   "secret",
			FirstName:  "New",
			LastName:   "User",
			Department: "Field",
			Role:       role,
		}
	}

	tests := []struct {
		name   string
		token  string
		body   auth.RegisterRequest
		status int
	}{
		{"anonymous worker", "", newUser("w1", ""), http.StatusCreated},
		{"anonymous manager", "", newUser("m1", "manager"), http.StatusForbidden},
		{"manager registers manager", f.token(t, manager), newUser("m2", "manager"), http.StatusForbidden},
		{"admin registers manager", f.token(t, admin), newUser("m3", "manager"), http.StatusCreated},
		{"unknown role", f.token(t, admin), newUser("x1", "superadmin"), http.StatusBadRequest},
		{"missing department", "", auth.RegisterRequest{Username: "x2", Password: "secret"}, http.StatusBadRequest},
		{"duplicate username", "", newUser("mona", ""), http.StatusConflict},
		{"duplicate username without department", "", auth.RegisterRequest{Username: "mona", Password: "secret"}, http.StatusConflict},
		{"duplicate username without password", "", auth.RegisterRequest{Username: "mona", Department: "Field"}, http.StatusConflict},
		{"duplicate username with unknown role", f.token(t, admin), newUser("mona", "superadmin"), http.StatusConflict},
		{"anonymous manager with duplicate username", "", newUser("mona", "manager"), http.StatusConflict},
		{"anonymous worker with tasks", "", withTasks(newUser("w2", "")), http.StatusForbidden},
		{"worker registers worker with tasks", f.token(t, worker), withTasks(newUser("w3", "")), http.StatusForbidden},
		{"manager registers worker with tasks", f.token(t, manager), withTasks(newUser("w4", "")), http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/Auth/register", tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "m3", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp auth.AuthResponse
	decode(t, w, &resp)
	assert.Equal(t, users.RoleManager, resp.Role)

	// the existing account is untouched by the rejected duplicates
	w = f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "mona", Password: "mona-password"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, users.RoleManager, resp.Role)

	for _, username := range []string{"w2", "w3"} {
		w = f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: username, Password: "secret"})
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s must not have been created", username)
	}

	w = f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "w4", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	w = f.do(t, http.MethodGet, fmt.Sprintf("/api/Tasks/user/%d", resp.ID), resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var assigned []tasks.Task
	decode(t, w, &assigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, task.ID, assigned[0].ID)
}

func TestAuthHandlers_RegisterHidesSecrets(t *testing.T) {
	f := newAPIFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/Auth/register", "", auth.RegisterRequest{
		Username:   "walt",
		Password:   "secret",
		Department: "Field",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "walt", body["username"])
	assert.Equal(t, "worker", body["role"])
	assert.NotContains(t, body, "passwordHash")
	assert.NotContains(t, body, "refreshToken")
	assert.NotContains(t, w.Body.String(), "$2a$")
}

func TestAuthHandlers_RateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	f := newAPIFixture(t, limiter)

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "nobody", Password: "x"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := f.do(t, http.MethodPost, "/api/Auth/login", "", loginRequest{Username: "nobody", Password: "x"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// The limit covers every credential endpoint
	w = f.do(t, http.MethodPost, "/api/Auth/refresh", "", refreshRequest{RefreshToken: "x"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Other routes are not limited
	w = f.do(t, http.MethodGet, "/api/Tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
