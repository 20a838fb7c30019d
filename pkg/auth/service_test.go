package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/audit"
	"github.com/platinummonkey/taskdesk/pkg/config"
	"github.com/platinummonkey/taskdesk/pkg/database/dbtest"
	"github.com/platinummonkey/taskdesk/pkg/observability"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingAudit) Log(ctx context.Context, event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) types() []audit.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeTasks map[int64]bool

func (f fakeTasks) Exists(ctx context.Context, id int64) (bool, error) {
	return f[id], nil
}

type fixture struct {
	svc     *Service
	store   *users.SQLStore
	audit   *recordingAudit
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := users.NewSQLStore(dbtest.New(t))
	rec := &recordingAudit{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	svc, err := NewService(ServiceConfig{
		Store:   store,
		Hasher:  NewBcryptHasher(bcrypt.MinCost),
		Tokens:  NewTokenIssuer(testAuthConfig()),
		Tasks:   fakeTasks{1: true, 2: true, 3: true},
		Audit:   rec,
		Metrics: metrics,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, audit: rec, metrics: metrics}
}

func (f *fixture) register(t *testing.T, username, password string) *users.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterRequest{
		Username:   username,
		Password:   password,
		FirstName:  "First",
		LastName:   "Last",
		Department: "Operations",
	}, nil)
	require.NoError(t, err)
	return u
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "correct")

	resp, err := f.svc.Authenticate(ctx, "alice", "correct")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, alice.ID, resp.ID)
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, users.RoleWorker, resp.Role)

	claims, err := f.svc.tokens.ParseAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)

	stored, err := f.store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.RefreshToken, stored.RefreshToken)
	assert.NotEqual(t, alice.RefreshToken, stored.RefreshToken, "login must overwrite the registration token")

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.LoginsTotal.WithLabelValues(observability.ResultSuccess)))
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "correct")

	_, wrongPassword := f.svc.Authenticate(ctx, "alice", "wrong")
	_, unknownUser := f.svc.Authenticate(ctx, "mallory", "correct")

	require.Error(t, wrongPassword)
	require.Error(t, unknownUser)
	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Equal(t, apperr.KindOf(wrongPassword), apperr.KindOf(unknownUser))

	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.LoginsTotal.WithLabelValues(observability.ResultFailure)))
	assert.Contains(t, f.audit.types(), audit.EventTypeAuthLoginFailed)
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "correct")

	login, err := f.svc.Authenticate(ctx, "alice", "correct")
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.svc.Refresh(ctx, refreshed.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_Invalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.svc.Refresh(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

// swapLosingStore simulates a concurrent refresh winning the swap
type swapLosingStore struct {
	*users.SQLStore
}

func (s swapLosingStore) SwapRefreshToken(ctx context.Context, id int64, presented, next string) (bool, error) {
	return false, nil
}

func TestRefresh_LostSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "correct")
	login, err := f.svc.Authenticate(ctx, "alice", "correct")
	require.NoError(t, err)

	f.svc.store = swapLosingStore{f.store}
	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_ConcurrentExchangeSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "correct")
	login, err := f.svc.Authenticate(ctx, "alice", "correct")
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Refresh(ctx, login.RefreshToken); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, RegisterRequest{
		Username:   "  bob ",
		Password:   "hunter22",
		Department: "Sales",
		Role:       "Manager",
		TaskIDs:    []int64{1, 2, 2},
	}, nil)
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "bob", u.Username)
	assert.Equal(t, users.RoleManager, u.Role)
	assert.Equal(t, []int64{1, 2}, u.TaskIDs)
	assert.NotEmpty(t, u.RefreshToken)
	assert.NotEqual(t, "hunter22", u.PasswordHash)

	assert.Contains(t, f.audit.types(), audit.EventTypeAuthRegister)
}

func TestRegister_Conflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "correct")

	deny := func(ctx context.Context, role users.Role, req RegisterRequest) error {
		return apperr.Forbidden("registration of %s denied", role)
	}

	tests := []struct {
		name  string
		req   RegisterRequest
		grant GrantFunc
	}{
		{"valid fields", RegisterRequest{Username: "alice", Password: "other", Department: "Ops"}, nil},
		{"other role", RegisterRequest{Username: "alice", Password: "x", Department: "Sales", Role: "admin", FirstName: "A"}, nil},
		{"padded username", RegisterRequest{Username: " alice ", Password: "x", Department: "Ops"}, nil},
		{"empty department", RegisterRequest{Username: "alice", Password: "x"}, nil},
		{"empty password", RegisterRequest{Username: "alice", Department: "Ops"}, nil},
		{"invalid role", RegisterRequest{Username: "alice", Password: "x", Department: "Ops", Role: "superadmin"}, nil},
		{"unknown task", RegisterRequest{Username: "alice", Password: "x", Department: "Ops", TaskIDs: []int64{99}}, nil},
		{"grant denied", RegisterRequest{Username: "alice", Password: "x", Department: "Ops", Role: "manager"}, deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.req, tt.grant)
			assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
		})
	}
}

func TestRegister_Grant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var gotRole users.Role
	deny := func(ctx context.Context, role users.Role, req RegisterRequest) error {
		gotRole = role
		return apperr.Forbidden("registration of %s denied", role)
	}

	_, err := f.svc.Register(ctx, RegisterRequest{Username: "carol", Password: "p", Department: "Ops", Role: "Manager"}, deny)
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "got %v", err)
	assert.Equal(t, users.RoleManager, gotRole)

	// an invalid request is rejected before the grant is consulted
	gotRole = ""
	_, err = f.svc.Register(ctx, RegisterRequest{Username: "carol", Password: "p", Role: "manager"}, deny)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
	assert.Empty(t, gotRole)

	_, err = f.store.GetByUsername(ctx, "carol")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
		kind apperr.Kind
	}{
		{"missing department", RegisterRequest{Username: "a", Password: "p"}, apperr.KindValidation},
		{"blank department", RegisterRequest{Username: "a", Password: "p", Department: "   "}, apperr.KindValidation},
		{"missing username", RegisterRequest{Password: "p", Department: "Ops"}, apperr.KindValidation},
		{"missing password", RegisterRequest{Username: "a", Department: "Ops"}, apperr.KindValidation},
		{"invalid role", RegisterRequest{Username: "a", Password: "p", Department: "Ops", Role: "superadmin"}, apperr.KindValidation},
		{"unknown task", RegisterRequest{Username: "a", Password: "p", Department: "Ops", TaskIDs: []int64{99}}, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.req, nil)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	_, err := f.store.GetByUsername(ctx, "a")
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "failed registrations must not persist")
}

func strPtr(s string) *string { return &s }

func TestUpdateProfile_PartialUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "correct")

	updated, err := f.svc.UpdateProfile(ctx, alice.ID, users.Patch{FirstName: strPtr("X")})
	require.NoError(t, err)
	assert.Equal(t, "X", updated.FirstName)

	stored, err := f.store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "X", stored.FirstName)
	assert.Equal(t, alice.Username, stored.Username)
	assert.Equal(t, alice.LastName, stored.LastName)
	assert.Equal(t, alice.Department, stored.Department)
	assert.Equal(t, alice.Role, stored.Role)
	assert.Equal(t, alice.PasswordHash, stored.PasswordHash)
	assert.Equal(t, alice.RefreshToken, stored.RefreshToken)
	assert.Equal(t, alice.TaskIDs, stored.TaskIDs)
}

func TestUpdateProfile_Role(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "correct")

	_, err := f.svc.UpdateProfile(ctx, alice.ID, users.Patch{Role: strPtr("superadmin"), FirstName: strPtr("Y")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	stored, err := f.store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", stored.FirstName, "rejected patch must not be partially applied")

	updated, err := f.svc.UpdateProfile(ctx, alice.ID, users.Patch{Role: strPtr("manager")})
	require.NoError(t, err)
	assert.Equal(t, users.RoleManager, updated.Role)
	assert.Contains(t, f.audit.types(), audit.EventTypeAuthzRoleChange)
}

func TestUpdateProfile_Password(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "correct")

	_, err := f.svc.UpdateProfile(ctx, alice.ID, users.Patch{NewPassword: "next", CurrentPassword: "wrong"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = f.svc.UpdateProfile(ctx, alice.ID, users.Patch{NewPassword: "next"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = f.svc.UpdateProfile(ctx, alice.ID, users.Patch{NewPassword: "next", CurrentPassword: "correct"})
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, "alice", "correct")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Authenticate(ctx, "alice", "next")
	assert.NoError(t, err)
}

func TestUpdateProfile_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice", "correct")
	f.register(t, "bob", "correct")

	_, err := f.svc.UpdateProfile(ctx, 999, users.Patch{FirstName: strPtr("X")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.UpdateProfile(ctx, alice.ID, users.Patch{Username: strPtr("bob")})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = f.svc.UpdateProfile(ctx, alice.ID, users.Patch{TaskIDs: &[]int64{1, 42}})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	updated, err := f.svc.UpdateProfile(ctx, alice.ID, users.Patch{TaskIDs: &[]int64{3, 1}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, updated.TaskIDs)
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Bootstrap(ctx, config.BootstrapConfig{})
	require.NoError(t, err)
	assert.False(t, created)

	cfg := config.BootstrapConfig{AdminUsername: "root", AdminPassword: "s3cret", AdminDepartment: "IT"}
	created, err = f.svc.Bootstrap(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.Bootstrap(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, created)

	resp, err := f.svc.Authenticate(ctx, "root", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, resp.Role)
}

type failingAudit struct{}

func (failingAudit) Log(ctx context.Context, event *audit.Event) error { return errors.New("down") }
func (failingAudit) Close() error                                      { return nil }

func TestAuditFailureDoesNotFailLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "correct")
	f.svc.audit = failingAudit{}

	_, err := f.svc.Authenticate(context.Background(), "alice", "correct")
	assert.NoError(t, err)
}
