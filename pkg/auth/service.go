package auth

import (
	"context"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/audit"
	"github.com/platinummonkey/taskdesk/pkg/config"
	"github.com/platinummonkey/taskdesk/pkg/observability"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

var (
	// ErrInvalidCredentials is returned for an unknown username and for a
	// wrong password alike
	ErrInvalidCredentials = apperr.Unauthorized("invalid username or password")

	// ErrInvalidRefreshToken is returned for an unknown or already rotated
	// refresh token
	ErrInvalidRefreshToken = apperr.Unauthorized("invalid refresh token")

	// ErrWrongPassword is returned when a password change does not supply
	// the current password
	ErrWrongPassword = apperr.Unauthorized("current password is incorrect")
)

// AuthResponse is returned by login and refresh
type AuthResponse struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Role         users.Role `json:"role"`
}

// RegisterRequest describes a new account
type RegisterRequest struct {
	Username   string     `json:"username"`
	Password   string     `json:"password"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	BirthDate  *time.Time `json:"birthDate,omitempty"`
	HireDate   *time.Time `json:"hireDate,omitempty"`
	Department string     `json:"department"`
	Role       string     `json:"role,omitempty"`
	TaskIDs    []int64    `json:"taskIds,omitempty"`
}

// Validate checks the required fields
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, MaxPasswordBytes)),
		validation.Field(&r.Department, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.FirstName, validation.Length(0, 100)),
		validation.Field(&r.LastName, validation.Length(0, 100)),
	)
}

// RequestedRole returns the role asked for, worker when empty
func (r RegisterRequest) RequestedRole() (users.Role, error) {
	if strings.TrimSpace(r.Role) == "" {
		return users.RoleWorker, nil
	}
	return users.ParseRole(r.Role)
}

// ServiceConfig holds the dependencies of a Service
type ServiceConfig struct {
	Store   users.Store
	Hasher  Hasher
	Tokens  *TokenIssuer
	Tasks   users.TaskChecker
	Audit   audit.Logger
	Metrics *observability.Metrics
}

// Service implements login, refresh, registration and profile updates
type Service struct {
	store   users.Store
	hasher  Hasher
	tokens  *TokenIssuer
	tasks   users.TaskChecker
	audit   audit.Logger
	metrics *observability.Metrics

	// compared against for unknown usernames so both failure paths run one
	// hash verification
	dummyHash string
}

// NewService creates an auth service
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Audit == nil {
		cfg.Audit = audit.NoOp()
	}
	dummy, err := cfg.Hasher.Hash("taskdesk-unknown-user")
	if err != nil {
		return nil, err
	}
	return &Service{
		store:     cfg.Store,
		hasher:    cfg.Hasher,
		tokens:    cfg.Tokens,
		tasks:     cfg.Tasks,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		dummyHash: dummy,
	}, nil
}

// Authenticate verifies a username and password and issues a token pair.
// Unknown usernames and wrong passwords both fail with ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*AuthResponse, error) {
	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			s.metrics.ObserveLogin(observability.ResultError)
			return nil, err
		}
		s.hasher.Verify(password, s.dummyHash)
		s.loginFailed(ctx, username)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.loginFailed(ctx, username)
		return nil, ErrInvalidCredentials
	}

	resp, refresh, err := s.issue(user)
	if err != nil {
		s.metrics.ObserveLogin(observability.ResultError)
		return nil, err
	}
	if err := s.store.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		s.metrics.ObserveLogin(observability.ResultError)
		return nil, err
	}

	s.metrics.ObserveLogin(observability.ResultSuccess)
	s.record(ctx, &audit.Event{
		Type:     audit.EventTypeAuthLogin,
		Status:   audit.EventStatusSuccess,
		UserID:   audit.Int64(user.ID),
		Username: user.Username,
	})
	return resp, nil
}

func (s *Service) loginFailed(ctx context.Context, username string) {
	s.metrics.ObserveLogin(observability.ResultFailure)
	s.record(ctx, &audit.Event{
		Type:     audit.EventTypeAuthLoginFailed,
		Status:   audit.EventStatusFailure,
		Username: username,
		Message:  "invalid credentials",
	})
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// invalid once this returns successfully.
func (s *Service) Refresh(ctx context.Context, presented string) (*AuthResponse, error) {
	if presented == "" {
		s.refreshFailed(ctx, nil)
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.store.GetByRefreshToken(ctx, presented)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			s.metrics.ObserveRefresh(observability.ResultError)
			return nil, err
		}
		s.refreshFailed(ctx, nil)
		return nil, ErrInvalidRefreshToken
	}

	resp, next, err := s.issue(user)
	if err != nil {
		s.metrics.ObserveRefresh(observability.ResultError)
		return nil, err
	}
	swapped, err := s.store.SwapRefreshToken(ctx, user.ID, presented, next)
	if err != nil {
		s.metrics.ObserveRefresh(observability.ResultError)
		return nil, err
	}
	if !swapped {
		s.refreshFailed(ctx, user)
		return nil, ErrInvalidRefreshToken
	}

	s.metrics.ObserveRefresh(observability.ResultSuccess)
	s.record(ctx, &audit.Event{
		Type:     audit.EventTypeAuthRefresh,
		Status:   audit.EventStatusSuccess,
		UserID:   audit.Int64(user.ID),
		Username: user.Username,
	})
	return resp, nil
}

func (s *Service) refreshFailed(ctx context.Context, user *users.User) {
	s.metrics.ObserveRefresh(observability.ResultFailure)
	event := &audit.Event{
		Type:    audit.EventTypeAuthRefreshFailed,
		Status:  audit.EventStatusFailure,
		Message: "invalid refresh token",
	}
	if user != nil {
		event.UserID = audit.Int64(user.ID)
		event.Username = user.Username
		event.Message = "refresh token already rotated"
	}
	s.record(ctx, event)
}

// issue mints an access and a refresh token for user
func (s *Service) issue(user *users.User) (*AuthResponse, string, error) {
	access, expiresAt, err := s.tokens.IssueAccessToken(IdentityOf(user))
	if err != nil {
		return nil, "", err
	}
	refresh, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return nil, "", err
	}
	return &AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		ID:           user.ID,
		Username:     user.Username,
		Role:         user.Role,
	}, refresh, nil
}

// GrantFunc decides whether the caller may create an account with role and
// the requested task assignments. It runs after the username is known to be
// free and the request is valid.
type GrantFunc func(ctx context.Context, role users.Role, req RegisterRequest) error

// Register creates an account. An existing username is a Conflict whatever
// else the request holds. grant may be nil when every role is allowed.
func (s *Service) Register(ctx context.Context, req RegisterRequest, grant GrantFunc) (*users.User, error) {
	user, err := s.register(ctx, req, grant)
	if err != nil {
		result := observability.ResultFailure
		if apperr.KindOf(err) == apperr.KindInternal {
			result = observability.ResultError
		}
		s.metrics.ObserveRegistration(result)
		return nil, err
	}

	s.metrics.ObserveRegistration(observability.ResultSuccess)
	s.record(ctx, &audit.Event{
		Type:         audit.EventTypeAuthRegister,
		Status:       audit.EventStatusSuccess,
		Username:     user.Username,
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   strconv.FormatInt(user.ID, 10),
		Metadata:     map[string]interface{}{"role": string(user.Role)},
	})
	return user, nil
}

func (s *Service) register(ctx context.Context, req RegisterRequest, grant GrantFunc) (*users.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Department = strings.TrimSpace(req.Department)

	if req.Username != "" {
		if _, err := s.store.GetByUsername(ctx, req.Username); err == nil {
			return nil, apperr.Conflict("username %q already exists", req.Username)
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
	}

	if err := req.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	role, err := req.RequestedRole()
	if err != nil {
		return nil, err
	}
	if grant != nil {
		if err := grant(ctx, role, req); err != nil {
			return nil, err
		}
	}

	taskIDs := req.TaskIDs
	if err := s.checkTasks(ctx, taskIDs); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return nil, err
	}

	user := &users.User{
		Username:     req.Username,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		BirthDate:    req.BirthDate,
		HireDate:     req.HireDate,
		Department:   req.Department,
		Role:         role,
		RefreshToken: refresh,
	}
	patch := users.Patch{TaskIDs: &taskIDs}
	if err := patch.Apply(user); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateProfile applies a partial update to a user. Nothing is written
// unless every check passes.
func (s *Service) UpdateProfile(ctx context.Context, id int64, patch users.Patch) (*users.User, error) {
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.TaskIDs = append([]int64(nil), current.TaskIDs...)
	if err := patch.Apply(&updated); err != nil {
		return nil, err
	}

	if patch.ChangesPassword() {
		if !s.hasher.Verify(patch.CurrentPassword, current.PasswordHash) {
			s.record(ctx, &audit.Event{
				Type:     audit.EventTypeAuthPasswordChange,
				Status:   audit.EventStatusFailure,
				UserID:   audit.Int64(id),
				Username: current.Username,
				Message:  "current password is incorrect",
			})
			return nil, ErrWrongPassword
		}
		hash, err := s.hasher.Hash(patch.NewPassword)
		if err != nil {
			return nil, err
		}
		updated.PasswordHash = hash
	}

	if updated.Username != current.Username {
		existing, err := s.store.GetByUsername(ctx, updated.Username)
		if err == nil && existing.ID != id {
			return nil, apperr.Conflict("username %q already exists", updated.Username)
		}
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
	}

	if patch.TaskIDs != nil {
		if err := s.checkTasks(ctx, updated.TaskIDs); err != nil {
			return nil, err
		}
	}

	if err := s.store.Update(ctx, &updated); err != nil {
		return nil, err
	}

	target := strconv.FormatInt(id, 10)
	if patch.ChangesPassword() {
		s.record(ctx, &audit.Event{
			Type:     audit.EventTypeAuthPasswordChange,
			Status:   audit.EventStatusSuccess,
			UserID:   audit.Int64(id),
			Username: updated.Username,
		})
	}
	if updated.Role != current.Role {
		s.record(ctx, &audit.Event{
			Type:         audit.EventTypeAuthzRoleChange,
			Status:       audit.EventStatusSuccess,
			ResourceType: audit.ResourceTypeUser,
			ResourceID:   target,
			Metadata:     map[string]interface{}{"from": string(current.Role), "to": string(updated.Role)},
		})
	}
	s.record(ctx, &audit.Event{
		Type:         audit.EventTypeUserUpdate,
		Status:       audit.EventStatusSuccess,
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   target,
	})
	return &updated, nil
}

func (s *Service) checkTasks(ctx context.Context, ids []int64) error {
	if s.tasks == nil {
		return nil
	}
	for _, id := range ids {
		ok, err := s.tasks.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("task %d not found", id)
		}
	}
	return nil
}

// Bootstrap creates the configured admin account when it does not exist.
// It reports whether an account was created.
func (s *Service) Bootstrap(ctx context.Context, cfg config.BootstrapConfig) (bool, error) {
	if cfg.AdminUsername == "" {
		return false, nil
	}
	if _, err := s.store.GetByUsername(ctx, cfg.AdminUsername); err == nil {
		return false, nil
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return false, err
	}

	user, err := s.register(ctx, RegisterRequest{
		Username:   cfg.AdminUsername,
		Password:   cfg.AdminPassword,
		Department: cfg.AdminDepartment,
		Role:       string(users.RoleAdmin),
	}, nil)
	if err != nil {
		return false, err
	}
	s.record(ctx, &audit.Event{
		Type:         audit.EventTypeAdminBootstrap,
		Status:       audit.EventStatusSuccess,
		Username:     user.Username,
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   strconv.FormatInt(user.ID, 10),
	})
	return true, nil
}

func (s *Service) record(ctx context.Context, event *audit.Event) {
	if err := s.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to write audit event")
	}
}
