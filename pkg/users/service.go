package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/audit"
	"github.com/platinummonkey/taskdesk/pkg/contextkeys"
	"github.com/platinummonkey/taskdesk/pkg/observability"
	"github.com/platinummonkey/taskdesk/pkg/storage"
)

// PictureTypes maps accepted picture extensions to their content type
var PictureTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// TaskChecker reports whether a task exists
type TaskChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// ServiceConfig holds the dependencies of a Service
type ServiceConfig struct {
	Store         Store
	Tasks         TaskChecker
	Pictures      storage.BlobStorage
	PicturePrefix string
	Audit         audit.Logger
	Metrics       *observability.Metrics
}

// Service manages user accounts outside the credential flows
type Service struct {
	store    Store
	tasks    TaskChecker
	pictures storage.BlobStorage
	prefix   string
	audit    audit.Logger
	metrics  *observability.Metrics
}

// NewService creates a user service
func NewService(cfg ServiceConfig) *Service {
	if cfg.Audit == nil {
		cfg.Audit = audit.NoOp()
	}
	return &Service{
		store:    cfg.Store,
		tasks:    cfg.Tasks,
		pictures: cfg.Pictures,
		prefix:   strings.TrimSuffix(cfg.PicturePrefix, "/"),
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
	}
}

// List returns every user
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}

// Get returns a user by id
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// DisplayName returns a user's first and last name
func (s *Service) DisplayName(ctx context.Context, id int64) (*DisplayName, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &DisplayName{FirstName: u.FirstName, LastName: u.LastName}, nil
}

// ChangeRole sets a user's role. role must be in the closed set.
func (s *Service) ChangeRole(ctx context.Context, id int64, role string) error {
	r, err := ParseRole(role)
	if err != nil {
		return err
	}
	if err := s.store.UpdateRole(ctx, id, r); err != nil {
		return err
	}
	s.record(ctx, audit.EventTypeAuthzRoleChange, id, map[string]interface{}{"role": string(r)})
	return nil
}

// AssignTask adds a task to a user's task set
func (s *Service) AssignTask(ctx context.Context, userID, taskID int64) error {
	if _, err := s.store.GetByID(ctx, userID); err != nil {
		return err
	}
	if s.tasks != nil {
		ok, err := s.tasks.Exists(ctx, taskID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("task %d not found", taskID)
		}
	}
	if err := s.store.AddTask(ctx, userID, taskID); err != nil {
		return err
	}
	s.record(ctx, audit.EventTypeUserTaskAssign, userID, map[string]interface{}{"task_id": taskID})
	return nil
}

// Delete removes a user, its assignments and its picture
func (s *Service) Delete(ctx context.Context, id int64) error {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.removePicture(ctx, u.ProfilePicturePath)
	s.record(ctx, audit.EventTypeUserDelete, id, map[string]interface{}{"username": u.Username})
	return nil
}

// UploadPicture stores a new profile picture for a user and returns its
// public path. The previous picture is removed.
func (s *Service) UploadPicture(ctx context.Context, id int64, filename string, size int64, content io.Reader) (string, error) {
	if s.pictures == nil {
		return "", apperr.Internal(errors.New("no picture storage configured"), "picture uploads are unavailable")
	}
	if size <= 0 || content == nil {
		return "", apperr.Validation("file is empty")
	}
	ext := strings.ToLower(path.Ext(filename))
	contentType, ok := PictureTypes[ext]
	if !ok {
		return "", apperr.Validation("unsupported picture type %q", ext)
	}

	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%d_%s%s", id, uuid.NewString(), ext)
	if err := s.pictures.Put(ctx, name, content, size, contentType); err != nil {
		return "", apperr.Internal(err, "failed to store picture")
	}

	publicPath := s.prefix + "/" + name
	if err := s.store.SetProfilePicture(ctx, id, publicPath); err != nil {
		if delErr := s.pictures.Delete(ctx, name); delErr != nil {
			observability.FromContext(ctx).WithError(delErr).Warnf("failed to remove orphaned picture %s", name)
		}
		return "", err
	}

	s.removePicture(ctx, u.ProfilePicturePath)
	s.metrics.ObserveUpload(s.pictures.Backend(), size)
	s.record(ctx, audit.EventTypeUserPictureSet, id, map[string]interface{}{"path": publicPath, "size": size})
	return publicPath, nil
}

// Picture opens a stored picture by file name and returns its content type
func (s *Service) Picture(ctx context.Context, name string) (io.ReadCloser, string, error) {
	if s.pictures == nil {
		return nil, "", apperr.NotFound("picture %q not found", name)
	}
	if err := storage.ValidateKey(name); err != nil {
		return nil, "", apperr.Validation("invalid picture name")
	}
	contentType, ok := PictureTypes[strings.ToLower(path.Ext(name))]
	if !ok {
		return nil, "", apperr.NotFound("picture %q not found", name)
	}
	rc, err := s.pictures.Get(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", apperr.NotFound("picture %q not found", name)
		}
		return nil, "", apperr.Internal(err, "failed to read picture")
	}
	return rc, contentType, nil
}

// removePicture deletes a stored picture by its public path. Failures are
// logged only.
func (s *Service) removePicture(ctx context.Context, publicPath string) {
	if s.pictures == nil || publicPath == "" || !strings.HasPrefix(publicPath, s.prefix+"/") {
		return
	}
	name := strings.TrimPrefix(publicPath, s.prefix+"/")
	if err := s.pictures.Delete(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
		observability.FromContext(ctx).WithError(err).Warnf("failed to remove picture %s", name)
	}
}

func (s *Service) record(ctx context.Context, eventType audit.EventType, target int64, metadata map[string]interface{}) {
	event := &audit.Event{
		Type:         eventType,
		Status:       audit.EventStatusSuccess,
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   strconv.FormatInt(target, 10),
		Metadata:     metadata,
	}
	if actor, err := strconv.ParseInt(contextkeys.GetUserID(ctx), 10, 64); err == nil {
		event.UserID = audit.Int64(actor)
	}
	if err := s.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to write audit event")
	}
}
