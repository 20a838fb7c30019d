package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin          EventType = "auth.login"
	EventTypeAuthLoginFailed    EventType = "auth.login_failed"
	EventTypeAuthRefresh        EventType = "auth.refresh"
	EventTypeAuthRefreshFailed  EventType = "auth.refresh_failed"
	EventTypeAuthRegister       EventType = "auth.register"
	EventTypeAuthPasswordChange EventType = "auth.password_change"

	// Authorization events
	EventTypeAuthzRoleChange   EventType = "authz.role_change"
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"

	// Data mutation events
	EventTypeUserUpdate     EventType = "data.user_update"
	EventTypeUserDelete     EventType = "data.user_delete"
	EventTypeUserTaskAssign EventType = "data.user_task_assign"
	EventTypeUserPictureSet EventType = "data.user_picture_upload"
	EventTypeAdminBootstrap EventType = "admin.bootstrap"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeUser ResourceType = "user"
	ResourceTypeTask ResourceType = "task"
	ResourceTypeNews ResourceType = "news"
)

// Event is a single audit log entry
type Event struct {
	ID        int64       `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Target
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context, filled from the context when empty
	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
