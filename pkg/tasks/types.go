package tasks

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
)

// Status is a task's progress state
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus converts s to a Status, defaulting empty input to new
func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StatusNew, nil
	}
	status := Status(s)
	if !status.IsValid() {
		return "", apperr.Validation("invalid status %q: must be new, in_progress or done", s)
	}
	return status, nil
}

// Task is a unit of work assignable to users
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedBy   *int64     `json:"createdBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateRequest describes a new task
type CreateRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// Validate checks the request fields
func (r CreateRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 255)),
	)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}
	_, err = ParseStatus(r.Status)
	return err
}

// UpdateRequest is a partial task update. Nil fields are left unchanged.
type UpdateRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// Validate checks the fields that are set
func (r UpdateRequest) Validate() error {
	if r.Title != nil && strings.TrimSpace(*r.Title) == "" {
		return apperr.Validation("title: cannot be blank")
	}
	if r.Title != nil && len(*r.Title) > 255 {
		return apperr.Validation("title: the length must be no more than 255")
	}
	if r.Status != nil {
		if strings.TrimSpace(*r.Status) == "" {
			return apperr.Validation("status: cannot be blank")
		}
		if _, err := ParseStatus(*r.Status); err != nil {
			return err
		}
	}
	return nil
}
