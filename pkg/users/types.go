package users

import (
	"strings"
	"time"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
)

// Role is a user's authorization role
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
)

// Roles lists the closed role set
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleWorker}
}

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleWorker:
		return true
	}
	return false
}

// ParseRole converts s to a Role. Matching is case-insensitive and any
// value outside the closed set is a validation error.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.IsValid() {
		names := make([]string, 0, len(Roles()))
		for _, r := range Roles() {
			names = append(names, string(r))
		}
		return "", apperr.Validation("invalid role %q: must be one of %s", s, strings.Join(names, ", "))
	}
	return role, nil
}

// User is a persisted account
type User struct {
	ID                 int64      `json:"id"`
	Username           string     `json:"username"`
	PasswordHash       string     `json:"-"`
	FirstName          string     `json:"firstName"`
	LastName           string     `json:"lastName"`
	BirthDate          *time.Time `json:"birthDate,omitempty"`
	HireDate           *time.Time `json:"hireDate,omitempty"`
	Department         string     `json:"department"`
	Role               Role       `json:"role"`
	TaskIDs            []int64    `json:"taskIds"`
	ProfilePicturePath string     `json:"profilePicturePath,omitempty"`
	RefreshToken       string     `json:"-"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Patch is a partial profile update. Nil fields are left unchanged.
type Patch struct {
	Username   *string    `json:"username,omitempty"`
	FirstName  *string    `json:"firstName,omitempty"`
	LastName   *string    `json:"lastName,omitempty"`
	BirthDate  *time.Time `json:"birthDate,omitempty"`
	HireDate   *time.Time `json:"hireDate,omitempty"`
	Department *string    `json:"department,omitempty"`
	Role       *string    `json:"role,omitempty"`
	TaskIDs    *[]int64   `json:"taskIds,omitempty"`

	// A password change needs both; CurrentPassword is verified first.
	CurrentPassword string `json:"currentPassword,omitempty"`
	NewPassword     string `json:"newPassword,omitempty"`
}

// ChangesPassword reports whether the patch asks for a new password
func (p *Patch) ChangesPassword() bool {
	return p.NewPassword != ""
}

// ChangesRole reports whether the patch sets a role
func (p *Patch) ChangesRole() bool {
	return p.Role != nil
}

// ChangesTasks reports whether the patch replaces the assigned tasks
func (p *Patch) ChangesTasks() bool {
	return p.TaskIDs != nil
}

// Apply copies every set field onto u. It does not touch the password.
// u is left untouched when the patch is invalid.
func (p *Patch) Apply(u *User) error {
	var role Role
	if p.Role != nil {
		r, err := ParseRole(*p.Role)
		if err != nil {
			return err
		}
		role = r
	}
	if p.Username != nil && strings.TrimSpace(*p.Username) == "" {
		return apperr.Validation("username cannot be empty")
	}
	if p.Department != nil && strings.TrimSpace(*p.Department) == "" {
		return apperr.Validation("department cannot be empty")
	}

	if p.Username != nil {
		u.Username = strings.TrimSpace(*p.Username)
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.BirthDate != nil {
		u.BirthDate = p.BirthDate
	}
	if p.HireDate != nil {
		u.HireDate = p.HireDate
	}
	if p.Department != nil {
		u.Department = *p.Department
	}
	if p.Role != nil {
		u.Role = role
	}
	if p.TaskIDs != nil {
		u.TaskIDs = dedupe(*p.TaskIDs)
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// DisplayName is a user's first and last name
type DisplayName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}
