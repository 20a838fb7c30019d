package auth

import (
	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

// Action is a gated operation on a resource
type Action string

const (
	ActionListUsers    Action = "users:list"
	ActionListTasks    Action = "tasks:list"
	ActionListOwnTasks Action = "tasks:list_own"
	ActionChangeRole   Action = "users:change_role"
	ActionDeleteUser   Action = "users:delete"

	ActionWriteTasks    Action = "tasks:write"
	ActionWriteNews     Action = "news:write"
	ActionUpdateAnyUser Action = "users:update_any"
)

var policy = map[Action]map[users.Role]bool{
	ActionListUsers:    {users.RoleAdmin: true, users.RoleManager: true},
	ActionListTasks:    {users.RoleAdmin: true, users.RoleManager: true},
	ActionListOwnTasks: {users.RoleAdmin: true, users.RoleManager: true, users.RoleWorker: true},
	ActionChangeRole:   {users.RoleAdmin: true},
	ActionDeleteUser:   {users.RoleAdmin: true},

	ActionWriteTasks:    {users.RoleAdmin: true, users.RoleManager: true},
	ActionWriteNews:     {users.RoleAdmin: true, users.RoleManager: true},
	ActionUpdateAnyUser: {users.RoleAdmin: true},
}

// Allowed reports whether role may perform action. Unknown roles and
// actions are denied.
func Allowed(role users.Role, action Action) bool {
	return policy[action][role]
}

// Authorize returns a Forbidden error when role may not perform action
func Authorize(role users.Role, action Action) error {
	if !Allowed(role, action) {
		return apperr.Forbidden("role %q is not allowed to %s", role, action)
	}
	return nil
}
