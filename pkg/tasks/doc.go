// Package tasks stores tasks and answers which tasks are assigned to a user.
//
// Assignment itself lives on the user record (the user_tasks table); this
// package reads it for ListForUser and clears it when a task is deleted.
// Status is one of new, in_progress or done.
package tasks
