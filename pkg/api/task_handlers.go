package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/httputil"
	"github.com/platinummonkey/taskdesk/pkg/middleware"
	"github.com/platinummonkey/taskdesk/pkg/tasks"
)

// TaskHandlers handles task HTTP requests
type TaskHandlers struct {
	tasks tasks.Service
	authn *middleware.Authenticator
}

// NewTaskHandlers creates a new task handlers instance
func NewTaskHandlers(service tasks.Service, authn *middleware.Authenticator) *TaskHandlers {
	return &TaskHandlers{tasks: service, authn: authn}
}

// RegisterRoutes registers task routes
func (h *TaskHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/Tasks", gate(h.authn, h.listTasks, auth.ActionListTasks)).Methods("GET")
	router.Handle("/api/Tasks/user/{id}", gate(h.authn, h.listUserTasks, auth.ActionListOwnTasks)).Methods("GET")
	router.Handle("/api/Tasks/{id}", gate(h.authn, h.getTask)).Methods("GET")
	router.Handle("/api/Tasks", gate(h.authn, h.createTask, auth.ActionWriteTasks)).Methods("POST")
	router.Handle("/api/Tasks/{id}", gate(h.authn, h.updateTask, auth.ActionWriteTasks)).Methods("PUT")
	router.Handle("/api/Tasks/{id}", gate(h.authn, h.deleteTask, auth.ActionWriteTasks)).Methods("DELETE")
}

// listTasks handles GET /api/Tasks
func (h *TaskHandlers) listTasks(w http.ResponseWriter, r *http.Request) {
	list, err := h.tasks.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// listUserTasks handles GET /api/Tasks/user/{id}
func (h *TaskHandlers) listUserTasks(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := middleware.AuthorizeSelfOr(r.Context(), id, auth.ActionListTasks); err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.tasks.ListForUser(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// getTask handles GET /api/Tasks/{id}
func (h *TaskHandlers) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, task)
}

// createTask handles POST /api/Tasks
func (h *TaskHandlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req tasks.CreateRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var createdBy *int64
	if identity, ok := middleware.IdentityFrom(r.Context()); ok {
		createdBy = &identity.UserID
	}
	task, err := h.tasks.Create(r.Context(), req, createdBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, task)
}

// updateTask handles PUT /api/Tasks/{id}
func (h *TaskHandlers) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req tasks.UpdateRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	task, err := h.tasks.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, task)
}

// deleteTask handles DELETE /api/Tasks/{id}
func (h *TaskHandlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.tasks.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
