package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/httputil"
	"github.com/platinummonkey/taskdesk/pkg/middleware"
	"github.com/platinummonkey/taskdesk/pkg/observability"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

// multipartOverhead is the room left for multipart headers on top of the
// picture size limit
const multipartOverhead = 64 << 10

// UserHandlers handles user management HTTP requests
type UserHandlers struct {
	auth      *auth.Service
	users     *users.Service
	authn     *middleware.Authenticator
	maxUpload int64
}

// NewUserHandlers creates a new user handlers instance
func NewUserHandlers(authService *auth.Service, userService *users.Service, authn *middleware.Authenticator, maxUpload int64) *UserHandlers {
	if maxUpload <= 0 {
		maxUpload = 5 << 20
	}
	return &UserHandlers{auth: authService, users: userService, authn: authn, maxUpload: maxUpload}
}

// RegisterRoutes registers user routes
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/User/picture/{filename}", h.getPicture).Methods("GET")
	router.Handle("/api/User/all", gate(h.authn, h.listUsers, auth.ActionListUsers)).Methods("GET")
	router.Handle("/api/User/{id}", gate(h.authn, h.getUser)).Methods("GET")
	router.Handle("/api/User/{id}/name", gate(h.authn, h.getName)).Methods("GET")
	router.Handle("/api/User/{id}", gate(h.authn, h.updateUser)).Methods("PUT")
	router.Handle("/api/User/{id}/role", gate(h.authn, h.changeRole, auth.ActionChangeRole)).Methods("PUT")
	router.Handle("/api/User/{id}/tasks/{taskId}", gate(h.authn, h.assignTask, auth.ActionWriteTasks)).Methods("POST")
	router.Handle("/api/User/{id}", gate(h.authn, h.deleteUser, auth.ActionDeleteUser)).Methods("DELETE")
	router.Handle("/api/User/{id}/picture", gate(h.authn, h.uploadPicture)).Methods("POST")
}

// listUsers handles GET /api/User/all
func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// getUser handles GET /api/User/{id}
func (h *UserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := middleware.AuthorizeSelfOr(r.Context(), id, auth.ActionListUsers); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// getName handles GET /api/User/{id}/name
func (h *UserHandlers) getName(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	name, err := h.users.DisplayName(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, name)
}

// updateUser handles PUT /api/User/{id}
func (h *UserHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := middleware.AuthorizeSelfOr(r.Context(), id, auth.ActionUpdateAnyUser); err != nil {
		writeError(w, r, err)
		return
	}

	var patch users.Patch
	if err := httputil.ParseJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	if patch.ChangesRole() {
		if err := middleware.Authorize(r.Context(), auth.ActionChangeRole); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if patch.ChangesTasks() {
		if err := middleware.Authorize(r.Context(), auth.ActionWriteTasks); err != nil {
			writeError(w, r, err)
			return
		}
	}

	user, err := h.auth.UpdateProfile(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

// changeRole handles PUT /api/User/{id}/role
func (h *UserHandlers) changeRole(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req changeRoleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.users.ChangeRole(r.Context(), id, req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// assignTask handles POST /api/User/{id}/tasks/{taskId}
func (h *UserHandlers) assignTask(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	taskID, err := httputil.ParsePathInt64(r, "taskId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.users.AssignTask(r.Context(), id, taskID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// deleteUser handles DELETE /api/User/{id}
func (h *UserHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

type pictureResponse struct {
	Path string `json:"path"`
}

// uploadPicture handles POST /api/User/{id}/picture with a multipart "file"
func (h *UserHandlers) uploadPicture(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := middleware.AuthorizeSelfOr(r.Context(), id, auth.ActionUpdateAnyUser); err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, apperr.Validation("file exceeds %d bytes", h.maxUpload))
			return
		}
		writeError(w, r, apperr.Validation("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.Validation("file is required"))
		return
	}
	defer file.Close()
	if header.Size > h.maxUpload {
		writeError(w, r, apperr.Validation("file exceeds %d bytes", h.maxUpload))
		return
	}

	path, err := h.users.UploadPicture(r.Context(), id, header.Filename, header.Size, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, pictureResponse{Path: path})
}

// getPicture handles GET /api/User/picture/{filename}
func (h *UserHandlers) getPicture(w http.ResponseWriter, r *http.Request) {
	name, err := httputil.ParsePathString(r, "filename")
	if err != nil {
		writeError(w, r, err)
		return
	}

	rc, contentType, err := h.users.Picture(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if seeker, ok := rc.(io.ReadSeeker); ok {
		if size, err := seeker.Seek(0, io.SeekEnd); err == nil {
			if _, err := seeker.Seek(0, io.SeekStart); err == nil {
				w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
			}
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to stream picture")
	}
}
