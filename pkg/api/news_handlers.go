package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/taskdesk/pkg/auth"
	"github.com/platinummonkey/taskdesk/pkg/httputil"
	"github.com/platinummonkey/taskdesk/pkg/middleware"
	"github.com/platinummonkey/taskdesk/pkg/news"
)

// NewsHandlers handles dashboard news HTTP requests
type NewsHandlers struct {
	news  news.Service
	authn *middleware.Authenticator
}

// NewNewsHandlers creates a new news handlers instance
func NewNewsHandlers(service news.Service, authn *middleware.Authenticator) *NewsHandlers {
	return &NewsHandlers{news: service, authn: authn}
}

// RegisterRoutes registers news routes
func (h *NewsHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/News", gate(h.authn, h.listNews)).Methods("GET")
	router.Handle("/api/News/{id}", gate(h.authn, h.getNews)).Methods("GET")
	router.Handle("/api/News", gate(h.authn, h.createNews, auth.ActionWriteNews)).Methods("POST")
	router.Handle("/api/News/{id}", gate(h.authn, h.updateNews, auth.ActionWriteNews)).Methods("PUT")
	router.Handle("/api/News/{id}", gate(h.authn, h.deleteNews, auth.ActionWriteNews)).Methods("DELETE")
}

func (h *NewsHandlers) listNews(w http.ResponseWriter, r *http.Request) {
	list, err := h.news.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (h *NewsHandlers) getNews(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.news.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

func (h *NewsHandlers) createNews(w http.ResponseWriter, r *http.Request) {
	var req news.CreateRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var authorID *int64
	if identity, ok := middleware.IdentityFrom(r.Context()); ok {
		authorID = &identity.UserID
	}
	item, err := h.news.Create(r.Context(), req, authorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, item)
}

func (h *NewsHandlers) updateNews(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req news.UpdateRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := h.news.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

func (h *NewsHandlers) deleteNews(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.news.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
