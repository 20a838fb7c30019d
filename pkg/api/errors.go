package api

import (
	"net/http"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/httputil"
	"github.com/platinummonkey/taskdesk/pkg/observability"
)

// writeError responds with err. Internal errors are logged with their cause
// and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindInternal:
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
	case apperr.KindUnauthorized:
		httputil.WriteUnauthorized(w, apperr.Message(err))
		return
	}
	httputil.WriteError(w, err)
}
