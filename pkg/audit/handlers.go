package audit

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sentinel-rbac/sentinel/pkg/httputil"
)

// Handlers provides HTTP handlers for audit queries
type Handlers struct {
	logger *DBLogger
}

// NewHandlers creates new audit handlers
func NewHandlers(logger *DBLogger) *Handlers {
	return &Handlers{logger: logger}
}

// RegisterRoutes registers audit routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.ListEvents).Methods("GET")
}

// ListEvents returns recent audit events
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			httputil.WriteValidationError(w, "limit must be an integer between 1 and 1000")
			return
		}
		limit = parsed
	}

	events, err := h.logger.ListRecent(r.Context(), limit)
	if err != nil {
		httputil.WriteStorageError(w)
		return
	}
	if events == nil {
		events = []*Event{}
	}

	httputil.WriteSuccess(w, events)
}
