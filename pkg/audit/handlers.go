package audit

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

const (
	maxSearchLimit = 500
	maxExportLimit = 10000
)

// Handlers provides HTTP handlers for the audit log API. Routes must be
// mounted behind tenant resolution; results are limited to the active tenant.
type Handlers struct {
	store *StoreLogger
}

// NewHandlers creates new audit handlers
func NewHandlers(store *StoreLogger) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers audit log routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit/events", h.listEvents).Methods(http.MethodGet)
	router.HandleFunc("/audit/events/export", h.exportEvents).Methods(http.MethodGet)
	router.HandleFunc("/audit/events/{id}", h.getEvent).Methods(http.MethodGet)
}

// listEvents handles GET /audit/events
func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r, 100, maxSearchLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to search audit events")
		httputil.WriteInternalError(w)
		return
	}
	if events == nil {
		events = []*Event{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"limit":  filter.Limit,
	})
}

// exportEvents handles GET /audit/events/export?format=csv
func (h *Handlers) exportEvents(w http.ResponseWriter, r *http.Request) {
	format, err := ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter, err := parseFilter(r, maxExportLimit, maxExportLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to export audit events")
		httputil.WriteInternalError(w)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events."+string(format))
	if err := Export(w, events, format); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to write audit export")
	}
}

// getEvent handles GET /audit/events/{id}
func (h *Handlers) getEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	event, err := h.store.Get(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			httputil.WriteErrorMessage(w, http.StatusNotFound, "event not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("Failed to get audit event")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, event)
}

func parseFilter(r *http.Request, defaultLimit, maxLimit int) (SearchFilter, error) {
	q := r.URL.Query()
	filter := SearchFilter{
		EventType:    EventType(q.Get("event_type")),
		ResourceType: ResourceType(q.Get("resource_type")),
		ResourceID:   q.Get("resource_id"),
		Limit:        defaultLimit,
	}
	if actor := q.Get("actor_id"); actor != "" {
		id, err := uuid.Parse(actor)
		if err != nil {
			return filter, errInvalidQuery("actor_id")
		}
		filter.ActorID = &id
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return filter, errInvalidQuery("limit")
		}
		filter.Limit = min(n, maxLimit)
	}
	return filter, nil
}

type errInvalidQuery string

func (e errInvalidQuery) Error() string {
	return "invalid " + string(e) + " parameter"
}
