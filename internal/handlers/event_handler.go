package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// EventHandler handles HTTP requests for change events
type EventHandler struct {
	events interfaces.EventStorage
	logger arbor.ILogger
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(events interfaces.EventStorage, logger arbor.ILogger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

// ListEventsHandler handles GET /api/events with companyId, severity
// and acknowledged query filters.
func (h *EventHandler) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	filter := &interfaces.EventFilter{
		CompanyID: r.URL.Query().Get("companyId"),
		Limit:     100,
	}

	if raw := r.URL.Query().Get("severity"); raw != "" {
		severity := models.Severity(strings.ToLower(raw))
		switch severity {
		case models.SeverityInfo, models.SeverityMedium, models.SeverityCritical:
			filter.Severity = severity
		default:
			WriteError(w, http.StatusBadRequest, "Invalid severity filter")
			return
		}
	}

	if raw := r.URL.Query().Get("acknowledged"); raw != "" {
		acked, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid acknowledged filter")
			return
		}
		filter.Acknowledged = &acked
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}

	events, err := h.events.ListEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list events")
		WriteError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	if events == nil {
		events = []*models.ChangeEvent{}
	}
	WriteJSON(w, http.StatusOK, events)
}

// AckEventHandler handles POST /api/events/{id}/ack
func (h *EventHandler) AckEventHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	id := strings.TrimSuffix(extractIDFromPath(r.URL.Path, "/api/events/"), "/ack")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Event ID is required")
		return
	}

	if err := h.events.SetAcknowledged(r.Context(), id, true); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Event not found")
		} else {
			h.logger.Error().Err(err).Str("id", id).Msg("Failed to acknowledge event")
			WriteError(w, http.StatusInternalServerError, "Failed to acknowledge event")
		}
		return
	}

	WriteSuccess(w, "Event acknowledged")
}
