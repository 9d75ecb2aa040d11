package v1

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"Actionboard/internal/analytics"
	"Actionboard/internal/store"
)

const (
	defaultEventLimit  = 100
	defaultRecentLimit = 20
)

// Handler provides HTTP API endpoints
type Handler struct {
	version string
	tracker *analytics.Tracker
	store   *store.Store
}

// NewHandler creates a new API handler
func NewHandler(version string, tracker *analytics.Tracker, st *store.Store) *Handler {
	return &Handler{
		version: version,
		tracker: tracker,
		store:   st,
	}
}

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// HandleStatus reports the streams being served
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Streams:   h.tracker.Summary(defaultRecentLimit),
	})
}

// HandleEvents returns the session event log. The optional limit query
// parameter bounds how many of the latest events are returned, and
// connection_id narrows the log to one stream.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.store == nil || !h.store.Enabled() {
		WriteError(w, http.StatusNotFound, "store not enabled")
		return
	}

	limit, ok := parseLimit(w, r, defaultEventLimit)
	if !ok {
		return
	}

	var events []store.SessionEvent
	if id := r.URL.Query().Get("connection_id"); id != "" {
		events = h.store.GetConnectionEvents(id)
		if len(events) > limit {
			events = events[len(events)-limit:]
		}
	} else {
		events = h.store.GetRecentEvents(limit)
	}

	writeJSON(w, http.StatusOK, EventsResponse{
		Timestamp: time.Now().UTC(),
		Count:     len(events),
		Events:    events,
	})
}

// HandleStreams lists the streams being served and the most recently
// finished ones, bounded by the limit query parameter
func (h *Handler) HandleStreams(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultRecentLimit)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, StreamsResponse{
		Timestamp: time.Now().UTC(),
		Active:    h.tracker.Active(),
		Finished:  h.tracker.GetHistory(limit),
	})
}

// HandleStreamByID returns one active stream
func (h *Handler) HandleStreamByID(w http.ResponseWriter, r *http.Request) {
	info, ok := h.tracker.Get(r.PathValue("id"))
	if !ok {
		WriteError(w, http.StatusNotFound, "stream not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func parseLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		WriteError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return n, true
}

// WriteError writes an ErrorMessage body with the given status
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorMessage{Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
