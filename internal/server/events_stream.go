package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aristath/basket/internal/events"
	"github.com/rs/zerolog"
)

// streamedEventTypes is every event type forwarded to SSE clients when no
// filter is given.
var streamedEventTypes = []events.EventType{
	events.BasketCreated,
	events.BasketDeleted,
	events.MemberAdded,
	events.MemberRemoved,
	events.BasketRecomputed,
	events.AccountUpdated,
	events.RatesSynced,
	events.SnapshotsRecorded,
	events.ErrorOccurred,
}

// EventsStreamHandler streams system events to clients over Server-Sent
// Events (SSE).
type EventsStreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE). The optional
// "types" query parameter is a comma-separated list of event types to
// forward; everything in streamedEventTypes is forwarded by default.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	subscribed := streamedEventTypes
	if typesFilter := r.URL.Query().Get("types"); typesFilter != "" {
		subscribed = nil
		for _, t := range strings.Split(typesFilter, ",") {
			subscribed = append(subscribed, events.EventType(strings.TrimSpace(t)))
		}
	}

	h.log.Info().Int("types", len(subscribed)).Msg("Client connected to event stream")

	// Buffered so a slow client drops events instead of blocking emitters.
	eventChan := make(chan *events.Event, 100)

	// The bus has no unsubscribe; the closed flag turns this connection's
	// handler into a no-op once the client goes away.
	var closed atomic.Bool
	handler := func(event *events.Event) {
		if closed.Load() {
			return
		}
		select {
		case eventChan <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("Event channel full, dropping event")
		}
	}
	for _, eventType := range subscribed {
		h.eventBus.Subscribe(eventType, handler)
	}

	fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
		"type": "connected",
	}))
	flusher.Flush()

	done := r.Context().Done()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			closed.Store(true)
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			}))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
				"type": "heartbeat",
			}))
			flusher.Flush()
		}
	}
}

// encode marshals a payload for an SSE data line.
func (h *EventsStreamHandler) encode(payload map[string]interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode SSE payload")
		return `{"type":"error"}`
	}
	return string(data)
}
