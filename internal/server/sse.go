package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/evmts/smithers/internal/event"
)

// sseHeartbeatInterval keeps intermediary proxies from closing an
// otherwise-idle connection.
const sseHeartbeatInterval = 30 * time.Second

// statePollInterval is how often the handler checks the worker's
// state_changed flag between heartbeats.
const statePollInterval = 250 * time.Millisecond

// sseWriter wraps http.ResponseWriter for Server-Sent Events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// stateChangedEvents handles GET /event: it streams a "state_changed"
// event each time the worker reports observable state changed since the
// last poll, plus every session/message event published on internal/event's
// bus for the lifetime of the connection. "state_changed" intentionally
// carries no payload beyond the signal itself — clients still reload from
// GET /session/{id}/message, the same "store is ground truth" contract
// internal/headless's Printer follows locally; the bus events let a client
// that wants finer-grained updates (which session changed, which message)
// skip the reload when it already has enough in the event payload.
func (s *Server) stateChangedEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sw, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	busEvents := make(chan event.Event, 32)
	unsubscribe := event.SubscribeAll(func(ev event.Event) {
		select {
		case busEvents <- ev:
		default:
			// Slow reader: drop rather than block the publisher.
		}
	})
	defer unsubscribe()

	ctx := r.Context()
	ticker := time.NewTicker(statePollInterval)
	defer ticker.Stop()
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			sw.writeHeartbeat()
		case ev := <-busEvents:
			if err := sw.writeEvent(string(ev.Type), ev.Data); err != nil {
				return
			}
		case <-ticker.C:
			if s.wrk.ConsumeStateChanged() {
				if err := sw.writeEvent("state_changed", map[string]bool{"changed": true}); err != nil {
					return
				}
			}
		}
	}
}
