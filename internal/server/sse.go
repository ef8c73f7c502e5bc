package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/logging"
	"github.com/arborio/agentcore/pkg/errkind"
)

// SSEHeartbeatInterval is how often an idle stream emits server.heartbeat
// so intermediaries don't close the connection.
const SSEHeartbeatInterval = 30 * time.Second

// sseQueueDepth bounds each subscriber's event queue. A full queue marks
// the subscriber dead: events are dropped and the connection torn down
// rather than blocking the publisher.
const sseQueueDepth = 64

// sseWriter frames events as `data: <json>\n\n` lines, with the event type
// and payload fields flattened into one JSON object.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, rc: http.NewResponseController(w)}, nil
}

// writeEvent writes one event with the payload's fields flattened into the
// envelope next to "type".
func (s *sseWriter) writeEvent(eventType event.EventType, payload any) error {
	envelope := map[string]any{"type": string(eventType)}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err == nil {
			for k, v := range fields {
				envelope[k] = v
			}
		} else {
			envelope["data"] = json.RawMessage(raw)
		}
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseWriter) writeHeartbeat() error {
	return s.writeEvent("server.heartbeat", map[string]any{
		"timestamp": time.Now().UnixMilli(),
	})
}

// events serves GET /events?sessionId=... — the SSE plane. Without a
// sessionId the stream is global; with one it delivers only that session's
// events.
func (srv *Server) events(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("sessionID")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Internal, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)

	connected := map[string]any{"timestamp": time.Now().UnixMilli()}
	if sessionID != "" {
		connected["sessionId"] = sessionID
	} else {
		connected["sessionId"] = nil
	}
	if err := sse.writeEvent("server.connected", connected); err != nil {
		return
	}

	// Bounded per-subscriber queue; overflow drops the event with a warning,
	// marks the subscriber dead and closes the stream (unsubscribing it)
	// rather than blocking the bus.
	queue := make(chan event.Event, sseQueueDepth)
	dead := make(chan struct{}, 1)
	deliver := func(e event.Event) {
		select {
		case queue <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Str("sessionID", sessionID).
				Msg("sse event dropped: subscriber queue full")
			select {
			case dead <- struct{}{}:
			default:
			}
		}
	}

	var unsub func()
	if sessionID != "" {
		unsub = srv.bus.SubscribeSession(sessionID, deliver)
	} else {
		unsub = srv.bus.SubscribeAll(deliver)
	}
	defer unsub()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-dead:
			return
		case e := <-queue:
			if err := sse.writeEvent(e.Type, e.Data); err != nil {
				return
			}
		case <-ticker.C:
			if err := sse.writeHeartbeat(); err != nil {
				return
			}
		}
	}
}
