package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborio/agentcore/internal/event"
)

func decodeSSELine(t *testing.T, raw string) map[string]any {
	t.Helper()
	require.True(t, strings.HasPrefix(raw, "data: "), "line %q", raw)
	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(raw, "data: ")), &fields))
	return fields
}

func TestWriteEventFlattensPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := newSSEWriter(rec)
	require.NoError(t, err)

	err = sse.writeEvent(event.StreamText, map[string]any{
		"sessionId": "s1",
		"messageId": "m1",
		"content":   "Hello",
		"delta":     "Hello",
	})
	require.NoError(t, err)

	body := rec.Body.String()
	require.True(t, strings.HasSuffix(body, "\n\n"))

	fields := decodeSSELine(t, strings.TrimSuffix(body, "\n\n"))
	assert.Equal(t, "stream.text", fields["type"])
	assert.Equal(t, "s1", fields["sessionId"])
	assert.Equal(t, "Hello", fields["delta"])
}

func TestWriteEventStructPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := newSSEWriter(rec)
	require.NoError(t, err)

	err = sse.writeEvent(event.SessionDiff, event.SessionDiffData{SessionID: "s9"})
	require.NoError(t, err)

	fields := decodeSSELine(t, strings.TrimSuffix(rec.Body.String(), "\n\n"))
	assert.Equal(t, "session.diff", fields["type"])
	assert.Equal(t, "s9", fields["sessionID"])
}

func TestWriteHeartbeat(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := newSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, sse.writeHeartbeat())

	fields := decodeSSELine(t, strings.TrimSuffix(rec.Body.String(), "\n\n"))
	assert.Equal(t, "server.heartbeat", fields["type"])
	assert.Contains(t, fields, "timestamp")
}

func TestEventsEndpointEmitsConnected(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/events?sessionId=s1", nil)
	ctx, cancel := contextWithQuickCancel(req)
	defer cancel()
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.NotEmpty(t, lines)
	fields := decodeSSELine(t, lines[0])
	assert.Equal(t, "server.connected", fields["type"])
	assert.Equal(t, "s1", fields["sessionId"])
	assert.Contains(t, fields, "timestamp")
}

// contextWithQuickCancel returns a context that cancels shortly after the
// handler starts, so the SSE loop exits and the recorder can be inspected.
func contextWithQuickCancel(req *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(req.Context(), 50*time.Millisecond)
}
