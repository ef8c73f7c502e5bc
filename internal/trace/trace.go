// Package trace records execution spans for agent loop turns and tool
// invocations. Spans form trees: a trace is every span sharing a trace id,
// rooted at the spans with no parent. Storage is in-memory; the on-disk
// trace database is an external collaborator that consumes Snapshot.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Span kinds.
const (
	KindInternal = "internal"
	KindTool     = "tool"
	KindLLM      = "llm"
)

// Span statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusError   = "error"
)

// Span is one node of an execution trace.
type Span struct {
	TraceID      string         `json:"traceID"`
	SpanID       string         `json:"spanID"`
	ParentSpanID string         `json:"parentSpanID,omitempty"`
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Status       string         `json:"status"`
	StartTime    int64          `json:"startTime"` // unix millis
	EndTime      *int64         `json:"endTime,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	Result       any            `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
}

type spanKey struct{}

// Recorder collects spans in memory, bounded per trace.
type Recorder struct {
	mu       sync.RWMutex
	spans    map[string][]*Span // trace id -> spans in start order
	maxSpans int
}

// NewRecorder creates a recorder keeping at most maxSpans spans per trace
// (0 means 1000).
func NewRecorder(maxSpans int) *Recorder {
	if maxSpans <= 0 {
		maxSpans = 1000
	}
	return &Recorder{
		spans:    make(map[string][]*Span),
		maxSpans: maxSpans,
	}
}

// Start opens a span under ctx's current span when one exists, or as a new
// trace root otherwise. The returned context carries the span for child
// linking; End finalizes it.
func (r *Recorder) Start(ctx context.Context, name, kind string) (context.Context, *Span) {
	span := &Span{
		SpanID:    ulid.Make().String(),
		Name:      name,
		Kind:      kind,
		Status:    StatusRunning,
		StartTime: time.Now().UnixMilli(),
	}

	if parent, ok := ctx.Value(spanKey{}).(*Span); ok && parent != nil {
		span.TraceID = parent.TraceID
		span.ParentSpanID = parent.SpanID
	} else {
		span.TraceID = ulid.Make().String()
	}

	r.mu.Lock()
	existing := r.spans[span.TraceID]
	if len(existing) < r.maxSpans {
		r.spans[span.TraceID] = append(existing, span)
	}
	r.mu.Unlock()

	return context.WithValue(ctx, spanKey{}, span), span
}

// End finalizes span with the outcome of the operation. A nil err marks the
// span ok and stores result; otherwise the span is marked error. End on an
// already-ended span is a no-op.
func (r *Recorder) End(span *Span, result any, err error) {
	if span == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if span.EndTime != nil {
		return
	}
	now := time.Now().UnixMilli()
	span.EndTime = &now
	if err != nil {
		span.Status = StatusError
		span.Error = err.Error()
	} else {
		span.Status = StatusOK
		span.Result = result
	}
}

// SetAttribute records a key/value on span.
func (r *Recorder) SetAttribute(span *Span, key string, value any) {
	if span == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if span.Attributes == nil {
		span.Attributes = make(map[string]any)
	}
	span.Attributes[key] = value
}

// Trace returns every span of the given trace in start order.
func (r *Recorder) Trace(traceID string) []*Span {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Span(nil), r.spans[traceID]...)
}

// Roots returns the spans of traceID that have no parent within the trace.
func (r *Recorder) Roots(traceID string) []*Span {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make(map[string]bool)
	for _, s := range r.spans[traceID] {
		ids[s.SpanID] = true
	}

	var roots []*Span
	for _, s := range r.spans[traceID] {
		if s.ParentSpanID == "" || !ids[s.ParentSpanID] {
			roots = append(roots, s)
		}
	}
	return roots
}

// Children returns the direct children of spanID within traceID, in start
// order.
func (r *Recorder) Children(traceID, spanID string) []*Span {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Span
	for _, s := range r.spans[traceID] {
		if s.ParentSpanID == spanID {
			out = append(out, s)
		}
	}
	return out
}

// Drop discards every span of traceID.
func (r *Recorder) Drop(traceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.spans, traceID)
}

// Snapshot returns all trace ids currently held.
func (r *Recorder) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.spans))
	for id := range r.spans {
		ids = append(ids, id)
	}
	return ids
}

// FromContext returns the current span carried by ctx, if any.
func FromContext(ctx context.Context) (*Span, bool) {
	s, ok := ctx.Value(spanKey{}).(*Span)
	return s, ok && s != nil
}
