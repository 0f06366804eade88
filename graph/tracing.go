package graph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TraceEvent is the kind of a span.
type TraceEvent string

const (
	TraceEventGraphStart TraceEvent = "graph_start"
	// TraceEventGraphEnd is reported once per run, with Error set when the run failed.
	TraceEventGraphEnd TraceEvent = "graph_end"

	TraceEventNodeStart TraceEvent = "node_start"
	// TraceEventNodeEnd closes one successful attempt of a node.
	TraceEventNodeEnd TraceEvent = "node_end"
	// TraceEventNodeError closes one failed attempt; a retried node reports one per failure.
	TraceEventNodeError TraceEvent = "node_error"

	// TraceEventEdgeTraversal is an instant span recording the routing decision after a node.
	TraceEventEdgeTraversal TraceEvent = "edge_traversal"
)

// TraceSpan is one timed unit of a run: the whole run, one node attempt, or an edge.
type TraceSpan struct {
	ID       string
	ParentID string
	RunID    string
	Event    TraceEvent

	NodeName string
	FromNode string
	ToNode   string

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// State is the value the node returned, or the final state for a graph span.
	State any
	Error error

	// Metadata is filled by the runner ("attempt") and by node functions through
	// SpanFromContext. Hooks read it after the span ends.
	Metadata map[string]any
}

// TraceHook receives spans as they start and end. Hooks run synchronously on the
// executing goroutine.
type TraceHook interface {
	OnEvent(ctx context.Context, span *TraceSpan)
}

// TraceHookFunc adapts a function to TraceHook.
type TraceHookFunc func(ctx context.Context, span *TraceSpan)

func (f TraceHookFunc) OnEvent(ctx context.Context, span *TraceSpan) {
	f(ctx, span)
}

// Tracer manages trace collection and hooks. It is safe for concurrent use.
type Tracer struct {
	mu    sync.Mutex
	hooks []TraceHook
	spans map[string]*TraceSpan
}

// NewTracer returns an empty tracer.
func NewTracer() *Tracer {
	return &Tracer{
		spans: make(map[string]*TraceSpan),
	}
}

// AddHook registers hook for every later span.
func (t *Tracer) AddHook(hook TraceHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks = append(t.hooks, hook)
}

// StartSpan creates a new trace span and notifies the hooks.
func (t *Tracer) StartSpan(ctx context.Context, event TraceEvent, nodeName string) *TraceSpan {
	span := &TraceSpan{
		ID:        uuid.NewString(),
		RunID:     RunIDFromContext(ctx),
		Event:     event,
		NodeName:  nodeName,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.ParentID = parent.ID
	}

	t.record(ctx, span)
	return span
}

// EndSpan stamps the timing and outcome on span, turns its start event into the matching
// end event, and notifies the hooks again.
func (t *Tracer) EndSpan(ctx context.Context, span *TraceSpan, state any, err error) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.State = state
	span.Error = err

	switch {
	case span.Event == TraceEventNodeStart && err != nil:
		span.Event = TraceEventNodeError
	case span.Event == TraceEventNodeStart:
		span.Event = TraceEventNodeEnd
	case span.Event == TraceEventGraphStart:
		span.Event = TraceEventGraphEnd
	}

	t.notify(ctx, span)
}

// TraceEdgeTraversal records the routing decision from one node to the next.
func (t *Tracer) TraceEdgeTraversal(ctx context.Context, fromNode, toNode string) {
	now := time.Now()
	span := &TraceSpan{
		ID:        uuid.NewString(),
		RunID:     RunIDFromContext(ctx),
		Event:     TraceEventEdgeTraversal,
		FromNode:  fromNode,
		ToNode:    toNode,
		StartTime: now,
		EndTime:   now,
		Metadata:  make(map[string]any),
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.ParentID = parent.ID
	}

	t.record(ctx, span)
}

// GetSpans returns a copy of the collected spans keyed by id.
func (t *Tracer) GetSpans() map[string]*TraceSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]*TraceSpan, len(t.spans))
	for k, v := range t.spans {
		out[k] = v
	}
	return out
}

// Clear forgets the collected spans. Hooks stay registered.
func (t *Tracer) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = make(map[string]*TraceSpan)
}

func (t *Tracer) record(ctx context.Context, span *TraceSpan) {
	t.mu.Lock()
	t.spans[span.ID] = span
	t.mu.Unlock()
	t.notify(ctx, span)
}

func (t *Tracer) notify(ctx context.Context, span *TraceSpan) {
	t.mu.Lock()
	hooks := append([]TraceHook(nil), t.hooks...)
	t.mu.Unlock()
	for _, hook := range hooks {
		hook.OnEvent(ctx, span)
	}
}

type contextKey string

const (
	spanContextKey  contextKey = "dialoggraph_span"
	runIDContextKey contextKey = "dialoggraph_run_id"
)

// ContextWithSpan makes span the parent of spans started under ctx.
func ContextWithSpan(ctx context.Context, span *TraceSpan) context.Context {
	return context.WithValue(ctx, spanContextKey, span)
}

// SpanFromContext returns the span of the node currently running under ctx, or nil.
func SpanFromContext(ctx context.Context) *TraceSpan {
	if span, ok := ctx.Value(spanContextKey).(*TraceSpan); ok {
		return span
	}
	return nil
}

// WithRunID stores the run id in ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey, runID)
}

// RunIDFromContext returns the run id stored by InvokeWithConfig, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDContextKey).(string)
	return id
}
