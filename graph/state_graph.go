package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StateGraph is a graph of nodes that transform a state value of type S.
//
// Nodes run one at a time. After a node finishes, its conditional edge (if any) picks the
// next node; otherwise its single static edge does.
//
//	g := graph.NewStateGraph[*State]()
//	g.AddNode("structure", "Generate structure", generateStructure)
//	g.AddNode("content", "Fill nodes", fillContent)
//	g.AddEdge("structure", "content")
//	g.AddEdge("content", graph.END)
//	g.SetEntryPoint("structure")
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding node objects
	nodes map[string]TypedNode[S]

	// edges holds the static connections between nodes
	edges []Edge

	// conditionalEdges derives the "To" node at runtime from the state
	conditionalEdges map[string]func(ctx context.Context, state S) string

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	// retryPolicy defines retry behavior for failed nodes
	retryPolicy *RetryPolicy
}

// NewStateGraph creates an empty graph for state type S.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]TypedNode[S]),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = TypedNode[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
// A conditional edge takes precedence over static edges from the same node.
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetRetryPolicy sets the retry policy for the graph.
func (g *StateGraph[S]) SetRetryPolicy(policy *RetryPolicy) {
	g.retryPolicy = policy
}

// Nodes returns the registered nodes keyed by name.
func (g *StateGraph[S]) Nodes() map[string]TypedNode[S] {
	out := make(map[string]TypedNode[S], len(g.nodes))
	for k, v := range g.nodes {
		out[k] = v
	}
	return out
}

// Compile checks the wiring and returns a runnable graph.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %s", ErrNodeNotFound, g.entryPoint)
	}
	for _, e := range g.edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge from %s", ErrNodeNotFound, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok && e.To != END {
			return nil, fmt.Errorf("%w: edge to %s", ErrNodeNotFound, e.To)
		}
	}
	for from := range g.conditionalEdges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: conditional edge from %s", ErrNodeNotFound, from)
		}
	}

	return &StateRunnable[S]{graph: g}, nil
}

// StateRunnable represents a compiled state graph that can be invoked.
type StateRunnable[S any] struct {
	graph  *StateGraph[S]
	tracer *Tracer
}

// SetTracer sets a tracer for observability.
func (r *StateRunnable[S]) SetTracer(tracer *Tracer) {
	r.tracer = tracer
}

// GetTracer returns the current tracer.
func (r *StateRunnable[S]) GetTracer() *Tracer {
	return r.tracer
}

// Invoke executes the compiled state graph with the given input state.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return r.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the compiled state graph with the given input state and config.
func (r *StateRunnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	state := initialState

	current := r.graph.entryPoint
	maxSteps := defaultMaxSteps
	runID := ""
	if config != nil {
		if config.ResumeFrom != "" {
			current = config.ResumeFrom
		}
		if config.MaxSteps > 0 {
			maxSteps = config.MaxSteps
		}
		runID = config.RunID
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx = WithRunID(ctx, runID)

	var graphSpan *TraceSpan
	if r.tracer != nil {
		graphSpan = r.tracer.StartSpan(ctx, TraceEventGraphStart, "graph")
		ctx = ContextWithSpan(ctx, graphSpan)
	}
	finish := func(s S, err error) (S, error) {
		if graphSpan != nil {
			r.tracer.EndSpan(ctx, graphSpan, s, err)
		}
		return s, err
	}

	for steps := 0; current != END; steps++ {
		if steps >= maxSteps {
			return finish(state, fmt.Errorf("%w: %d", ErrMaxStepsExceeded, maxSteps))
		}
		if err := ctx.Err(); err != nil {
			return finish(state, err)
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return finish(state, fmt.Errorf("%w: %s", ErrNodeNotFound, current))
		}

		next, err := r.runNode(ctx, node, state)
		if err != nil {
			return finish(state, fmt.Errorf("error in node %s: %w", node.Name, err))
		}
		state = next

		to, err := r.nextNode(ctx, current, state)
		if err != nil {
			return finish(state, err)
		}
		if r.tracer != nil {
			r.tracer.TraceEdgeTraversal(ctx, current, to)
		}
		current = to
	}

	return finish(state, nil)
}

// runNode executes a node, retrying according to the retry policy.
func (r *StateRunnable[S]) runNode(ctx context.Context, node TypedNode[S], state S) (S, error) {
	policy := r.graph.retryPolicy
	attempts := 1
	if policy != nil {
		attempts = policy.MaxRetries + 1
	}

	var zero S
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		var span *TraceSpan
		nodeCtx := ctx
		if r.tracer != nil {
			span = r.tracer.StartSpan(ctx, TraceEventNodeStart, node.Name)
			span.Metadata["attempt"] = attempt + 1
			nodeCtx = ContextWithSpan(ctx, span)
		}

		result, err := node.Function(nodeCtx, state)
		if span != nil {
			r.tracer.EndSpan(nodeCtx, span, result, err)
		}
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts-1 || !policy.Retryable(err) {
			break
		}
		if delay := policy.Delay(attempt); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}
	return zero, lastErr
}

// nextNode resolves the node that follows from after a successful step.
func (r *StateRunnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	if cond, ok := r.graph.conditionalEdges[from]; ok {
		to := cond(ctx, state)
		if to == "" {
			return "", fmt.Errorf("conditional edge returned empty next node from %s", from)
		}
		if _, ok := r.graph.nodes[to]; !ok && to != END {
			return "", fmt.Errorf("%w: conditional edge from %s to %s", ErrNodeNotFound, from, to)
		}
		return to, nil
	}
	for _, e := range r.graph.edges {
		if e.From == from {
			return e.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}
