package graph

import (
	"context"
	"errors"
)

// END is a special constant used to represent the end node in the graph.
const END = "END"

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrNodeNotFound is returned when a node is not found in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a node.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for node")

	// ErrMaxStepsExceeded is returned when a run executes more nodes than Config.MaxSteps allows.
	ErrMaxStepsExceeded = errors.New("max steps exceeded")
)

// TypedNode represents a typed node in the graph.
type TypedNode[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// Edge represents an edge in the graph.
type Edge struct {
	// From is the name of the node from which the edge originates.
	From string

	// To is the name of the node to which the edge points.
	To string
}

// Config holds per-invocation settings.
type Config struct {
	// RunID identifies the run in trace spans. Generated when empty.
	RunID string

	// ResumeFrom starts the run at the named node instead of the entry point.
	ResumeFrom string

	// MaxSteps bounds the number of node executions. Zero means 25.
	MaxSteps int
}

const defaultMaxSteps = 25
