package store

import (
	"context"
	"errors"
	"time"
)

// ErrCheckpointNotFound is returned when no checkpoint matches the requested id or run.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint represents a saved state at a specific point in execution
type Checkpoint struct {
	ID string `json:"id"`
	// RunID groups the checkpoints of one workflow run.
	RunID string `json:"run_id"`
	// NodeName is the stage that had just completed.
	NodeName  string         `json:"node_name"`
	State     any            `json:"state"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Version   int            `json:"version"`
}

// CheckpointStore defines the interface for checkpoint persistence
type CheckpointStore interface {
	// Save stores a checkpoint, replacing any checkpoint with the same ID
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints for a run, oldest version first
	List(ctx context.Context, runID string) ([]*Checkpoint, error)

	// Latest returns the checkpoint with the highest version for a run
	Latest(ctx context.Context, runID string) (*Checkpoint, error)

	// Delete removes a checkpoint
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints for a run
	Clear(ctx context.Context, runID string) error
}
