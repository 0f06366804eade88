package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/smallnest/dialoggraph/store"
)

// MemoryCheckpointStore keeps checkpoints in a map guarded by a RWMutex.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint
	// MaxPerRun keeps only the newest N checkpoints of each run. Zero keeps all.
	MaxPerRun int
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates an empty store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
	}
}

// Save stores a shallow copy of checkpoint. Callers are expected to deep-copy State.
func (m *MemoryCheckpointStore) Save(_ context.Context, checkpoint *store.Checkpoint) error {
	if checkpoint == nil || checkpoint.ID == "" {
		return fmt.Errorf("checkpoint id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[checkpoint.ID] = copyCheckpoint(checkpoint)
	if m.MaxPerRun > 0 {
		runs := m.byRun(checkpoint.RunID)
		for len(runs) > m.MaxPerRun {
			delete(m.checkpoints, runs[0].ID)
			runs = runs[1:]
		}
	}
	return nil
}

func (m *MemoryCheckpointStore) Load(_ context.Context, checkpointID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrCheckpointNotFound, checkpointID)
	}
	return copyCheckpoint(cp), nil
}

func (m *MemoryCheckpointStore) List(_ context.Context, runID string) ([]*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := m.byRun(runID)
	out := make([]*store.Checkpoint, len(runs))
	for i, cp := range runs {
		out[i] = copyCheckpoint(cp)
	}
	return out, nil
}

func (m *MemoryCheckpointStore) Latest(ctx context.Context, runID string) (*store.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := m.byRun(runID)
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: run %s", store.ErrCheckpointNotFound, runID)
	}
	return copyCheckpoint(runs[len(runs)-1]), nil
}

func (m *MemoryCheckpointStore) Delete(_ context.Context, checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, checkpointID)
	return nil
}

func (m *MemoryCheckpointStore) Clear(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cp := range m.checkpoints {
		if cp.RunID == runID {
			delete(m.checkpoints, id)
		}
	}
	return nil
}

// byRun returns the run's checkpoints sorted by version, then timestamp. Caller holds the lock.
func (m *MemoryCheckpointStore) byRun(runID string) []*store.Checkpoint {
	var out []*store.Checkpoint
	for _, cp := range m.checkpoints {
		if cp.RunID == runID {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Version != out[j].Version {
			return out[i].Version < out[j].Version
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func copyCheckpoint(cp *store.Checkpoint) *store.Checkpoint {
	c := *cp
	c.Metadata = maps.Clone(cp.Metadata)
	return &c
}
