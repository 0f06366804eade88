package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/smallnest/dialoggraph/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkpoint(run string, version int) *store.Checkpoint {
	return &store.Checkpoint{
		ID:        fmt.Sprintf("%s-%d", run, version),
		RunID:     run,
		NodeName:  fmt.Sprintf("stage-%d", version),
		State:     version,
		Metadata:  map[string]any{"iteration": version},
		Timestamp: time.Now(),
		Version:   version,
	}
}

func TestMemoryCheckpointStore_SaveLoad(t *testing.T) {
	ms := NewMemoryCheckpointStore()
	ctx := context.Background()

	cp := checkpoint("run-a", 1)
	require.NoError(t, ms.Save(ctx, cp))

	loaded, err := ms.Load(ctx, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, cp, loaded)

	// Stored metadata is not shared with the caller.
	loaded.Metadata["iteration"] = 99
	again, _ := ms.Load(ctx, cp.ID)
	assert.Equal(t, 1, again.Metadata["iteration"])

	_, err = ms.Load(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)

	assert.Error(t, ms.Save(ctx, &store.Checkpoint{}))
}

func TestMemoryCheckpointStore_ListAndLatest(t *testing.T) {
	ms := NewMemoryCheckpointStore()
	ctx := context.Background()

	for _, v := range []int{3, 1, 2} {
		require.NoError(t, ms.Save(ctx, checkpoint("run-a", v)))
	}
	require.NoError(t, ms.Save(ctx, checkpoint("run-b", 1)))

	list, err := ms.List(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{list[0].Version, list[1].Version, list[2].Version})

	latest, err := ms.Latest(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, "stage-3", latest.NodeName)

	_, err = ms.Latest(ctx, "run-z")
	assert.ErrorIs(t, err, store.ErrCheckpointNotFound)
}

func TestMemoryCheckpointStore_DeleteAndClear(t *testing.T) {
	ms := NewMemoryCheckpointStore()
	ctx := context.Background()

	require.NoError(t, ms.Save(ctx, checkpoint("run-a", 1)))
	require.NoError(t, ms.Save(ctx, checkpoint("run-a", 2)))
	require.NoError(t, ms.Save(ctx, checkpoint("run-b", 1)))

	require.NoError(t, ms.Delete(ctx, "run-a-1"))
	list, _ := ms.List(ctx, "run-a")
	assert.Len(t, list, 1)

	require.NoError(t, ms.Clear(ctx, "run-a"))
	list, _ = ms.List(ctx, "run-a")
	assert.Empty(t, list)

	list, _ = ms.List(ctx, "run-b")
	assert.Len(t, list, 1)
}

func TestMemoryCheckpointStore_MaxPerRun(t *testing.T) {
	ms := NewMemoryCheckpointStore()
	ms.MaxPerRun = 2
	ctx := context.Background()

	for v := 1; v <= 4; v++ {
		require.NoError(t, ms.Save(ctx, checkpoint("run-a", v)))
	}
	list, err := ms.List(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[0].Version)
	assert.Equal(t, 4, list[1].Version)
}
