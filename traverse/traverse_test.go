package traverse

import (
	"slices"
	"testing"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond with a loop back-edge:
//
//	root -> a, b
//	a -> c
//	b -> c
//	c -> d
//	d -> a (loop)
func diamondWithLoop(t *testing.T) *dialog.Graph {
	t.Helper()
	nodes := []dialog.Node{
		{ID: "root", ChildIDs: []string{"a", "b"}},
		{ID: "a", ParentIDs: []string{"root", "d"}, ChildIDs: []string{"c"}},
		{ID: "b", ParentIDs: []string{"root"}, ChildIDs: []string{"c"}},
		{ID: "c", ParentIDs: []string{"a", "b"}, ChildIDs: []string{"d"}},
		{ID: "d", ParentIDs: []string{"c"}, ChildIDs: []string{"a"},
			Metadata: dialog.NodeMetadata{BranchType: dialog.BranchLoop}},
	}
	g, err := dialog.NewGraph("root", nodes, nil)
	require.NoError(t, err)
	return g
}

func linearGraph(t *testing.T) *dialog.Graph {
	t.Helper()
	g, err := dialog.NewGraph("root", []dialog.Node{
		{ID: "root", ChildIDs: []string{"mid"}},
		{ID: "mid", ParentIDs: []string{"root"}, ChildIDs: []string{"leaf"}},
		{ID: "leaf", ParentIDs: []string{"mid"}},
	}, nil)
	require.NoError(t, err)
	return g
}

func TestAncestors_Linear(t *testing.T) {
	g := linearGraph(t)

	got, err := Ancestors(g, "leaf")
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "mid"}, got)

	got, err = Ancestors(g, "mid")
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, got)
}

func TestAncestors_RootIsEmpty(t *testing.T) {
	g := linearGraph(t)
	got, err := Ancestors(g, "root")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAncestors_NotFound(t *testing.T) {
	g := linearGraph(t)
	_, err := Ancestors(g, "ghost")
	assert.ErrorIs(t, err, dialog.ErrNotFound)
}

func TestAncestors_LoopYieldsEachOnce(t *testing.T) {
	g := diamondWithLoop(t)

	got, err := Ancestors(g, "c")
	require.NoError(t, err)
	// BFS discovery from c: a, b, root, d; reversed.
	assert.Equal(t, []string{"d", "root", "b", "a"}, got)
	assert.NotContains(t, got, "c")

	seen := make(map[string]bool)
	for _, id := range got {
		assert.False(t, seen[id], "duplicate ancestor %s", id)
		seen[id] = true
	}
}

func TestAncestors_MaxHops(t *testing.T) {
	g := linearGraph(t)
	got, err := Ancestors(g, "leaf", WithMaxHops(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"mid"}, got)
}

func TestAncestorNodes(t *testing.T) {
	g := linearGraph(t)
	nodes, err := AncestorNodes(g, "leaf")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "root", nodes[0].ID)
	assert.Equal(t, "mid", nodes[1].ID)
}

func TestWalk_VisitsEachNodeOnce(t *testing.T) {
	g := diamondWithLoop(t)
	seq, err := Walk(g)
	require.NoError(t, err)

	got := slices.Collect(seq)
	assert.Equal(t, []string{"root", "a", "b", "c", "d"}, got)
}

func TestWalk_MaxDepthAndExcludeStart(t *testing.T) {
	g := diamondWithLoop(t)

	seq, err := Walk(g, WithStart("root"), WithMaxDepth(1), WithExcludeStart())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, slices.Collect(seq))

	seq, err = Walk(g, WithStart("c"), WithMaxDepth(0))
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, slices.Collect(seq))

	// From d the loop leads back to a, then c, which is the end of the reachable set.
	seq, err = Walk(g, WithStart("d"))
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "c"}, slices.Collect(seq))
}

func TestWalk_UnknownStart(t *testing.T) {
	g := linearGraph(t)
	_, err := Walk(g, WithStart("ghost"))
	assert.ErrorIs(t, err, dialog.ErrNotFound)
}

func TestWalk_EarlyStop(t *testing.T) {
	g := diamondWithLoop(t)
	seq, err := Walk(g)
	require.NoError(t, err)

	var got []string
	for id := range seq {
		got = append(got, id)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"root", "a"}, got)
}

func TestWalkNodes(t *testing.T) {
	g := linearGraph(t)
	seq, err := WalkNodes(g, WithStart("mid"), WithMaxDepth(1), WithExcludeStart())
	require.NoError(t, err)

	var ids []string
	for n := range seq {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"leaf"}, ids)
}

func TestOrderAndDepths(t *testing.T) {
	g := diamondWithLoop(t)
	assert.Equal(t, []string{"root", "a", "b", "c", "d"}, Order(g))
	assert.Equal(t, map[string]int{"root": 0, "a": 1, "b": 1, "c": 2, "d": 3}, Depths(g))
}
