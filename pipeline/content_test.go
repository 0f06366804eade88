package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/llm"
	"github.com/smallnest/dialoggraph/log"
	"github.com/smallnest/dialoggraph/traverse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGraph(t *testing.T, payload string) *dialog.Graph {
	t.Helper()
	g, err := BuildGraph(object(payload))
	require.NoError(t, err)
	return g
}

func TestContentFiller_LinearOrderAndHistory(t *testing.T) {
	g := mustGraph(t, linearStructure)
	before := g.Clone()

	gen := newScripted()
	var progress []NodeProgress
	f := NewContentFiller(gen, &log.NoOpLogger{})
	f.OnNodeFilled = func(p NodeProgress) { progress = append(progress, p) }

	out, err := f.Fill(context.Background(), g, sage, task)
	require.NoError(t, err)
	assert.Same(t, g, out)

	require.Len(t, progress, 3)
	assert.Equal(t, "root", progress[0].NodeID)
	assert.Equal(t, "mid", progress[1].NodeID)
	assert.Equal(t, "leaf", progress[2].NodeID)
	assert.Equal(t, []string{}, progress[0].History)
	assert.Equal(t, []string{"root"}, progress[1].History)
	assert.Equal(t, []string{"root", "mid"}, progress[2].History)
	assert.Equal(t, 3, progress[2].Filled)
	assert.Equal(t, 3, progress[2].Total)

	// mid's prompt carries root's dialogue as history and leaf as the only route.
	assert.Contains(t, gen.prompts["mid"], `"npc_text": "Line for root"`)
	assert.Contains(t, gen.prompts["mid"], `Allowed "next_node_id" values: leaf.`)
	assert.Contains(t, gen.prompts["root"], "This is the start of the conversation.")
	assert.Contains(t, gen.prompts["leaf"], "This is the end of the conversation.")

	for _, id := range g.IDs() {
		was, _ := before.Node(id)
		now, _ := g.Node(id)
		assert.True(t, now.Filled(), id)
		assert.Equal(t, "Line for "+id, now.NPCText)
		assert.Equal(t, was.ID, now.ID)
		assert.Equal(t, was.ParentIDs, now.ParentIDs)
		assert.Equal(t, was.ChildIDs, now.ChildIDs)
		assert.Equal(t, was.Metadata, now.Metadata)
		assert.Equal(t, was.NarrativeSummary, now.NarrativeSummary)
		assert.Equal(t, was.PlayerGoalHint, now.PlayerGoalHint)
	}

	leaf, _ := g.Node("leaf")
	assert.NotNil(t, leaf.Choices)
	assert.Empty(t, leaf.Choices)
}

func TestContentFiller_ChoiceRouting(t *testing.T) {
	g := mustGraph(t, linearStructure)
	gen := newScripted()
	gen.content = func(nodeID string, allowed []string) (map[string]any, error) {
		if nodeID == "mid" {
			return object(`{"npc_text": "Off you go.", "choices": [{"text": "Teleport", "next_node_id": "root"}]}`), nil
		}
		return defaultContent(nodeID, allowed), nil
	}

	_, err := NewContentFiller(gen, &log.NoOpLogger{}).Fill(context.Background(), g, sage, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChoiceRouting)

	var rerr *ChoiceRoutingError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "mid", rerr.NodeID)
	assert.Equal(t, "root", rerr.Target)
	assert.Equal(t, []string{"leaf"}, rerr.Allowed)

	mid, _ := g.Node("mid")
	assert.False(t, mid.Filled())
	leaf, _ := g.Node("leaf")
	assert.False(t, leaf.Filled())
	assert.Equal(t, 1, g.FilledCount())
}

func TestContentFiller_MalformedContent(t *testing.T) {
	g := mustGraph(t, linearStructure)
	gen := newScripted()
	gen.content = func(nodeID string, allowed []string) (map[string]any, error) {
		return object(`{"npc_text": "Hi", "choices": "none"}`), nil
	}

	_, err := NewContentFiller(gen, &log.NoOpLogger{}).Fill(context.Background(), g, sage, task)
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
}

func TestContentFiller_MaxHistory(t *testing.T) {
	g := mustGraph(t, linearStructure)
	var leafHistory []string
	f := NewContentFiller(newScripted(), &log.NoOpLogger{})
	f.MaxHistory = 1
	f.OnNodeFilled = func(p NodeProgress) {
		if p.NodeID == "leaf" {
			leafHistory = p.History
		}
	}
	_, err := f.Fill(context.Background(), g, sage, task)
	require.NoError(t, err)
	assert.Equal(t, []string{"mid"}, leafHistory)
}

func TestContentFiller_LoopGraph(t *testing.T) {
	g := mustGraph(t, loopStructure)
	var order []string
	f := NewContentFiller(newScripted(), &log.NoOpLogger{})
	f.OnNodeFilled = func(p NodeProgress) { order = append(order, p.NodeID) }

	_, err := f.Fill(context.Background(), g, sage, task)
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "a", "b", "c", "e", "d", "f"}, order)
	assert.Equal(t, g.Len(), g.FilledCount())

	d, _ := g.Node("d")
	require.Len(t, d.Choices, 1)
	assert.Equal(t, "a", d.Choices[0].NextNodeID)
}

func TestContentFiller_ConcurrentMatchesSequential(t *testing.T) {
	seqGraph := mustGraph(t, loopStructure)
	_, err := NewContentFiller(newScripted(), &log.NoOpLogger{}).Fill(context.Background(), seqGraph, sage, task)
	require.NoError(t, err)

	conGraph := mustGraph(t, loopStructure)
	var mu sync.Mutex
	var finished []string
	f := NewContentFiller(newScripted(), &log.NoOpLogger{})
	f.Concurrency = 3
	f.OnNodeFilled = func(p NodeProgress) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, p.NodeID)
	}
	_, err = f.Fill(context.Background(), conGraph, sage, task)
	require.NoError(t, err)

	seqJSON, err := json.Marshal(seqGraph)
	require.NoError(t, err)
	conJSON, err := json.Marshal(conGraph)
	require.NoError(t, err)
	assert.JSONEq(t, string(seqJSON), string(conJSON))

	// Every parent that precedes a node in BFS order finished before the node.
	require.Len(t, finished, conGraph.Len())
	bfs := traverse.Order(conGraph)
	for _, id := range finished {
		parents, _ := conGraph.Parents(id)
		for _, p := range parents {
			if slices.Index(bfs, p) < slices.Index(bfs, id) {
				assert.Less(t, slices.Index(finished, p), slices.Index(finished, id), "%s before %s", p, id)
			}
		}
	}
}

// backEdgeStructure has a loop c -> a where c sits on a sibling branch, so nothing orders
// a's fill against c's.
const backEdgeStructure = `{
  "root_node_id": "root",
  "nodes": {
    "root": {"child_node_ids": ["a", "b"]},
    "a": {"parent_node_ids": ["root", "c"]},
    "b": {"parent_node_ids": ["root"], "child_node_ids": ["c"], "branch_type": "exploration"},
    "c": {"parent_node_ids": ["b"], "child_node_ids": ["a"], "branch_type": "loop"}
  }
}`

func TestContentFiller_ContextHidesLaterNodes(t *testing.T) {
	g := mustGraph(t, backEdgeStructure)
	require.NoError(t, g.SetContent("b", "Line for b", []dialog.Choice{{Text: "on", NextNodeID: "c"}}))
	require.NoError(t, g.SetContent("c", "Line for c", []dialog.Choice{{Text: "back", NextNodeID: "a"}}))

	run := &fillRun{f: NewContentFiller(newScripted(), &log.NoOpLogger{}), g: g, pos: map[string]int{}}
	for i, id := range FillOrder(g) {
		run.pos[id] = i
	}

	nc, history, err := run.nodeContext("a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root", "c", "b"}, history)
	for _, n := range nc.History {
		assert.False(t, n.Filled(), n.ID)
	}

	nc, _, err = run.nodeContext("root")
	require.NoError(t, err)
	require.Len(t, nc.Lookahead, 2)
	for _, n := range nc.Lookahead {
		assert.False(t, n.Filled(), n.ID)
	}

	c, _ := g.Node("c")
	assert.Equal(t, "Line for c", c.NPCText)
}

func TestContentFiller_ConcurrentPromptsMatchSequential(t *testing.T) {
	seq := newScripted()
	_, err := NewContentFiller(seq, &log.NoOpLogger{}).Fill(context.Background(), mustGraph(t, backEdgeStructure), sage, task)
	require.NoError(t, err)

	for range 20 {
		con := newScripted()
		f := NewContentFiller(con, &log.NoOpLogger{})
		f.Concurrency = 4
		_, err := f.Fill(context.Background(), mustGraph(t, backEdgeStructure), sage, task)
		require.NoError(t, err)
		assert.Equal(t, seq.prompts, con.prompts)
	}
	assert.NotContains(t, seq.prompts["a"], "Line for c")
}

func TestContentFiller_ConcurrentError(t *testing.T) {
	g := mustGraph(t, loopStructure)
	boom := errors.New("model down")
	gen := newScripted()
	gen.content = func(nodeID string, allowed []string) (map[string]any, error) {
		if nodeID == "c" {
			return nil, boom
		}
		return defaultContent(nodeID, allowed), nil
	}
	f := NewContentFiller(gen, &log.NoOpLogger{})
	f.Concurrency = 4

	_, err := f.Fill(context.Background(), g, sage, task)
	assert.ErrorIs(t, err, boom)
	for _, id := range []string{"d", "f"} {
		n, _ := g.Node(id)
		assert.False(t, n.Filled(), id)
	}
}

func TestContentFiller_Cancelled(t *testing.T) {
	g := mustGraph(t, linearStructure)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewContentFiller(newScripted(), &log.NoOpLogger{}).Fill(ctx, g, sage, task)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFillOrder_DetachedCycle(t *testing.T) {
	g, err := dialog.NewGraph("root", []dialog.Node{
		{ID: "root"},
		{ID: "x", ParentIDs: []string{"y"}, ChildIDs: []string{"y"}},
		{ID: "y", ParentIDs: []string{"x"}, ChildIDs: []string{"x"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "x", "y"}, FillOrder(g))
}
