package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/llm"
	"github.com/smallnest/dialoggraph/log"
	"github.com/smallnest/dialoggraph/prompt"
	"github.com/smallnest/dialoggraph/traverse"
)

// NodeProgress is reported after each node is filled.
type NodeProgress struct {
	NodeID string
	// History is the ancestor chain that went into the node's prompt, most distant first.
	History []string
	Filled  int
	Total   int
}

// ContentFiller writes NPC dialogue and player choices into every node of a graph.
type ContentFiller struct {
	Generator llm.Generator
	Logger    log.Logger
	// SystemPrompt overrides prompt.SystemContent.
	SystemPrompt string
	// MaxHistory bounds how many parent hops of history each prompt carries. Zero means all.
	MaxHistory int
	// Concurrency is the number of nodes generated at once. Values below 2 fill sequentially.
	Concurrency int
	// OnNodeFilled, when set, is called after each node is written. Calls are serialized.
	OnNodeFilled func(NodeProgress)
}

// NewContentFiller returns a sequential filler.
func NewContentFiller(gen llm.Generator, logger log.Logger) *ContentFiller {
	return &ContentFiller{Generator: gen, Logger: logger}
}

type choicePayload struct {
	Text       string                `json:"text"`
	NextNodeID string                `json:"next_node_id"`
	Effects    []dialog.ChoiceEffect `json:"effects"`
}

type contentPayload struct {
	NPCText string          `json:"npc_text"`
	Choices []choicePayload `json:"choices"`
}

// fillRun carries the shared state of one Fill call.
type fillRun struct {
	f         *ContentFiller
	g         *dialog.Graph
	character dialog.Character
	goal      dialog.Goal
	system    string
	logger    log.Logger

	// pos is each node's index in FillOrder.
	pos map[string]int

	mu     sync.Mutex
	filled int
	total  int
}

// Fill generates content for every node in breadth-first order from the root and returns
// g itself. Nodes not reachable from the root are filled afterwards, in id order.
//
// The first failing node aborts the fill. Nodes filled before the failure keep their
// content.
func (f *ContentFiller) Fill(ctx context.Context, g *dialog.Graph, character dialog.Character, goal dialog.Goal) (*dialog.Graph, error) {
	if err := character.Validate(); err != nil {
		return nil, err
	}
	if err := goal.Validate(); err != nil {
		return nil, err
	}

	run := &fillRun{
		f:         f,
		g:         g,
		character: character,
		goal:      goal,
		system:    f.SystemPrompt,
		logger:    log.OrDefault(f.Logger),
	}
	if run.system == "" {
		run.system = prompt.SystemContent
	}

	order := FillOrder(g)
	run.total = len(order)
	run.pos = make(map[string]int, len(order))
	for i, id := range order {
		run.pos[id] = i
	}
	start := time.Now()
	run.logger.Info("filling %d nodes (concurrency %d)", run.total, max(f.Concurrency, 1))

	var err error
	if f.Concurrency > 1 {
		err = run.concurrent(ctx, order, f.Concurrency)
	} else {
		err = run.sequential(ctx, order)
	}
	if err != nil {
		return nil, err
	}

	run.logger.Info("content filled: %d nodes in %v", run.filled, time.Since(start).Round(time.Millisecond))
	return g, nil
}

// FillOrder is the order in which Fill visits nodes: breadth-first from the root, then any
// node that is only reachable through a cycle outside the root's reach.
func FillOrder(g *dialog.Graph) []string {
	order := traverse.Order(g)
	if len(order) == g.Len() {
		return order
	}
	seen := make(map[string]bool, g.Len())
	for _, id := range order {
		seen[id] = true
	}
	for _, id := range g.IDs() {
		if seen[id] {
			continue
		}
		seq, err := traverse.Walk(g, traverse.WithStart(id))
		if err != nil {
			continue
		}
		for next := range seq {
			if !seen[next] {
				seen[next] = true
				order = append(order, next)
			}
		}
	}
	return order
}

func (r *fillRun) sequential(ctx context.Context, order []string) error {
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.fillNode(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// concurrent fills up to limit nodes at once. A node is dispatched once every node of its
// prompt context (history and lookahead) that precedes it in order has been filled, so each
// prompt sees exactly what a sequential fill would show it.
func (r *fillRun) concurrent(ctx context.Context, order []string, limit int) error {
	pending := make(map[string]int, len(order))
	dependents := make(map[string][]string, len(order))
	for _, id := range order {
		deps, err := r.contextIDs(id)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			if r.pos[dep] < r.pos[id] {
				pending[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	done := make(chan string, len(order))

	dispatch := func(id string) {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			if err := r.fillNode(egCtx, id); err != nil {
				return err
			}
			done <- id
			return nil
		})
	}

	for _, id := range order {
		if pending[id] == 0 {
			dispatch(id)
		}
	}

	completed := 0
loop:
	for completed < len(order) {
		select {
		case id := <-done:
			completed++
			for _, child := range dependents[id] {
				pending[child]--
				if pending[child] == 0 {
					dispatch(child)
				}
			}
		case <-egCtx.Done():
			break loop
		}
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	if completed < len(order) {
		return ctx.Err()
	}
	return nil
}

// fillNode builds the prompt under the lock so history is a consistent snapshot, calls the
// model without it and writes the result back under it again.
func (r *fillRun) fillNode(ctx context.Context, id string) error {
	r.mu.Lock()
	nc, history, err := r.nodeContext(id)
	var text string
	if err == nil {
		text, err = prompt.NodeContent(nc)
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}

	r.logger.Debug("generating content for node %s (history %d, lookahead %d)", id, len(nc.History), len(nc.Lookahead))
	raw, err := r.f.Generator.Generate(ctx, text, r.system)
	if err != nil {
		return fmt.Errorf("content generation for node %q: %w", id, err)
	}

	var payload contentPayload
	if err := llm.Decode(raw, &payload); err != nil {
		return fmt.Errorf("decode content for node %q: %w", id, err)
	}

	choices := make([]dialog.Choice, 0, len(payload.Choices))
	for _, c := range payload.Choices {
		if !nc.Node.HasChild(c.NextNodeID) {
			return &ChoiceRoutingError{NodeID: id, Target: c.NextNodeID, Allowed: slices.Clone(nc.Node.ChildIDs)}
		}
		choices = append(choices, dialog.Choice{Text: c.Text, NextNodeID: c.NextNodeID, Effects: c.Effects})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.g.SetContent(id, payload.NPCText, choices); err != nil {
		return err
	}
	r.filled++
	if r.f.OnNodeFilled != nil {
		r.f.OnNodeFilled(NodeProgress{NodeID: id, History: history, Filled: r.filled, Total: r.total})
	}
	return nil
}

func (r *fillRun) historyOptions() []traverse.Option {
	if r.f.MaxHistory > 0 {
		return []traverse.Option{traverse.WithMaxHops(r.f.MaxHistory)}
	}
	return nil
}

// contextIDs lists the nodes whose JSON goes into id's prompt: its ancestors within
// MaxHistory and its children.
func (r *fillRun) contextIDs(id string) ([]string, error) {
	ids, err := traverse.Ancestors(r.g, id, r.historyOptions()...)
	if err != nil {
		return nil, err
	}
	children, err := r.g.Children(id)
	if err != nil {
		return nil, err
	}
	return append(ids, children...), nil
}

// unwritten hides content of a context node that comes after id in fill order. Such a node
// is never filled yet when a sequential fill reaches id.
func (r *fillRun) unwritten(id string, n dialog.Node) dialog.Node {
	if r.pos[n.ID] > r.pos[id] {
		n.NPCText = ""
		n.Choices = nil
	}
	return n
}

func (r *fillRun) nodeContext(id string) (prompt.NodeContext, []string, error) {
	node, ok := r.g.Node(id)
	if !ok {
		return prompt.NodeContext{}, nil, fmt.Errorf("fill %q: %w", id, dialog.ErrNotFound)
	}

	ancestors, err := traverse.AncestorNodes(r.g, id, r.historyOptions()...)
	if err != nil {
		return prompt.NodeContext{}, nil, err
	}
	for i := range ancestors {
		ancestors[i] = r.unwritten(id, ancestors[i])
	}

	seq, err := traverse.WalkNodes(r.g, traverse.WithStart(id), traverse.WithMaxDepth(1), traverse.WithExcludeStart())
	if err != nil {
		return prompt.NodeContext{}, nil, err
	}
	var lookahead []dialog.Node
	for n := range seq {
		lookahead = append(lookahead, r.unwritten(id, n))
	}

	history := make([]string, len(ancestors))
	for i, a := range ancestors {
		history[i] = a.ID
	}

	return prompt.NodeContext{
		Character: r.character,
		Goal:      r.goal,
		Node:      node,
		History:   ancestors,
		Lookahead: lookahead,
	}, history, nil
}
