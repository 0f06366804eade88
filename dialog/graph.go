package dialog

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Graph is a directed conversation graph rooted at a single node.
//
// Despite the "dialogue tree" naming used by writers, the graph may contain back-edges
// introduced by loop branches. A Graph owns its nodes by value: accessors hand out copies and
// the only way to change a node is SetContent, which rebuilds the stored value.
type Graph struct {
	rootID          string
	nodes           map[string]Node
	goalPaths       [][]string
	validationScore *float64
	metadata        map[string]any
}

// NewGraph validates nodes against the structural invariants and assembles a Graph.
//
// It never repairs input: a dangling reference, an asymmetric link, a duplicate id or a
// parentless non-root node fails the whole construction with an error wrapping
// ErrStructuralViolation.
func NewGraph(rootID string, nodes []Node, goalPaths [][]string) (*Graph, error) {
	verr := &ViolationError{}

	if rootID == "" {
		verr.add("root node id is empty")
	}
	if len(nodes) == 0 {
		verr.add("graph has no nodes")
	}

	index := make(map[string]Node, len(nodes))
	for i, n := range nodes {
		if n.ID == "" {
			verr.add("node at position %d has an empty id", i)
			continue
		}
		if _, dup := index[n.ID]; dup {
			verr.add("duplicate node id %q", n.ID)
			continue
		}
		index[n.ID] = n.clone()
	}

	if rootID != "" && len(nodes) > 0 {
		root, ok := index[rootID]
		switch {
		case !ok:
			verr.add("root node %q is not in the node set", rootID)
		case len(root.ParentIDs) > 0:
			verr.add("root node %q has parents %v", rootID, root.ParentIDs)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(index)) {
		n := index[id]
		if err := checkMetadata(n.Metadata); err != nil {
			verr.add("node %q: %v", id, err)
		}
		if id != rootID && len(n.ParentIDs) == 0 {
			verr.add("node %q has no parent", id)
		}
		for _, childID := range n.ChildIDs {
			child, ok := index[childID]
			if !ok {
				verr.add("node %q references missing child %q", id, childID)
				continue
			}
			if !slices.Contains(child.ParentIDs, id) {
				verr.add("edge %q -> %q is not mirrored in the child's parents", id, childID)
			}
		}
		for _, parentID := range n.ParentIDs {
			parent, ok := index[parentID]
			if !ok {
				verr.add("node %q references missing parent %q", id, parentID)
				continue
			}
			if !slices.Contains(parent.ChildIDs, id) {
				verr.add("parent link %q <- %q is not mirrored in the parent's children", id, parentID)
			}
		}
	}

	for i, path := range goalPaths {
		for j, id := range path {
			if _, ok := index[id]; !ok {
				verr.add("goal path %d references missing node %q", i, id)
				continue
			}
			if j > 0 {
				if prev, ok := index[path[j-1]]; ok && !prev.HasChild(id) {
					verr.add("goal path %d steps %q -> %q without an edge", i, path[j-1], id)
				}
			}
		}
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}

	paths := make([][]string, len(goalPaths))
	for i, p := range goalPaths {
		paths[i] = slices.Clone(p)
	}

	return &Graph{
		rootID:    rootID,
		nodes:     index,
		goalPaths: paths,
		metadata:  make(map[string]any),
	}, nil
}

func checkMetadata(m NodeMetadata) error {
	if m.BranchType != "" && !m.BranchType.Valid() {
		return fmt.Errorf("unknown branch type %q", m.BranchType)
	}
	if m.Difficulty < 0 || m.Difficulty > 5 {
		return fmt.Errorf("difficulty %d outside 1..5", m.Difficulty)
	}
	if m.GoalProgress < 0 || m.GoalProgress > 1 {
		return fmt.Errorf("goal progress %.2f outside 0..1", m.GoalProgress)
	}
	return nil
}

// RootID returns the id of the root node.
func (g *Graph) RootID() string {
	return g.rootID
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// IDs returns every node id in lexical order.
func (g *Graph) IDs() []string {
	return slices.Sorted(maps.Keys(g.nodes))
}

// Node returns a copy of the node stored under id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Nodes returns copies of all nodes ordered by id.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, id := range g.IDs() {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

// Parents returns the direct parent ids of a node.
func (g *Graph) Parents(id string) ([]string, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	return slices.Clone(n.ParentIDs), nil
}

// Children returns the direct child ids of a node.
func (g *Graph) Children(id string) ([]string, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	return slices.Clone(n.ChildIDs), nil
}

// GoalPaths returns the node-id sequences estimated to reach the goal.
func (g *Graph) GoalPaths() [][]string {
	out := make([][]string, len(g.goalPaths))
	for i, p := range g.goalPaths {
		out[i] = slices.Clone(p)
	}
	return out
}

// FilledCount returns how many nodes carry dialogue content.
func (g *Graph) FilledCount() int {
	count := 0
	for _, n := range g.nodes {
		if n.Filled() {
			count++
		}
	}
	return count
}

// SetContent replaces the dialogue of node id, keeping every structural field unchanged.
func (g *Graph) SetContent(id string, npcText string, choices []Choice) error {
	old, ok := g.nodes[id]
	if !ok {
		return notFound(id)
	}
	filled := old.clone()
	filled.NPCText = npcText
	filled.Choices = Node{Choices: choices}.clone().Choices
	if filled.Choices == nil {
		filled.Choices = []Choice{}
	}
	g.nodes[id] = filled
	return nil
}

// ValidationScore returns the recorded validation score, if any.
func (g *Graph) ValidationScore() (float64, bool) {
	if g.validationScore == nil {
		return 0, false
	}
	return *g.validationScore, true
}

// SetValidationScore records a normalized score in 0..1.
func (g *Graph) SetValidationScore(score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("validation score %.3f outside 0..1", score)
	}
	g.validationScore = &score
	return nil
}

// Metadata returns a copy of the free-form graph metadata.
func (g *Graph) Metadata() map[string]any {
	return maps.Clone(g.metadata)
}

// SetMetadata stores a free-form metadata value.
func (g *Graph) SetMetadata(key string, value any) {
	if g.metadata == nil {
		g.metadata = make(map[string]any)
	}
	g.metadata[key] = value
}

// Clone returns a deep copy of the graph. Metadata values are copied shallowly.
func (g *Graph) Clone() *Graph {
	nodes := make(map[string]Node, len(g.nodes))
	for id, n := range g.nodes {
		nodes[id] = n.clone()
	}
	c := &Graph{
		rootID:    g.rootID,
		nodes:     nodes,
		goalPaths: g.GoalPaths(),
		metadata:  maps.Clone(g.metadata),
	}
	if g.validationScore != nil {
		score := *g.validationScore
		c.validationScore = &score
	}
	return c
}

type graphJSON struct {
	RootNodeID           string          `json:"root_node_id"`
	Nodes                map[string]Node `json:"nodes"`
	GoalAchievementPaths [][]string      `json:"goal_achievement_paths,omitempty"`
	ValidationScore      *float64        `json:"validation_score,omitempty"`
	Metadata             map[string]any  `json:"metadata,omitempty"`
}

// MarshalJSON encodes the graph with nodes keyed by id.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{
		RootNodeID:           g.rootID,
		Nodes:                g.nodes,
		GoalAchievementPaths: g.goalPaths,
		ValidationScore:      g.validationScore,
		Metadata:             g.metadata,
	})
}

// UnmarshalJSON decodes a graph and runs it through NewGraph, so a decoded graph satisfies
// the same invariants as a generated one. Dialogue content is preserved.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var raw graphJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	nodes := make([]Node, 0, len(raw.Nodes))
	for _, key := range slices.Sorted(maps.Keys(raw.Nodes)) {
		n := raw.Nodes[key]
		if n.ID == "" {
			n.ID = key
		}
		if n.ID != key {
			return fmt.Errorf("%w: node keyed %q declares id %q", ErrStructuralViolation, key, n.ID)
		}
		nodes = append(nodes, n)
	}
	built, err := NewGraph(raw.RootNodeID, nodes, raw.GoalAchievementPaths)
	if err != nil {
		return err
	}
	built.validationScore = raw.ValidationScore
	if raw.Metadata != nil {
		built.metadata = raw.Metadata
	}
	*g = *built
	return nil
}
