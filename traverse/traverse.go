package traverse

import (
	"fmt"
	"iter"
	"slices"

	"github.com/smallnest/dialoggraph/dialog"
)

// Option configures Ancestors and Walk.
type Option func(*options)

type options struct {
	start        string
	hasStart     bool
	maxDepth     int
	excludeStart bool
}

func newOptions(opts []Option) options {
	o := options{maxDepth: -1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithStart makes Walk begin at the given node instead of the root.
func WithStart(id string) Option {
	return func(o *options) {
		o.start = id
		o.hasStart = true
	}
}

// WithMaxDepth bounds how many levels Walk descends, or how many parent hops Ancestors
// climbs. Depth 0 is the start node itself. A negative depth means unbounded.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// WithMaxHops is WithMaxDepth spelled for Ancestors.
func WithMaxHops(hops int) Option {
	return WithMaxDepth(hops)
}

// WithExcludeStart leaves the start node(s) out of the walk's output.
func WithExcludeStart() Option {
	return func(o *options) {
		o.excludeStart = true
	}
}

type queued struct {
	id    string
	depth int
}

// Ancestors returns every node on some path from the root to id, excluding id itself,
// ordered from the most distant ancestor to the immediate parent.
//
// Parents are explored breadth-first and each ancestor is reported once, so back-edges from
// loop branches never cause repetition.
func Ancestors(g *dialog.Graph, id string, opts ...Option) ([]string, error) {
	if !g.Has(id) {
		return nil, fmt.Errorf("ancestors of %q: %w", id, dialog.ErrNotFound)
	}
	o := newOptions(opts)

	visited := map[string]bool{id: true}
	var found []string
	queue := []queued{{id: id}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if o.maxDepth >= 0 && cur.depth >= o.maxDepth {
			continue
		}

		parents, err := g.Parents(cur.id)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if visited[p] {
				continue
			}
			visited[p] = true
			found = append(found, p)
			queue = append(queue, queued{id: p, depth: cur.depth + 1})
		}
	}

	slices.Reverse(found)
	if found == nil {
		found = []string{}
	}
	return found, nil
}

// AncestorNodes is Ancestors returning node values.
func AncestorNodes(g *dialog.Graph, id string, opts ...Option) ([]dialog.Node, error) {
	ids, err := Ancestors(g, id, opts...)
	if err != nil {
		return nil, err
	}
	return lookup(g, ids), nil
}

// Walk visits nodes breadth-first and yields their ids.
//
// Without WithStart the walk begins at the root together with any other parentless node.
// Every node is yielded at most once even when it is reachable through several parents or a
// cycle.
func Walk(g *dialog.Graph, opts ...Option) (iter.Seq[string], error) {
	o := newOptions(opts)

	var starts []string
	if o.hasStart {
		if !g.Has(o.start) {
			return nil, fmt.Errorf("walk from %q: %w", o.start, dialog.ErrNotFound)
		}
		starts = []string{o.start}
	} else {
		starts = roots(g)
	}

	return func(yield func(string) bool) {
		visited := make(map[string]bool, g.Len())
		queue := make([]queued, 0, len(starts))
		for _, s := range starts {
			visited[s] = true
			queue = append(queue, queued{id: s})
		}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]

			if cur.depth > 0 || !o.excludeStart {
				if !yield(cur.id) {
					return
				}
			}
			if o.maxDepth >= 0 && cur.depth >= o.maxDepth {
				continue
			}

			children, err := g.Children(cur.id)
			if err != nil {
				continue
			}
			for _, c := range children {
				if visited[c] || !g.Has(c) {
					continue
				}
				visited[c] = true
				queue = append(queue, queued{id: c, depth: cur.depth + 1})
			}
		}
	}, nil
}

// WalkNodes is Walk yielding node values.
func WalkNodes(g *dialog.Graph, opts ...Option) (iter.Seq[dialog.Node], error) {
	ids, err := Walk(g, opts...)
	if err != nil {
		return nil, err
	}
	return func(yield func(dialog.Node) bool) {
		for id := range ids {
			n, ok := g.Node(id)
			if !ok {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}, nil
}

// Order returns the complete breadth-first order from the default starts.
func Order(g *dialog.Graph) []string {
	seq, _ := Walk(g)
	return slices.Collect(seq)
}

// Depths maps every reachable node to its breadth-first level.
func Depths(g *dialog.Graph) map[string]int {
	depths := make(map[string]int, g.Len())
	queue := make([]queued, 0, g.Len())
	for _, s := range roots(g) {
		depths[s] = 0
		queue = append(queue, queued{id: s})
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, _ := g.Children(cur.id)
		for _, c := range children {
			if _, seen := depths[c]; seen || !g.Has(c) {
				continue
			}
			depths[c] = cur.depth + 1
			queue = append(queue, queued{id: c, depth: cur.depth + 1})
		}
	}
	return depths
}

// roots returns the root followed by any other parentless node, in id order.
func roots(g *dialog.Graph) []string {
	var out []string
	if g.Has(g.RootID()) {
		out = append(out, g.RootID())
	}
	for _, id := range g.IDs() {
		if id == g.RootID() {
			continue
		}
		if parents, _ := g.Parents(id); len(parents) == 0 {
			out = append(out, id)
		}
	}
	return out
}

func lookup(g *dialog.Graph, ids []string) []dialog.Node {
	nodes := make([]dialog.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
