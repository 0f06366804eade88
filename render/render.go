package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/traverse"
)

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
	// Summaries labels nodes with their narrative summary instead of the bare id.
	Summaries bool
	// MaxLabel truncates labels longer than this many runes. Zero means 48.
	MaxLabel int
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_]`)

// mermaidID turns a node id into something Mermaid accepts as an identifier.
func mermaidID(id string) string {
	s := unsafeID.ReplaceAllString(id, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "n_" + s
	}
	return s
}

// mermaidIDs assigns every node a distinct Mermaid identifier. Ids that are already safe
// keep their spelling; the others take their sanitized form, suffixed with _2, _3 and so
// on when it is taken.
func mermaidIDs(g *dialog.Graph) map[string]string {
	nodes := g.Nodes()
	ids := make(map[string]string, len(nodes))
	taken := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if mermaidID(n.ID) == n.ID {
			ids[n.ID] = n.ID
			taken[n.ID] = true
		}
	}
	for _, n := range nodes {
		if _, ok := ids[n.ID]; ok {
			continue
		}
		base := mermaidID(n.ID)
		id := base
		for i := 2; taken[id]; i++ {
			id = fmt.Sprintf("%s_%d", base, i)
		}
		ids[n.ID] = id
		taken[id] = true
	}
	return ids
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

// branchOf treats an untagged node as part of the main storyline.
func branchOf(n dialog.Node) dialog.BranchType {
	if n.Metadata.BranchType == "" {
		return dialog.BranchMain
	}
	return n.Metadata.BranchType
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `"`, "#quot;")
	return strings.ReplaceAll(s, "\n", " ")
}

// shape wraps a label in the Mermaid node shape for a branch type.
func shape(b dialog.BranchType, label string) string {
	switch b {
	case dialog.BranchExploration:
		return fmt.Sprintf("([\"%s\"])", label)
	case dialog.BranchDeadEnd:
		return fmt.Sprintf("[/\"%s\"/]", label)
	case dialog.BranchLoop:
		return fmt.Sprintf("((\"%s\"))", label)
	case dialog.BranchSideQuest:
		return fmt.Sprintf("{{\"%s\"}}", label)
	default:
		return fmt.Sprintf("[\"%s\"]", label)
	}
}

var branchFill = map[dialog.BranchType]string{
	dialog.BranchMain:        "#87CEEB",
	dialog.BranchExploration: "#90EE90",
	dialog.BranchDeadEnd:     "#FFB6C1",
	dialog.BranchLoop:        "#FFFFE0",
	dialog.BranchSideQuest:   "#DDA0DD",
}

// backEdge reports whether from -> to points at a node that is not deeper than from, which
// is how loop branches return the player to earlier beats.
func backEdge(depths map[string]int, from, to string) bool {
	df, okf := depths[from]
	dt, okt := depths[to]
	return okf && okt && dt <= df
}

// choiceLabel returns the text of the first choice on from that routes to to.
func choiceLabel(n dialog.Node, to string) string {
	for _, c := range n.Choices {
		if c.NextNodeID == to {
			return c.Text
		}
	}
	return ""
}

// Mermaid renders the graph as a Mermaid flowchart.
func Mermaid(g *dialog.Graph) string {
	return MermaidWithOptions(g, MermaidOptions{Direction: "TD"})
}

// MermaidWithOptions renders the graph as a Mermaid flowchart with custom options.
func MermaidWithOptions(g *dialog.Graph, opts MermaidOptions) string {
	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}
	maxLabel := opts.MaxLabel
	if maxLabel <= 0 {
		maxLabel = 48
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "flowchart %s\n", direction)

	depths := traverse.Depths(g)
	ids := mermaidIDs(g)
	for _, n := range g.Nodes() {
		label := n.ID
		if opts.Summaries && n.NarrativeSummary != "" {
			label = truncate(n.NarrativeSummary, maxLabel)
		}
		fmt.Fprintf(&sb, "    %s%s\n", ids[n.ID], shape(branchOf(n), escapeLabel(label)))
	}

	for _, n := range g.Nodes() {
		for _, child := range n.ChildIDs {
			arrow := "-->"
			if backEdge(depths, n.ID, child) {
				arrow = "-.->"
			}
			if text := choiceLabel(n, child); text != "" {
				fmt.Fprintf(&sb, "    %s %s|\"%s\"| %s\n", ids[n.ID], arrow,
					escapeLabel(truncate(text, maxLabel)), ids[child])
			} else {
				fmt.Fprintf(&sb, "    %s %s %s\n", ids[n.ID], arrow, ids[child])
			}
		}
	}

	for _, n := range g.Nodes() {
		fmt.Fprintf(&sb, "    style %s fill:%s\n", ids[n.ID], branchFill[branchOf(n)])
	}
	fmt.Fprintf(&sb, "    style %s stroke-width:3px\n", ids[g.RootID()])

	return sb.String()
}

var dotShape = map[dialog.BranchType]string{
	dialog.BranchMain:        "box",
	dialog.BranchExploration: "ellipse",
	dialog.BranchDeadEnd:     "octagon",
	dialog.BranchLoop:        "circle",
	dialog.BranchSideQuest:   "hexagon",
}

var dotFill = map[dialog.BranchType]string{
	dialog.BranchMain:        "lightblue",
	dialog.BranchExploration: "lightgreen",
	dialog.BranchDeadEnd:     "lightpink",
	dialog.BranchLoop:        "lightyellow",
	dialog.BranchSideQuest:   "plum",
}

func dotQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + strings.ReplaceAll(s, "\n", `\n`) + `"`
}

// DOT renders the graph in Graphviz DOT format.
func DOT(g *dialog.Graph) string {
	var sb strings.Builder

	sb.WriteString("digraph G {\n")
	sb.WriteString("    rankdir=TD;\n")
	sb.WriteString("    node [style=filled];\n")

	depths := traverse.Depths(g)
	for _, n := range g.Nodes() {
		b := branchOf(n)
		extra := ""
		if n.ID == g.RootID() {
			extra = ", penwidth=2"
		}
		fmt.Fprintf(&sb, "    %s [label=%s, shape=%s, fillcolor=%s%s];\n",
			dotQuote(n.ID), dotQuote(n.ID), dotShape[b], dotFill[b], extra)
	}
	for _, n := range g.Nodes() {
		for _, child := range n.ChildIDs {
			var attrs []string
			if text := choiceLabel(n, child); text != "" {
				attrs = append(attrs, "label="+dotQuote(truncate(text, 32)))
			}
			if backEdge(depths, n.ID, child) {
				attrs = append(attrs, "style=dashed")
			}
			if len(attrs) > 0 {
				fmt.Fprintf(&sb, "    %s -> %s [%s];\n", dotQuote(n.ID), dotQuote(child), strings.Join(attrs, ", "))
			} else {
				fmt.Fprintf(&sb, "    %s -> %s;\n", dotQuote(n.ID), dotQuote(child))
			}
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// ASCII renders the graph as an indented tree from the root. Nodes already printed on the
// way down are marked "(cycle)" and not expanded again.
func ASCII(g *dialog.Graph) string {
	var sb strings.Builder
	visited := make(map[string]bool)

	sb.WriteString("Dialogue Flow:\n")
	drawASCIINode(g, g.RootID(), "", true, visited, &sb)

	return sb.String()
}

func drawASCIINode(g *dialog.Graph, id string, prefix string, isLast bool, visited map[string]bool, sb *strings.Builder) {
	connector := "├──"
	nextPrefix := prefix + "│   "
	if isLast {
		connector = "└──"
		nextPrefix = prefix + "    "
	}

	if visited[id] {
		fmt.Fprintf(sb, "%s%s %s (cycle)\n", prefix, connector, id)
		return
	}
	visited[id] = true

	n, ok := g.Node(id)
	if !ok {
		return
	}
	fmt.Fprintf(sb, "%s%s %s [%s]\n", prefix, connector, id, branchOf(n))

	for i, child := range n.ChildIDs {
		drawASCIINode(g, child, nextPrefix, i == len(n.ChildIDs)-1, visited, sb)
	}
}
