package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/traverse"
)

// Markdown renders the graph as a readable script: one section per node in breadth-first
// order, with the NPC line and the player's choices linking to their target sections.
func Markdown(g *dialog.Graph) string {
	var sb strings.Builder

	title := "Dialogue"
	if name, ok := g.Metadata()["character"].(string); ok && name != "" {
		title = "Dialogue: " + name
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if score, ok := g.ValidationScore(); ok {
		fmt.Fprintf(&sb, "Validation score: **%.2f**\n\n", score)
	}

	for _, id := range order(g) {
		n, _ := g.Node(id)
		fmt.Fprintf(&sb, "## %s\n\n", id)
		fmt.Fprintf(&sb, "*%s*", branchOf(n))
		if n.Metadata.Difficulty > 0 {
			fmt.Fprintf(&sb, " · difficulty %d", n.Metadata.Difficulty)
		}
		sb.WriteString("\n\n")
		if n.NarrativeSummary != "" {
			fmt.Fprintf(&sb, "> %s\n\n", n.NarrativeSummary)
		}

		if !n.Filled() {
			sb.WriteString("_Not written yet._\n\n")
		} else if n.NPCText != "" {
			fmt.Fprintf(&sb, "**NPC:** %s\n\n", n.NPCText)
		}
		for _, c := range n.Choices {
			fmt.Fprintf(&sb, "- %s → [%s](#%s)\n", c.Text, c.NextNodeID, anchor(c.NextNodeID))
		}
		if len(n.Choices) > 0 {
			sb.WriteString("\n")
		}
		if n.Terminal() {
			sb.WriteString("_End of conversation._\n\n")
		}
	}
	return sb.String()
}

// HTML renders Markdown(g) to sanitized HTML.
func HTML(g *dialog.Graph) string {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(Markdown(g)))

	htmlFlags := html.CommonFlags
	opts := html.RendererOptions{Flags: htmlFlags}
	renderer := html.NewRenderer(opts)
	out := markdown.Render(doc, renderer)

	return string(bluemonday.UGCPolicy().SanitizeBytes(out))
}

// anchor mirrors the heading ids gomarkdown generates with AutoHeadingIDs.
func anchor(id string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			sb.WriteRune('-')
		}
	}
	return sb.String()
}

// order is the breadth-first order followed by nodes it cannot reach, sorted by id.
func order(g *dialog.Graph) []string {
	out := traverse.Order(g)
	seen := make(map[string]bool, len(out))
	for _, id := range out {
		seen[id] = true
	}
	var rest []string
	for _, id := range g.IDs() {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
