package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/smallnest/dialoggraph/dialog"
)

//go:embed templates/*.txt
var files embed.FS

var templates = template.Must(
	template.New("prompts").
		Funcs(template.FuncMap{
			"join": strings.Join,
			"json": toJSON,
		}).
		ParseFS(files, "templates/*.txt"),
)

// System prompts for the three stages.
var (
	SystemTree       = mustRead("templates/system_tree.txt")
	SystemContent    = mustRead("templates/system_content.txt")
	SystemValidation = mustRead("templates/system_validation.txt")
)

// DefaultCriteria is the checklist the validation prompt asks the model to score.
var DefaultCriteria = []string{
	"character_consistency",
	"goal_reachability",
	"choice_meaningfulness",
	"narrative_coherence",
	"branch_variety",
	"constraint_compliance",
}

// Tree builds the structure generation prompt.
func Tree(character dialog.Character, goal dialog.Goal, constraints dialog.Constraints) (string, error) {
	return execute("tree.txt", map[string]any{
		"Character":   character,
		"Goal":        goal,
		"Constraints": constraints,
		"BranchTypes": dialog.BranchTypes(),
	})
}

// NodeContext is everything the content prompt needs about one node.
type NodeContext struct {
	Character dialog.Character
	Goal      dialog.Goal
	Node      dialog.Node
	// History is the ancestor chain, most distant first.
	History []dialog.Node
	// Lookahead holds the direct children of Node.
	Lookahead []dialog.Node
}

// NodeContent builds the content prompt for a single node.
func NodeContent(nc NodeContext) (string, error) {
	return execute("content.txt", map[string]any{
		"Character":   nc.Character,
		"Goal":        nc.Goal,
		"Node":        nc.Node,
		"History":     nc.History,
		"Lookahead":   nc.Lookahead,
		"BranchTypes": dialog.BranchTypes(),
	})
}

// Validation builds the review prompt. The whole graph is embedded as indented JSON.
// A nil criteria list means DefaultCriteria.
func Validation(g *dialog.Graph, character dialog.Character, goal dialog.Goal, constraints dialog.Constraints, criteria []string) (string, error) {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode graph: %w", err)
	}
	if len(criteria) == 0 {
		criteria = DefaultCriteria
	}
	return execute("validation.txt", map[string]any{
		"Character":   character,
		"Goal":        goal,
		"Constraints": constraints,
		"BranchTypes": dialog.BranchTypes(),
		"GraphJSON":   string(data),
		"Criteria":    criteria,
	})
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func mustRead(name string) string {
	data, err := files.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return strings.TrimSpace(string(data))
}
