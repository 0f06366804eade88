package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/smallnest/dialoggraph/prompt"
)

var (
	currentNodeRe = regexp.MustCompile(`## Current node\n\{\n  "node_id": "([^"]+)"`)
	allowedRe     = regexp.MustCompile(`Allowed "next_node_id" values: ([^\n]+)\.`)
)

// scriptedGenerator answers by stage, recognized from the system prompt.
//
// Structure and validation answers are consumed in order; the last one repeats. Content
// answers come from content, or by default route one choice to every allowed child.
type scriptedGenerator struct {
	mu sync.Mutex

	structure  []map[string]any
	validation []map[string]any
	content    func(nodeID string, allowed []string) (map[string]any, error)

	// failures injects an error for the nth call of a stage (1-based).
	failures map[string]map[int]error

	calls   map[string]int
	prompts map[string]string // content prompt by node id
}

func newScripted() *scriptedGenerator {
	return &scriptedGenerator{
		failures: make(map[string]map[int]error),
		calls:    make(map[string]int),
		prompts:  make(map[string]string),
	}
}

func (s *scriptedGenerator) failOn(stage string, call int, err error) {
	if s.failures[stage] == nil {
		s.failures[stage] = make(map[int]error)
	}
	s.failures[stage][call] = err
}

func (s *scriptedGenerator) count(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[stage]
}

func (s *scriptedGenerator) Generate(ctx context.Context, text, system string) (map[string]any, error) {
	var stage string
	switch system {
	case prompt.SystemTree:
		stage = StageStructure
	case prompt.SystemContent:
		stage = StageContent
	case prompt.SystemValidation:
		stage = StageValidate
	default:
		return nil, fmt.Errorf("unexpected system prompt %q", system)
	}

	s.mu.Lock()
	s.calls[stage]++
	n := s.calls[stage]
	err := s.failures[stage][n]
	var nodeID string
	if stage == StageContent {
		if m := currentNodeRe.FindStringSubmatch(text); m != nil {
			nodeID = m[1]
			s.prompts[nodeID] = text
		}
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	switch stage {
	case StageStructure:
		return pick(s.structure, n), nil
	case StageValidate:
		return pick(s.validation, n), nil
	}

	var allowed []string
	if m := allowedRe.FindStringSubmatch(text); m != nil {
		allowed = strings.Split(m[1], ", ")
	}
	if s.content != nil {
		return s.content(nodeID, allowed)
	}
	return defaultContent(nodeID, allowed), nil
}

func pick(answers []map[string]any, n int) map[string]any {
	if len(answers) == 0 {
		return map[string]any{}
	}
	if n > len(answers) {
		n = len(answers)
	}
	return answers[n-1]
}

func defaultContent(nodeID string, allowed []string) map[string]any {
	choices := make([]any, 0, len(allowed))
	for _, id := range allowed {
		choices = append(choices, map[string]any{
			"text":         "Go to " + id,
			"next_node_id": id,
		})
	}
	return map[string]any{
		"npc_text": "Line for " + nodeID,
		"choices":  choices,
	}
}

func object(s string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		panic(err)
	}
	return out
}

const linearStructure = `{
  "root_node_id": "root",
  "nodes": {
    "root": {"node_id": "root", "narrative_summary": "greeting", "player_goal_hint": "be polite",
             "branch_type": "main", "parent_node_ids": [], "child_node_ids": ["mid"], "estimated_choices": 1},
    "mid":  {"node_id": "mid", "narrative_summary": "riddle", "player_goal_hint": "answer",
             "metadata": {"branch_type": "exploration", "difficulty": 3},
             "parent_node_ids": ["root"], "child_node_ids": ["leaf"]},
    "leaf": {"narrative_summary": "letter handed over", "player_goal_hint": "take it",
             "branch_type": "main", "difficulty": "2", "parent_node_ids": ["mid"], "child_node_ids": []}
  },
  "estimated_paths_to_goal": [["root", "mid", "leaf"]]
}`

// loopStructure is a diamond with a loop back-edge d -> a.
const loopStructure = `{
  "root_node_id": "root",
  "nodes": {
    "root": {"child_node_ids": ["a", "b"]},
    "a": {"parent_node_ids": ["root", "d"], "child_node_ids": ["c"]},
    "b": {"parent_node_ids": ["root"], "child_node_ids": ["c", "e"], "branch_type": "exploration"},
    "c": {"parent_node_ids": ["a", "b"], "child_node_ids": ["d", "f"]},
    "d": {"parent_node_ids": ["c"], "child_node_ids": ["a"], "branch_type": "loop"},
    "e": {"parent_node_ids": ["b"], "branch_type": "dead_end"},
    "f": {"parent_node_ids": ["c"], "branch_type": "side_quest"}
  }
}`
