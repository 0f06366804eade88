package pipeline

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/llm"
	"github.com/smallnest/dialoggraph/log"
	"github.com/smallnest/dialoggraph/prompt"
)

// StructureGenerator asks the model for the skeleton of a conversation and turns the
// answer into a validated graph without dialogue.
type StructureGenerator struct {
	Generator llm.Generator
	Logger    log.Logger
	// SystemPrompt overrides prompt.SystemTree.
	SystemPrompt string
}

// NewStructureGenerator returns a generator using the default system prompt.
func NewStructureGenerator(gen llm.Generator, logger log.Logger) *StructureGenerator {
	return &StructureGenerator{Generator: gen, Logger: logger}
}

type metadataPayload struct {
	BranchType         string             `json:"branch_type"`
	Difficulty         int                `json:"difficulty"`
	GoalProgress       float64            `json:"goal_progress"`
	EmotionalState     string             `json:"emotional_state"`
	RequiredItems      []string           `json:"required_items"`
	UnlockedInfo       []string           `json:"unlocked_info"`
	RelationshipImpact map[string]float64 `json:"relationship_impact"`
}

type structureNodePayload struct {
	NodeID           string           `json:"node_id"`
	NarrativeSummary string           `json:"narrative_summary"`
	PlayerGoalHint   string           `json:"player_goal_hint"`
	BranchType       string           `json:"branch_type"`
	Difficulty       int              `json:"difficulty"`
	ParentIDs        []string         `json:"parent_node_ids"`
	ChildIDs         []string         `json:"child_node_ids"`
	EstimatedChoices int              `json:"estimated_choices"`
	Metadata         *metadataPayload `json:"metadata"`
}

type structurePayload struct {
	RootNodeID           string                          `json:"root_node_id"`
	Nodes                map[string]structureNodePayload `json:"nodes"`
	EstimatedPathsToGoal [][]string                      `json:"estimated_paths_to_goal"`
	GoalAchievementPaths [][]string                      `json:"goal_achievement_paths"`
}

// Generate produces a skeletal graph for the character and goal. Zero constraint fields
// take their defaults.
func (s *StructureGenerator) Generate(ctx context.Context, character dialog.Character, goal dialog.Goal, constraints dialog.Constraints) (*dialog.Graph, error) {
	logger := log.OrDefault(s.Logger)
	start := time.Now()

	constraints = constraints.WithDefaults()
	if err := validateRequest(character, &goal, constraints); err != nil {
		return nil, err
	}

	text, err := prompt.Tree(character, goal, constraints)
	if err != nil {
		return nil, err
	}
	system := s.SystemPrompt
	if system == "" {
		system = prompt.SystemTree
	}

	logger.Info("generating structure for %s (goal %s: %s)", character.Name, goal.Type, goal.Target)
	raw, err := s.Generator.Generate(ctx, text, system)
	if err != nil {
		return nil, fmt.Errorf("structure generation: %w", err)
	}

	g, err := BuildGraph(raw)
	if err != nil {
		return nil, err
	}

	logger.Info("structure generated: %d nodes in %v", g.Len(), time.Since(start).Round(time.Millisecond))
	return g, nil
}

// BuildGraph decodes a raw structure payload and runs it through dialog.NewGraph.
//
// Node metadata may be nested under "metadata" or given flat on the node; nested values win.
// Branch type defaults to main and difficulty to 1.
func BuildGraph(raw map[string]any) (*dialog.Graph, error) {
	var payload structurePayload
	if err := llm.Decode(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode structure: %w", err)
	}

	verr := &dialog.ViolationError{}
	if payload.RootNodeID == "" {
		verr.Violations = append(verr.Violations, "payload has no root_node_id")
	}
	if len(payload.Nodes) == 0 {
		verr.Violations = append(verr.Violations, "payload has no nodes")
	}

	nodes := make([]dialog.Node, 0, len(payload.Nodes))
	for _, key := range slices.Sorted(maps.Keys(payload.Nodes)) {
		p := payload.Nodes[key]
		id := p.NodeID
		if id == "" {
			id = key
		}
		if id != key {
			verr.Violations = append(verr.Violations, fmt.Sprintf("node keyed %q declares id %q", key, id))
			continue
		}

		meta, err := nodeMetadata(p)
		if err != nil {
			verr.Violations = append(verr.Violations, fmt.Sprintf("node %q: %v", id, err))
			continue
		}
		nodes = append(nodes, dialog.Node{
			ID:               id,
			ParentIDs:        p.ParentIDs,
			ChildIDs:         p.ChildIDs,
			Metadata:         meta,
			NarrativeSummary: p.NarrativeSummary,
			PlayerGoalHint:   p.PlayerGoalHint,
			EstimatedChoices: p.EstimatedChoices,
		})
	}
	if len(verr.Violations) > 0 {
		return nil, verr
	}

	paths := payload.EstimatedPathsToGoal
	if len(paths) == 0 {
		paths = payload.GoalAchievementPaths
	}
	return dialog.NewGraph(payload.RootNodeID, nodes, paths)
}

func nodeMetadata(p structureNodePayload) (dialog.NodeMetadata, error) {
	var nested metadataPayload
	if p.Metadata != nil {
		nested = *p.Metadata
	}

	branchTag := nested.BranchType
	if branchTag == "" {
		branchTag = p.BranchType
	}
	branch, err := dialog.ParseBranchType(branchTag)
	if err != nil {
		return dialog.NodeMetadata{}, err
	}

	difficulty := nested.Difficulty
	if difficulty == 0 {
		difficulty = p.Difficulty
	}
	if difficulty == 0 {
		difficulty = 1
	}

	return dialog.NodeMetadata{
		BranchType:         branch,
		Difficulty:         difficulty,
		GoalProgress:       nested.GoalProgress,
		EmotionalState:     nested.EmotionalState,
		RequiredItems:      nested.RequiredItems,
		UnlockedInfo:       nested.UnlockedInfo,
		RelationshipImpact: nested.RelationshipImpact,
	}, nil
}

func validateRequest(character dialog.Character, goal *dialog.Goal, constraints dialog.Constraints) error {
	if err := character.Validate(); err != nil {
		return err
	}
	if err := goal.Validate(); err != nil {
		return err
	}
	return constraints.Validate()
}
