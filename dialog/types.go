package dialog

import (
	"fmt"
	"slices"
)

// BranchType tags a node with its narrative role.
type BranchType string

const (
	// BranchMain is the critical path to the goal.
	BranchMain BranchType = "main"
	// BranchExploration is optional world or character content.
	BranchExploration BranchType = "exploration"
	// BranchDeadEnd terminates the conversation.
	BranchDeadEnd BranchType = "dead_end"
	// BranchLoop routes back to an already visited node.
	BranchLoop BranchType = "loop"
	// BranchSideQuest is a rare optional branch.
	BranchSideQuest BranchType = "side_quest"
)

var branchTypes = []BranchType{BranchMain, BranchExploration, BranchDeadEnd, BranchLoop, BranchSideQuest}

var branchDescriptions = map[BranchType]string{
	BranchMain:        "main storyline of the dialogue, leading to the goal",
	BranchExploration: "optional branch for learning about the world or the character",
	BranchDeadEnd:     "dead end that breaks off the dialogue",
	BranchLoop:        "branch that returns the player to an earlier node",
	BranchSideQuest:   "something rare: a side quest",
}

// BranchTypes returns every known branch type in declaration order.
func BranchTypes() []BranchType {
	return slices.Clone(branchTypes)
}

// Description returns the human-readable description of the branch type.
func (b BranchType) Description() string {
	return branchDescriptions[b]
}

// Valid reports whether b is a known branch type.
func (b BranchType) Valid() bool {
	_, ok := branchDescriptions[b]
	return ok
}

// ParseBranchType converts a raw tag into a BranchType. An empty tag means BranchMain.
func ParseBranchType(s string) (BranchType, error) {
	if s == "" {
		return BranchMain, nil
	}
	b := BranchType(s)
	if !b.Valid() {
		return "", fmt.Errorf("%w: unknown branch type %q", ErrStructuralViolation, s)
	}
	return b, nil
}

// NodeMetadata is the per-node narrative state.
//
// GoalProgress, EmotionalState, RequiredItems, UnlockedInfo and RelationshipImpact are
// reserved for scoring features and are carried through unchanged.
type NodeMetadata struct {
	BranchType         BranchType         `json:"branch_type"`
	Difficulty         int                `json:"difficulty,omitempty"`
	GoalProgress       float64            `json:"goal_progress,omitempty"`
	EmotionalState     string             `json:"emotional_state,omitempty"`
	RequiredItems      []string           `json:"required_items,omitempty"`
	UnlockedInfo       []string           `json:"unlocked_info,omitempty"`
	RelationshipImpact map[string]float64 `json:"relationship_impact,omitempty"`
}

func (m NodeMetadata) clone() NodeMetadata {
	m.RequiredItems = slices.Clone(m.RequiredItems)
	m.UnlockedInfo = slices.Clone(m.UnlockedInfo)
	if m.RelationshipImpact != nil {
		impact := make(map[string]float64, len(m.RelationshipImpact))
		for k, v := range m.RelationshipImpact {
			impact[k] = v
		}
		m.RelationshipImpact = impact
	}
	return m
}

// ChoiceEffect is a gameplay effect attached to a choice. The core does not interpret it.
type ChoiceEffect struct {
	Type   string `json:"type"`
	Target string `json:"target"`
	Value  string `json:"value,omitempty"`
}

// Choice is a player-facing option routing to NextNodeID.
type Choice struct {
	Text       string         `json:"text"`
	NextNodeID string         `json:"next_node_id"`
	Effects    []ChoiceEffect `json:"effects,omitempty"`
}

// Node is one beat of the conversation.
//
// Structural fields are written once by the structure stage. NPCText and Choices stay empty
// until the node is filled.
type Node struct {
	ID               string       `json:"node_id"`
	ParentIDs        []string     `json:"parent_node_ids"`
	ChildIDs         []string     `json:"child_node_ids"`
	Metadata         NodeMetadata `json:"metadata"`
	NarrativeSummary string       `json:"narrative_summary"`
	PlayerGoalHint   string       `json:"player_goal_hint"`
	EstimatedChoices int          `json:"estimated_choices,omitempty"`

	NPCText string   `json:"npc_text"`
	Choices []Choice `json:"choices"`
}

// Filled reports whether dialogue content has been written to the node.
func (n Node) Filled() bool {
	return n.NPCText != "" || len(n.Choices) > 0
}

// Terminal reports whether the node has no children.
func (n Node) Terminal() bool {
	return len(n.ChildIDs) == 0
}

// HasChild reports whether id is one of the node's declared children.
func (n Node) HasChild(id string) bool {
	return slices.Contains(n.ChildIDs, id)
}

func (n Node) clone() Node {
	n.ParentIDs = slices.Clone(n.ParentIDs)
	n.ChildIDs = slices.Clone(n.ChildIDs)
	n.Metadata = n.Metadata.clone()
	if n.Choices != nil {
		choices := make([]Choice, len(n.Choices))
		for i, c := range n.Choices {
			c.Effects = slices.Clone(c.Effects)
			choices[i] = c
		}
		n.Choices = choices
	}
	return n
}
