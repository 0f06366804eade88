package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/smallnest/dialoggraph/dialog"
	"github.com/smallnest/dialoggraph/llm"
	"github.com/smallnest/dialoggraph/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sage = dialog.Character{Name: "Old sage", Goals: []string{"share wisdom"}, Personality: "grumpy"}
	task = dialog.Goal{Type: "obtain_item", Target: "letter"}
)

func TestBuildGraph_Linear(t *testing.T) {
	g, err := BuildGraph(object(linearStructure))
	require.NoError(t, err)

	assert.Equal(t, "root", g.RootID())
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, [][]string{{"root", "mid", "leaf"}}, g.GoalPaths())

	root, _ := g.Node("root")
	assert.Equal(t, dialog.BranchMain, root.Metadata.BranchType)
	assert.Equal(t, 1, root.Metadata.Difficulty)
	assert.Equal(t, 1, root.EstimatedChoices)
	assert.False(t, root.Filled())

	mid, _ := g.Node("mid")
	assert.Equal(t, dialog.BranchExploration, mid.Metadata.BranchType)
	assert.Equal(t, 3, mid.Metadata.Difficulty)

	leaf, _ := g.Node("leaf")
	assert.Equal(t, "leaf", leaf.ID)
	assert.Equal(t, 2, leaf.Metadata.Difficulty)
	assert.Equal(t, "letter handed over", leaf.NarrativeSummary)
}

func TestBuildGraph_GoalAchievementPathsAlias(t *testing.T) {
	raw := object(`{"root_node_id": "a", "nodes": {"a": {"child_node_ids": ["b"]}, "b": {"parent_node_ids": ["a"]}},
		"goal_achievement_paths": [["a", "b"]]}`)
	g, err := BuildGraph(raw)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, g.GoalPaths())
}

func TestBuildGraph_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		target  error
		message string
	}{
		{"missing root", `{"nodes": {"a": {}}}`, dialog.ErrStructuralViolation, "no root_node_id"},
		{"empty nodes", `{"root_node_id": "a", "nodes": {}}`, dialog.ErrStructuralViolation, "no nodes"},
		{"root not in nodes", `{"root_node_id": "x", "nodes": {"a": {}}}`, dialog.ErrStructuralViolation, `root node "x"`},
		{"key mismatch", `{"root_node_id": "a", "nodes": {"a": {"node_id": "b"}}}`, dialog.ErrStructuralViolation, `node keyed "a" declares id "b"`},
		{"unknown branch", `{"root_node_id": "a", "nodes": {"a": {"branch_type": "epilogue"}}}`, dialog.ErrStructuralViolation, "epilogue"},
		{"dangling child", `{"root_node_id": "a", "nodes": {"a": {"child_node_ids": ["zz"]}}}`, dialog.ErrStructuralViolation, `missing child "zz"`},
		{"asymmetric", `{"root_node_id": "a", "nodes": {"a": {"child_node_ids": ["b"]}, "b": {"parent_node_ids": ["c"]}, "c": {"parent_node_ids": ["a"]}}}`, dialog.ErrStructuralViolation, "not mirrored"},
		{"difficulty out of range", `{"root_node_id": "a", "nodes": {"a": {"difficulty": 9}}}`, dialog.ErrStructuralViolation, "difficulty 9"},
		{"malformed nodes", `{"root_node_id": "a", "nodes": "a,b,c"}`, llm.ErrMalformedResponse, "decode structure"},
		{"fractional difficulty", `{"root_node_id": "a", "nodes": {"a": {"difficulty": 5.8}}}`, llm.ErrMalformedResponse, "5.8 is not a whole number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := BuildGraph(object(tt.payload))
			assert.Nil(t, g)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestStructureGenerator_Generate(t *testing.T) {
	gen := newScripted()
	gen.structure = []map[string]any{object(linearStructure)}

	var captured string
	sg := NewStructureGenerator(llm.GeneratorFunc(func(ctx context.Context, p, s string) (map[string]any, error) {
		captured = p
		return gen.Generate(ctx, p, s)
	}), &log.NoOpLogger{})

	g, err := sg.Generate(context.Background(), sage, task, dialog.Constraints{MaxTurns: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Contains(t, captured, "Name: Old sage")
	assert.Contains(t, captured, "between 3 and 4 turns")
	assert.Equal(t, 1, gen.count(StageStructure))
}

func TestStructureGenerator_InvalidRequest(t *testing.T) {
	gen := newScripted()
	sg := NewStructureGenerator(gen, &log.NoOpLogger{})

	_, err := sg.Generate(context.Background(), dialog.Character{}, task, dialog.Constraints{})
	assert.ErrorIs(t, err, dialog.ErrInvalidRequest)

	_, err = sg.Generate(context.Background(), sage, task, dialog.Constraints{MinStorylines: 5, MaxStorylines: 2})
	assert.ErrorIs(t, err, dialog.ErrInvalidRequest)
	assert.Zero(t, gen.count(StageStructure))
}

func TestStructureGenerator_GeneratorError(t *testing.T) {
	boom := errors.New("upstream 503")
	gen := newScripted()
	gen.failOn(StageStructure, 1, boom)

	_, err := NewStructureGenerator(gen, &log.NoOpLogger{}).Generate(context.Background(), sage, task, dialog.Constraints{})
	assert.ErrorIs(t, err, boom)
}
