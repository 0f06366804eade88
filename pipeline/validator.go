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

// PassingScore is the lowest criterion score a valid graph may have.
const PassingScore = 3

// Verdict is the outcome of one validation pass.
type Verdict struct {
	Scores   map[string]int    `json:"scores"`
	Comments map[string]string `json:"comments"`
	IsValid  bool              `json:"is_valid"`
	MinScore int               `json:"min_score"`
}

// NewVerdict computes the aggregate fields from scores. A graph is valid when every
// criterion scores above 2.
func NewVerdict(scores map[string]int, comments map[string]string) (*Verdict, error) {
	if len(scores) == 0 {
		return nil, ErrEmptyEvaluation
	}
	lowest := slices.Min(slices.Collect(maps.Values(scores)))
	return &Verdict{
		Scores:   scores,
		Comments: comments,
		IsValid:  lowest >= PassingScore,
		MinScore: lowest,
	}, nil
}

// Failing returns the criteria that made the verdict invalid, sorted.
func (v *Verdict) Failing() []string {
	var out []string
	for name, score := range v.Scores {
		if score < PassingScore {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Normalized maps the mean score from the 1..5 scale onto 0..1.
func (v *Verdict) Normalized() float64 {
	if len(v.Scores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range v.Scores {
		sum += s
	}
	mean := float64(sum) / float64(len(v.Scores))
	return min(max((mean-1)/4, 0), 1)
}

// Validator scores a filled graph against a checklist in a single model call.
type Validator struct {
	Generator llm.Generator
	Logger    log.Logger
	// Criteria overrides prompt.DefaultCriteria.
	Criteria []string
	// SystemPrompt overrides prompt.SystemValidation.
	SystemPrompt string
}

// NewValidator returns a validator with the default checklist.
func NewValidator(gen llm.Generator, logger log.Logger) *Validator {
	return &Validator{Generator: gen, Logger: logger}
}

type validationPayload struct {
	Scores   map[string]int    `json:"scores"`
	Comments map[string]string `json:"comments"`
}

// Validate reads g and returns a verdict. The graph is never modified.
func (v *Validator) Validate(ctx context.Context, g *dialog.Graph, character dialog.Character, goal dialog.Goal, constraints dialog.Constraints) (*Verdict, error) {
	logger := log.OrDefault(v.Logger)
	start := time.Now()

	constraints = constraints.WithDefaults()
	if err := validateRequest(character, &goal, constraints); err != nil {
		return nil, err
	}

	text, err := prompt.Validation(g, character, goal, constraints, v.Criteria)
	if err != nil {
		return nil, err
	}
	system := v.SystemPrompt
	if system == "" {
		system = prompt.SystemValidation
	}

	raw, err := v.Generator.Generate(ctx, text, system)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}

	var payload validationPayload
	if err := llm.Decode(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode validation: %w", err)
	}

	verdict, err := NewVerdict(payload.Scores, payload.Comments)
	if err != nil {
		return nil, err
	}
	for name, score := range verdict.Scores {
		if score < 1 || score > 5 {
			logger.Warn("criterion %s scored %d, outside 1..5", name, score)
		}
	}

	logger.Info("validation done in %v: valid=%t min=%d failing=%v",
		time.Since(start).Round(time.Millisecond), verdict.IsValid, verdict.MinScore, verdict.Failing())
	return verdict, nil
}
