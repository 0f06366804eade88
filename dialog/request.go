package dialog

import (
	"errors"
	"fmt"
)

// Character describes the NPC the dialogue is written for.
type Character struct {
	Name          string            `json:"name" yaml:"name"`
	Goals         []string          `json:"goals" yaml:"goals"`
	Personality   string            `json:"personality,omitempty" yaml:"personality,omitempty"`
	HistPeriod    string            `json:"hist_period,omitempty" yaml:"hist_period,omitempty"`
	Geography     string            `json:"geography,omitempty" yaml:"geography,omitempty"`
	Background    string            `json:"background,omitempty" yaml:"background,omitempty"`
	SpeechStyle   string            `json:"speech_style,omitempty" yaml:"speech_style,omitempty"`
	Relationships map[string]string `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	// ScriptText is free text from the scenario writer, passed to the model verbatim.
	ScriptText string `json:"script_text,omitempty" yaml:"script_text,omitempty"`
}

// Validate checks the fields every prompt relies on.
func (c Character) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: character name is required", ErrInvalidRequest)
	}
	if len(c.Goals) == 0 {
		return fmt.Errorf("%w: character %q has no goals", ErrInvalidRequest, c.Name)
	}
	return nil
}

// GoalCondition is a condition under which the dialogue goal is reached.
type GoalCondition struct {
	Description string `json:"description" yaml:"description"`
	CondType    string `json:"cond_type,omitempty" yaml:"cond_type,omitempty"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Goal is what the player tries to achieve in the conversation.
type Goal struct {
	Type            string          `json:"type" yaml:"type"`
	Target          string          `json:"target" yaml:"target"`
	Conditions      []GoalCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	SuccessCriteria []string        `json:"success_criteria,omitempty" yaml:"success_criteria,omitempty"`
	Difficulty      int             `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
}

// Validate checks the goal and applies the default difficulty of 1.
func (g *Goal) Validate() error {
	if g.Type == "" || g.Target == "" {
		return fmt.Errorf("%w: goal type and target are required", ErrInvalidRequest)
	}
	if g.Difficulty == 0 {
		g.Difficulty = 1
	}
	if g.Difficulty < 1 || g.Difficulty > 5 {
		return fmt.Errorf("%w: goal difficulty %d outside 1..5", ErrInvalidRequest, g.Difficulty)
	}
	return nil
}

// Constraints bound the shape of the generated graph.
type Constraints struct {
	MaxTurns      int    `json:"max_turns" yaml:"max_turns"`
	MinTurns      int    `json:"min_turns" yaml:"min_turns"`
	MinStorylines int    `json:"min_storylines" yaml:"min_storylines"`
	MaxStorylines int    `json:"max_storylines" yaml:"max_storylines"`
	MaxChoices    int    `json:"max_choices" yaml:"max_choices"`
	ContentRating string `json:"content_rating,omitempty" yaml:"content_rating,omitempty"`
	Style         string `json:"style,omitempty" yaml:"style,omitempty"`
}

// DefaultConstraints returns the constraints used when a request leaves them out.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxTurns:      5,
		MinTurns:      3,
		MinStorylines: 1,
		MaxStorylines: 3,
		MaxChoices:    3,
	}
}

// WithDefaults fills zero-valued bounds from DefaultConstraints.
func (c Constraints) WithDefaults() Constraints {
	d := DefaultConstraints()
	if c.MaxTurns == 0 {
		c.MaxTurns = d.MaxTurns
	}
	if c.MinTurns == 0 {
		c.MinTurns = min(d.MinTurns, c.MaxTurns)
	}
	if c.MaxStorylines == 0 {
		c.MaxStorylines = d.MaxStorylines
	}
	if c.MinStorylines == 0 {
		c.MinStorylines = min(d.MinStorylines, c.MaxStorylines)
	}
	if c.MaxChoices == 0 {
		c.MaxChoices = d.MaxChoices
	}
	return c
}

// Validate checks that every bound is positive and every range is ordered.
func (c Constraints) Validate() error {
	var errs []error
	if c.MaxTurns < 1 || c.MinTurns < 1 {
		errs = append(errs, fmt.Errorf("turn bounds must be positive (min %d, max %d)", c.MinTurns, c.MaxTurns))
	} else if c.MinTurns > c.MaxTurns {
		errs = append(errs, fmt.Errorf("min turns %d exceeds max turns %d", c.MinTurns, c.MaxTurns))
	}
	if c.MaxStorylines < 1 || c.MinStorylines < 1 {
		errs = append(errs, fmt.Errorf("storyline bounds must be positive (min %d, max %d)", c.MinStorylines, c.MaxStorylines))
	} else if c.MinStorylines > c.MaxStorylines {
		errs = append(errs, fmt.Errorf("min storylines %d exceeds max storylines %d", c.MinStorylines, c.MaxStorylines))
	}
	if c.MaxChoices < 1 {
		errs = append(errs, fmt.Errorf("max choices must be positive, got %d", c.MaxChoices))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, errors.Join(errs...))
	}
	return nil
}
