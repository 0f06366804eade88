package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrChoiceRouting is returned when a generated choice points outside the node's children.
	ErrChoiceRouting = errors.New("choice routing error")

	// ErrEmptyEvaluation is returned when the validator receives no scores.
	ErrEmptyEvaluation = errors.New("empty evaluation")
)

// ChoiceRoutingError names the node and the undeclared target of a rejected choice.
type ChoiceRoutingError struct {
	NodeID  string
	Target  string
	Allowed []string
}

func (e *ChoiceRoutingError) Error() string {
	return fmt.Sprintf("%s: node %q routes a choice to %q, allowed: [%s]",
		ErrChoiceRouting, e.NodeID, e.Target, strings.Join(e.Allowed, ", "))
}

func (e *ChoiceRoutingError) Unwrap() error {
	return ErrChoiceRouting
}
