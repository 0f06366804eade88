package dialog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStructuralViolation is returned when a graph breaks one of its structural invariants.
	ErrStructuralViolation = errors.New("structural violation")

	// ErrNotFound is returned when a node id is absent from the graph.
	ErrNotFound = errors.New("node not found")

	// ErrInvalidRequest is returned when a character, goal or constraints value is unusable.
	ErrInvalidRequest = errors.New("invalid request")
)

// ViolationError collects every invariant violation found while building a graph.
type ViolationError struct {
	Violations []string
}

func (e *ViolationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s: %s", ErrStructuralViolation, e.Violations[0])
	}
	return fmt.Sprintf("%s: %d problems:\n  - %s",
		ErrStructuralViolation, len(e.Violations), strings.Join(e.Violations, "\n  - "))
}

// Unwrap lets errors.Is match ErrStructuralViolation.
func (e *ViolationError) Unwrap() error {
	return ErrStructuralViolation
}

func (e *ViolationError) add(format string, args ...any) {
	e.Violations = append(e.Violations, fmt.Sprintf(format, args...))
}

func (e *ViolationError) orNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

func notFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, id)
}
