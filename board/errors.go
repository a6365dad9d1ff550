package board

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a mutation that referenced an id the board does not hold.
// The Store treats it as a no-op and never returns it.
var ErrNotFound = errors.New("board: not found")

// errNoChange ends a mutation without publishing a new snapshot.
var errNoChange = errors.New("board: no change")

// ValidationError rejects input the board cannot represent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
