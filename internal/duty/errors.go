package duty

import (
	"errors"
	"fmt"
)

var (
	// ErrOpenInstance means a template already has an instance that is not
	// yet completed. For the poller this is the normal outcome when the
	// previous cycle's instance is still open.
	ErrOpenInstance = errors.New("duty: open instance exists for template")

	// ErrInvalidTimezone means a timezone id could not be resolved.
	ErrInvalidTimezone = errors.New("duty: invalid timezone")

	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("duty: not found")
)

// ValidationError reports a rule or template parameter out of range.
// Construction fails fast; values are never silently clamped.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("duty: invalid %s: %s", e.Field, e.Reason)
}
