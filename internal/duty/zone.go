package duty

import (
	"fmt"
	"strings"
	"time"
)

// ResolveZone resolves an IANA timezone id like "America/Los_Angeles".
// An unresolvable id yields ErrInvalidTimezone; callers treat that as
// "template misconfigured" and skip it rather than aborting the cycle.
func ResolveZone(id string) (*time.Location, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, id)
	}
	return loc, nil
}
