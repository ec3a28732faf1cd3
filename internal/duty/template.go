package duty

import (
	"fmt"
	"time"
)

const (
	MinGrace = time.Hour
	MaxGrace = 720 * time.Hour

	MinPointWeight = 1
	MaxPointWeight = 4
)

// Template is the durable definition of a recurring duty: a rule, the
// grace allowance between a trigger and the due time, and the ward the
// duty cares for.
type Template struct {
	ID          int64         `json:"id"`
	WardID      int64         `json:"ward_id"`
	Title       string        `json:"title"`
	Rule        Rule          `json:"-"`
	Timezone    string        `json:"timezone"`
	Grace       time.Duration `json:"-"`
	PointWeight int           `json:"point_weight"`
	Active      bool          `json:"active"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewTemplate validates and builds a template. This is the only way a
// template comes into existence outside the persistence layer.
func NewTemplate(wardID int64, title string, rule Rule, timezone string, grace time.Duration, pointWeight int) (Template, error) {
	if _, err := ResolveZone(timezone); err != nil {
		return Template{}, err
	}
	if grace < MinGrace || grace > MaxGrace {
		return Template{}, &ValidationError{Field: "grace", Reason: fmt.Sprintf("%s out of range [%s,%s]", grace, MinGrace, MaxGrace)}
	}
	if pointWeight < MinPointWeight || pointWeight > MaxPointWeight {
		return Template{}, &ValidationError{Field: "point_weight", Reason: fmt.Sprintf("%d out of range [%d,%d]", pointWeight, MinPointWeight, MaxPointWeight)}
	}
	return Template{
		WardID:      wardID,
		Title:       title,
		Rule:        rule,
		Timezone:    timezone,
		Grace:       grace,
		PointWeight: pointWeight,
		Active:      true,
	}, nil
}

// NextOccurrence evaluates the template's rule in its own timezone.
func (t Template) NextOccurrence(afterUTC time.Time) (time.Time, bool, error) {
	loc, err := ResolveZone(t.Timezone)
	if err != nil {
		return time.Time{}, false, err
	}
	next, ok := t.Rule.NextOccurrence(afterUTC, loc)
	return next, ok, nil
}

// TriggerInWindow reports the template's trigger inside (startUTC, endUTC].
func (t Template) TriggerInWindow(startUTC, endUTC time.Time) (time.Time, bool, error) {
	loc, err := ResolveZone(t.Timezone)
	if err != nil {
		return time.Time{}, false, err
	}
	next, ok := t.Rule.TriggerInWindow(startUTC, endUTC, loc)
	return next, ok, nil
}
