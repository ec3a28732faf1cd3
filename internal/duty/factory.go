package duty

import "time"

// NewInstanceFromTemplate materializes a trigger instant into a concrete
// instance. It refuses with ErrOpenInstance when any existing instance of
// the template is still open; the store enforces the same invariant with a
// partial unique index, so this scan is an optimization that saves a
// doomed insert, not the sole guard.
func NewInstanceFromTemplate(tpl Template, triggerUTC time.Time, existing []Instance) (Instance, error) {
	for idx := range existing {
		if existing[idx].Open() {
			return Instance{}, ErrOpenInstance
		}
	}

	id := tpl.ID
	return Instance{
		TemplateID:  &id,
		WardID:      tpl.WardID,
		Title:       tpl.Title,
		PointWeight: tpl.PointWeight,
		DueAt:       triggerUTC.UTC().Add(tpl.Grace),
		Status:      StatusActive,
	}, nil
}
