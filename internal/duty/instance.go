package duty

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Instance is one concrete occurrence of a duty with its own due time.
// TemplateID is nil for one-off duties. State only changes through
// Start, Release, and Complete; a completed instance never changes again.
type Instance struct {
	ID          int64      `json:"id"`
	TemplateID  *int64     `json:"template_id,omitempty"`
	WardID      int64      `json:"ward_id"`
	Title       string     `json:"title"`
	PointWeight int        `json:"point_weight"`
	DueAt       time.Time  `json:"due_at"`
	Status      Status     `json:"status"`
	StartedBy   *int64     `json:"started_by,omitempty"`
	CompletedBy *int64     `json:"completed_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewOneOff builds a one-off instance not tied to any template.
func NewOneOff(wardID int64, title string, pointWeight int, dueAtUTC time.Time) (Instance, error) {
	if pointWeight < MinPointWeight || pointWeight > MaxPointWeight {
		return Instance{}, &ValidationError{Field: "point_weight", Reason: fmt.Sprintf("%d out of range [%d,%d]", pointWeight, MinPointWeight, MaxPointWeight)}
	}
	return Instance{
		WardID:      wardID,
		Title:       title,
		PointWeight: pointWeight,
		DueAt:       dueAtUTC.UTC(),
		Status:      StatusActive,
	}, nil
}

// Open reports whether the instance still needs doing.
func (i *Instance) Open() bool {
	return i.Status != StatusCompleted
}

// Start claims an active instance for a member. Calling it again while
// already in progress or completed is a no-op and leaves StartedBy alone.
func (i *Instance) Start(memberID int64) bool {
	if i.Status != StatusActive {
		return false
	}
	i.Status = StatusInProgress
	i.StartedBy = &memberID
	return true
}

// Release puts an in-progress instance back up for grabs. Whether the
// caller is the member who started it is the caller's check, not ours.
func (i *Instance) Release() bool {
	if i.Status != StatusInProgress {
		return false
	}
	i.Status = StatusActive
	i.StartedBy = nil
	return true
}

// Complete finishes the instance. Terminal and idempotent: a second call
// leaves the original CompletedBy/CompletedAt untouched.
func (i *Instance) Complete(memberID int64, atUTC time.Time) bool {
	if i.Status == StatusCompleted {
		return false
	}
	at := atUTC.UTC()
	i.Status = StatusCompleted
	i.CompletedBy = &memberID
	i.CompletedAt = &at
	return true
}

// CompletedLate reports whether the instance was completed after its due
// time. Always false while the instance is open.
func (i *Instance) CompletedLate() bool {
	return i.Status == StatusCompleted && i.CompletedAt != nil && i.CompletedAt.After(i.DueAt)
}
