package model

import "time"

// WardKind distinguishes the two things a household cares for: living
// pets and fixed spots (the aquarium corner, the balcony planters).
type WardKind string

const (
	WardPet  WardKind = "pet"
	WardSpot WardKind = "spot"
)

// Ward is a duty owner: the pet or spot whose wellbeing the duties
// attached to it maintain.
type Ward struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Kind        WardKind  `json:"kind"`
	Species     string    `json:"species"`
	AvatarEmoji string    `json:"avatar_emoji"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WellbeingScore is the current derived 0-100 score for a ward. It is
// overwritten on every recompute; there is no history.
type WellbeingScore struct {
	WardID     int64     `json:"ward_id"`
	Score      int       `json:"score"`
	ComputedAt time.Time `json:"computed_at"`
}
