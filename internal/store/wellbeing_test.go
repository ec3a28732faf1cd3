package store

import (
	"testing"
	"time"

	"github.com/dukerupert/burrow/internal/database"
)

func TestWellbeingUpsert(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ws := NewWellbeingStore(db)
	wards := NewWardStore(db)

	ward, err := wards.Create("Hallway ferns", "spot", "plants", "🌿")
	if err != nil {
		t.Fatalf("create ward: %v", err)
	}

	if got, err := ws.Get(ward.ID); err != nil || got != nil {
		t.Fatalf("get before upsert = %v, %v; want nil, nil", got, err)
	}

	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	if err := ws.Upsert(ward.ID, 85, now); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := ws.Get(ward.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Score != 85 {
		t.Errorf("score = %d, want 85", got.Score)
	}

	// Overwrite, not append.
	if err := ws.Upsert(ward.ID, 40, now.Add(time.Hour)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	all, err := ws.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].Score != 40 {
		t.Errorf("scores = %+v, want one row with score 40", all)
	}
}
