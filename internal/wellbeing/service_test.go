package wellbeing

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/burrow/internal/database"
	"github.com/dukerupert/burrow/internal/duty"
	"github.com/dukerupert/burrow/internal/model"
	"github.com/dukerupert/burrow/internal/store"
)

func setupService(t *testing.T) (*Service, *store.WardStore, *store.DutyStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	wards := store.NewWardStore(db)
	duties := store.NewDutyStore(db)
	scores := store.NewWellbeingStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(wards, duties, scores, logger), wards, duties
}

func TestRecomputeUnknownWard(t *testing.T) {
	svc, _, _ := setupService(t)
	if _, err := svc.Recompute(999); !errors.Is(err, duty.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestRecomputeStoresScore(t *testing.T) {
	svc, wards, duties := setupService(t)

	ward, err := wards.Create("Smaug", model.WardPet, "bearded dragon", "🦎")
	if err != nil {
		t.Fatalf("create ward: %v", err)
	}

	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	// No duties yet: a ward with nothing asked of it is perfectly happy.
	score, err := svc.Recompute(ward.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if score != 100 {
		t.Errorf("score = %d, want 100", score)
	}

	// One completed-late instance: half credit.
	due := now.Add(-24 * time.Hour)
	inst, err := duty.NewOneOff(ward.ID, "Mist the terrarium", 2, due)
	if err != nil {
		t.Fatalf("new one-off: %v", err)
	}
	saved, err := duties.InsertInstance(inst)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	saved.Complete(1, due.Add(2*time.Hour))
	if _, err := duties.SaveInstance(*saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	score, err = svc.Recompute(ward.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if score != 50 {
		t.Errorf("score = %d, want 50", score)
	}
}

func TestRecomputeAllSurvivesPartialState(t *testing.T) {
	svc, wards, duties := setupService(t)

	a, _ := wards.Create("Bilbo", model.WardPet, "goldfish", "🐟")
	b, _ := wards.Create("Balcony", model.WardSpot, "planters", "🪴")

	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	inst, _ := duty.NewOneOff(a.ID, "Feed", 1, now.Add(-8*24*time.Hour))
	if _, err := duties.InsertInstance(inst); err != nil {
		t.Fatalf("insert: %v", err)
	}

	svc.RecomputeAll()

	scoreA, err := svc.Recompute(a.ID)
	if err != nil {
		t.Fatalf("recompute a: %v", err)
	}
	if scoreA != 0 {
		t.Errorf("ward a score = %d, want 0 (a week overdue)", scoreA)
	}
	scoreB, err := svc.Recompute(b.ID)
	if err != nil {
		t.Fatalf("recompute b: %v", err)
	}
	if scoreB != 100 {
		t.Errorf("ward b score = %d, want 100", scoreB)
	}
}
