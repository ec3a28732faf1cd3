package scheduler

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/burrow/internal/database"
	"github.com/dukerupert/burrow/internal/duty"
	"github.com/dukerupert/burrow/internal/model"
	"github.com/dukerupert/burrow/internal/store"
	"github.com/dukerupert/burrow/internal/wellbeing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pollerFixture struct {
	db     *sql.DB
	poller *Poller
	duties *store.DutyStore
	ward   *model.Ward
}

func setupPoller(t *testing.T) *pollerFixture {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	wards := store.NewWardStore(db)
	duties := store.NewDutyStore(db)
	scores := store.NewWellbeingStore(db)
	wb := wellbeing.NewService(wards, duties, scores, testLogger())

	ward, err := wards.Create("Bilbo", model.WardPet, "goldfish", "🐟")
	if err != nil {
		t.Fatalf("create ward: %v", err)
	}

	cfg := Config{Interval: time.Minute, OverlapGuard: 2 * time.Minute}
	p := New(cfg, duties, wb, nil, testLogger())

	return &pollerFixture{db: db, poller: p, duties: duties, ward: ward}
}

func (f *pollerFixture) addDailyTemplate(t *testing.T, hour, minute int) *duty.Template {
	t.Helper()
	rule, err := duty.DailyAt(hour, minute)
	if err != nil {
		t.Fatalf("build rule: %v", err)
	}
	tpl, err := duty.NewTemplate(f.ward.ID, "Feed the fish", rule, "UTC", 2*time.Hour, 2)
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	saved, err := f.duties.CreateTemplate(tpl)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return saved
}

func (f *pollerFixture) tickAt(now time.Time) {
	f.poller.now = func() time.Time { return now }
	f.poller.Tick()
}

func (f *pollerFixture) openCount(t *testing.T, templateID int64) int {
	t.Helper()
	open, err := f.duties.ListOpenInstancesByTemplate(templateID)
	if err != nil {
		t.Fatalf("list open instances: %v", err)
	}
	return len(open)
}

func TestTickCreatesInstanceWhenRuleFires(t *testing.T) {
	f := setupPoller(t)
	tpl := f.addDailyTemplate(t, 8, 0)

	// Window (07:59, 08:01] contains the 08:00 trigger.
	f.tickAt(time.Date(2024, 3, 10, 8, 1, 0, 0, time.UTC))

	if got := f.openCount(t, tpl.ID); got != 1 {
		t.Fatalf("open instances = %d, want 1", got)
	}

	instances, err := f.duties.ListInstancesByTemplate(tpl.ID)
	if err != nil {
		t.Fatalf("list instances: %v", err)
	}
	wantDue := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	if !instances[0].DueAt.Equal(wantDue) {
		t.Errorf("due at = %v, want trigger plus grace %v", instances[0].DueAt, wantDue)
	}
}

func TestTickOutsideWindowCreatesNothing(t *testing.T) {
	f := setupPoller(t)
	tpl := f.addDailyTemplate(t, 8, 0)

	// Window (08:03, 08:05]; the 08:00 trigger already passed.
	f.tickAt(time.Date(2024, 3, 10, 8, 5, 0, 0, time.UTC))

	if got := f.openCount(t, tpl.ID); got != 0 {
		t.Fatalf("open instances = %d, want 0", got)
	}
}

func TestOverlappingTicksFireOnce(t *testing.T) {
	f := setupPoller(t)
	tpl := f.addDailyTemplate(t, 8, 0)

	// Consecutive windows share the guard overlap; the open-start
	// boundary and the open-instance check both keep the trigger from
	// materializing twice.
	f.tickAt(time.Date(2024, 3, 10, 8, 1, 0, 0, time.UTC))
	f.tickAt(time.Date(2024, 3, 10, 8, 2, 0, 0, time.UTC))

	instances, err := f.duties.ListInstancesByTemplate(tpl.ID)
	if err != nil {
		t.Fatalf("list instances: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("instances = %d, want 1", len(instances))
	}
}

func TestTickSkipsTemplateWithOpenInstance(t *testing.T) {
	f := setupPoller(t)
	tpl := f.addDailyTemplate(t, 8, 0)

	f.tickAt(time.Date(2024, 3, 10, 8, 1, 0, 0, time.UTC))
	if got := f.openCount(t, tpl.ID); got != 1 {
		t.Fatalf("open instances = %d, want 1", got)
	}

	// The next day's trigger fires while yesterday's instance is open.
	f.tickAt(time.Date(2024, 3, 11, 8, 1, 0, 0, time.UTC))
	if got := f.openCount(t, tpl.ID); got != 1 {
		t.Fatalf("open instances after second trigger = %d, want 1", got)
	}
}

func TestTickFiresAgainAfterCompletion(t *testing.T) {
	f := setupPoller(t)
	tpl := f.addDailyTemplate(t, 8, 0)

	f.tickAt(time.Date(2024, 3, 10, 8, 1, 0, 0, time.UTC))

	open, err := f.duties.ListOpenInstancesByTemplate(tpl.ID)
	if err != nil || len(open) != 1 {
		t.Fatalf("open instances = %d (%v), want 1", len(open), err)
	}
	inst := open[0]
	if !inst.Complete(1, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)) {
		t.Fatal("complete should transition the instance")
	}
	if _, err := f.duties.SaveInstance(inst); err != nil {
		t.Fatalf("save instance: %v", err)
	}

	f.tickAt(time.Date(2024, 3, 11, 8, 1, 0, 0, time.UTC))
	if got := f.openCount(t, tpl.ID); got != 1 {
		t.Fatalf("open instances after completion = %d, want 1", got)
	}

	instances, err := f.duties.ListInstancesByTemplate(tpl.ID)
	if err != nil {
		t.Fatalf("list instances: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("total instances = %d, want 2", len(instances))
	}
}

func TestTickSkipsMisconfiguredTimezone(t *testing.T) {
	f := setupPoller(t)
	tpl := f.addDailyTemplate(t, 8, 0)

	// Corrupt the stored zone to simulate a template written before a
	// tzdata change.
	if _, err := f.db.Exec("UPDATE duty_templates SET timezone = 'Mars/Olympus' WHERE id = ?", tpl.ID); err != nil {
		t.Fatalf("corrupt timezone: %v", err)
	}

	// Must not panic or create anything; the cycle carries on.
	f.tickAt(time.Date(2024, 3, 10, 8, 1, 0, 0, time.UTC))
	if got := f.openCount(t, tpl.ID); got != 0 {
		t.Fatalf("open instances = %d, want 0", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Interval != time.Minute {
		t.Errorf("interval = %v, want 1m", cfg.Interval)
	}
	if cfg.OverlapGuard != 2*time.Minute {
		t.Errorf("overlap guard = %v, want 2m", cfg.OverlapGuard)
	}

	// Guard can never undershoot the interval.
	cfg = Config{Interval: 5 * time.Minute, OverlapGuard: time.Minute}.withDefaults()
	if cfg.OverlapGuard != 10*time.Minute {
		t.Errorf("overlap guard = %v, want 10m", cfg.OverlapGuard)
	}
}
