// Package scheduler runs the periodic worker that turns due recurrence
// rules into duty instances.
package scheduler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/burrow/internal/duty"
	"github.com/dukerupert/burrow/internal/store"
	"github.com/dukerupert/burrow/internal/websocket"
	"github.com/dukerupert/burrow/internal/wellbeing"
)

type Config struct {
	// Interval is the poll cadence.
	Interval time.Duration
	// OverlapGuard is how far behind now each window reaches. Keeping it
	// above Interval means jitter or a missed tick cannot skip a trigger;
	// the open-start window boundary keeps the overlap from double-firing.
	OverlapGuard time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.OverlapGuard < c.Interval {
		c.OverlapGuard = 2 * c.Interval
	}
	return c
}

// Poller evaluates every active template against a sliding window each
// tick and materializes triggers through the instance factory. One
// template's failure never aborts the rest of the cycle.
type Poller struct {
	cfg       Config
	duties    *store.DutyStore
	wellbeing *wellbeing.Service
	hub       *websocket.Hub
	logger    *slog.Logger
	cron      *cron.Cron

	// now is swappable for tests.
	now func() time.Time
}

func New(cfg Config, duties *store.DutyStore, wb *wellbeing.Service, hub *websocket.Hub, logger *slog.Logger) *Poller {
	return &Poller{
		cfg:       cfg.withDefaults(),
		duties:    duties,
		wellbeing: wb,
		hub:       hub,
		logger:    logger,
		cron:      cron.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunNightly registers fn to run once a day at 03:00 server time, before
// Start. Used for housekeeping like database backups.
func (p *Poller) RunNightly(fn func()) error {
	_, err := p.cron.AddFunc("0 3 * * *", fn)
	return err
}

// Start begins the poll loop plus an hourly bulk wellbeing recompute.
func (p *Poller) Start() {
	p.cron.Schedule(cron.Every(p.cfg.Interval), cron.FuncJob(p.Tick))
	p.cron.Schedule(cron.Every(time.Hour), cron.FuncJob(p.wellbeing.RecomputeAll))
	p.cron.Start()
	p.logger.Info("poller started", "interval", p.cfg.Interval, "overlap_guard", p.cfg.OverlapGuard)
}

// Stop halts the cron runner and waits for an in-flight tick to finish.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.logger.Info("poller stopped")
}

// Tick runs one poll cycle over the window [now - overlapGuard, now].
func (p *Poller) Tick() {
	end := p.now()
	start := end.Add(-p.cfg.OverlapGuard)

	templates, err := p.duties.ListActiveTemplates()
	if err != nil {
		p.logger.Error("list active templates", "error", err)
		return
	}

	created := 0
	for idx := range templates {
		if p.evaluate(&templates[idx], start, end) {
			created++
		}
	}
	if created > 0 {
		p.logger.Info("poll cycle created instances", "count", created, "templates", len(templates))
	}
}

// evaluate handles one template and reports whether it created an
// instance. All failure modes are contained here.
func (p *Poller) evaluate(tpl *duty.Template, startUTC, endUTC time.Time) bool {
	trigger, ok, err := tpl.TriggerInWindow(startUTC, endUTC)
	if err != nil {
		// Unresolvable timezone: misconfigured duty, skip this cycle.
		p.logger.Warn("duty misconfigured, skipping", "template_id", tpl.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}

	open, err := p.duties.ListOpenInstancesByTemplate(tpl.ID)
	if err != nil {
		p.logger.Error("list open instances", "template_id", tpl.ID, "error", err)
		return false
	}

	inst, err := duty.NewInstanceFromTemplate(*tpl, trigger, open)
	if errors.Is(err, duty.ErrOpenInstance) {
		// Expected: the previous cycle's instance is still open.
		p.logger.Debug("previous instance still open", "template_id", tpl.ID)
		return false
	}
	if err != nil {
		p.logger.Error("materialize instance", "template_id", tpl.ID, "error", err)
		return false
	}

	saved, err := p.duties.InsertInstance(inst)
	if errors.Is(err, duty.ErrOpenInstance) {
		// A racing poller replica won the insert. Also benign.
		p.logger.Debug("open instance raced ahead", "template_id", tpl.ID)
		return false
	}
	if err != nil {
		p.logger.Error("insert instance", "template_id", tpl.ID, "error", err)
		return false
	}

	p.logger.Info("duty instance created",
		"template_id", tpl.ID, "instance_id", saved.ID, "ward_id", saved.WardID, "due_at", saved.DueAt)

	if p.hub != nil {
		p.hub.Broadcast(websocket.EventMessage(duty.CreatedEvent(*saved)))
	}
	if _, err := p.wellbeing.Recompute(saved.WardID); err != nil {
		p.logger.Error("recompute after create", "ward_id", saved.WardID, "error", err)
	}
	return true
}
