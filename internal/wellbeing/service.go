// Package wellbeing recomputes and stores ward scores from duty history.
package wellbeing

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/burrow/internal/duty"
	"github.com/dukerupert/burrow/internal/store"
)

type Service struct {
	wards  *store.WardStore
	duties *store.DutyStore
	scores *store.WellbeingStore
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewService(wards *store.WardStore, duties *store.DutyStore, scores *store.WellbeingStore, logger *slog.Logger) *Service {
	return &Service{
		wards:  wards,
		duties: duties,
		scores: scores,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Recompute rescores one ward from its full instance history and stores
// the result. Safe to call redundantly; same inputs give the same score.
func (s *Service) Recompute(wardID int64) (int, error) {
	ward, err := s.wards.GetByID(wardID)
	if err != nil {
		return 0, fmt.Errorf("load ward %d: %w", wardID, err)
	}
	if ward == nil {
		return 0, fmt.Errorf("ward %d: %w", wardID, duty.ErrNotFound)
	}

	instances, err := s.duties.ListInstancesByWard(wardID)
	if err != nil {
		return 0, fmt.Errorf("load instances for ward %d: %w", wardID, err)
	}

	now := s.now()
	score := duty.WellbeingScore(now, instances)
	if err := s.scores.Upsert(wardID, score, now); err != nil {
		return 0, fmt.Errorf("store score for ward %d: %w", wardID, err)
	}

	s.logger.Debug("recomputed wellbeing", "ward_id", wardID, "score", score, "instances", len(instances))
	return score, nil
}

// RecomputeAll rescores every ward. A ward that fails is logged and
// skipped; it gets another chance on the next cycle.
func (s *Service) RecomputeAll() {
	wards, err := s.wards.List()
	if err != nil {
		s.logger.Error("list wards for recompute", "error", err)
		return
	}
	for _, w := range wards {
		if _, err := s.Recompute(w.ID); err != nil {
			s.logger.Error("recompute wellbeing", "ward_id", w.ID, "error", err)
		}
	}
}
