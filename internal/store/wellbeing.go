package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/burrow/internal/model"
)

type WellbeingStore struct {
	db *sql.DB
}

func NewWellbeingStore(db *sql.DB) *WellbeingStore {
	return &WellbeingStore{db: db}
}

// Upsert overwrites the ward's current score. Recomputation is
// idempotent, so last write wins is fine even when a completion handler
// and the bulk job race.
func (s *WellbeingStore) Upsert(wardID int64, score int, computedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO wellbeing_scores (ward_id, score, computed_at) VALUES (?, ?, ?)
		 ON CONFLICT(ward_id) DO UPDATE SET score = excluded.score, computed_at = excluded.computed_at`,
		wardID, score, computedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

func (s *WellbeingStore) Get(wardID int64) (*model.WellbeingScore, error) {
	var ws model.WellbeingScore
	err := s.db.QueryRow(
		"SELECT ward_id, score, computed_at FROM wellbeing_scores WHERE ward_id = ?",
		wardID,
	).Scan(&ws.WardID, &ws.Score, &ws.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query score: %w", err)
	}
	return &ws, nil
}

func (s *WellbeingStore) List() ([]model.WellbeingScore, error) {
	rows, err := s.db.Query("SELECT ward_id, score, computed_at FROM wellbeing_scores ORDER BY ward_id")
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var scores []model.WellbeingScore
	for rows.Next() {
		var ws model.WellbeingScore
		if err := rows.Scan(&ws.WardID, &ws.Score, &ws.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, ws)
	}
	return scores, rows.Err()
}
