package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/burrow/internal/model"
)

type WardStore struct {
	db *sql.DB
}

func NewWardStore(db *sql.DB) *WardStore {
	return &WardStore{db: db}
}

const wardCols = `id, name, kind, species, avatar_emoji, created_at, updated_at`

func scanWard(scanner interface{ Scan(...any) error }) (*model.Ward, error) {
	var w model.Ward
	err := scanner.Scan(&w.ID, &w.Name, &w.Kind, &w.Species, &w.AvatarEmoji, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *WardStore) Create(name string, kind model.WardKind, species, avatarEmoji string) (*model.Ward, error) {
	result, err := s.db.Exec(
		"INSERT INTO wards (name, kind, species, avatar_emoji) VALUES (?, ?, ?, ?)",
		name, kind, species, avatarEmoji,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *WardStore) List() ([]model.Ward, error) {
	rows, err := s.db.Query(`SELECT ` + wardCols + ` FROM wards ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query wards: %w", err)
	}
	defer rows.Close()

	var wards []model.Ward
	for rows.Next() {
		w, err := scanWard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ward: %w", err)
		}
		wards = append(wards, *w)
	}
	return wards, rows.Err()
}

func (s *WardStore) GetByID(id int64) (*model.Ward, error) {
	row := s.db.QueryRow(`SELECT `+wardCols+` FROM wards WHERE id = ?`, id)
	w, err := scanWard(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ward: %w", err)
	}
	return w, nil
}

func (s *WardStore) Update(id int64, name string, kind model.WardKind, species, avatarEmoji string) (*model.Ward, error) {
	_, err := s.db.Exec(
		"UPDATE wards SET name = ?, kind = ?, species = ?, avatar_emoji = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		name, kind, species, avatarEmoji, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update ward: %w", err)
	}
	return s.GetByID(id)
}

func (s *WardStore) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM wards WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete ward: %w", err)
	}
	return nil
}
