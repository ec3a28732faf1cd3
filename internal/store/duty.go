package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/burrow/internal/duty"
)

// DutyStore persists duty templates and instances. It is the only place
// that rehydrates engine types from rows; the engine's own constructors
// stay the single validated way to build them anywhere else.
type DutyStore struct {
	db *sql.DB
}

func NewDutyStore(db *sql.DB) *DutyStore {
	return &DutyStore{db: db}
}

// --- Template methods ---

const templateCols = `id, ward_id, title, rule, timezone, grace_seconds, point_weight, active, created_at, updated_at`

func scanTemplate(scanner interface{ Scan(...any) error }) (*duty.Template, error) {
	var (
		t            duty.Template
		ruleText     string
		graceSeconds int64
	)
	err := scanner.Scan(&t.ID, &t.WardID, &t.Title, &ruleText, &t.Timezone, &graceSeconds, &t.PointWeight, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rule, err := duty.Parse(ruleText)
	if err != nil {
		return nil, fmt.Errorf("stored rule %q: %w", ruleText, err)
	}
	t.Rule = rule
	t.Grace = time.Duration(graceSeconds) * time.Second
	return &t, nil
}

func (s *DutyStore) CreateTemplate(t duty.Template) (*duty.Template, error) {
	result, err := s.db.Exec(
		`INSERT INTO duty_templates (ward_id, title, rule, timezone, grace_seconds, point_weight, active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.WardID, t.Title, t.Rule.String(), t.Timezone, int64(t.Grace/time.Second), t.PointWeight, t.Active,
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetTemplate(id)
}

func (s *DutyStore) GetTemplate(id int64) (*duty.Template, error) {
	row := s.db.QueryRow(`SELECT `+templateCols+` FROM duty_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return t, nil
}

func (s *DutyStore) ListTemplates() ([]duty.Template, error) {
	return s.listTemplates(`SELECT ` + templateCols + ` FROM duty_templates ORDER BY ward_id, title`)
}

func (s *DutyStore) ListTemplatesByWard(wardID int64) ([]duty.Template, error) {
	return s.listTemplates(`SELECT `+templateCols+` FROM duty_templates WHERE ward_id = ? ORDER BY title`, wardID)
}

// ListActiveTemplates returns every template the poller should evaluate.
func (s *DutyStore) ListActiveTemplates() ([]duty.Template, error) {
	return s.listTemplates(`SELECT ` + templateCols + ` FROM duty_templates WHERE active = 1 ORDER BY id`)
}

func (s *DutyStore) listTemplates(query string, args ...any) ([]duty.Template, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var templates []duty.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

func (s *DutyStore) UpdateTemplate(t duty.Template) (*duty.Template, error) {
	_, err := s.db.Exec(
		`UPDATE duty_templates
		 SET title = ?, rule = ?, timezone = ?, grace_seconds = ?, point_weight = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		t.Title, t.Rule.String(), t.Timezone, int64(t.Grace/time.Second), t.PointWeight, t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return s.GetTemplate(t.ID)
}

func (s *DutyStore) SetTemplateActive(id int64, active bool) error {
	_, err := s.db.Exec(
		"UPDATE duty_templates SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		active, id,
	)
	if err != nil {
		return fmt.Errorf("set template active: %w", err)
	}
	return nil
}

// DeleteTemplate removes a template. It refuses while instances still
// reference it; deactivate instead to stop a duty without losing history.
func (s *DutyStore) DeleteTemplate(id int64) error {
	var refs int
	err := s.db.QueryRow("SELECT COUNT(*) FROM duty_instances WHERE template_id = ?", id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("count instances: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("template %d has %d instances: deactivate instead", id, refs)
	}
	_, err = s.db.Exec("DELETE FROM duty_templates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

// --- Instance methods ---

const instanceCols = `id, template_id, ward_id, title, point_weight, due_at, status, started_by, completed_by, completed_at, created_at`

func scanInstance(scanner interface{ Scan(...any) error }) (*duty.Instance, error) {
	var (
		i           duty.Instance
		templateID  sql.NullInt64
		startedBy   sql.NullInt64
		completedBy sql.NullInt64
		completedAt sql.NullTime
	)
	err := scanner.Scan(&i.ID, &templateID, &i.WardID, &i.Title, &i.PointWeight, &i.DueAt, &i.Status, &startedBy, &completedBy, &completedAt, &i.CreatedAt)
	if err != nil {
		return nil, err
	}
	if templateID.Valid {
		i.TemplateID = &templateID.Int64
	}
	if startedBy.Valid {
		i.StartedBy = &startedBy.Int64
	}
	if completedBy.Valid {
		i.CompletedBy = &completedBy.Int64
	}
	if completedAt.Valid {
		t := completedAt.Time
		i.CompletedAt = &t
	}
	return &i, nil
}

// InsertInstance persists a freshly materialized instance. A violation of
// the one-open-instance index comes back as duty.ErrOpenInstance so the
// poller can treat a racing replica's win as the benign conflict it is.
func (s *DutyStore) InsertInstance(i duty.Instance) (*duty.Instance, error) {
	var templateID any
	if i.TemplateID != nil {
		templateID = *i.TemplateID
	}
	result, err := s.db.Exec(
		`INSERT INTO duty_instances (template_id, ward_id, title, point_weight, due_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		templateID, i.WardID, i.Title, i.PointWeight, i.DueAt.UTC(), i.Status,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, duty.ErrOpenInstance
		}
		return nil, fmt.Errorf("insert instance: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetInstance(id)
}

func (s *DutyStore) GetInstance(id int64) (*duty.Instance, error) {
	row := s.db.QueryRow(`SELECT `+instanceCols+` FROM duty_instances WHERE id = ?`, id)
	i, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query instance: %w", err)
	}
	return i, nil
}

func (s *DutyStore) ListInstancesByTemplate(templateID int64) ([]duty.Instance, error) {
	return s.listInstances(`SELECT `+instanceCols+` FROM duty_instances WHERE template_id = ? ORDER BY due_at`, templateID)
}

// ListOpenInstancesByTemplate is what the factory consults before
// materializing a trigger.
func (s *DutyStore) ListOpenInstancesByTemplate(templateID int64) ([]duty.Instance, error) {
	return s.listInstances(
		`SELECT `+instanceCols+` FROM duty_instances WHERE template_id = ? AND status != 'completed' ORDER BY due_at`,
		templateID,
	)
}

func (s *DutyStore) ListInstancesByWard(wardID int64) ([]duty.Instance, error) {
	return s.listInstances(`SELECT `+instanceCols+` FROM duty_instances WHERE ward_id = ? ORDER BY due_at DESC`, wardID)
}

func (s *DutyStore) ListOpenInstances() ([]duty.Instance, error) {
	return s.listInstances(`SELECT ` + instanceCols + ` FROM duty_instances WHERE status != 'completed' ORDER BY due_at`)
}

func (s *DutyStore) listInstances(query string, args ...any) ([]duty.Instance, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	var instances []duty.Instance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, *i)
	}
	return instances, rows.Err()
}

// SaveInstance writes back the mutable lifecycle fields after a
// Start/Release/Complete transition.
func (s *DutyStore) SaveInstance(i duty.Instance) (*duty.Instance, error) {
	var startedBy, completedBy, completedAt any
	if i.StartedBy != nil {
		startedBy = *i.StartedBy
	}
	if i.CompletedBy != nil {
		completedBy = *i.CompletedBy
	}
	if i.CompletedAt != nil {
		completedAt = i.CompletedAt.UTC()
	}
	_, err := s.db.Exec(
		`UPDATE duty_instances SET status = ?, started_by = ?, completed_by = ?, completed_at = ? WHERE id = ?`,
		i.Status, startedBy, completedBy, completedAt, i.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("save instance: %w", err)
	}
	return s.GetInstance(i.ID)
}

func (s *DutyStore) DeleteInstance(id int64) error {
	_, err := s.db.Exec("DELETE FROM duty_instances WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	return nil
}
