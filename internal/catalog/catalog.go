// Package catalog holds the default duty tables applied to a new ward.
// This is configuration data, not engine behavior: editing defaults.json
// changes what a new goldfish gets without touching the scheduler.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/burrow/internal/duty"
	"github.com/dukerupert/burrow/internal/model"
)

//go:embed defaults.json
var defaultsJSON []byte

// Entry is one default duty in a species' catalog.
type Entry struct {
	Title       string `json:"title"`
	Rule        string `json:"rule"`
	GraceHours  int    `json:"grace_hours"`
	PointWeight int    `json:"point_weight"`
}

// Template builds a validated engine template from the entry.
func (e Entry) Template(wardID int64, timezone string) (duty.Template, error) {
	rule, err := duty.Parse(e.Rule)
	if err != nil {
		return duty.Template{}, fmt.Errorf("catalog rule %q: %w", e.Rule, err)
	}
	return duty.NewTemplate(wardID, e.Title, rule, timezone, time.Duration(e.GraceHours)*time.Hour, e.PointWeight)
}

type tables struct {
	Pets  map[string][]Entry `json:"pets"`
	Spots map[string][]Entry `json:"spots"`
}

var defaults tables

func init() {
	if err := json.Unmarshal(defaultsJSON, &defaults); err != nil {
		panic(fmt.Sprintf("catalog: bad defaults.json: %v", err))
	}
}

// Defaults returns the default duties for a ward kind and species.
// Unknown species get no defaults; that is not an error.
func Defaults(kind model.WardKind, species string) []Entry {
	key := strings.ToLower(strings.TrimSpace(species))
	if kind == model.WardSpot {
		return defaults.Spots[key]
	}
	return defaults.Pets[key]
}

// Species lists the species names that have a catalog for the kind.
func Species(kind model.WardKind) []string {
	m := defaults.Pets
	if kind == model.WardSpot {
		m = defaults.Spots
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
