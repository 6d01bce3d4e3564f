// Package practice holds the static practice catalog and the deterministic
// selection machinery built on top of it: a rule engine with soft guidance
// only, and a weighted selector that returns ranked candidates.
package practice

import (
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/coachwell/coachd/internal/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

// CatalogSchemaVersion is the ruleset generation this build understands.
// Entries from the deprecated blocking ruleset are rejected at load time.
const CatalogSchemaVersion = "2"

var validCategories = map[string]bool{
	"monitoring":         true,
	"attention":          true,
	"cognitive":          true,
	"behavioral":         true,
	"micro":              true,
	"relapse_prevention": true,
}

var validUIModes = map[string]bool{
	"text":       true,
	"buttons":    true,
	"timer":      true,
	"text_input": true,
}

var validButtonActions = map[string]bool{
	"next":            true,
	"fallback":        true,
	"branch_extended": true,
	"branch_help":     true,
	"backup_practice": true,
	"end":             true,
}

var requiredFallbackKeys = []string{"user_confused", "cannot_now", "too_hard"}

// Button is one tappable choice on a step.
type Button struct {
	Label  string `yaml:"label"`
	Action string `yaml:"action"`
}

// Step is one scripted step of a guided practice.
type Step struct {
	Index       int               `yaml:"index"`
	Instruction string            `yaml:"instruction"`
	UIMode      string            `yaml:"ui_mode"`
	Checkpoint  bool              `yaml:"checkpoint"`
	Fallback    map[string]string `yaml:"fallback"`
	Buttons     []Button          `yaml:"buttons"`
}

// Entry is a single practice in the catalog.
type Entry struct {
	ID                string                    `yaml:"id"`
	Slug              string                    `yaml:"slug"`
	Title             string                    `yaml:"title"`
	Category          string                    `yaml:"category"`
	Targets           []models.MaintainingCycle `yaml:"targets"`
	Contraindications []string                  `yaml:"contraindications"`
	DurationMin       int                       `yaml:"duration_min"`
	DurationMax       int                       `yaml:"duration_max"`
	PriorityRank      int                       `yaml:"priority_rank"`
	MinReadiness      models.Readiness          `yaml:"min_readiness"`
	Inactive          bool                      `yaml:"inactive"`
	Steps             []Step                    `yaml:"steps"`
}

// Active reports whether the entry participates in selection.
func (e Entry) Active() bool { return !e.Inactive }

// Catalog is the loaded, validated practice catalog. Read-only after
// initialization and safe for concurrent use.
type Catalog struct {
	entries []Entry
	byID    map[string]Entry
}

type catalogFile struct {
	SchemaVersion string  `yaml:"schema_version"`
	Practices     []Entry `yaml:"practices"`
}

// LoadCatalog parses and validates the embedded catalog. Any structural
// problem fails the load; a process should not start with a broken catalog.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("Catalog.Load: failed to parse catalog: %w", err)
	}
	if file.SchemaVersion != CatalogSchemaVersion {
		return nil, fmt.Errorf("Catalog.Load: unsupported schema version %q (want %q)",
			file.SchemaVersion, CatalogSchemaVersion)
	}
	if len(file.Practices) == 0 {
		return nil, fmt.Errorf("Catalog.Load: %w", models.ErrCatalogEmpty)
	}

	byID := make(map[string]Entry, len(file.Practices))
	for _, entry := range file.Practices {
		if err := validateEntry(entry); err != nil {
			return nil, fmt.Errorf("Catalog.Load: %w", err)
		}
		if _, dup := byID[entry.ID]; dup {
			return nil, fmt.Errorf("Catalog.Load: duplicate practice id %q", entry.ID)
		}
		byID[entry.ID] = entry
	}

	slog.Info("Catalog.Load: practice catalog loaded",
		"count", len(file.Practices), "schema_version", file.SchemaVersion)
	return &Catalog{entries: file.Practices, byID: byID}, nil
}

func validateEntry(e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("practice with empty id")
	}
	if !validCategories[e.Category] {
		return fmt.Errorf("practice %s: invalid category %q", e.ID, e.Category)
	}
	if e.MinReadiness.Rank() < 0 {
		return fmt.Errorf("practice %s: invalid min_readiness %q", e.ID, e.MinReadiness)
	}
	if e.DurationMin < 1 || e.DurationMax < e.DurationMin {
		return fmt.Errorf("practice %s: invalid duration range %d-%d", e.ID, e.DurationMin, e.DurationMax)
	}
	for i, step := range e.Steps {
		if step.Index != i+1 {
			return fmt.Errorf("practice %s: step index continuity broken, expected %d got %d",
				e.ID, i+1, step.Index)
		}
		if !validUIModes[step.UIMode] {
			return fmt.Errorf("practice %s step %d: invalid ui_mode %q", e.ID, step.Index, step.UIMode)
		}
		for _, key := range requiredFallbackKeys {
			if _, ok := step.Fallback[key]; !ok {
				return fmt.Errorf("practice %s step %d: missing fallback key %q", e.ID, step.Index, key)
			}
		}
		for _, btn := range step.Buttons {
			if !validButtonActions[btn.Action] {
				return fmt.Errorf("practice %s step %d: invalid button action %q", e.ID, step.Index, btn.Action)
			}
		}
	}
	return nil
}

// Entries returns all catalog entries in file order.
func (c *Catalog) Entries() []Entry { return c.entries }

// Get returns the entry for id.
func (c *Catalog) Get(id string) (Entry, error) {
	entry, ok := c.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("Catalog.Get: %w: %s", models.ErrUnknownPractice, id)
	}
	return entry, nil
}

// Has reports whether id exists in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}
