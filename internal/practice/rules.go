package practice

import (
	"sort"

	"github.com/coachwell/coachd/internal/models"
)

// Rule engine weights. Hand-tuned, kept as named constants.
const (
	ruleWeightCycleMatch    = 0.4
	ruleWeightEffectiveness = 0.3
	ruleWeightRepetition    = 0.2
	ruleWeightNovelty       = 0.1

	stabilizationBoost    = 0.3
	stabilizationDistress = 8

	fallbackPracticeID = "U2"
)

// First-line practices per maintaining cycle.
var firstLine = map[models.MaintainingCycle][]string{
	models.CycleRumination:      {"A2", "A3", "M2"},
	models.CycleWorry:           {"A2", "A3", "C2"},
	models.CycleAvoidance:       {"C3", "B1", "B2", "B4"},
	models.CyclePerfectionism:   {"C4", "C5", "C3"},
	models.CycleSelfCriticism:   {"C5", "A3", "A4"},
	models.CycleSymptomFixation: {"A6", "A1", "A3"},
	models.CycleInsomnia:        {"B5", "A2"},
}

// Second-line practices per maintaining cycle.
var secondLine = map[models.MaintainingCycle][]string{
	models.CycleRumination:      {"A1", "B1", "B3", "A4", "A5"},
	models.CycleWorry:           {"A1", "C3", "U3"},
	models.CycleAvoidance:       {"C1", "A6"},
	models.CyclePerfectionism:   {"M1", "M2"},
	models.CycleSelfCriticism:   {"C1", "A5", "C6"},
	models.CycleSymptomFixation: {"C2", "B4"},
	models.CycleInsomnia:        {"A3", "C2"},
}

// Universal practices, always appropriate.
var universal = map[string]bool{"M3": true, "M4": true, "U1": true, "U2": true}

// Stabilization practices, boosted at high distress.
var stabilization = map[string]bool{
	"U1": true, "U2": true, "U3": true, "U4": true, "U5": true, "U6": true,
	"A3": true, "A2": true,
}

// Candidate is one scored rule-engine candidate.
type Candidate struct {
	PracticeID   string  `json:"practice_id"`
	Score        float64 `json:"score"`
	PriorityRank int     `json:"priority_rank"`
}

// SelectionResult holds the rule engine's primary pick and optional backup.
type SelectionResult struct {
	Primary Candidate  `json:"primary"`
	Backup  *Candidate `json:"backup,omitempty"`
}

// RuleEngine ranks catalog entries deterministically. Distress never blocks
// a practice; it only boosts stabilization entries. The only hard filters
// are time budget and readiness stage.
type RuleEngine struct {
	catalog *Catalog
}

// NewRuleEngine creates a rule engine over the loaded catalog.
func NewRuleEngine(catalog *Catalog) *RuleEngine {
	return &RuleEngine{catalog: catalog}
}

// Eligible filters entries by time budget and readiness stage. At
// precontemplation only universal and micro entries pass.
func (e *RuleEngine) Eligible(timeBudget int, readiness models.Readiness) []Entry {
	var eligible []Entry
	for _, entry := range e.catalog.Entries() {
		if !entry.Active() {
			continue
		}
		if entry.DurationMin > timeBudget {
			continue
		}
		if readiness.Rank() < entry.MinReadiness.Rank() {
			continue
		}
		if readiness == models.ReadinessPrecontemplation &&
			!universal[entry.ID] && entry.Category != "micro" {
			continue
		}
		eligible = append(eligible, entry)
	}
	return eligible
}

// Select runs the full rule pipeline: eligibility filter, weighted scoring
// against the dominant cycle and usage history, stabilization boost at high
// distress, then a deterministic sort. When nothing is eligible it falls
// back to the always-safe micro practice.
func (e *RuleEngine) Select(
	distress int,
	cycle models.MaintainingCycle,
	timeBudget int,
	readiness models.Readiness,
	history map[string]models.PracticeUsage,
) SelectionResult {
	eligible := e.Eligible(timeBudget, readiness)

	first := firstLine[cycle]
	second := secondLine[cycle]

	scored := make([]Candidate, 0, len(eligible))
	for _, entry := range eligible {
		var cycleMatch float64
		switch {
		case contains(first, entry.ID):
			cycleMatch = 1.0
		case contains(second, entry.ID):
			cycleMatch = 0.5
		case len(entry.Targets) == 0 || universal[entry.ID]:
			cycleMatch = 0.3
		}

		usage, tracked := history[entry.ID]
		avgEff := usage.AvgEffectiveness
		if !tracked {
			avgEff = 5.0 // neutral prior on the 0-10 scale
		}
		timesUsed := usage.TimesUsed7d

		effectiveness := avgEff / 10.0
		var repetition, novelty float64
		switch {
		case timesUsed >= 3:
			repetition = 1.0
		case timesUsed >= 1:
			repetition, novelty = 0.5, 0.5
		default:
			novelty = 1.0
		}

		raw := cycleMatch*ruleWeightCycleMatch +
			effectiveness*ruleWeightEffectiveness -
			repetition*ruleWeightRepetition +
			novelty*ruleWeightNovelty

		if distress >= stabilizationDistress && stabilization[entry.ID] {
			raw += stabilizationBoost
		}

		scored = append(scored, Candidate{
			PracticeID:   entry.ID,
			Score:        models.Clamp01(raw),
			PriorityRank: entry.PriorityRank,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].PriorityRank < scored[j].PriorityRank
	})

	if len(scored) == 0 {
		return SelectionResult{Primary: Candidate{PracticeID: fallbackPracticeID, Score: 0.1, PriorityRank: 1}}
	}

	result := SelectionResult{Primary: scored[0]}
	if len(scored) > 1 {
		backup := scored[1]
		result.Backup = &backup
	}
	return result
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
