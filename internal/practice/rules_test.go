package practice

import (
	"testing"

	"github.com/coachwell/coachd/internal/models"
)

func newTestEngine(t *testing.T) *RuleEngine {
	t.Helper()
	catalog, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	return NewRuleEngine(catalog)
}

func eligibleIDs(entries []Entry) map[string]bool {
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		ids[e.ID] = true
	}
	return ids
}

func TestHighDistressDoesNotBlock(t *testing.T) {
	engine := newTestEngine(t)
	ids := eligibleIDs(engine.Eligible(10, models.ReadinessAction))
	if !ids["C1"] || !ids["C2"] {
		t.Errorf("cognitive practices must stay eligible regardless of distress, got %v", ids)
	}
}

func TestStabilizationBoostedAtHighDistress(t *testing.T) {
	engine := newTestEngine(t)
	result := engine.Select(9, models.CycleRumination, 5, models.ReadinessAction, nil)
	stabilizing := map[string]bool{
		"A2": true, "A3": true, "M2": true,
		"U1": true, "U2": true, "U3": true, "U4": true, "U5": true, "U6": true,
	}
	if !stabilizing[result.Primary.PracticeID] {
		t.Errorf("expected a stabilization or first-line pick at distress 9, got %s", result.Primary.PracticeID)
	}
}

func TestTimeBudgetFilters(t *testing.T) {
	engine := newTestEngine(t)
	for _, e := range engine.Eligible(2, models.ReadinessAction) {
		if e.DurationMin > 2 {
			t.Errorf("%s: duration_min %d exceeds budget 2", e.ID, e.DurationMin)
		}
	}
}

func TestPrecontemplationLimitedToMicro(t *testing.T) {
	engine := newTestEngine(t)
	allowed := map[string]bool{
		"M3": true, "M4": true,
		"U1": true, "U2": true, "U3": true, "U4": true, "U5": true, "U6": true,
	}
	for _, e := range engine.Eligible(10, models.ReadinessPrecontemplation) {
		if !allowed[e.ID] {
			t.Errorf("%s should not be eligible at precontemplation", e.ID)
		}
	}
}

func TestMaintenanceUnlocksRelapsePrevention(t *testing.T) {
	engine := newTestEngine(t)
	ids := eligibleIDs(engine.Eligible(20, models.ReadinessMaintenance))
	for _, want := range []string{"R1", "R2", "R3"} {
		if !ids[want] {
			t.Errorf("expected %s eligible at maintenance", want)
		}
	}
}

func TestFullCatalogEligibleAtMaintenance(t *testing.T) {
	engine := newTestEngine(t)
	if got := len(engine.Eligible(30, models.ReadinessMaintenance)); got != 30 {
		t.Errorf("expected all 30 practices eligible, got %d", got)
	}
}

func TestInsomniaCycleMaps(t *testing.T) {
	engine := newTestEngine(t)
	result := engine.Select(5, models.CycleInsomnia, 10, models.ReadinessAction, nil)
	if id := result.Primary.PracticeID; id != "B5" && id != "A2" {
		t.Errorf("expected an insomnia first-line pick, got %s", id)
	}
}

func TestFirstLineScoresHigher(t *testing.T) {
	engine := newTestEngine(t)
	result := engine.Select(5, models.CycleRumination, 10, models.ReadinessAction, nil)
	if id := result.Primary.PracticeID; id != "A2" && id != "A3" && id != "M2" {
		t.Errorf("expected a rumination first-line pick, got %s", id)
	}
}

func TestReturnsPrimaryAndBackup(t *testing.T) {
	engine := newTestEngine(t)
	result := engine.Select(5, models.CycleWorry, 10, models.ReadinessAction, nil)
	if result.Backup == nil {
		t.Fatal("expected a backup candidate")
	}
	if result.Primary.PracticeID == result.Backup.PracticeID {
		t.Error("primary and backup must differ")
	}
}

func TestScoreClamped(t *testing.T) {
	engine := newTestEngine(t)
	history := map[string]models.PracticeUsage{
		"A2": {TimesUsed7d: 10, AvgEffectiveness: 0},
	}
	result := engine.Select(5, models.CycleRumination, 5, models.ReadinessAction, history)
	if s := result.Primary.Score; s < 0 || s > 1 {
		t.Errorf("score %v out of [0,1]", s)
	}
}

func TestTiebreakByPriorityRank(t *testing.T) {
	engine := newTestEngine(t)
	// A2, A3, and M2 are all first-line for rumination with identical
	// scores absent history; the lowest rank must win.
	result := engine.Select(5, models.CycleRumination, 5, models.ReadinessAction, nil)
	if result.Primary.PracticeID != "M2" {
		t.Errorf("expected M2 by rank tiebreak, got %s", result.Primary.PracticeID)
	}
}

func TestFallbackWhenNothingEligible(t *testing.T) {
	engine := newTestEngine(t)
	// Budget 0 filters everything out.
	result := engine.Select(5, models.CycleRumination, 0, models.ReadinessAction, nil)
	if result.Primary.PracticeID != fallbackPracticeID {
		t.Errorf("expected %s fallback, got %s", fallbackPracticeID, result.Primary.PracticeID)
	}
	if result.Backup != nil {
		t.Error("fallback result should carry no backup")
	}
}
