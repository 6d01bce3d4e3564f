package practice

import (
	"sort"
	"testing"

	"github.com/coachwell/coachd/internal/models"
)

var selectorEntries = []Entry{
	{
		ID: "U2", Slug: "grounding", Title: "Grounding Exercise",
		Category: "micro", Targets: []models.MaintainingCycle{models.CycleAnxiety},
		DurationMin: 5, DurationMax: 5, PriorityRank: 1,
		MinReadiness: models.ReadinessPrecontemplation,
	},
	{
		ID: "C1", Slug: "socratic", Title: "Socratic Questioning",
		Category: "cognitive", Targets: []models.MaintainingCycle{models.CycleRumination},
		DurationMin: 8, DurationMax: 10, PriorityRank: 30,
		MinReadiness: models.ReadinessAction,
	},
	{
		ID: "C3", Slug: "behavioral-experiment", Title: "Behavioral Experiment",
		Category: "cognitive", Targets: []models.MaintainingCycle{models.CycleAvoidance},
		Contraindications: []string{"high_distress"},
		DurationMin:       15, DurationMax: 20, PriorityRank: 35,
		MinReadiness: models.ReadinessAction,
	},
}

func testContext(e models.EmotionalState) models.ContextState {
	return models.ContextState{
		RiskLevel:            models.RiskLow,
		EmotionalState:       e,
		ReadinessForPractice: 0.5,
		Confidence:           0.8,
	}
}

func TestSelectorReturnsRankedList(t *testing.T) {
	s := &Selector{entries: selectorEntries}
	results := s.Select(testContext(models.EmotionalState{Anxiety: 0.5}), nil, nil, DefaultTopK)
	if len(results) == 0 {
		t.Fatal("expected candidates")
	}
	for _, r := range results {
		if r.Confidence != 0.8 {
			t.Errorf("%s: confidence %v not propagated", r.PracticeID, r.Confidence)
		}
	}
}

func TestSelectorDominantSignalRanksFirst(t *testing.T) {
	s := &Selector{entries: selectorEntries}

	results := s.Select(testContext(models.EmotionalState{Anxiety: 0.9}), nil, nil, DefaultTopK)
	if results[0].PracticeID != "U2" {
		t.Errorf("high anxiety: expected U2 first, got %s", results[0].PracticeID)
	}

	results = s.Select(testContext(models.EmotionalState{Rumination: 0.9}), nil, nil, DefaultTopK)
	if results[0].PracticeID != "C1" {
		t.Errorf("high rumination: expected C1 first, got %s", results[0].PracticeID)
	}
}

func TestSelectorContraindicationExcludes(t *testing.T) {
	s := &Selector{entries: selectorEntries}
	results := s.Select(
		testContext(models.EmotionalState{Avoidance: 0.9}),
		nil,
		[]string{"high_distress"},
		DefaultTopK,
	)
	for _, r := range results {
		if r.PracticeID == "C3" {
			t.Error("contraindicated C3 must be excluded")
		}
	}
}

func TestSelectorOverusePenalty(t *testing.T) {
	s := &Selector{entries: selectorEntries}
	ctx := testContext(models.EmotionalState{Anxiety: 0.8})

	fresh := s.Select(ctx, nil, nil, DefaultTopK)
	overused := s.Select(ctx, map[string]models.PracticeUsage{
		"U2": {TimesUsed7d: 6, AvgEffectiveness: 5.0},
	}, nil, DefaultTopK)

	if scoreOf(t, overused, "U2") >= scoreOf(t, fresh, "U2") {
		t.Error("overuse must lower the score")
	}
}

func TestSelectorDeclinePenalty(t *testing.T) {
	s := &Selector{entries: selectorEntries}
	ctx := testContext(models.EmotionalState{Anxiety: 0.8})

	fresh := s.Select(ctx, nil, nil, DefaultTopK)
	declined := s.Select(ctx, map[string]models.PracticeUsage{
		"U2": {AvgEffectiveness: 5.0, LastDeclined: true},
	}, nil, DefaultTopK)

	if scoreOf(t, declined, "U2") >= scoreOf(t, fresh, "U2") {
		t.Error("a declined practice must score lower")
	}
}

func TestSelectorEmptyCatalog(t *testing.T) {
	s := &Selector{}
	results := s.Select(testContext(models.EmotionalState{Anxiety: 0.5}), nil, nil, DefaultTopK)
	if len(results) != 0 {
		t.Errorf("expected empty result, got %d", len(results))
	}
}

func TestSelectorSortedDescending(t *testing.T) {
	s := &Selector{entries: selectorEntries}
	results := s.Select(
		testContext(models.EmotionalState{Anxiety: 0.6, Rumination: 0.4, Avoidance: 0.2}),
		nil, nil, DefaultTopK,
	)
	if !sort.SliceIsSorted(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	}) {
		t.Errorf("results not sorted descending: %v", results)
	}
}

func TestSelectorInactiveFiltered(t *testing.T) {
	catalog, err := parseCatalog([]byte(`schema_version: "2"
practices:
  - id: X1
    category: micro
    targets: [anxiety]
    duration_min: 1
    duration_max: 2
    min_readiness: precontemplation
    inactive: true
  - id: X2
    category: micro
    targets: [anxiety]
    duration_min: 1
    duration_max: 2
    min_readiness: precontemplation
`))
	if err != nil {
		t.Fatalf("parseCatalog failed: %v", err)
	}
	s := NewSelector(catalog)
	results := s.Select(testContext(models.EmotionalState{Anxiety: 0.9}), nil, nil, DefaultTopK)
	for _, r := range results {
		if r.PracticeID == "X1" {
			t.Error("inactive X1 must be excluded")
		}
	}
	if len(results) != 1 {
		t.Errorf("expected only X2, got %v", results)
	}
}

func TestSelectorReasonCodes(t *testing.T) {
	s := &Selector{entries: selectorEntries}
	results := s.Select(
		testContext(models.EmotionalState{Anxiety: 0.9}),
		map[string]models.PracticeUsage{"U2": {AvgEffectiveness: 8.0}},
		nil, DefaultTopK,
	)
	reasons := results[0].ReasonCodes
	for _, want := range []string{"matches_anxiety", "worked_before", "short_duration"} {
		if !containsString(reasons, want) {
			t.Errorf("expected reason %q, got %v", want, reasons)
		}
	}
}

func TestSelectorTopKCapped(t *testing.T) {
	catalog, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	s := NewSelector(catalog)
	results := s.Select(testContext(models.EmotionalState{Rumination: 0.8}), nil, nil, 3)
	if len(results) != 3 {
		t.Errorf("expected exactly 3 candidates, got %d", len(results))
	}
}

func scoreOf(t *testing.T, results []models.PracticeCandidateRanked, id string) float64 {
	t.Helper()
	for _, r := range results {
		if r.PracticeID == id {
			return r.FinalScore
		}
	}
	t.Fatalf("practice %s not in results %v", id, results)
	return 0
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
