package coach

import (
	"math"
	"testing"
	"time"

	"github.com/coachwell/coachd/internal/models"
)

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func favorableContext() models.ContextState {
	return models.ContextState{
		RiskLevel:            models.RiskLow,
		EmotionalState:       models.EmotionalState{Anxiety: 0.8, Rumination: 0.6},
		ReadinessForPractice: 0.6,
		Confidence:           0.7,
	}
}

func TestOpportunityCompositeScore(t *testing.T) {
	s := NewOpportunityScorer()
	got := s.Score(favorableContext(), nil, 5)

	// 0.45*0.8 + 0.30*0.6 + 0.25*0.7 = 0.715
	if math.Abs(got.OpportunityScore-0.715) > 1e-9 {
		t.Errorf("score = %v, want 0.715", got.OpportunityScore)
	}
	if !got.AllowProactiveSuggest {
		t.Error("score above threshold must allow suggesting")
	}
	if !containsString(got.ReasonCodes, "elevated_emotional_signals") {
		t.Errorf("expected elevated_emotional_signals, got %v", got.ReasonCodes)
	}
	if !containsString(got.ReasonCodes, "user_appears_ready") {
		t.Errorf("expected user_appears_ready, got %v", got.ReasonCodes)
	}
}

func TestOpportunityRiskGate(t *testing.T) {
	s := NewOpportunityScorer()
	for _, risk := range []models.RiskLevel{models.RiskHigh, models.RiskCrisis} {
		ctx := favorableContext()
		ctx.RiskLevel = risk
		got := s.Score(ctx, nil, 5)
		if got.AllowProactiveSuggest || got.OpportunityScore != 0 {
			t.Errorf("risk %s: expected blocked zero score, got %+v", risk, got)
		}
		if !containsString(got.ReasonCodes, "risk_level_too_high") {
			t.Errorf("risk %s: reason codes %v", risk, got.ReasonCodes)
		}
	}
}

func TestOpportunityMessageCadenceGate(t *testing.T) {
	s := NewOpportunityScorer()
	got := s.Score(favorableContext(), nil, 2)
	if got.AllowProactiveSuggest || got.OpportunityScore != 0 {
		t.Errorf("expected blocked, got %+v", got)
	}
	if !containsString(got.ReasonCodes, "too_few_messages") {
		t.Errorf("reason codes %v", got.ReasonCodes)
	}
}

func TestOpportunityConsecutiveDeclinesCooldown(t *testing.T) {
	s := NewOpportunityScorer()
	history := []models.SuggestionRecord{
		{PracticeID: "A2", Outcome: models.SuggestionAccepted},
		{PracticeID: "U2", Outcome: models.SuggestionDeclined},
		{PracticeID: "M2", Outcome: models.SuggestionDeclined},
	}
	got := s.Score(favorableContext(), history, 5)

	if got.AllowProactiveSuggest || got.OpportunityScore != 0 {
		t.Errorf("expected blocked, got %+v", got)
	}
	if !containsString(got.ReasonCodes, "consecutive_declines_cooldown") {
		t.Errorf("reason codes %v", got.ReasonCodes)
	}
	if got.CooldownUntil == nil {
		t.Fatal("expected a cooldown timestamp")
	}
	if !got.CooldownUntil.After(time.Now()) {
		t.Errorf("cooldown %v should be in the future", got.CooldownUntil)
	}
}

func TestOpportunityDeclineRunBrokenByAccept(t *testing.T) {
	s := NewOpportunityScorer()
	// The most recent outcome is an accept, so earlier declines don't count.
	history := []models.SuggestionRecord{
		{PracticeID: "A2", Outcome: models.SuggestionDeclined},
		{PracticeID: "U2", Outcome: models.SuggestionDeclined},
		{PracticeID: "M2", Outcome: models.SuggestionAccepted},
	}
	got := s.Score(favorableContext(), history, 5)
	if !got.AllowProactiveSuggest {
		t.Errorf("expected allowed, got %+v", got)
	}
}

func TestOpportunityBelowThreshold(t *testing.T) {
	s := NewOpportunityScorer()
	ctx := models.ContextState{
		RiskLevel:            models.RiskLow,
		EmotionalState:       models.EmotionalState{Anxiety: 0.2},
		ReadinessForPractice: 0.3,
		Confidence:           0.5,
	}
	got := s.Score(ctx, nil, 5)
	if got.AllowProactiveSuggest {
		t.Errorf("score %v should not pass the threshold", got.OpportunityScore)
	}
	if got.OpportunityScore <= 0 {
		t.Error("a gated-through turn still carries its composite score")
	}
}
