package coach

import (
	"time"

	"github.com/coachwell/coachd/internal/models"
)

// Opportunity weights. Hand-tuned, kept as named constants.
const (
	weightSignal     = 0.45
	weightReadiness  = 0.30
	weightConfidence = 0.25

	minMessagesBetweenSuggests = 3
	maxConsecutiveDeclines     = 2
	declineCooldown            = 24 * time.Hour
	opportunityThreshold       = 0.60
)

// OpportunityScorer decides whether this turn is an appropriate moment to
// proactively suggest a practice. Hard gates short-circuit to a zero score;
// otherwise a weighted composite of signal strength, readiness, and
// analysis confidence is compared against the threshold.
type OpportunityScorer struct {
	now func() time.Time
}

// NewOpportunityScorer creates an opportunity scorer.
func NewOpportunityScorer() *OpportunityScorer {
	return &OpportunityScorer{now: time.Now}
}

// Score evaluates the opportunity to suggest a practice this turn.
// recentSuggestions is ordered chronologically, oldest first.
func (s *OpportunityScorer) Score(
	ctx models.ContextState,
	recentSuggestions []models.SuggestionRecord,
	messagesSinceLastSuggest int,
) models.OpportunityResult {
	if ctx.RiskLevel.IsElevated() {
		return models.OpportunityResult{ReasonCodes: []string{"risk_level_too_high"}}
	}

	if messagesSinceLastSuggest < minMessagesBetweenSuggests {
		return models.OpportunityResult{ReasonCodes: []string{"too_few_messages"}}
	}

	// Declines counted backward from the most recent suggestion, stopping
	// at the first non-decline.
	declines := 0
	for i := len(recentSuggestions) - 1; i >= 0; i-- {
		if recentSuggestions[i].Outcome != models.SuggestionDeclined {
			break
		}
		declines++
	}
	if declines >= maxConsecutiveDeclines {
		until := s.now().Add(declineCooldown)
		return models.OpportunityResult{
			ReasonCodes:   []string{"consecutive_declines_cooldown"},
			CooldownUntil: &until,
		}
	}

	signal := ctx.EmotionalState.MaxSignal()
	readiness := ctx.ReadinessForPractice
	confidence := ctx.Confidence

	score := models.Clamp01(weightSignal*signal + weightReadiness*readiness + weightConfidence*confidence)

	var reasons []string
	if signal > 0.6 {
		reasons = append(reasons, "elevated_emotional_signals")
	}
	if readiness > 0.5 {
		reasons = append(reasons, "user_appears_ready")
	}

	return models.OpportunityResult{
		OpportunityScore:      score,
		AllowProactiveSuggest: score >= opportunityThreshold,
		ReasonCodes:           reasons,
	}
}
