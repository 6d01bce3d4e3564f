package coach

import (
	"log/slog"

	"github.com/coachwell/coachd/internal/models"
)

// Policy thresholds. Hand-tuned, kept as named constants.
const (
	suggestScoreThreshold      = 0.58
	exploreConfidenceThreshold = 0.50
	quietSignalThreshold       = 0.15
	exploreSignalThreshold     = 0.40
	guideSignalThreshold       = 0.30
)

// Style tags consumed by the generation adapter.
const (
	StyleWarmSupportive = "warm_supportive"
	StyleDirectHelpful  = "direct_helpful"
	StyleWarmCurious    = "warm_curious"
	StyleWarmDirective  = "warm_directive"
)

// PolicyEngine picks the coaching action for one turn. Rules run in strict
// first-match priority order; every branch fixes a style tag.
type PolicyEngine struct{}

// NewPolicyEngine creates a policy engine.
func NewPolicyEngine() *PolicyEngine { return &PolicyEngine{} }

// Decide returns the coaching decision for this turn.
//
// At elevated risk the engine still offers the best available practice:
// when someone is struggling and help exists, suggesting it beats passive
// listening. Only with an empty candidate list does it fall back to
// exploring.
func (p *PolicyEngine) Decide(
	ctx models.ContextState,
	opportunity models.OpportunityResult,
	ranked []models.PracticeCandidateRanked,
) models.CoachDecision {
	maxSignal := ctx.EmotionalState.MaxSignal()

	// Rule 1: elevated risk.
	if ctx.RiskLevel.IsElevated() {
		if len(ranked) > 0 {
			slog.Info("PolicyEngine.Decide: suggesting stabilization at elevated risk",
				"risk", ctx.RiskLevel, "practice", ranked[0].PracticeID)
			return models.CoachDecision{
				Action:             models.ActionSuggest,
				SelectedPracticeID: ranked[0].PracticeID,
				Style:              StyleWarmSupportive,
				MustAskConsent:     true,
			}
		}
		return models.CoachDecision{Action: models.ActionExplore, Style: StyleWarmSupportive}
	}

	// Rule 2: nothing to work with.
	if maxSignal < quietSignalThreshold && len(ranked) == 0 {
		return models.CoachDecision{Action: models.ActionAnswer, Style: StyleDirectHelpful}
	}

	// Rule 3: analysis too uncertain to act on.
	if ctx.Confidence < exploreConfidenceThreshold {
		return models.CoachDecision{Action: models.ActionExplore, Style: StyleWarmCurious}
	}

	// Rule 4: proactive suggestion blocked.
	if !opportunity.AllowProactiveSuggest {
		if maxSignal > exploreSignalThreshold {
			return models.CoachDecision{Action: models.ActionExplore, Style: StyleWarmCurious}
		}
		return models.CoachDecision{Action: models.ActionListen, Style: StyleWarmSupportive}
	}

	// Rule 5: strong practice match.
	if len(ranked) > 0 && ranked[0].FinalScore >= suggestScoreThreshold {
		return models.CoachDecision{
			Action:             models.ActionSuggest,
			SelectedPracticeID: ranked[0].PracticeID,
			Style:              StyleWarmDirective,
			MustAskConsent:     true,
		}
	}

	// Rule 6: signals present but no strong match.
	if maxSignal > guideSignalThreshold {
		return models.CoachDecision{Action: models.ActionGuide, Style: StyleWarmCurious}
	}

	// Rule 7: default.
	return models.CoachDecision{Action: models.ActionListen, Style: StyleWarmSupportive}
}
