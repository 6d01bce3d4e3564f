// Package coach implements the per-turn coaching brain: context analysis,
// opportunity scoring, the policy engine, the two-level conversation FSM,
// and the pipeline that wires every stage together.
package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coachwell/coachd/internal/genai"
	"github.com/coachwell/coachd/internal/models"
)

const contextSystemPrompt = `You are an expert clinical context analyzer for a CBT/MCT wellness coaching assistant.

Your task: analyze the user's current emotional and psychological context based on
their latest message, recent dialogue history, mood trends, and practice history.

Return ONLY valid JSON with this exact schema (no extra text, no markdown fences):
{
  "risk_level": "low|medium|high|crisis",
  "emotional_state": {
    "anxiety": 0.0-1.0,
    "rumination": 0.0-1.0,
    "avoidance": 0.0-1.0,
    "perfectionism": 0.0-1.0,
    "self_criticism": 0.0-1.0,
    "symptom_fixation": 0.0-1.0
  },
  "readiness_for_practice": 0.0-1.0,
  "coaching_hypotheses": ["string"],
  "confidence": 0.0-1.0,
  "candidate_constraints": ["string"]
}

Guidelines:
- risk_level: "low" = no concern, "medium" = mild distress, "high" = significant distress, "crisis" = immediate safety concern
- emotional_state: rate each maintaining cycle dimension from 0.0 (absent) to 1.0 (dominant)
- readiness_for_practice: 0.0 = not ready at all, 1.0 = fully ready and willing
- coaching_hypotheses: brief clinical hypotheses about what maintains the user's current state
- confidence: your confidence in this analysis (0.0-1.0)
- candidate_constraints: any constraints on practice selection (e.g. "no_breathing" if user resists breathing exercises)

Be conservative with risk levels. When uncertain, lean toward lower confidence rather than lower risk.`

// ContextInput bundles everything the builder may hand to the model for one
// turn. Empty sections are omitted from the prompt.
type ContextInput struct {
	Message         string
	Window          []models.ContractMessage
	MoodHistory     []models.MoodEntry
	PracticeHistory []models.SuggestionRecord
	Profile         *models.UserProfile
	Language        string
}

// ContextBuilder infers a structured ContextState from the turn's inputs via
// a model call. It never returns an error: any call or parse failure yields
// safe neutral defaults with reduced confidence.
type ContextBuilder struct {
	chat  genai.ChatClient
	model string
}

// NewContextBuilder creates a context builder backed by chat. A nil chat
// client means every turn gets the safe defaults.
func NewContextBuilder(chat genai.ChatClient, model string) *ContextBuilder {
	return &ContextBuilder{chat: chat, model: model}
}

// Build analyzes the user's context for this turn.
func (b *ContextBuilder) Build(ctx context.Context, in ContextInput) models.ContextState {
	if b.chat == nil {
		return safeContextDefaults(0.2)
	}

	prompt := b.buildPrompt(in)
	raw, err := b.chat.Chat(ctx, []models.ContractMessage{{Role: "user", Content: prompt}},
		contextSystemPrompt, b.model)
	if err != nil {
		slog.Error("ContextBuilder.Build: model call failed, using safe defaults", "error", err)
		return safeContextDefaults(0.2)
	}

	return parseContextResponse(raw)
}

func (b *ContextBuilder) buildPrompt(in ContextInput) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[Language: %s]", in.Language))

	if in.Profile != nil {
		if raw, err := json.Marshal(in.Profile); err == nil {
			parts = append(parts, fmt.Sprintf("[User profile]\n%s", raw))
		}
	}
	if len(in.MoodHistory) > 0 {
		if raw, err := json.Marshal(in.MoodHistory); err == nil {
			parts = append(parts, fmt.Sprintf("[Mood history]\n%s", raw))
		}
	}
	if len(in.PracticeHistory) > 0 {
		if raw, err := json.Marshal(in.PracticeHistory); err == nil {
			parts = append(parts, fmt.Sprintf("[Practice history]\n%s", raw))
		}
	}
	if len(in.Window) > 0 {
		var lines []string
		for _, m := range in.Window {
			lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
		}
		parts = append(parts, fmt.Sprintf("[Recent dialogue]\n%s", strings.Join(lines, "\n")))
	}

	parts = append(parts, fmt.Sprintf("[Current message]\n%s", in.Message))
	return strings.Join(parts, "\n\n")
}

// parseContextResponse decodes the model's structured answer. Missing keys
// keep their defaults; an unparseable body degrades to neutral defaults with
// confidence 0.3.
func parseContextResponse(raw string) models.ContextState {
	payload := struct {
		RiskLevel            string                `json:"risk_level"`
		EmotionalState       models.EmotionalState `json:"emotional_state"`
		ReadinessForPractice float64               `json:"readiness_for_practice"`
		CoachingHypotheses   []string              `json:"coaching_hypotheses"`
		Confidence           float64               `json:"confidence"`
		CandidateConstraints []string              `json:"candidate_constraints"`
	}{
		RiskLevel:            string(models.RiskLow),
		ReadinessForPractice: 0.5,
		Confidence:           0.5,
	}

	if !genai.DecodeStructured(raw, &payload) {
		slog.Warn("ContextBuilder.Build: unparseable context response, using safe defaults")
		return safeContextDefaults(0.3)
	}

	risk := models.RiskLevel(payload.RiskLevel)
	switch risk {
	case models.RiskLow, models.RiskMedium, models.RiskHigh, models.RiskCrisis:
	default:
		risk = models.RiskLow
	}

	emotional := payload.EmotionalState
	emotional.Clamp()

	return models.ContextState{
		RiskLevel:            risk,
		EmotionalState:       emotional,
		ReadinessForPractice: models.Clamp01(payload.ReadinessForPractice),
		Confidence:           models.Clamp01(payload.Confidence),
		CoachingHypotheses:   payload.CoachingHypotheses,
		CandidateConstraints: payload.CandidateConstraints,
	}
}

func safeContextDefaults(confidence float64) models.ContextState {
	return models.ContextState{
		RiskLevel:            models.RiskLow,
		ReadinessForPractice: 0.5,
		Confidence:           confidence,
	}
}
