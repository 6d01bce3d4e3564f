package safety

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coachwell/coachd/internal/genai"
	"github.com/coachwell/coachd/internal/models"
)

// SchemaVersion identifies the non-blocking ruleset generation. The earlier
// hard-blocking catalog is deprecated and not implemented.
const SchemaVersion = "2"

// lowConfidenceRed is the confidence floor below which a RED verdict gets an
// extra signal; the verdict itself still escalates.
const lowConfidenceRed = 0.7

// classifierSystemPrompt constrains the Layer-2 model output to a small
// fixed-schema JSON answer.
const classifierSystemPrompt = `You are a safety classifier for a wellness coaching bot. ` +
	`Classify this message into safety levels. ` +
	`Respond ONLY with JSON: {"safety_level":"green|yellow|red",` +
	`"protocol":null or "S1"|"S2"|"S3"|"S4"|"S5"|"S6"|"S7",` +
	`"signals":["list"],"confidence":0.0-1.0}`

// ClassifierResult is the classification for one turn. It is informational:
// no severity ever blocks the normal reply, elevated levels only attach
// resource or specialist text.
type ClassifierResult struct {
	SafetyLevel          models.SafetyLevel `json:"safety_level"`
	ProtocolID           string             `json:"protocol_id,omitempty"`
	Signals              []string           `json:"signals,omitempty"`
	Confidence           float64            `json:"confidence"`
	CrisisResources      string             `json:"crisis_resources,omitempty"`
	SpecialistSuggestion string             `json:"specialist_suggestion,omitempty"`
	Source               string             `json:"source"` // rules, model, heuristic
	SchemaVersion        string             `json:"schema_version"`
}

// Classifier is the two-layer severity classifier. Layer 1 is the compiled
// pattern registry; Layer 2 is an optional constrained-output model call.
type Classifier struct {
	chat  genai.ChatClient // nil disables Layer 2
	model string
}

// NewClassifier creates a classifier. A nil chat client disables Layer 2:
// unmatched text then stays GREEN.
func NewClassifier(chat genai.ChatClient, model string) *Classifier {
	return &Classifier{chat: chat, model: model}
}

// CheckHardRules runs Layer 1 only. Returns nil if no pattern matches.
func (c *Classifier) CheckHardRules(language, text string) *ClassifierResult {
	for _, p := range redPatterns {
		if p.re.MatchString(text) {
			return &ClassifierResult{
				SafetyLevel:     models.SafetyRed,
				ProtocolID:      p.protocol,
				Signals:         []string{p.signal},
				Confidence:      1.0,
				CrisisResources: CrisisResources(language),
				Source:          "rules",
				SchemaVersion:   SchemaVersion,
			}
		}
	}
	for _, p := range yellowPatterns {
		if p.re.MatchString(text) {
			return &ClassifierResult{
				SafetyLevel:          models.SafetyYellow,
				ProtocolID:           p.protocol,
				Signals:              []string{p.signal},
				Confidence:           1.0,
				SpecialistSuggestion: SpecialistSuggestion(language),
				Source:               "rules",
				SchemaVersion:        SchemaVersion,
			}
		}
	}
	return nil
}

// Classify runs the full two-layer classification over the message and the
// last turns of the dialogue window. Never returns an error: any call or
// parse failure degrades to GREEN with signal llm_error (fail open).
func (c *Classifier) Classify(ctx context.Context, language, text string, window []models.ContractMessage) ClassifierResult {
	if hard := c.CheckHardRules(language, text); hard != nil {
		slog.Debug("safety.Classifier.Classify: layer-1 match", "level", hard.SafetyLevel, "protocol", hard.ProtocolID)
		return *hard
	}

	if c.chat == nil {
		return ClassifierResult{
			SafetyLevel:   models.SafetyGreen,
			Signals:       []string{"no_llm_classifier"},
			Source:        "heuristic",
			SchemaVersion: SchemaVersion,
		}
	}

	return c.classifyWithModel(ctx, language, text, window)
}

func (c *Classifier) classifyWithModel(ctx context.Context, language, text string, window []models.ContractMessage) ClassifierResult {
	green := ClassifierResult{
		SafetyLevel:   models.SafetyGreen,
		Signals:       []string{"llm_error"},
		Source:        "heuristic",
		SchemaVersion: SchemaVersion,
	}

	var contextParts []string
	start := len(window) - 3
	if start < 0 {
		start = 0
	}
	for _, m := range window[start:] {
		content := m.Content
		// Truncate on runes so a Cyrillic message is not cut mid-sequence.
		if runes := []rune(content); len(runes) > 100 {
			content = string(runes[:100])
		}
		contextParts = append(contextParts, fmt.Sprintf("%s: %s", m.Role, content))
	}

	prompt := fmt.Sprintf("User message: %q\nRecent context: %q", text, strings.Join(contextParts, " | "))
	raw, err := c.chat.Chat(ctx, []models.ContractMessage{{Role: "user", Content: prompt}}, classifierSystemPrompt, c.model)
	if err != nil {
		slog.Warn("safety.Classifier.classifyWithModel: backend call failed, degrading to green", "error", err)
		return green
	}

	var parsed struct {
		SafetyLevel string   `json:"safety_level"`
		Protocol    string   `json:"protocol"`
		Signals     []string `json:"signals"`
		Confidence  float64  `json:"confidence"`
	}
	parsed.SafetyLevel = "green"
	parsed.Confidence = 0.5
	if !genai.DecodeStructured(raw, &parsed) {
		slog.Warn("safety.Classifier.classifyWithModel: unparseable classifier response, degrading to green")
		return green
	}

	result := ClassifierResult{
		ProtocolID:    parsed.Protocol,
		Signals:       parsed.Signals,
		Confidence:    parsed.Confidence,
		Source:        "model",
		SchemaVersion: SchemaVersion,
	}

	// Asymmetric confidence rule: a low-confidence RED still escalates to RED;
	// low-confidence non-RED is accepted as-is.
	switch strings.ToLower(parsed.SafetyLevel) {
	case "red":
		result.SafetyLevel = models.SafetyRed
		result.CrisisResources = CrisisResources(language)
		if parsed.Confidence < lowConfidenceRed {
			result.Signals = append(result.Signals, "low_confidence_crisis")
		}
	case "yellow":
		result.SafetyLevel = models.SafetyYellow
		result.SpecialistSuggestion = SpecialistSuggestion(language)
	default:
		result.SafetyLevel = models.SafetyGreen
	}

	return result
}

// RiskLevel maps the soft classification onto the pipeline risk scale.
func (r ClassifierResult) RiskLevel() models.RiskLevel {
	switch r.SafetyLevel {
	case models.SafetyRed:
		return models.RiskCrisis
	case models.SafetyYellow:
		return models.RiskHigh
	default:
		return models.RiskLow
	}
}
