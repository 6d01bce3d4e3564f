package coach

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/coachwell/coachd/internal/models"
)

// fakeChat is a canned chat backend for tests.
type fakeChat struct {
	response   string
	err        error
	calls      int
	lastSystem string
	lastMsgs   []models.ContractMessage
}

func (f *fakeChat) Chat(_ context.Context, messages []models.ContractMessage, system, _ string) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastMsgs = messages
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestContextBuilderParsesResponse(t *testing.T) {
	chat := &fakeChat{response: `{
		"risk_level": "medium",
		"emotional_state": {"anxiety": 0.8, "rumination": 0.6},
		"readiness_for_practice": 0.7,
		"coaching_hypotheses": ["worry loop"],
		"confidence": 0.9,
		"candidate_constraints": ["no_breathing"]
	}`}
	b := NewContextBuilder(chat, "test-model")

	got := b.Build(context.Background(), ContextInput{Message: "hi", Language: "en"})
	if got.RiskLevel != models.RiskMedium {
		t.Errorf("risk = %s, want medium", got.RiskLevel)
	}
	if got.EmotionalState.Anxiety != 0.8 || got.EmotionalState.Rumination != 0.6 {
		t.Errorf("emotional state not parsed: %+v", got.EmotionalState)
	}
	if got.ReadinessForPractice != 0.7 || got.Confidence != 0.9 {
		t.Errorf("readiness/confidence = %v/%v", got.ReadinessForPractice, got.Confidence)
	}
	if len(got.CoachingHypotheses) != 1 || got.CoachingHypotheses[0] != "worry loop" {
		t.Errorf("hypotheses = %v", got.CoachingHypotheses)
	}
	if len(got.CandidateConstraints) != 1 || got.CandidateConstraints[0] != "no_breathing" {
		t.Errorf("constraints = %v", got.CandidateConstraints)
	}
}

func TestContextBuilderMissingKeysDefault(t *testing.T) {
	chat := &fakeChat{response: `{"risk_level": "low"}`}
	b := NewContextBuilder(chat, "test-model")

	got := b.Build(context.Background(), ContextInput{Message: "hi", Language: "en"})
	if got.ReadinessForPractice != 0.5 {
		t.Errorf("readiness default = %v, want 0.5", got.ReadinessForPractice)
	}
	if got.Confidence != 0.5 {
		t.Errorf("confidence default = %v, want 0.5", got.Confidence)
	}
	if got.EmotionalState.MaxSignal() != 0 {
		t.Errorf("emotional state should be zero, got %+v", got.EmotionalState)
	}
}

func TestContextBuilderClampsOutOfRange(t *testing.T) {
	chat := &fakeChat{response: `{
		"risk_level": "medium",
		"emotional_state": {"anxiety": 2.5, "rumination": -1.0},
		"readiness_for_practice": 1.8,
		"confidence": -0.2
	}`}
	b := NewContextBuilder(chat, "test-model")

	got := b.Build(context.Background(), ContextInput{Message: "hi", Language: "en"})
	if got.EmotionalState.Anxiety != 1.0 || got.EmotionalState.Rumination != 0.0 {
		t.Errorf("emotional state not clamped: %+v", got.EmotionalState)
	}
	if got.ReadinessForPractice != 1.0 || got.Confidence != 0.0 {
		t.Errorf("readiness/confidence not clamped: %v/%v", got.ReadinessForPractice, got.Confidence)
	}
}

func TestContextBuilderUnknownRiskDefaultsLow(t *testing.T) {
	chat := &fakeChat{response: `{"risk_level": "apocalyptic"}`}
	b := NewContextBuilder(chat, "test-model")

	got := b.Build(context.Background(), ContextInput{Message: "hi", Language: "en"})
	if got.RiskLevel != models.RiskLow {
		t.Errorf("risk = %s, want low", got.RiskLevel)
	}
}

func TestContextBuilderCallFailureSafeDefaults(t *testing.T) {
	chat := &fakeChat{err: errors.New("backend down")}
	b := NewContextBuilder(chat, "test-model")

	got := b.Build(context.Background(), ContextInput{Message: "hi", Language: "en"})
	if got.RiskLevel != models.RiskLow || got.Confidence != 0.2 {
		t.Errorf("expected safe defaults with confidence 0.2, got %+v", got)
	}
}

func TestContextBuilderParseFailureSafeDefaults(t *testing.T) {
	chat := &fakeChat{response: "I cannot answer in JSON, sorry."}
	b := NewContextBuilder(chat, "test-model")

	got := b.Build(context.Background(), ContextInput{Message: "hi", Language: "en"})
	if got.RiskLevel != models.RiskLow || got.Confidence != 0.3 {
		t.Errorf("expected safe defaults with confidence 0.3, got %+v", got)
	}
}

func TestContextBuilderNilBackend(t *testing.T) {
	b := NewContextBuilder(nil, "test-model")
	got := b.Build(context.Background(), ContextInput{Message: "hi", Language: "en"})
	if got.Confidence != 0.2 {
		t.Errorf("expected safe defaults without a backend, got %+v", got)
	}
}

func TestContextBuilderPromptSections(t *testing.T) {
	chat := &fakeChat{response: `{}`}
	b := NewContextBuilder(chat, "test-model")

	b.Build(context.Background(), ContextInput{
		Message:  "I keep replaying that meeting",
		Language: "en",
		Window: []models.ContractMessage{
			{Role: "user", Content: "rough week"},
			{Role: "assistant", Content: "tell me more"},
		},
		MoodHistory: []models.MoodEntry{{Score: 4}},
		Profile:     &models.UserProfile{UserID: "u1", Name: "Sam"},
	})

	if len(chat.lastMsgs) != 1 {
		t.Fatalf("expected a single user message, got %d", len(chat.lastMsgs))
	}
	prompt := chat.lastMsgs[0].Content
	for _, want := range []string{
		"[Language: en]",
		"[User profile]",
		"[Mood history]",
		"[Recent dialogue]",
		"user: rough week",
		"[Current message]",
		"I keep replaying that meeting",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "[Practice history]") {
		t.Error("empty practice history should be omitted")
	}
	if !strings.Contains(chat.lastSystem, "Return ONLY valid JSON") {
		t.Error("system prompt should demand structured output")
	}
}
