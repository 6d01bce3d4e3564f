package coach

import (
	"context"
	"strings"
	"testing"

	"github.com/coachwell/coachd/internal/generation"
	"github.com/coachwell/coachd/internal/models"
	"github.com/coachwell/coachd/internal/practice"
	"github.com/coachwell/coachd/internal/store"
)

// routingChat dispatches on the system prompt so one fake can serve the
// context analyzer, the safety classifier, and the response generator.
type routingChat struct {
	contextJSON    string
	classifierJSON string
	reply          string
	replyCalls     int
}

func (c *routingChat) Chat(_ context.Context, _ []models.ContractMessage, system, _ string) (string, error) {
	switch {
	case strings.Contains(system, "context analyzer"):
		return c.contextJSON, nil
	case strings.Contains(system, "safety classifier"):
		if c.classifierJSON == "" {
			return `{"safety_level": "green", "confidence": 0.9}`, nil
		}
		return c.classifierJSON, nil
	default:
		c.replyCalls++
		return c.reply, nil
	}
}

func newTestPipeline(t *testing.T, chat *routingChat) (*Pipeline, *store.InMemoryStore) {
	t.Helper()
	catalog, err := practice.LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	st := store.NewInMemoryStore()
	return NewPipeline(chat, Config{ResponseModel: "r", ContextModel: "c"}, catalog, st), st
}

const quietContext = `{"risk_level": "low", "emotional_state": {}, "readiness_for_practice": 0.2, "confidence": 0.9}`

func TestPipelineEmptyUserID(t *testing.T) {
	p, _ := newTestPipeline(t, &routingChat{contextJSON: quietContext})
	if _, err := p.Process(context.Background(), "  ", "hello"); err != models.ErrEmptyUserID {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
}

func TestPipelineCrisisShortCircuit(t *testing.T) {
	chat := &routingChat{contextJSON: quietContext, reply: "should never be used"}
	p, st := newTestPipeline(t, chat)

	reply, err := p.Process(context.Background(), "u1", "I want to die")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if reply != crisisResponses["en"] {
		t.Errorf("crisis turn should return the fixed crisis response, got %q", reply)
	}
	if chat.replyCalls != 0 {
		t.Errorf("crisis turn must not call the generation backend, got %d calls", chat.replyCalls)
	}

	rec, _ := st.GetFSMRecord("u1")
	if rec == nil || rec.ConversationState != string(models.StateCrisis) {
		t.Errorf("crisis turn should persist the crisis state, got %+v", rec)
	}

	window, _ := st.GetDialogueWindow("u1", 0)
	if len(window) != 2 {
		t.Errorf("crisis turn should record both sides of the exchange, got %d messages", len(window))
	}
}

func TestPipelineStabilizeFromCrisis(t *testing.T) {
	chat := &routingChat{contextJSON: quietContext, reply: "should never be used"}
	p, st := newTestPipeline(t, chat)

	if p.StabilizeFromCrisis("u1") {
		t.Error("stabilize outside crisis should fail")
	}

	if _, err := p.Process(context.Background(), "u1", "I want to die"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	rec, _ := st.GetFSMRecord("u1")
	if rec == nil || rec.ConversationState != string(models.StateCrisis) {
		t.Fatalf("crisis turn should persist the crisis state, got %+v", rec)
	}

	if !p.StabilizeFromCrisis("u1") {
		t.Fatal("StabilizeFromCrisis should succeed from crisis")
	}
	rec, _ = st.GetFSMRecord("u1")
	if rec.ConversationState != string(models.StateFreeChat) {
		t.Errorf("stabilize should return the session to free_chat, got %+v", rec)
	}

	if p.StabilizeFromCrisis("u1") {
		t.Error("stabilize is not idempotent outside crisis")
	}
}

func TestPipelineQuietTurnAnswers(t *testing.T) {
	reply := "I hear you. That sounds really hard. Want to tell me more?"
	chat := &routingChat{contextJSON: quietContext, reply: reply}
	p, st := newTestPipeline(t, chat)

	got, err := p.Process(context.Background(), "u1", "what time zone are you in?")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got != reply {
		t.Errorf("clean generation should be returned verbatim, got %q", got)
	}
	if chat.replyCalls != 1 {
		t.Errorf("expected one generation call, got %d", chat.replyCalls)
	}

	if n, _ := st.GetMessagesSinceSuggest("u1"); n != 1 {
		t.Errorf("non-suggest turn should advance the cadence counter, got %d", n)
	}
	rec, _ := st.GetFSMRecord("u1")
	if rec == nil || rec.ConversationState != string(models.StateFreeChat) {
		t.Errorf("passthrough decision should leave free_chat, got %+v", rec)
	}

	m, _ := st.GetDecisionMetrics()
	if m.TotalDecisions != 1 || m.SuggestCount != 0 {
		t.Errorf("turn should be audited, got %+v", m)
	}

	window, _ := st.GetDialogueWindow("u1", 0)
	if len(window) != 2 || window[1].Role != "assistant" {
		t.Errorf("both turns should land in the window, got %+v", window)
	}
}

func TestPipelineSuggestFlow(t *testing.T) {
	chat := &routingChat{
		contextJSON: `{"risk_level": "low",
			"emotional_state": {"anxiety": 0.8, "rumination": 0.4},
			"readiness_for_practice": 0.7, "confidence": 0.8}`,
		reply: "I hear you. That sounds really hard. Want to tell me more?",
	}
	p, st := newTestPipeline(t, chat)
	st.SetMessagesSinceSuggest("u1", 5)

	if _, err := p.Process(context.Background(), "u1", "my chest is tight before every meeting"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	suggestions, _ := st.GetSuggestions("u1")
	if len(suggestions) != 1 || suggestions[0].Outcome != models.SuggestionPending {
		t.Fatalf("suggest turn should record one pending suggestion, got %+v", suggestions)
	}
	if suggestions[0].PracticeID == "" {
		t.Error("pending suggestion should carry the selected practice id")
	}
	if n, _ := st.GetMessagesSinceSuggest("u1"); n != 0 {
		t.Errorf("suggest turn should reset the cadence counter, got %d", n)
	}

	rec, _ := st.GetFSMRecord("u1")
	if rec == nil || rec.ConversationState != string(models.StatePracticeOffered) {
		t.Fatalf("suggest turn should move to practice_offered, got %+v", rec)
	}

	// Accepting the offer starts the practice and tracks usage.
	if !p.AcceptPractice("u1") {
		t.Fatal("AcceptPractice should succeed from practice_offered")
	}
	rec, _ = st.GetFSMRecord("u1")
	if rec.ConversationState != string(models.StatePracticeActive) ||
		rec.PracticeState == nil || *rec.PracticeState != string(models.PracticeConsent) {
		t.Errorf("accept should activate the practice at consent, got %+v", rec)
	}
	suggestions, _ = st.GetSuggestions("u1")
	if suggestions[0].Outcome != models.SuggestionAccepted {
		t.Errorf("accept should mark the suggestion accepted, got %s", suggestions[0].Outcome)
	}
	usage, _ := st.GetPracticeUsage("u1")
	if usage[suggestions[0].PracticeID].TimesUsed7d != 1 {
		t.Errorf("accept should count one use, got %+v", usage)
	}

	// Completing folds the self-report into the usage history.
	if !p.CompletePractice("u1", 8) {
		t.Fatal("CompletePractice should succeed from practice_active")
	}
	rec, _ = st.GetFSMRecord("u1")
	if rec.ConversationState != string(models.StateFollowUp) || rec.PracticeState != nil {
		t.Errorf("completion should land in follow_up with no practice state, got %+v", rec)
	}
	usage, _ = st.GetPracticeUsage("u1")
	if usage[suggestions[0].PracticeID].AvgEffectiveness != 8 {
		t.Errorf("completion should record effectiveness, got %+v", usage)
	}
}

func TestPipelineDeclineTracksOutcome(t *testing.T) {
	chat := &routingChat{
		contextJSON: `{"risk_level": "low",
			"emotional_state": {"anxiety": 0.8},
			"readiness_for_practice": 0.7, "confidence": 0.8}`,
		reply: "I hear you. That sounds really hard. Want to tell me more?",
	}
	p, st := newTestPipeline(t, chat)
	st.SetMessagesSinceSuggest("u1", 5)

	if _, err := p.Process(context.Background(), "u1", "I keep panicking on the subway"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !p.DeclinePractice("u1") {
		t.Fatal("DeclinePractice should succeed from practice_offered")
	}

	rec, _ := st.GetFSMRecord("u1")
	if rec.ConversationState != string(models.StateFreeChat) {
		t.Errorf("decline should return to free_chat, got %+v", rec)
	}
	suggestions, _ := st.GetSuggestions("u1")
	if suggestions[0].Outcome != models.SuggestionDeclined {
		t.Errorf("decline should mark the suggestion declined, got %s", suggestions[0].Outcome)
	}
	usage, _ := st.GetPracticeUsage("u1")
	if !usage[suggestions[0].PracticeID].LastDeclined {
		t.Errorf("decline should flag the practice, got %+v", usage)
	}
}

func TestPipelineYellowClassificationAnnotates(t *testing.T) {
	chat := &routingChat{
		contextJSON: quietContext,
		reply:       "Понимаю вас. Это тяжело. Напишите, что сейчас беспокоит больше всего?",
	}
	p, st := newTestPipeline(t, chat)

	reply, err := p.Process(context.Background(), "u1", "муж бьёт меня, я боюсь идти домой")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(reply, "специалист") {
		t.Errorf("yellow classification should append the specialist suggestion, got %q", reply)
	}
	if !strings.HasPrefix(reply, "Понимаю вас.") {
		t.Errorf("annotation must not replace the reply, got %q", reply)
	}

	// The domestic-violence match escalates risk, so the turn suggests a
	// stabilization practice.
	suggestions, _ := st.GetSuggestions("u1")
	if len(suggestions) != 1 {
		t.Fatalf("elevated turn should suggest a stabilization practice, got %+v", suggestions)
	}
	rec, _ := st.GetFSMRecord("u1")
	if rec.ConversationState != string(models.StatePracticeOffered) {
		t.Errorf("elevated suggest should move to practice_offered, got %+v", rec)
	}
}

func TestPipelineOutputSafetyBackstop(t *testing.T) {
	chat := &routingChat{
		contextJSON: quietContext,
		reply:       "I hear you. That sounds heavy. You must do this immediately, tell me after?",
	}
	p, _ := newTestPipeline(t, chat)

	reply, err := p.Process(context.Background(), "u1", "I feel stuck lately")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := generation.Fallback(string(models.StateFreeChat), "en")
	if reply != want {
		t.Errorf("pressure language should be replaced by the state fallback, got %q", reply)
	}
}

func TestPipelinePracticeLifecycleGuards(t *testing.T) {
	p, _ := newTestPipeline(t, &routingChat{contextJSON: quietContext})

	if p.AcceptPractice("u1") {
		t.Error("accept without an offer should fail")
	}
	if p.PausePractice("u1") {
		t.Error("pause without an active practice should fail")
	}
	if p.AdvancePracticeStep("u1", "step") {
		t.Error("advance without an active practice should fail")
	}
	if p.CompletePractice("u1", 5) {
		t.Error("complete without an active practice should fail")
	}
}
