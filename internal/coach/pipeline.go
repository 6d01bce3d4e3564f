package coach

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/coachwell/coachd/internal/genai"
	"github.com/coachwell/coachd/internal/generation"
	"github.com/coachwell/coachd/internal/language"
	"github.com/coachwell/coachd/internal/models"
	"github.com/coachwell/coachd/internal/practice"
	"github.com/coachwell/coachd/internal/safety"
	"github.com/coachwell/coachd/internal/store"
	"github.com/coachwell/coachd/internal/tone"
)

// Pipeline tuning constants.
const (
	maxDialogueWindow  = 10
	moodHistoryWindow  = 5
	selectTopK         = 3
	stabilizeBudgetMin = 5
)

// Crisis response templates by language. A gate-level crisis match returns
// one of these immediately, without a backend call.
var crisisResponses = map[string]string{
	"ru": "Я слышу тебя. То, что ты чувствуешь — серьёзно, и ты заслуживаешь помощи прямо сейчас.\n\n" +
		"Пожалуйста, позвони на линию помощи: 8-800-2000-122 (бесплатно, круглосуточно).\n\n" +
		"Я здесь и могу поговорить, но профессиональная помощь сейчас важнее всего.",
	"en": "I hear you. What you're feeling is serious, and you deserve help right now.\n\n" +
		"Please call a crisis line: 988 (Suicide & Crisis Lifeline, US) or text HOME to 741741.\n\n" +
		"I'm here and can talk, but professional help is the most important thing right now.",
	"es": "Te escucho. Lo que sientes es serio y mereces ayuda ahora mismo.\n\n" +
		"Por favor llama a la línea de crisis: 024 (España) o tu línea local de ayuda.\n\n" +
		"Estoy aquí y puedo hablar, pero la ayuda profesional es lo más importante ahora.",
}

// Config selects the backend models and session defaults for a pipeline.
type Config struct {
	ResponseModel string
	ContextModel  string
}

// Pipeline orchestrates one coaching turn end to end: safety gate, language
// resolution, context analysis, opportunity scoring, practice selection,
// policy decision, contract-bound generation, output safety, suggestion
// tracking, FSM transition, and audit logging. Process always returns a
// non-empty reply in the detected language.
type Pipeline struct {
	cfg Config

	gate        *safety.Gate
	classifier  *safety.Classifier
	outputCheck *safety.OutputCheck
	resolver    *language.Resolver
	tones       *tone.Tracker
	contexts    *ContextBuilder
	scorer      *OpportunityScorer
	catalog     *practice.Catalog
	selector    *practice.Selector
	rules       *practice.RuleEngine
	policy      *PolicyEngine
	adapter     *generation.Adapter
	sessions    store.Store
	now         func() time.Time
}

// NewPipeline wires the full coaching pipeline. A nil chat client degrades
// every model-backed stage to its deterministic default behavior.
func NewPipeline(chat genai.ChatClient, cfg Config, catalog *practice.Catalog, sessions store.Store) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		gate:        safety.NewGate(),
		classifier:  safety.NewClassifier(chat, cfg.ContextModel),
		outputCheck: safety.NewOutputCheck(),
		resolver:    language.NewResolver(),
		tones:       tone.NewTracker(),
		contexts:    NewContextBuilder(chat, cfg.ContextModel),
		scorer:      NewOpportunityScorer(),
		catalog:     catalog,
		selector:    practice.NewSelector(catalog),
		rules:       practice.NewRuleEngine(catalog),
		policy:      NewPolicyEngine(),
		adapter:     generation.NewAdapter(chat, cfg.ResponseModel, nil),
		sessions:    sessions,
		now:         time.Now,
	}
}

// Process runs one inbound message through the coaching pipeline and returns
// the exact outbound text.
func (p *Pipeline) Process(ctx context.Context, userID, text string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", models.ErrEmptyUserID
	}
	start := p.now()
	fsm := p.loadFSM(userID)

	// Step 1: safety gate. A crisis match short-circuits everything.
	gateResult := p.gate.Check(text)
	if gateResult.SafetyAction == safety.GateCrisisProtocol {
		return p.crisisTurn(userID, text, fsm, gateResult), nil
	}

	// Step 2: language resolution and tone observation.
	lang := p.resolver.Resolve(userID, text)
	p.tones.Observe(userID, text)

	// Dialogue window management.
	if err := p.sessions.AppendMessage(userID, models.ContractMessage{Role: "user", Content: text}); err != nil {
		slog.Error("Pipeline.Process: append user message failed", "error", err, "userID", userID)
	}
	window, err := p.sessions.GetDialogueWindow(userID, maxDialogueWindow)
	if err != nil {
		slog.Error("Pipeline.Process: dialogue window load failed", "error", err, "userID", userID)
		window = []models.ContractMessage{{Role: "user", Content: text}}
	}

	// Step 3: context analysis.
	moods, _ := p.sessions.GetMoodEntries(userID, moodHistoryWindow)
	suggestions, _ := p.sessions.GetSuggestions(userID)
	profile, _ := p.sessions.GetProfile(userID)
	contextState := p.contexts.Build(ctx, ContextInput{
		Message:         text,
		Window:          window,
		MoodHistory:     moods,
		PracticeHistory: suggestions,
		Profile:         profile,
		Language:        lang,
	})

	// Soft classifier. It never blocks; an elevated level escalates the
	// turn's risk and attaches resource text to the final reply.
	classified := p.classifier.Classify(ctx, lang, text, window)
	if riskRank(classified.RiskLevel()) > riskRank(contextState.RiskLevel) {
		contextState.RiskLevel = classified.RiskLevel()
	}
	if classified.SafetyLevel != models.SafetyGreen {
		p.recordSafetyEvent(userID, text, "classifier", string(classified.SafetyLevel), classified.ProtocolID)
	}

	// Step 4: opportunity scoring.
	messagesSince, _ := p.sessions.GetMessagesSinceSuggest(userID)
	opportunity := p.scorer.Score(contextState, suggestions, messagesSince)

	// Step 5: practice selection. At elevated risk the rule engine picks a
	// short stabilization practice; otherwise the selector runs only when
	// the opportunity gate allows it.
	usage, _ := p.sessions.GetPracticeUsage(userID)
	var ranked []models.PracticeCandidateRanked
	switch {
	case contextState.RiskLevel.IsElevated():
		ranked = p.stabilizationCandidates(contextState, usage)
	case opportunity.AllowProactiveSuggest:
		ranked = p.selector.Select(contextState, usage, contextState.CandidateConstraints, selectTopK)
	}

	// Step 6: policy decision.
	decision := p.policy.Decide(contextState, opportunity, ranked)

	// Step 7: contract-bound generation.
	var practiceTitle string
	if decision.SelectedPracticeID != "" {
		if entry, err := p.catalog.Get(decision.SelectedPracticeID); err == nil {
			practiceTitle = entry.Title
		}
	}
	contract := generation.BuildContract(decision, fsm.ConversationState(), lang, window, practiceTitle)
	reply := p.adapter.Generate(ctx, contract, contextState.RiskLevel, p.tones.Playful(userID))

	// Step 8: output safety backstop.
	if check := p.outputCheck.Validate(reply); !check.Approved {
		slog.Warn("Pipeline.Process: output safety rejected reply",
			"userID", userID, "reason", check.Reason)
		p.recordSafetyEvent(userID, reply, "output_safety", check.Reason, string(check.Action))
		reply = generation.Fallback(string(fsm.ConversationState()), lang)
	}

	// Elevated soft classifications annotate, never replace.
	if classified.CrisisResources != "" {
		reply = reply + "\n\n" + classified.CrisisResources
	} else if classified.SpecialistSuggestion != "" {
		reply = reply + "\n\n" + classified.SpecialistSuggestion
	}

	// Step 9: suggestion tracking.
	if decision.Action == models.ActionSuggest {
		rec := models.SuggestionRecord{
			PracticeID: decision.SelectedPracticeID,
			Outcome:    models.SuggestionPending,
			CreatedAt:  p.now(),
		}
		if err := p.sessions.AddSuggestion(userID, rec); err != nil {
			slog.Error("Pipeline.Process: suggestion tracking failed", "error", err, "userID", userID)
		}
		p.sessions.SetMessagesSinceSuggest(userID, 0)
	} else {
		p.sessions.SetMessagesSinceSuggest(userID, messagesSince+1)
	}

	// Step 10: FSM transition.
	fsm.Transition(decision.Action)
	p.saveFSM(userID, fsm)

	// Step 11: audit.
	latency := p.now().Sub(start).Milliseconds()
	p.recordDecision(userID, contextState, decision, opportunity, latency)
	slog.Info("Pipeline.Process: turn complete",
		"userID", userID,
		"decision", decision.Action,
		"practice", decision.SelectedPracticeID,
		"opportunity", opportunity.OpportunityScore,
		"language", lang,
		"latency_ms", latency,
		"fsm_state", fsm.ConversationState())

	if err := p.sessions.AppendMessage(userID, models.ContractMessage{Role: "assistant", Content: reply}); err != nil {
		slog.Error("Pipeline.Process: append assistant message failed", "error", err, "userID", userID)
	}
	return reply, nil
}

// crisisTurn handles a gate-level crisis match: enter the crisis state and
// return the fixed crisis response in the user's language. No backend call.
func (p *Pipeline) crisisTurn(userID, text string, fsm *ConversationFSM, gateResult safety.GateResult) string {
	fsm.EnterCrisis()
	p.saveFSM(userID, fsm)

	lang := p.resolver.Resolve(userID, text)
	reply, ok := crisisResponses[lang]
	if !ok {
		reply = crisisResponses["en"]
	}

	p.recordSafetyEvent(userID, text, gateResult.Detector, "crisis", string(gateResult.SafetyAction))
	slog.Info("Pipeline.crisisTurn: crisis protocol engaged",
		"userID", userID, "signals", gateResult.Signals, "language", lang)

	p.sessions.AppendMessage(userID, models.ContractMessage{Role: "user", Content: text})
	p.sessions.AppendMessage(userID, models.ContractMessage{Role: "assistant", Content: reply})
	return reply
}

// AcceptPractice moves a pending offer into an active practice and records
// the acceptance in the suggestion history.
func (p *Pipeline) AcceptPractice(userID string) bool {
	fsm := p.loadFSM(userID)
	if !fsm.AcceptPractice() {
		return false
	}
	p.saveFSM(userID, fsm)
	if err := p.sessions.UpdateLatestSuggestion(userID, models.SuggestionAccepted); err != nil {
		slog.Debug("Pipeline.AcceptPractice: no suggestion to update", "userID", userID)
	}
	if suggestions, _ := p.sessions.GetSuggestions(userID); len(suggestions) > 0 {
		last := suggestions[len(suggestions)-1]
		p.sessions.RecordPracticeUse(userID, last.PracticeID)
	}
	return true
}

// DeclinePractice rejects a pending offer and records the decline both in
// the suggestion history and the per-practice usage flags.
func (p *Pipeline) DeclinePractice(userID string) bool {
	fsm := p.loadFSM(userID)
	if !fsm.DeclinePractice() {
		return false
	}
	p.saveFSM(userID, fsm)
	if err := p.sessions.UpdateLatestSuggestion(userID, models.SuggestionDeclined); err != nil {
		slog.Debug("Pipeline.DeclinePractice: no suggestion to update", "userID", userID)
		return true
	}
	if suggestions, _ := p.sessions.GetSuggestions(userID); len(suggestions) > 0 {
		last := suggestions[len(suggestions)-1]
		p.sessions.RecordPracticeOutcome(userID, last.PracticeID, 0, true)
	}
	return true
}

// PausePractice suspends the active practice.
func (p *Pipeline) PausePractice(userID string) bool {
	fsm := p.loadFSM(userID)
	if !fsm.PausePractice() {
		return false
	}
	p.saveFSM(userID, fsm)
	return true
}

// ResumePractice returns a paused practice to active.
func (p *Pipeline) ResumePractice(userID string) bool {
	fsm := p.loadFSM(userID)
	if !fsm.ResumePractice() {
		return false
	}
	p.saveFSM(userID, fsm)
	return true
}

// AdvancePracticeStep moves the active practice to the named step.
func (p *Pipeline) AdvancePracticeStep(userID, step string) bool {
	fsm := p.loadFSM(userID)
	if !fsm.AdvancePracticeStep(step) {
		return false
	}
	p.saveFSM(userID, fsm)
	return true
}

// CompletePractice finishes the active practice and folds the user's
// self-reported effectiveness (0-10) into the usage history.
func (p *Pipeline) CompletePractice(userID string, effectiveness float64) bool {
	fsm := p.loadFSM(userID)
	if !fsm.CompletePractice() {
		return false
	}
	p.saveFSM(userID, fsm)
	if suggestions, _ := p.sessions.GetSuggestions(userID); len(suggestions) > 0 {
		last := suggestions[len(suggestions)-1]
		p.sessions.RecordPracticeOutcome(userID, last.PracticeID, effectiveness, false)
	}
	return true
}

// StabilizeFromCrisis returns a crisis session to free chat once the user is
// back on stable ground.
func (p *Pipeline) StabilizeFromCrisis(userID string) bool {
	fsm := p.loadFSM(userID)
	if !fsm.StabilizeFromCrisis() {
		return false
	}
	p.saveFSM(userID, fsm)
	return true
}

// stabilizationCandidates asks the rule engine for a short grounding
// practice at elevated risk. Distress is pinned into the stabilization-boost
// band so grounding entries outrank everything else.
func (p *Pipeline) stabilizationCandidates(
	ctxState models.ContextState,
	usage map[string]models.PracticeUsage,
) []models.PracticeCandidateRanked {
	distress := 8
	if ctxState.RiskLevel == models.RiskCrisis {
		distress = 9
	}
	result := p.rules.Select(distress, ctxState.EmotionalState.Dominant(),
		stabilizeBudgetMin, readinessStage(ctxState.ReadinessForPractice), usage)

	ranked := []models.PracticeCandidateRanked{{
		PracticeID:  result.Primary.PracticeID,
		FinalScore:  result.Primary.Score,
		Confidence:  ctxState.Confidence,
		ReasonCodes: []string{"stabilization"},
	}}
	if result.Backup != nil {
		ranked = append(ranked, models.PracticeCandidateRanked{
			PracticeID:  result.Backup.PracticeID,
			FinalScore:  result.Backup.Score,
			Confidence:  ctxState.Confidence,
			ReasonCodes: []string{"stabilization"},
		})
	}
	return ranked
}

// readinessStage maps the context analyzer's continuous readiness estimate
// onto the four stages of change.
func readinessStage(readiness float64) models.Readiness {
	switch {
	case readiness < 0.25:
		return models.ReadinessPrecontemplation
	case readiness < 0.5:
		return models.ReadinessContemplation
	case readiness < 0.75:
		return models.ReadinessAction
	default:
		return models.ReadinessMaintenance
	}
}

func riskRank(r models.RiskLevel) int {
	switch r {
	case models.RiskCrisis:
		return 3
	case models.RiskHigh:
		return 2
	case models.RiskMedium:
		return 1
	default:
		return 0
	}
}

func (p *Pipeline) loadFSM(userID string) *ConversationFSM {
	rec, err := p.sessions.GetFSMRecord(userID)
	if err != nil || rec == nil {
		return NewConversationFSM()
	}
	fsm, err := FSMFromRecord(*rec)
	if err != nil {
		slog.Warn("Pipeline.loadFSM: stored record invalid, starting fresh",
			"error", err, "userID", userID)
		return NewConversationFSM()
	}
	return fsm
}

func (p *Pipeline) saveFSM(userID string, fsm *ConversationFSM) {
	if err := p.sessions.SaveFSMRecord(userID, fsm.ToRecord()); err != nil {
		slog.Error("Pipeline.saveFSM failed", "error", err, "userID", userID)
	}
}

func (p *Pipeline) recordDecision(
	userID string,
	ctxState models.ContextState,
	decision models.CoachDecision,
	opportunity models.OpportunityResult,
	latencyMs int64,
) {
	contextJSON, err := json.Marshal(ctxState)
	if err != nil {
		contextJSON = []byte("{}")
	}
	log := models.DecisionLog{
		SessionID:          userID,
		Decision:           string(decision.Action),
		OpportunityScore:   round2(opportunity.OpportunityScore),
		SelectedPracticeID: decision.SelectedPracticeID,
		LatencyMs:          latencyMs,
		ContextJSON:        string(contextJSON),
		CreatedAt:          p.now(),
	}
	if err := p.sessions.AddDecisionLog(log); err != nil {
		slog.Error("Pipeline.recordDecision failed", "error", err, "userID", userID)
	}
}

func (p *Pipeline) recordSafetyEvent(userID, text, detector, severity, action string) {
	sum := sha256.Sum256([]byte(text))
	event := models.SafetyEvent{
		SessionID:   userID,
		Detector:    detector,
		Severity:    severity,
		Action:      action,
		MessageHash: hex.EncodeToString(sum[:8]),
		CreatedAt:   p.now(),
	}
	if err := p.sessions.AddSafetyEvent(event); err != nil {
		slog.Error("Pipeline.recordSafetyEvent failed", "error", err, "userID", userID)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Metrics returns the decision-log aggregates for the metrics endpoint.
func (p *Pipeline) Metrics() (models.DecisionMetrics, error) {
	m, err := p.sessions.GetDecisionMetrics()
	if err != nil {
		return m, fmt.Errorf("failed to load decision metrics: %w", err)
	}
	return m, nil
}
