// Package models defines the core data structures for coachd.
//
// It includes the per-turn context types, coaching decision types, practice
// catalog types, and the generation contract shared across modules.
package models

import (
	"errors"
	"time"
)

// RiskLevel is the per-turn risk classification produced by the safety layers.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
	RiskCrisis RiskLevel = "crisis"
)

// IsElevated reports whether the risk level blocks proactive suggestions.
func (r RiskLevel) IsElevated() bool {
	return r == RiskHigh || r == RiskCrisis
}

// SafetyLevel is the soft classification of the two-layer safety classifier.
// It is informational only: no level ever blocks the reply.
type SafetyLevel string

const (
	SafetyGreen  SafetyLevel = "green"
	SafetyYellow SafetyLevel = "yellow"
	SafetyRed    SafetyLevel = "red"
)

// Readiness is the user's stage of change, gating which practices are offered.
type Readiness string

const (
	ReadinessPrecontemplation Readiness = "precontemplation"
	ReadinessContemplation    Readiness = "contemplation"
	ReadinessAction           Readiness = "action"
	ReadinessMaintenance      Readiness = "maintenance"
)

// readinessOrder fixes the stage ordering used for eligibility comparisons.
var readinessOrder = map[Readiness]int{
	ReadinessPrecontemplation: 0,
	ReadinessContemplation:    1,
	ReadinessAction:           2,
	ReadinessMaintenance:      3,
}

// Rank returns the ordinal position of the readiness stage. Unknown stages
// rank lowest so they never unlock practices by accident.
func (r Readiness) Rank() int {
	if rank, ok := readinessOrder[r]; ok {
		return rank
	}
	return -1
}

// MaintainingCycle is a tagged psychological pattern used to match practices.
type MaintainingCycle string

const (
	CycleAnxiety         MaintainingCycle = "anxiety"
	CycleRumination      MaintainingCycle = "rumination"
	CycleWorry           MaintainingCycle = "worry"
	CycleAvoidance       MaintainingCycle = "avoidance"
	CyclePerfectionism   MaintainingCycle = "perfectionism"
	CycleSelfCriticism   MaintainingCycle = "self_criticism"
	CycleSymptomFixation MaintainingCycle = "symptom_fixation"
	CycleInsomnia        MaintainingCycle = "insomnia"
)

// EmotionalState holds six bounded [0,1] maintaining-cycle magnitudes for one
// turn. It is produced fresh per turn and never persisted by the core.
type EmotionalState struct {
	Anxiety         float64 `json:"anxiety"`
	Rumination      float64 `json:"rumination"`
	Avoidance       float64 `json:"avoidance"`
	Perfectionism   float64 `json:"perfectionism"`
	SelfCriticism   float64 `json:"self_criticism"`
	SymptomFixation float64 `json:"symptom_fixation"`
}

// emotionalField pairs a cycle tag with its magnitude.
type emotionalField struct {
	Cycle MaintainingCycle
	Value float64
}

// fields returns the magnitudes in declared order.
func (e EmotionalState) fields() []emotionalField {
	return []emotionalField{
		{CycleAnxiety, e.Anxiety},
		{CycleRumination, e.Rumination},
		{CycleAvoidance, e.Avoidance},
		{CyclePerfectionism, e.Perfectionism},
		{CycleSelfCriticism, e.SelfCriticism},
		{CycleSymptomFixation, e.SymptomFixation},
	}
}

// Dominant returns the maintaining cycle with the highest magnitude.
// Ties resolve to the first field in declared order.
func (e EmotionalState) Dominant() MaintainingCycle {
	fields := e.fields()
	dominant := fields[0].Cycle
	best := fields[0].Value
	for _, f := range fields[1:] {
		if f.Value > best {
			best = f.Value
			dominant = f.Cycle
		}
	}
	return dominant
}

// MaxSignal returns the largest of the six magnitudes.
func (e EmotionalState) MaxSignal() float64 {
	max := 0.0
	for _, f := range e.fields() {
		if f.Value > max {
			max = f.Value
		}
	}
	return max
}

// Value returns the magnitude for a cycle, or 0 for catalog-only tags that
// have no corresponding field (e.g. worry, insomnia).
func (e EmotionalState) Value(cycle MaintainingCycle) float64 {
	for _, f := range e.fields() {
		if f.Cycle == cycle {
			return f.Value
		}
	}
	return 0
}

// Clamp bounds every magnitude into [0,1] in place.
func (e *EmotionalState) Clamp() {
	e.Anxiety = Clamp01(e.Anxiety)
	e.Rumination = Clamp01(e.Rumination)
	e.Avoidance = Clamp01(e.Avoidance)
	e.Perfectionism = Clamp01(e.Perfectionism)
	e.SelfCriticism = Clamp01(e.SelfCriticism)
	e.SymptomFixation = Clamp01(e.SymptomFixation)
}

// Clamp01 bounds v into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ContextState is the per-turn analysis of the user's state. One instance is
// produced per inbound message and owned by that invocation.
type ContextState struct {
	RiskLevel            RiskLevel      `json:"risk_level"`
	EmotionalState       EmotionalState `json:"emotional_state"`
	ReadinessForPractice float64        `json:"readiness_for_practice"`
	Confidence           float64        `json:"confidence"`
	CoachingHypotheses   []string       `json:"coaching_hypotheses,omitempty"`
	CandidateConstraints []string       `json:"candidate_constraints,omitempty"`
}

// UserProfile is the slowly-changing profile the store keeps per user.
type UserProfile struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name,omitempty"`
	Timezone  string    `json:"timezone,omitempty"`
	Goals     []string  `json:"goals,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MoodEntry is one self-reported mood observation.
type MoodEntry struct {
	RecordedAt time.Time `json:"recorded_at"`
	Score      int       `json:"score"` // 1-10
	Note       string    `json:"note,omitempty"`
}

// OpportunityResult is the outcome of the proactive-suggestion gate.
type OpportunityResult struct {
	OpportunityScore      float64    `json:"opportunity_score"`
	AllowProactiveSuggest bool       `json:"allow_proactive_suggest"`
	ReasonCodes           []string   `json:"reason_codes,omitempty"`
	CooldownUntil         *time.Time `json:"cooldown_until,omitempty"`
}

// SuggestionOutcome tracks what the user did with a past practice suggestion.
type SuggestionOutcome string

const (
	SuggestionPending  SuggestionOutcome = "pending"
	SuggestionAccepted SuggestionOutcome = "accepted"
	SuggestionDeclined SuggestionOutcome = "declined"
)

// SuggestionRecord is one entry in the per-user suggestion history,
// ordered chronologically (oldest first).
type SuggestionRecord struct {
	PracticeID string            `json:"practice_id"`
	Outcome    SuggestionOutcome `json:"outcome"`
	CreatedAt  time.Time         `json:"created_at"`
}

// PracticeUsage is per-practice usage history supplied by the persistence
// collaborator, keyed by practice id.
type PracticeUsage struct {
	TimesUsed7d      int     `json:"times_used_7d"`
	AvgEffectiveness float64 `json:"avg_effectiveness"` // [0,10]
	LastDeclined     bool    `json:"last_declined"`
}

// PracticeCandidateRanked is a scored practice candidate.
type PracticeCandidateRanked struct {
	PracticeID   string   `json:"practice_id"`
	FinalScore   float64  `json:"final_score"` // rounded to 6 decimals
	Confidence   float64  `json:"confidence"`
	ReasonCodes  []string `json:"reason_codes,omitempty"`
	BlockedBy    []string `json:"blocked_by,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// CoachingAction is one of the five actions the policy engine can pick.
type CoachingAction string

const (
	ActionListen  CoachingAction = "LISTEN"
	ActionExplore CoachingAction = "EXPLORE"
	ActionSuggest CoachingAction = "SUGGEST"
	ActionGuide   CoachingAction = "GUIDE"
	ActionAnswer  CoachingAction = "ANSWER"
)

// CoachDecision is the final decision for one turn.
// MustAskConsent is true if and only if Action is SUGGEST.
type CoachDecision struct {
	Action             CoachingAction `json:"decision"`
	SelectedPracticeID string         `json:"selected_practice_id,omitempty"`
	Style              string         `json:"style"`
	MustAskConsent     bool           `json:"must_ask_consent"`
}

// UIMode is how a generated message should be rendered by the transport.
type UIMode string

const (
	UIModeText    UIMode = "text"
	UIModeButtons UIMode = "buttons"
	UIModeTimer   UIMode = "timer"
)

// GenerationContract is the structured constraint set a generated reply must
// satisfy. Immutable once built.
type GenerationContract struct {
	DialogueState  string            `json:"dialogue_state"`
	GenerationTask string            `json:"generation_task"`
	PersonaSummary string            `json:"persona_summary,omitempty"`
	UserSummary    string            `json:"user_summary,omitempty"`
	RecentMessages []ContractMessage `json:"recent_messages,omitempty"`
	MaxChars       int               `json:"max_chars"`
	Language       string            `json:"language"`
	MustInclude    []string          `json:"must_include,omitempty"`
	MustNot        []string          `json:"must_not,omitempty"`
	UIMode         UIMode            `json:"ui_mode"`
}

// ContractMessage is one message in the contract's recent-message window.
type ContractMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DecisionLog is one audit row for a coaching decision.
type DecisionLog struct {
	SessionID          string    `json:"session_id"`
	Decision           string    `json:"decision"`
	OpportunityScore   float64   `json:"opportunity_score"`
	SelectedPracticeID string    `json:"selected_practice_id,omitempty"`
	LatencyMs          int64     `json:"latency_ms"`
	ContextJSON        string    `json:"context_state_json,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// SafetyEvent is one audit row for a safety detector firing.
type SafetyEvent struct {
	SessionID   string    `json:"session_id"`
	Detector    string    `json:"detector"`
	Severity    string    `json:"severity"`
	Action      string    `json:"action"`
	MessageHash string    `json:"message_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DecisionMetrics aggregates the decision log for the metrics endpoint.
type DecisionMetrics struct {
	TotalDecisions int     `json:"total_decisions"`
	SuggestCount   int     `json:"suggest_count"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}

// ValidationStatus tags a validation outcome so the adapter's loop can branch
// exhaustively between pass, retryable failure, and critical failure.
type ValidationStatus int

const (
	ValidationPass ValidationStatus = iota
	ValidationFailRetryable
	ValidationFailCritical
)

// ValidationOutcome is the result of one contract or style check.
type ValidationOutcome struct {
	Code   string           `json:"code"`
	Status ValidationStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
}

// Passed reports whether the check passed.
func (v ValidationOutcome) Passed() bool { return v.Status == ValidationPass }

// Critical reports whether the failure forces an immediate fallback.
func (v ValidationOutcome) Critical() bool { return v.Status == ValidationFailCritical }

// APIStatus represents the status of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard envelope for all HTTP endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and
// optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Error variables for better error handling and testability.
var (
	ErrEmptyUserID     = errors.New("user id cannot be empty")
	ErrUnknownPractice = errors.New("unknown practice id")
	ErrCatalogEmpty    = errors.New("practice catalog is empty")
	ErrNoChatBackend   = errors.New("chat backend not configured")
	ErrSessionNotFound = errors.New("session not found")
)
