// Package models defines state types for the two-level conversation FSM.
package models

// ConversationState is the high-level coaching phase of a session.
type ConversationState string

const (
	StateFreeChat        ConversationState = "free_chat"
	StateExplore         ConversationState = "explore"
	StatePracticeOffered ConversationState = "practice_offered"
	StatePracticeActive  ConversationState = "practice_active"
	StatePracticePaused  ConversationState = "practice_paused"
	StateFollowUp        ConversationState = "follow_up"
	StateCrisis          ConversationState = "crisis"
)

// IsValidConversationState checks if the given state is a known state.
func IsValidConversationState(s ConversationState) bool {
	switch s {
	case StateFreeChat, StateExplore, StatePracticeOffered, StatePracticeActive,
		StatePracticePaused, StateFollowUp, StateCrisis:
		return true
	default:
		return false
	}
}

// PracticeState is the inner practice step, defined only while the
// conversation state is practice_active.
type PracticeState string

const (
	PracticeConsent    PracticeState = "consent"
	PracticeBaseline   PracticeState = "baseline"
	PracticeStep       PracticeState = "step"
	PracticeCheckpoint PracticeState = "checkpoint"
	PracticeFallback   PracticeState = "fallback"
	PracticeReflection PracticeState = "reflection"
	PracticeComplete   PracticeState = "complete"
)

// IsValidPracticeState checks if the given step name is in the fixed alphabet.
func IsValidPracticeState(s PracticeState) bool {
	switch s {
	case PracticeConsent, PracticeBaseline, PracticeStep, PracticeCheckpoint,
		PracticeFallback, PracticeReflection, PracticeComplete:
		return true
	default:
		return false
	}
}

// FSMRecord is the flat serialized form of the conversation FSM, round-tripped
// through the persistence collaborator.
type FSMRecord struct {
	ConversationState string  `json:"conversation_state"`
	PracticeState     *string `json:"practice_state"`
}
