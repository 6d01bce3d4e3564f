package coach

import (
	"fmt"

	"github.com/coachwell/coachd/internal/models"
)

// Conversation states from which an EXPLORE decision may move the FSM.
var exploreAllowed = map[models.ConversationState]bool{
	models.StateFreeChat: true,
	models.StateExplore:  true,
	models.StateFollowUp: true,
}

// Conversation states from which a SUGGEST decision may move the FSM.
var suggestAllowed = map[models.ConversationState]bool{
	models.StateFreeChat: true,
	models.StateExplore:  true,
	models.StateFollowUp: true,
}

// ConversationFSM is the two-level state machine for one session. The outer
// layer tracks the coaching phase; the inner practice layer is defined if
// and only if the conversation is in PRACTICE_ACTIVE. Not safe for
// concurrent use: callers serialize per-session access.
type ConversationFSM struct {
	conversation models.ConversationState
	practice     *models.PracticeState
}

// NewConversationFSM creates an FSM in the initial free-chat state.
func NewConversationFSM() *ConversationFSM {
	return &ConversationFSM{conversation: models.StateFreeChat}
}

// ConversationState returns the outer state.
func (f *ConversationFSM) ConversationState() models.ConversationState {
	return f.conversation
}

// PracticeState returns the inner practice state, or nil outside an active
// practice.
func (f *ConversationFSM) PracticeState() *models.PracticeState {
	return f.practice
}

// Transition applies a coaching decision. LISTEN, ANSWER, and GUIDE are
// passthrough and always succeed without changing state. EXPLORE and
// SUGGEST succeed only from whitelisted states. Returns true on success.
func (f *ConversationFSM) Transition(action models.CoachingAction) bool {
	switch action {
	case models.ActionListen, models.ActionAnswer, models.ActionGuide:
		return true
	case models.ActionExplore:
		if exploreAllowed[f.conversation] {
			f.conversation = models.StateExplore
			return true
		}
		return false
	case models.ActionSuggest:
		if suggestAllowed[f.conversation] {
			f.conversation = models.StatePracticeOffered
			return true
		}
		return false
	}
	return false
}

// AcceptPractice moves an offered practice into the active state and opens
// the inner layer at consent.
func (f *ConversationFSM) AcceptPractice() bool {
	if f.conversation != models.StatePracticeOffered {
		return false
	}
	f.conversation = models.StatePracticeActive
	consent := models.PracticeConsent
	f.practice = &consent
	return true
}

// DeclinePractice returns an offered practice to free chat.
func (f *ConversationFSM) DeclinePractice() bool {
	if f.conversation != models.StatePracticeOffered {
		return false
	}
	f.conversation = models.StateFreeChat
	return true
}

// PausePractice pauses the active practice. The inner state is retained so
// the practice can resume where it left off.
func (f *ConversationFSM) PausePractice() bool {
	if f.conversation != models.StatePracticeActive {
		return false
	}
	f.conversation = models.StatePracticePaused
	return true
}

// ResumePractice resumes a paused practice.
func (f *ConversationFSM) ResumePractice() bool {
	if f.conversation != models.StatePracticePaused {
		return false
	}
	f.conversation = models.StatePracticeActive
	return true
}

// CompletePractice finishes the active practice, clears the inner layer,
// and moves to follow-up.
func (f *ConversationFSM) CompletePractice() bool {
	if f.conversation != models.StatePracticeActive {
		return false
	}
	f.conversation = models.StateFollowUp
	f.practice = nil
	return true
}

// AdvancePracticeStep moves the inner layer to next. Legal only while the
// practice is active and next names a valid practice state; invalid input
// is rejected without mutation.
func (f *ConversationFSM) AdvancePracticeStep(next string) bool {
	if f.conversation != models.StatePracticeActive {
		return false
	}
	state := models.PracticeState(next)
	if !models.IsValidPracticeState(state) {
		return false
	}
	f.practice = &state
	return true
}

// EnterCrisis moves to the crisis state from anywhere, abandoning any
// in-flight practice.
func (f *ConversationFSM) EnterCrisis() bool {
	f.conversation = models.StateCrisis
	f.practice = nil
	return true
}

// StabilizeFromCrisis leaves the crisis state back to free chat. Legal only
// while in crisis.
func (f *ConversationFSM) StabilizeFromCrisis() bool {
	if f.conversation != models.StateCrisis {
		return false
	}
	f.conversation = models.StateFreeChat
	return true
}

// ToRecord serializes both layers to a flat record for persistence.
func (f *ConversationFSM) ToRecord() models.FSMRecord {
	rec := models.FSMRecord{ConversationState: string(f.conversation)}
	if f.practice != nil {
		s := string(*f.practice)
		rec.PracticeState = &s
	}
	return rec
}

// FSMFromRecord restores an FSM from a persisted record, validating both
// layers.
func FSMFromRecord(rec models.FSMRecord) (*ConversationFSM, error) {
	conversation := models.ConversationState(rec.ConversationState)
	if !models.IsValidConversationState(conversation) {
		return nil, fmt.Errorf("FSMFromRecord: invalid conversation state %q", rec.ConversationState)
	}
	fsm := &ConversationFSM{conversation: conversation}
	if rec.PracticeState != nil {
		practice := models.PracticeState(*rec.PracticeState)
		if !models.IsValidPracticeState(practice) {
			return nil, fmt.Errorf("FSMFromRecord: invalid practice state %q", *rec.PracticeState)
		}
		fsm.practice = &practice
	}
	return fsm, nil
}
