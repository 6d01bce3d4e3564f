package coach

import (
	"testing"

	"github.com/coachwell/coachd/internal/models"
)

func TestFSMPassthroughDecisions(t *testing.T) {
	for _, action := range []models.CoachingAction{models.ActionListen, models.ActionAnswer, models.ActionGuide} {
		fsm := NewConversationFSM()
		if !fsm.Transition(action) {
			t.Errorf("%s must always succeed", action)
		}
		if fsm.ConversationState() != models.StateFreeChat {
			t.Errorf("%s must not change state, got %s", action, fsm.ConversationState())
		}
	}
}

func TestFSMExploreWhitelist(t *testing.T) {
	fsm := NewConversationFSM()
	if !fsm.Transition(models.ActionExplore) {
		t.Fatal("EXPLORE from FREE_CHAT should succeed")
	}
	if fsm.ConversationState() != models.StateExplore {
		t.Fatalf("state = %s, want EXPLORE", fsm.ConversationState())
	}
	// EXPLORE is re-enterable.
	if !fsm.Transition(models.ActionExplore) {
		t.Error("EXPLORE from EXPLORE should succeed")
	}

	// Not legal while a practice is offered.
	fsm = NewConversationFSM()
	fsm.Transition(models.ActionSuggest)
	if fsm.Transition(models.ActionExplore) {
		t.Error("EXPLORE from PRACTICE_OFFERED should fail")
	}
	if fsm.ConversationState() != models.StatePracticeOffered {
		t.Error("failed transition must not mutate state")
	}
}

func TestFSMSuggestWhitelist(t *testing.T) {
	fsm := NewConversationFSM()
	if !fsm.Transition(models.ActionSuggest) {
		t.Fatal("SUGGEST from FREE_CHAT should succeed")
	}
	if fsm.ConversationState() != models.StatePracticeOffered {
		t.Fatalf("state = %s, want PRACTICE_OFFERED", fsm.ConversationState())
	}
	// A second SUGGEST while one is pending is rejected.
	if fsm.Transition(models.ActionSuggest) {
		t.Error("SUGGEST from PRACTICE_OFFERED should fail")
	}
}

func TestFSMPracticeLifecycle(t *testing.T) {
	fsm := NewConversationFSM()
	fsm.Transition(models.ActionSuggest)

	if !fsm.AcceptPractice() {
		t.Fatal("accept from PRACTICE_OFFERED should succeed")
	}
	if fsm.ConversationState() != models.StatePracticeActive {
		t.Fatalf("state = %s, want PRACTICE_ACTIVE", fsm.ConversationState())
	}
	if fsm.PracticeState() == nil || *fsm.PracticeState() != models.PracticeConsent {
		t.Fatalf("practice state = %v, want consent", fsm.PracticeState())
	}

	if !fsm.PausePractice() {
		t.Fatal("pause from PRACTICE_ACTIVE should succeed")
	}
	if fsm.PracticeState() == nil {
		t.Error("pause must retain the inner practice state")
	}
	if !fsm.ResumePractice() {
		t.Fatal("resume from PRACTICE_PAUSED should succeed")
	}

	if !fsm.CompletePractice() {
		t.Fatal("complete from PRACTICE_ACTIVE should succeed")
	}
	if fsm.ConversationState() != models.StateFollowUp {
		t.Errorf("state = %s, want FOLLOW_UP", fsm.ConversationState())
	}
	if fsm.PracticeState() != nil {
		t.Error("completion must clear the practice state")
	}
}

func TestFSMDeclineReturnsToFreeChat(t *testing.T) {
	fsm := NewConversationFSM()
	fsm.Transition(models.ActionSuggest)
	if !fsm.DeclinePractice() {
		t.Fatal("decline from PRACTICE_OFFERED should succeed")
	}
	if fsm.ConversationState() != models.StateFreeChat {
		t.Errorf("state = %s, want FREE_CHAT", fsm.ConversationState())
	}
}

func TestFSMLifecycleGuards(t *testing.T) {
	fsm := NewConversationFSM()
	if fsm.AcceptPractice() {
		t.Error("accept without an offer should fail")
	}
	if fsm.DeclinePractice() {
		t.Error("decline without an offer should fail")
	}
	if fsm.PausePractice() {
		t.Error("pause without an active practice should fail")
	}
	if fsm.ResumePractice() {
		t.Error("resume without a paused practice should fail")
	}
	if fsm.CompletePractice() {
		t.Error("complete without an active practice should fail")
	}
	if fsm.StabilizeFromCrisis() {
		t.Error("stabilize outside crisis should fail")
	}
}

func TestFSMAdvancePracticeStep(t *testing.T) {
	fsm := NewConversationFSM()
	fsm.Transition(models.ActionSuggest)
	fsm.AcceptPractice()

	for _, step := range []string{"baseline", "step", "checkpoint", "fallback", "reflection", "complete"} {
		if !fsm.AdvancePracticeStep(step) {
			t.Errorf("advance to %q should succeed", step)
		}
	}

	before := *fsm.PracticeState()
	if fsm.AdvancePracticeStep("warp_drive") {
		t.Error("unknown step must be rejected")
	}
	if *fsm.PracticeState() != before {
		t.Error("rejected advance must not mutate state")
	}

	// Outside PRACTICE_ACTIVE the operation is illegal.
	fsm.PausePractice()
	if fsm.AdvancePracticeStep("step") {
		t.Error("advance while paused should fail")
	}
}

func TestFSMCrisisFromAnyState(t *testing.T) {
	setups := map[string]func() *ConversationFSM{
		"free_chat": NewConversationFSM,
		"explore": func() *ConversationFSM {
			f := NewConversationFSM()
			f.Transition(models.ActionExplore)
			return f
		},
		"practice_active": func() *ConversationFSM {
			f := NewConversationFSM()
			f.Transition(models.ActionSuggest)
			f.AcceptPractice()
			return f
		},
	}
	for name, setup := range setups {
		fsm := setup()
		if !fsm.EnterCrisis() {
			t.Errorf("%s: enter_crisis should always succeed", name)
		}
		if fsm.ConversationState() != models.StateCrisis {
			t.Errorf("%s: state = %s, want CRISIS", name, fsm.ConversationState())
		}
		if fsm.PracticeState() != nil {
			t.Errorf("%s: crisis must clear the practice state", name)
		}
	}
}

func TestFSMStabilizeFromCrisis(t *testing.T) {
	fsm := NewConversationFSM()
	fsm.EnterCrisis()
	if !fsm.StabilizeFromCrisis() {
		t.Fatal("stabilize from CRISIS should succeed")
	}
	if fsm.ConversationState() != models.StateFreeChat {
		t.Errorf("state = %s, want FREE_CHAT", fsm.ConversationState())
	}
}

func TestFSMRecordRoundTrip(t *testing.T) {
	var fsms []*ConversationFSM

	plain := []models.ConversationState{
		models.StateFreeChat, models.StateExplore, models.StatePracticeOffered,
		models.StatePracticePaused, models.StateFollowUp, models.StateCrisis,
	}
	for _, state := range plain {
		fsms = append(fsms, &ConversationFSM{conversation: state})
	}
	for _, step := range []models.PracticeState{
		models.PracticeConsent, models.PracticeBaseline, models.PracticeStep,
		models.PracticeCheckpoint, models.PracticeFallback, models.PracticeReflection,
		models.PracticeComplete,
	} {
		s := step
		fsms = append(fsms, &ConversationFSM{
			conversation: models.StatePracticeActive,
			practice:     &s,
		})
	}

	for _, original := range fsms {
		restored, err := FSMFromRecord(original.ToRecord())
		if err != nil {
			t.Fatalf("round trip failed for %+v: %v", original, err)
		}
		if restored.ConversationState() != original.ConversationState() {
			t.Errorf("conversation state mismatch: %s vs %s",
				restored.ConversationState(), original.ConversationState())
		}
		switch {
		case original.PracticeState() == nil && restored.PracticeState() != nil,
			original.PracticeState() != nil && restored.PracticeState() == nil:
			t.Errorf("practice state presence mismatch for %+v", original)
		case original.PracticeState() != nil && *restored.PracticeState() != *original.PracticeState():
			t.Errorf("practice state mismatch: %s vs %s",
				*restored.PracticeState(), *original.PracticeState())
		}
	}
}

func TestFSMFromRecordRejectsInvalid(t *testing.T) {
	if _, err := FSMFromRecord(models.FSMRecord{ConversationState: "limbo"}); err == nil {
		t.Error("invalid conversation state must be rejected")
	}
	bad := "warp"
	if _, err := FSMFromRecord(models.FSMRecord{
		ConversationState: string(models.StatePracticeActive),
		PracticeState:     &bad,
	}); err == nil {
		t.Error("invalid practice state must be rejected")
	}
}
