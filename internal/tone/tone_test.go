package tone

import "testing"

func TestTrackerUnknownUserNotPlayful(t *testing.T) {
	tr := NewTracker()
	if tr.Playful("u1") {
		t.Error("unknown user should not be playful")
	}
}

func TestTrackerActivatesAfterSustainedPlayfulness(t *testing.T) {
	tr := NewTracker()

	tr.Observe("u1", "haha that's so true 😂")
	if tr.Playful("u1") {
		t.Error("one playful message should not flip the flag")
	}

	tr.Observe("u1", "lol yes")
	tr.Observe("u1", "хаха ну да")
	if !tr.Playful("u1") {
		t.Error("three playful messages in a row should activate the flag")
	}
}

func TestTrackerDeactivatesAfterSeriousTurns(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 4; i++ {
		tr.Observe("u1", "haha ok")
	}
	if !tr.Playful("u1") {
		t.Fatal("sustained playfulness should activate the flag")
	}

	tr.Observe("u1", "actually I've been feeling pretty low")
	if !tr.Playful("u1") {
		t.Error("one serious message should not deactivate the flag")
	}
	tr.Observe("u1", "it's been a hard week")
	tr.Observe("u1", "I can't sleep")
	if tr.Playful("u1") {
		t.Error("several serious messages should deactivate the flag")
	}
}

func TestTrackerIsolatesUsers(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 4; i++ {
		tr.Observe("u1", "hehe")
	}
	if tr.Playful("u2") {
		t.Error("one user's tone must not leak to another")
	}
}
