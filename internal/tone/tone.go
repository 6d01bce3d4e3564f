// Package tone tracks the user's conversational tone per session. Each
// inbound message contributes a raw playfulness observation that is smoothed
// with an EMA; hysteresis keeps the derived flag from flapping turn to turn.
// The flag feeds the style validator's sarcasm gate.
package tone

import (
	"strings"
	"sync"
)

// ---- Constants for EMA / hysteresis ----

const (
	alpha             = 0.35
	activateThreshold = 0.7
	deactivateThresh  = 0.4
)

// playfulMarkers are the lexical signals counted as a playful observation.
var playfulMarkers = []string{
	"😂", "🤣", "😄", "😆", "lol", "haha", "hehe", "хаха", "хехе", ")))", "jaja",
}

type toneState struct {
	score  float64
	active bool
}

// Tracker holds per-user smoothed tone state. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*toneState
}

// NewTracker creates an empty tone tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*toneState)}
}

// Observe folds one inbound message into the user's smoothed tone score and
// applies the hysteresis bands to the derived flag.
func (t *Tracker) Observe(userID, text string) {
	raw := 0.0
	lower := strings.ToLower(text)
	for _, m := range playfulMarkers {
		if strings.Contains(lower, m) {
			raw = 1.0
			break
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[userID]
	if !ok {
		s = &toneState{}
		t.states[userID] = s
	}
	s.score = alpha*raw + (1-alpha)*s.score

	if !s.active && s.score >= activateThreshold {
		s.active = true
	} else if s.active && s.score <= deactivateThresh {
		s.active = false
	}
}

// Playful reports whether the user's smoothed tone is currently playful.
// Unknown users are not playful.
func (t *Tracker) Playful(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[userID]
	return ok && s.active
}
