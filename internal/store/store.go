// Package store provides session persistence backends for coachd.
//
// It includes an in-memory store for tests and single-process runs, plus
// SQLite and PostgreSQL implementations selected by DSN.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coachwell/coachd/internal/models"
)

// usageWindow bounds how far back practice uses count toward TimesUsed7d.
const usageWindow = 7 * 24 * time.Hour

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". URL-style and
// key=value connection strings are Postgres; bare file paths are SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// Store is the persistence surface the pipeline depends on. Every user is
// keyed by an opaque id; the zero history for an unknown user is empty, not
// an error.
type Store interface {
	// Conversation FSM record, round-tripped flat.
	SaveFSMRecord(userID string, rec models.FSMRecord) error
	GetFSMRecord(userID string) (*models.FSMRecord, error)

	// Rolling dialogue window, oldest first.
	AppendMessage(userID string, msg models.ContractMessage) error
	GetDialogueWindow(userID string, limit int) ([]models.ContractMessage, error)

	// Suggestion history, oldest first.
	AddSuggestion(userID string, rec models.SuggestionRecord) error
	GetSuggestions(userID string) ([]models.SuggestionRecord, error)
	UpdateLatestSuggestion(userID string, outcome models.SuggestionOutcome) error

	// Cadence counter between proactive suggestions.
	GetMessagesSinceSuggest(userID string) (int, error)
	SetMessagesSinceSuggest(userID string, count int) error

	// Per-practice usage history keyed by practice id.
	GetPracticeUsage(userID string) (map[string]models.PracticeUsage, error)
	RecordPracticeUse(userID, practiceID string) error
	RecordPracticeOutcome(userID, practiceID string, effectiveness float64, declined bool) error

	// Slowly-changing profile and mood journal.
	SaveProfile(profile models.UserProfile) error
	GetProfile(userID string) (*models.UserProfile, error)
	AddMoodEntry(userID string, entry models.MoodEntry) error
	GetMoodEntries(userID string, limit int) ([]models.MoodEntry, error)

	// Audit trail.
	AddDecisionLog(log models.DecisionLog) error
	AddSafetyEvent(event models.SafetyEvent) error
	GetDecisionMetrics() (models.DecisionMetrics, error)

	Close() error
}

// userRecord is the in-memory per-user bucket.
type userRecord struct {
	fsm           *models.FSMRecord
	window        []models.ContractMessage
	suggestions   []models.SuggestionRecord
	sinceSuggest  int
	usage         map[string]models.PracticeUsage
	useTimes      map[string][]time.Time
	effectCounts  map[string]int
	profile       *models.UserProfile
	moods         []models.MoodEntry
}

// InMemoryStore keeps everything in process memory. Safe for concurrent use.
type InMemoryStore struct {
	mu           sync.RWMutex
	users        map[string]*userRecord
	decisionLogs []models.DecisionLog
	safetyEvents []models.SafetyEvent
	now          func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users: make(map[string]*userRecord),
		now:   time.Now,
	}
}

func (s *InMemoryStore) user(userID string) *userRecord {
	u, ok := s.users[userID]
	if !ok {
		u = &userRecord{
			usage:        make(map[string]models.PracticeUsage),
			useTimes:     make(map[string][]time.Time),
			effectCounts: make(map[string]int),
		}
		s.users[userID] = u
	}
	return u
}

func (s *InMemoryStore) SaveFSMRecord(userID string, rec models.FSMRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rec
	s.user(userID).fsm = &r
	return nil
}

func (s *InMemoryStore) GetFSMRecord(userID string) (*models.FSMRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || u.fsm == nil {
		return nil, nil
	}
	r := *u.fsm
	return &r, nil
}

func (s *InMemoryStore) AppendMessage(userID string, msg models.ContractMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.window = append(u.window, msg)
	return nil
}

func (s *InMemoryStore) GetDialogueWindow(userID string, limit int) ([]models.ContractMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	window := u.window
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	out := make([]models.ContractMessage, len(window))
	copy(out, window)
	return out, nil
}

func (s *InMemoryStore) AddSuggestion(userID string, rec models.SuggestionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.suggestions = append(u.suggestions, rec)
	return nil
}

func (s *InMemoryStore) GetSuggestions(userID string) ([]models.SuggestionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	out := make([]models.SuggestionRecord, len(u.suggestions))
	copy(out, u.suggestions)
	return out, nil
}

func (s *InMemoryStore) UpdateLatestSuggestion(userID string, outcome models.SuggestionOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || len(u.suggestions) == 0 {
		return models.ErrSessionNotFound
	}
	u.suggestions[len(u.suggestions)-1].Outcome = outcome
	return nil
}

func (s *InMemoryStore) GetMessagesSinceSuggest(userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, nil
	}
	return u.sinceSuggest, nil
}

func (s *InMemoryStore) SetMessagesSinceSuggest(userID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).sinceSuggest = count
	return nil
}

func (s *InMemoryStore) GetPracticeUsage(userID string) (map[string]models.PracticeUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.PracticeUsage)
	u, ok := s.users[userID]
	if !ok {
		return out, nil
	}
	for id, usage := range u.usage {
		out[id] = usage
	}
	// TimesUsed7d is derived at read time so old uses age out of the window.
	cutoff := s.now().Add(-usageWindow)
	for id, times := range u.useTimes {
		var n int
		for _, t := range times {
			if t.After(cutoff) {
				n++
			}
		}
		usage := out[id]
		usage.TimesUsed7d = n
		out[id] = usage
	}
	return out, nil
}

func (s *InMemoryStore) RecordPracticeUse(userID, practiceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.useTimes[practiceID] = append(u.useTimes[practiceID], s.now())
	return nil
}

func (s *InMemoryStore) RecordPracticeOutcome(userID, practiceID string, effectiveness float64, declined bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	usage := u.usage[practiceID]
	usage.LastDeclined = declined
	if !declined {
		n := u.effectCounts[practiceID]
		usage.AvgEffectiveness = (usage.AvgEffectiveness*float64(n) + effectiveness) / float64(n+1)
		u.effectCounts[practiceID] = n + 1
	}
	u.usage[practiceID] = usage
	return nil
}

func (s *InMemoryStore) SaveProfile(profile models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := profile
	s.user(profile.UserID).profile = &p
	return nil
}

func (s *InMemoryStore) GetProfile(userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || u.profile == nil {
		return nil, nil
	}
	p := *u.profile
	return &p, nil
}

func (s *InMemoryStore) AddMoodEntry(userID string, entry models.MoodEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	u.moods = append(u.moods, entry)
	sort.SliceStable(u.moods, func(i, j int) bool {
		return u.moods[i].RecordedAt.Before(u.moods[j].RecordedAt)
	})
	return nil
}

func (s *InMemoryStore) GetMoodEntries(userID string, limit int) ([]models.MoodEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	moods := u.moods
	if limit > 0 && len(moods) > limit {
		moods = moods[len(moods)-limit:]
	}
	out := make([]models.MoodEntry, len(moods))
	copy(out, moods)
	return out, nil
}

func (s *InMemoryStore) AddDecisionLog(log models.DecisionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisionLogs = append(s.decisionLogs, log)
	return nil
}

func (s *InMemoryStore) AddSafetyEvent(event models.SafetyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safetyEvents = append(s.safetyEvents, event)
	return nil
}

func (s *InMemoryStore) GetDecisionMetrics() (models.DecisionMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var m models.DecisionMetrics
	m.TotalDecisions = len(s.decisionLogs)
	var latencySum int64
	for _, d := range s.decisionLogs {
		if d.Decision == string(models.ActionSuggest) {
			m.SuggestCount++
		}
		latencySum += d.LatencyMs
	}
	if m.TotalDecisions > 0 {
		m.AvgLatencyMs = float64(latencySum) / float64(m.TotalDecisions)
	}
	return m, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
