// Package store provides session persistence backends for coachd.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/coachwell/coachd/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path to the
// database file; the containing directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveFSMRecord(userID string, rec models.FSMRecord) error {
	query := `
		INSERT OR REPLACE INTO fsm_records (user_id, conversation_state, practice_state, updated_at)
		VALUES (?, ?, ?, ?)`
	_, err := s.db.Exec(query, userID, rec.ConversationState, rec.PracticeState, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		slog.Error("SQLiteStore.SaveFSMRecord failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save fsm record for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) GetFSMRecord(userID string) (*models.FSMRecord, error) {
	query := `SELECT conversation_state, practice_state FROM fsm_records WHERE user_id = ?`
	var rec models.FSMRecord
	err := s.db.QueryRow(query, userID).Scan(&rec.ConversationState, &rec.PracticeState)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetFSMRecord failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get fsm record for %s: %w", userID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) AppendMessage(userID string, msg models.ContractMessage) error {
	_, err := s.db.Exec(`INSERT INTO messages (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, msg.Role, msg.Content, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		slog.Error("SQLiteStore.AppendMessage failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert message for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) GetDialogueWindow(userID string, limit int) ([]models.ContractMessage, error) {
	query := `SELECT role, content FROM (
			SELECT id, role, content FROM messages WHERE user_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(query, userID, limit)
	if err != nil {
		slog.Error("SQLiteStore.GetDialogueWindow query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query messages for %s: %w", userID, err)
	}
	defer rows.Close()

	var window []models.ContractMessage
	for rows.Next() {
		var m models.ContractMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		window = append(window, m)
	}
	return window, rows.Err()
}

func (s *SQLiteStore) AddSuggestion(userID string, rec models.SuggestionRecord) error {
	_, err := s.db.Exec(`INSERT INTO suggestions (user_id, practice_id, outcome, created_at) VALUES (?, ?, ?, ?)`,
		userID, rec.PracticeID, rec.Outcome, rec.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		slog.Error("SQLiteStore.AddSuggestion failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert suggestion for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSuggestions(userID string) ([]models.SuggestionRecord, error) {
	rows, err := s.db.Query(`SELECT practice_id, outcome, created_at FROM suggestions WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		slog.Error("SQLiteStore.GetSuggestions query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query suggestions for %s: %w", userID, err)
	}
	defer rows.Close()

	var records []models.SuggestionRecord
	for rows.Next() {
		var rec models.SuggestionRecord
		var created string
		if err := rows.Scan(&rec.PracticeID, &rec.Outcome, &created); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) UpdateLatestSuggestion(userID string, outcome models.SuggestionOutcome) error {
	query := `UPDATE suggestions SET outcome = ?
		WHERE id = (SELECT id FROM suggestions WHERE user_id = ? ORDER BY id DESC LIMIT 1)`
	res, err := s.db.Exec(query, outcome, userID)
	if err != nil {
		slog.Error("SQLiteStore.UpdateLatestSuggestion failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update suggestion for %s: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStore) GetMessagesSinceSuggest(userID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT since_suggest FROM suggest_counters WHERE user_id = ?`, userID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get suggest counter for %s: %w", userID, err)
	}
	return count, nil
}

func (s *SQLiteStore) SetMessagesSinceSuggest(userID string, count int) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO suggest_counters (user_id, since_suggest) VALUES (?, ?)`, userID, count)
	if err != nil {
		slog.Error("SQLiteStore.SetMessagesSinceSuggest failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to set suggest counter for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPracticeUsage(userID string) (map[string]models.PracticeUsage, error) {
	rows, err := s.db.Query(
		`SELECT practice_id, avg_effectiveness, last_declined FROM practice_usage WHERE user_id = ?`,
		userID)
	if err != nil {
		slog.Error("SQLiteStore.GetPracticeUsage query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query practice usage for %s: %w", userID, err)
	}
	defer rows.Close()

	usage := make(map[string]models.PracticeUsage)
	for rows.Next() {
		var id string
		var u models.PracticeUsage
		if err := rows.Scan(&id, &u.AvgEffectiveness, &u.LastDeclined); err != nil {
			return nil, fmt.Errorf("failed to scan practice usage row: %w", err)
		}
		usage[id] = u
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Uses are counted from timestamped events so they age out of the window.
	cutoff := time.Now().Add(-usageWindow).UTC().Format(time.RFC3339)
	eventRows, err := s.db.Query(
		`SELECT practice_id, COUNT(*) FROM practice_usage_events
		 WHERE user_id = ? AND used_at > ? GROUP BY practice_id`,
		userID, cutoff)
	if err != nil {
		slog.Error("SQLiteStore.GetPracticeUsage events query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query usage events for %s: %w", userID, err)
	}
	defer eventRows.Close()

	for eventRows.Next() {
		var id string
		var n int
		if err := eventRows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan usage event row: %w", err)
		}
		u := usage[id]
		u.TimesUsed7d = n
		usage[id] = u
	}
	return usage, eventRows.Err()
}

func (s *SQLiteStore) RecordPracticeUse(userID, practiceID string) error {
	_, err := s.db.Exec(`INSERT INTO practice_usage_events (user_id, practice_id, used_at) VALUES (?, ?, ?)`,
		userID, practiceID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		slog.Error("SQLiteStore.RecordPracticeUse failed", "error", err, "userID", userID, "practiceID", practiceID)
		return fmt.Errorf("failed to record practice use for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) RecordPracticeOutcome(userID, practiceID string, effectiveness float64, declined bool) error {
	var query string
	if declined {
		query = `
			INSERT INTO practice_usage (user_id, practice_id, last_declined)
			VALUES (?, ?, 1)
			ON CONFLICT(user_id, practice_id) DO UPDATE SET last_declined = 1`
		if _, err := s.db.Exec(query, userID, practiceID); err != nil {
			slog.Error("SQLiteStore.RecordPracticeOutcome failed", "error", err, "userID", userID)
			return fmt.Errorf("failed to record practice decline for %s: %w", userID, err)
		}
		return nil
	}
	// Running average over effect_count accepted outcomes.
	query = `
		INSERT INTO practice_usage (user_id, practice_id, avg_effectiveness, effect_count, last_declined)
		VALUES (?, ?, ?, 1, 0)
		ON CONFLICT(user_id, practice_id) DO UPDATE SET
			avg_effectiveness = (avg_effectiveness * effect_count + ?) / (effect_count + 1),
			effect_count = effect_count + 1,
			last_declined = 0`
	if _, err := s.db.Exec(query, userID, practiceID, effectiveness, effectiveness); err != nil {
		slog.Error("SQLiteStore.RecordPracticeOutcome failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to record practice outcome for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveProfile(profile models.UserProfile) error {
	goalsJSON, err := json.Marshal(profile.Goals)
	if err != nil {
		return fmt.Errorf("failed to marshal goals for %s: %w", profile.UserID, err)
	}
	query := `INSERT OR REPLACE INTO user_profiles (user_id, name, timezone, goals_json, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, profile.UserID, profile.Name, profile.Timezone, string(goalsJSON),
		profile.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		slog.Error("SQLiteStore.SaveProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	return nil
}

func (s *SQLiteStore) GetProfile(userID string) (*models.UserProfile, error) {
	query := `SELECT user_id, name, timezone, goals_json, created_at FROM user_profiles WHERE user_id = ?`
	var p models.UserProfile
	var goalsJSON, created string
	err := s.db.QueryRow(query, userID).Scan(&p.UserID, &p.Name, &p.Timezone, &goalsJSON, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get profile for %s: %w", userID, err)
	}
	if goalsJSON != "" {
		if err := json.Unmarshal([]byte(goalsJSON), &p.Goals); err != nil {
			slog.Error("SQLiteStore.GetProfile goals unmarshal failed", "error", err, "userID", userID)
			p.Goals = nil
		}
	}
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		p.CreatedAt = t
	}
	return &p, nil
}

func (s *SQLiteStore) AddMoodEntry(userID string, entry models.MoodEntry) error {
	_, err := s.db.Exec(`INSERT INTO mood_entries (user_id, mood_score, note, recorded_at) VALUES (?, ?, ?, ?)`,
		userID, entry.Score, entry.Note, entry.RecordedAt.UTC().Format(time.RFC3339))
	if err != nil {
		slog.Error("SQLiteStore.AddMoodEntry failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert mood entry for %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMoodEntries(userID string, limit int) ([]models.MoodEntry, error) {
	query := `SELECT mood_score, note, recorded_at FROM (
			SELECT id, mood_score, note, recorded_at FROM mood_entries
			WHERE user_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?
		) ORDER BY recorded_at ASC, id ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(query, userID, limit)
	if err != nil {
		slog.Error("SQLiteStore.GetMoodEntries query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query mood entries for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []models.MoodEntry
	for rows.Next() {
		var e models.MoodEntry
		var recorded string
		if err := rows.Scan(&e.Score, &e.Note, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan mood entry row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, recorded); err == nil {
			e.RecordedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) AddDecisionLog(log models.DecisionLog) error {
	query := `
		INSERT INTO decision_logs (session_id, context_state_json, decision, opportunity_score, selected_practice_id, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, log.SessionID, nilIfEmpty(log.ContextJSON), log.Decision,
		log.OpportunityScore, nilIfEmpty(log.SelectedPracticeID), log.LatencyMs,
		log.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		slog.Error("SQLiteStore.AddDecisionLog failed", "error", err, "sessionID", log.SessionID)
		return fmt.Errorf("failed to insert decision log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddSafetyEvent(event models.SafetyEvent) error {
	query := `
		INSERT INTO safety_events (session_id, detector, severity, action, message_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, nilIfEmpty(event.SessionID), event.Detector, event.Severity,
		event.Action, nilIfEmpty(event.MessageHash), event.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		slog.Error("SQLiteStore.AddSafetyEvent failed", "error", err, "detector", event.Detector)
		return fmt.Errorf("failed to insert safety event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDecisionMetrics() (models.DecisionMetrics, error) {
	var m models.DecisionMetrics
	var avg sql.NullFloat64
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN decision = ? THEN 1 ELSE 0 END), 0),
			AVG(latency_ms)
		FROM decision_logs`
	err := s.db.QueryRow(query, string(models.ActionSuggest)).Scan(&m.TotalDecisions, &m.SuggestCount, &avg)
	if err != nil {
		slog.Error("SQLiteStore.GetDecisionMetrics failed", "error", err)
		return m, fmt.Errorf("failed to aggregate decision logs: %w", err)
	}
	if avg.Valid {
		m.AvgLatencyMs = avg.Float64
	}
	return m, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
