// Package store provides session persistence backends for coachd.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/coachwell/coachd/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveFSMRecord(userID string, rec models.FSMRecord) error {
	query := `
		INSERT INTO fsm_records (user_id, conversation_state, practice_state, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			conversation_state = EXCLUDED.conversation_state,
			practice_state = EXCLUDED.practice_state,
			updated_at = now()`
	_, err := s.db.Exec(query, userID, rec.ConversationState, rec.PracticeState)
	if err != nil {
		slog.Error("PostgresStore.SaveFSMRecord failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to save fsm record for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) GetFSMRecord(userID string) (*models.FSMRecord, error) {
	query := `SELECT conversation_state, practice_state FROM fsm_records WHERE user_id = $1`
	var rec models.FSMRecord
	err := s.db.QueryRow(query, userID).Scan(&rec.ConversationState, &rec.PracticeState)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetFSMRecord failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get fsm record for %s: %w", userID, err)
	}
	return &rec, nil
}

func (s *PostgresStore) AppendMessage(userID string, msg models.ContractMessage) error {
	_, err := s.db.Exec(`INSERT INTO messages (user_id, role, content) VALUES ($1, $2, $3)`,
		userID, msg.Role, msg.Content)
	if err != nil {
		slog.Error("PostgresStore.AppendMessage failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert message for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) GetDialogueWindow(userID string, limit int) ([]models.ContractMessage, error) {
	query := `SELECT role, content FROM (
			SELECT id, role, content FROM messages WHERE user_id = $1 ORDER BY id DESC LIMIT $2
		) AS tail ORDER BY id ASC`
	var limitArg interface{} = limit
	if limit <= 0 {
		limitArg = nil
	}
	rows, err := s.db.Query(query, userID, limitArg)
	if err != nil {
		slog.Error("PostgresStore.GetDialogueWindow query failed", "error", err, "userID", userID)
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

func (s *PostgresStore) AddSuggestion(userID string, rec models.SuggestionRecord) error {
	_, err := s.db.Exec(`INSERT INTO suggestions (user_id, practice_id, outcome, created_at) VALUES ($1, $2, $3, $4)`,
		userID, rec.PracticeID, rec.Outcome, rec.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore.AddSuggestion failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert suggestion for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) GetSuggestions(userID string) ([]models.SuggestionRecord, error) {
	rows, err := s.db.Query(
		`SELECT practice_id, outcome, created_at FROM suggestions WHERE user_id = $1 ORDER BY id ASC`, userID)
	if err != nil {
		slog.Error("PostgresStore.GetSuggestions query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query suggestions for %s: %w", userID, err)
	}
	defer rows.Close()

	var records []models.SuggestionRecord
	for rows.Next() {
		var rec models.SuggestionRecord
		if err := rows.Scan(&rec.PracticeID, &rec.Outcome, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) UpdateLatestSuggestion(userID string, outcome models.SuggestionOutcome) error {
	query := `UPDATE suggestions SET outcome = $1
		WHERE id = (SELECT id FROM suggestions WHERE user_id = $2 ORDER BY id DESC LIMIT 1)`
	res, err := s.db.Exec(query, outcome, userID)
	if err != nil {
		slog.Error("PostgresStore.UpdateLatestSuggestion failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update suggestion for %s: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) GetMessagesSinceSuggest(userID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT since_suggest FROM suggest_counters WHERE user_id = $1`, userID).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get suggest counter for %s: %w", userID, err)
	}
	return count, nil
}

func (s *PostgresStore) SetMessagesSinceSuggest(userID string, count int) error {
	query := `
		INSERT INTO suggest_counters (user_id, since_suggest)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET since_suggest = EXCLUDED.since_suggest`
	_, err := s.db.Exec(query, userID, count)
	if err != nil {
		slog.Error("PostgresStore.SetMessagesSinceSuggest failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to set suggest counter for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) GetPracticeUsage(userID string) (map[string]models.PracticeUsage, error) {
	rows, err := s.db.Query(
		`SELECT practice_id, avg_effectiveness, last_declined FROM practice_usage WHERE user_id = $1`,
		userID)
	if err != nil {
		slog.Error("PostgresStore.GetPracticeUsage query failed", "error", err, "userID", userID)
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
	eventRows, err := s.db.Query(
		`SELECT practice_id, COUNT(*) FROM practice_usage_events
		 WHERE user_id = $1 AND used_at > $2 GROUP BY practice_id`,
		userID, time.Now().Add(-usageWindow))
	if err != nil {
		slog.Error("PostgresStore.GetPracticeUsage events query failed", "error", err, "userID", userID)
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

func (s *PostgresStore) RecordPracticeUse(userID, practiceID string) error {
	_, err := s.db.Exec(`INSERT INTO practice_usage_events (user_id, practice_id, used_at) VALUES ($1, $2, $3)`,
		userID, practiceID, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore.RecordPracticeUse failed", "error", err, "userID", userID, "practiceID", practiceID)
		return fmt.Errorf("failed to record practice use for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) RecordPracticeOutcome(userID, practiceID string, effectiveness float64, declined bool) error {
	if declined {
		query := `
			INSERT INTO practice_usage (user_id, practice_id, last_declined)
			VALUES ($1, $2, TRUE)
			ON CONFLICT (user_id, practice_id) DO UPDATE SET last_declined = TRUE`
		if _, err := s.db.Exec(query, userID, practiceID); err != nil {
			slog.Error("PostgresStore.RecordPracticeOutcome failed", "error", err, "userID", userID)
			return fmt.Errorf("failed to record practice decline for %s: %w", userID, err)
		}
		return nil
	}
	query := `
		INSERT INTO practice_usage (user_id, practice_id, avg_effectiveness, effect_count, last_declined)
		VALUES ($1, $2, $3, 1, FALSE)
		ON CONFLICT (user_id, practice_id) DO UPDATE SET
			avg_effectiveness = (practice_usage.avg_effectiveness * practice_usage.effect_count + EXCLUDED.avg_effectiveness)
				/ (practice_usage.effect_count + 1),
			effect_count = practice_usage.effect_count + 1,
			last_declined = FALSE`
	if _, err := s.db.Exec(query, userID, practiceID, effectiveness); err != nil {
		slog.Error("PostgresStore.RecordPracticeOutcome failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to record practice outcome for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) SaveProfile(profile models.UserProfile) error {
	goalsJSON, err := json.Marshal(profile.Goals)
	if err != nil {
		return fmt.Errorf("failed to marshal goals for %s: %w", profile.UserID, err)
	}
	query := `
		INSERT INTO user_profiles (user_id, name, timezone, goals_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			goals_json = EXCLUDED.goals_json`
	_, err = s.db.Exec(query, profile.UserID, nilIfEmpty(profile.Name), nilIfEmpty(profile.Timezone),
		string(goalsJSON), profile.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore.SaveProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(userID string) (*models.UserProfile, error) {
	query := `SELECT user_id, name, timezone, goals_json, created_at FROM user_profiles WHERE user_id = $1`
	var p models.UserProfile
	var name, timezone, goalsJSON sql.NullString
	var created sql.NullTime
	err := s.db.QueryRow(query, userID).Scan(&p.UserID, &name, &timezone, &goalsJSON, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get profile for %s: %w", userID, err)
	}
	p.Name = name.String
	p.Timezone = timezone.String
	if goalsJSON.String != "" {
		if err := json.Unmarshal([]byte(goalsJSON.String), &p.Goals); err != nil {
			slog.Error("PostgresStore.GetProfile goals unmarshal failed", "error", err, "userID", userID)
			p.Goals = nil
		}
	}
	if created.Valid {
		p.CreatedAt = created.Time
	}
	return &p, nil
}

func (s *PostgresStore) AddMoodEntry(userID string, entry models.MoodEntry) error {
	_, err := s.db.Exec(`INSERT INTO mood_entries (user_id, mood_score, note, recorded_at) VALUES ($1, $2, $3, $4)`,
		userID, entry.Score, nilIfEmpty(entry.Note), entry.RecordedAt)
	if err != nil {
		slog.Error("PostgresStore.AddMoodEntry failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert mood entry for %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) GetMoodEntries(userID string, limit int) ([]models.MoodEntry, error) {
	query := `SELECT mood_score, note, recorded_at FROM (
			SELECT id, mood_score, note, recorded_at FROM mood_entries
			WHERE user_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2
		) AS tail ORDER BY recorded_at ASC, id ASC`
	var limitArg interface{} = limit
	if limit <= 0 {
		limitArg = nil
	}
	rows, err := s.db.Query(query, userID, limitArg)
	if err != nil {
		slog.Error("PostgresStore.GetMoodEntries query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query mood entries for %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []models.MoodEntry
	for rows.Next() {
		var e models.MoodEntry
		var note sql.NullString
		if err := rows.Scan(&e.Score, &note, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mood entry row: %w", err)
		}
		e.Note = note.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) AddDecisionLog(log models.DecisionLog) error {
	query := `
		INSERT INTO decision_logs (session_id, context_state_json, decision, opportunity_score, selected_practice_id, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.db.Exec(query, log.SessionID, nilIfEmpty(log.ContextJSON), log.Decision,
		log.OpportunityScore, nilIfEmpty(log.SelectedPracticeID), log.LatencyMs, log.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore.AddDecisionLog failed", "error", err, "sessionID", log.SessionID)
		return fmt.Errorf("failed to insert decision log: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddSafetyEvent(event models.SafetyEvent) error {
	query := `
		INSERT INTO safety_events (session_id, detector, severity, action, message_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.Exec(query, nilIfEmpty(event.SessionID), event.Detector, event.Severity,
		event.Action, nilIfEmpty(event.MessageHash), event.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore.AddSafetyEvent failed", "error", err, "detector", event.Detector)
		return fmt.Errorf("failed to insert safety event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDecisionMetrics() (models.DecisionMetrics, error) {
	var m models.DecisionMetrics
	var avg sql.NullFloat64
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN decision = $1 THEN 1 ELSE 0 END), 0),
			AVG(latency_ms)
		FROM decision_logs`
	err := s.db.QueryRow(query, string(models.ActionSuggest)).Scan(&m.TotalDecisions, &m.SuggestCount, &avg)
	if err != nil {
		slog.Error("PostgresStore.GetDecisionMetrics failed", "error", err)
		return m, fmt.Errorf("failed to aggregate decision logs: %w", err)
	}
	if avg.Valid {
		m.AvgLatencyMs = avg.Float64
	}
	return m, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
