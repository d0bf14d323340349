package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

// AnalyticsEvent represents a recorded analytics event.
type AnalyticsEvent struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	SessionID string    `json:"session_id,omitempty"`
	StepID    string    `json:"step_id,omitempty"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalyticsStore records onboarding events backed by SQLite.
type AnalyticsStore struct {
	db *DB
}

// NewAnalyticsStore creates a new SQLite-backed analytics store.
func NewAnalyticsStore(db *DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

// Record stores an onboarding event.
func (s *AnalyticsStore) Record(ev session.Event) error {
	payload := []byte("{}")
	if len(ev.Data) > 0 {
		var err error
		if payload, err = json.Marshal(ev.Data); err != nil {
			return fmt.Errorf("marshal analytics data: %w", err)
		}
	}

	var sessID *string
	if ev.SessionID != "" {
		sessID = &ev.SessionID
	}

	_, err := s.db.Exec(
		"INSERT INTO analytics_events (event_type, session_id, step_id, data) VALUES (?, ?, ?, ?)",
		string(ev.Type), sessID, ev.StepID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

// Query returns events of the given type, optionally filtered by session, newest first.
func (s *AnalyticsStore) Query(eventType session.EventType, sessionID string) ([]AnalyticsEvent, error) {
	query := "SELECT id, event_type, session_id, step_id, data, created_at FROM analytics_events WHERE event_type = ?"
	args := []any{string(eventType)}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY id DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer rows.Close()

	var events []AnalyticsEvent
	for rows.Next() {
		var e AnalyticsEvent
		var sessID *string
		if err := rows.Scan(&e.ID, &e.EventType, &sessID, &e.StepID, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analytics event: %w", err)
		}
		if sessID != nil {
			e.SessionID = *sessID
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of events of the given type.
func (s *AnalyticsStore) Count(eventType session.EventType) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM analytics_events WHERE event_type = ?", string(eventType),
	).Scan(&count)
	return count, err
}

// Stats summarises the funnel: lifecycle counts, distinct sessions per
// answered step in first-seen order, and completed personas.
func (s *AnalyticsStore) Stats() (*session.Stats, error) {
	stats := &session.Stats{Personas: make(map[string]int)}

	for _, c := range []struct {
		ev  session.EventType
		dst *int
	}{
		{session.EventStarted, &stats.Started},
		{session.EventCompleted, &stats.Completed},
		{session.EventAbandoned, &stats.Abandoned},
	} {
		n, err := s.Count(c.ev)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.ev, err)
		}
		*c.dst = n
	}
	if stats.Started > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Started)
	}

	rows, err := s.db.Query(`
		SELECT step_id, COUNT(DISTINCT session_id)
		FROM analytics_events
		WHERE event_type = ? AND step_id != ''
		GROUP BY step_id
		ORDER BY MIN(id)`, string(session.EventAnswered))
	if err != nil {
		return nil, fmt.Errorf("query step funnel: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc session.StepCount
		if err := rows.Scan(&sc.StepID, &sc.Sessions); err != nil {
			return nil, fmt.Errorf("scan step count: %w", err)
		}
		stats.Steps = append(stats.Steps, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	completed, err := s.Query(session.EventCompleted, "")
	if err != nil {
		return nil, err
	}
	for _, e := range completed {
		var data map[string]string
		if json.Unmarshal([]byte(e.Data), &data) == nil && data["persona"] != "" {
			stats.Personas[data["persona"]]++
		}
	}
	return stats, nil
}

// Prune deletes analytics events older than the given duration.
func (s *AnalyticsStore) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.db.Exec("DELETE FROM analytics_events WHERE created_at < ?", cutoff.Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("prune analytics: %w", err)
	}
	return result.RowsAffected()
}
