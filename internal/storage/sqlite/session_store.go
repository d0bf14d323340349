package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

// SessionStore implements session persistence backed by SQLite. The engine
// state is stored as a JSON document; status and step index are lifted into
// columns for querying.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new SQLite-backed session store.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save persists a session (insert or update).
func (s *SessionStore) Save(sess *session.Session) error {
	state, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, flow_id, flow_version, status, step_index, state,
			narrative, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			flow_id=excluded.flow_id, flow_version=excluded.flow_version,
			status=excluded.status, step_index=excluded.step_index,
			state=excluded.state, narrative=excluded.narrative,
			updated_at=excluded.updated_at, completed_at=excluded.completed_at`,
		sess.ID, sess.FlowID, sess.FlowVersion, string(sess.Status),
		sess.State.StepIndex, string(state), sess.Narrative,
		sess.CreatedAt, sess.UpdatedAt, nullTime(sess.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*session.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, flow_id, flow_version, status, state, narrative,
			created_at, updated_at, completed_at
		FROM sessions WHERE id = ?`, id)

	var sess session.Session
	var status, state string
	var completedAt sql.NullTime

	err := row.Scan(&sess.ID, &sess.FlowID, &sess.FlowVersion, &status, &state,
		&sess.Narrative, &sess.CreatedAt, &sess.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.Status = session.Status(status)
	if err := json.Unmarshal([]byte(state), &sess.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if completedAt.Valid {
		sess.CompletedAt = &completedAt.Time
	}
	return &sess, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// List returns all session IDs, newest first.
func (s *SessionStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM sessions ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByStatus returns the number of sessions per status.
func (s *SessionStore) CountByStatus() (map[session.Status]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM sessions GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[session.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[session.Status(status)] = n
	}
	return counts, rows.Err()
}

// nullTime converts a *time.Time to sql.NullTime for storage.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
