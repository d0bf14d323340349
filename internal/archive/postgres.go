// Package archive stores completed onboarding sessions in PostgreSQL for
// reporting across installations.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlc-dev/pqtype"
)

var (
	ErrNotFound     = errors.New("archived session not found")
	ErrNotCompleted = errors.New("only completed sessions can be archived")
)

const schema = `
CREATE TABLE IF NOT EXISTS onboarding_archive (
	session_id     TEXT PRIMARY KEY,
	flow_id        TEXT NOT NULL,
	flow_version   INTEGER NOT NULL,
	persona        TEXT NOT NULL,
	trainer        TEXT NOT NULL,
	profile        JSONB NOT NULL,
	scores         JSONB NOT NULL,
	recommendation JSONB NOT NULL,
	history        JSONB,
	narrative      TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_onboarding_archive_persona ON onboarding_archive(persona);
CREATE INDEX IF NOT EXISTS idx_onboarding_archive_trainer ON onboarding_archive(trainer);
`

// Record is one archived onboarding.
type Record struct {
	SessionID      string                    `json:"session_id"`
	FlowID         string                    `json:"flow_id"`
	FlowVersion    int                       `json:"flow_version"`
	Persona        onboarding.Persona        `json:"persona"`
	Trainer        onboarding.Trainer        `json:"trainer"`
	Profile        onboarding.Profile        `json:"profile"`
	Scores         onboarding.Scoreboard     `json:"scores"`
	Recommendation onboarding.Recommendation `json:"recommendation"`
	History        []onboarding.Answer       `json:"history,omitempty"`
	Narrative      string                    `json:"narrative,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	CompletedAt    time.Time                 `json:"completed_at"`
}

// PostgresArchive implements session.Archive using PostgreSQL
type PostgresArchive struct {
	pool *pgxpool.Pool
}

var _ session.Archive = (*PostgresArchive)(nil)

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewPostgresArchive creates a new PostgreSQL archive
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// EnsureSchema creates the archive table if missing.
func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// Save archives a completed session. Saving again replaces the record.
func (a *PostgresArchive) Save(ctx context.Context, sess *session.Session) error {
	rec, ok := sess.Recommendation()
	if !ok || sess.CompletedAt == nil {
		return ErrNotCompleted
	}

	profile, err := json.Marshal(sess.State.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	scores, err := json.Marshal(sess.State.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal recommendation: %w", err)
	}
	var history pqtype.NullRawMessage
	if len(sess.State.History) > 0 {
		data, err := json.Marshal(sess.State.History)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		history = pqtype.NullRawMessage{RawMessage: data, Valid: true}
	}

	query := `
		INSERT INTO onboarding_archive (session_id, flow_id, flow_version, persona, trainer,
			profile, scores, recommendation, history, narrative, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (session_id) DO UPDATE SET
			persona = EXCLUDED.persona, trainer = EXCLUDED.trainer,
			profile = EXCLUDED.profile, scores = EXCLUDED.scores,
			recommendation = EXCLUDED.recommendation, history = EXCLUDED.history,
			narrative = EXCLUDED.narrative, completed_at = EXCLUDED.completed_at
	`
	_, err = a.pool.Exec(ctx, query,
		sess.ID, sess.FlowID, sess.FlowVersion, string(rec.Persona), string(rec.Trainer),
		profile, scores, recJSON, history, sess.Narrative, sess.CreatedAt, *sess.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

// Get retrieves an archived session.
func (a *PostgresArchive) Get(ctx context.Context, sessionID string) (*Record, error) {
	query := `
		SELECT session_id, flow_id, flow_version, persona, trainer, profile, scores,
			recommendation, history, narrative, created_at, completed_at
		FROM onboarding_archive WHERE session_id = $1
	`
	var r Record
	var persona, trainer string
	var profile, scores, recJSON, history []byte

	err := a.pool.QueryRow(ctx, query, sessionID).Scan(
		&r.SessionID, &r.FlowID, &r.FlowVersion, &persona, &trainer,
		&profile, &scores, &recJSON, &history, &r.Narrative, &r.CreatedAt, &r.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get archived session: %w", err)
	}

	r.Persona = onboarding.Persona(persona)
	r.Trainer = onboarding.Trainer(trainer)
	if err := json.Unmarshal(profile, &r.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if err := json.Unmarshal(scores, &r.Scores); err != nil {
		return nil, fmt.Errorf("unmarshal scores: %w", err)
	}
	if err := json.Unmarshal(recJSON, &r.Recommendation); err != nil {
		return nil, fmt.Errorf("unmarshal recommendation: %w", err)
	}
	if history != nil {
		if err := json.Unmarshal(history, &r.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return &r, nil
}

// PersonaCounts returns how many archived sessions fell into each persona.
func (a *PostgresArchive) PersonaCounts(ctx context.Context) (map[onboarding.Persona]int, error) {
	out := make(map[onboarding.Persona]int)
	err := a.countBy(ctx, "persona", func(k string, n int) { out[onboarding.Persona(k)] = n })
	return out, err
}

// TrainerCounts returns how many archived sessions were matched to each trainer.
func (a *PostgresArchive) TrainerCounts(ctx context.Context) (map[onboarding.Trainer]int, error) {
	out := make(map[onboarding.Trainer]int)
	err := a.countBy(ctx, "trainer", func(k string, n int) { out[onboarding.Trainer(k)] = n })
	return out, err
}

// countBy groups by a fixed column name; column is never user input.
func (a *PostgresArchive) countBy(ctx context.Context, column string, fn func(string, int)) error {
	rows, err := a.pool.Query(ctx, "SELECT "+column+", COUNT(*) FROM onboarding_archive GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		fn(key, n)
	}
	return rows.Err()
}
