package session

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/healthbuddy/internal/storage/local"
)

var ErrNotFound = errors.New("session not found")

// Store keeps each session as a JSON file.
type Store struct {
	sessions *local.Collection[Session]
}

// NewStore opens the session directory, creating it if needed.
func NewStore(dir string) (*Store, error) {
	c, err := local.NewCollection[Session](dir)
	if err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Store{sessions: c}, nil
}

func (s *Store) Save(session *Session) error {
	return s.sessions.Put(session.ID, session)
}

func (s *Store) Get(id string) (*Session, error) {
	sess, err := s.sessions.Get(id)
	if errors.Is(err, local.ErrNotFound) {
		return nil, ErrNotFound
	}
	return sess, err
}

func (s *Store) Delete(id string) error {
	err := s.sessions.Delete(id)
	if errors.Is(err, local.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// List returns all session IDs.
func (s *Store) List() ([]string, error) {
	return s.sessions.IDs()
}

// CountByStatus reads every session file. Unreadable files are logged and
// left out of the counts.
func (s *Store) CountByStatus() (map[Status]int, error) {
	counts := make(map[Status]int)
	err := s.sessions.Each(func(_ string, sess *Session) error {
		counts[sess.Status]++
		return nil
	})
	if errors.Is(err, local.ErrCorrupt) {
		slog.Warn("skipped unreadable session files", "dir", s.sessions.Dir(), "error", err)
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	return counts, nil
}
