package redisstore

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

func newTestStore(t *testing.T, ttl time.Duration) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.TTL = ttl
	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func newSession(t *testing.T, created time.Time) *session.Session {
	t.Helper()
	engine := onboarding.NewEngine(nil)
	state, err := engine.SubmitAnswer(engine.Start(), "Yes, let's get started!")
	if err != nil {
		t.Fatal(err)
	}
	return session.NewSession(engine.Flow(), state, created)
}

func TestSessionStore_SaveGet(t *testing.T) {
	store, mr := newTestStore(t, 0)
	sess := newSession(t, time.Now().UTC())

	if err := store.Save(sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !mr.Exists("healthbuddy:session:" + sess.ID) {
		t.Error("session key not written")
	}

	loaded, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.ID != sess.ID || loaded.Status != session.StatusActive {
		t.Errorf("Get() = %+v", loaded)
	}
	if !reflect.DeepEqual(loaded.State, sess.State) {
		t.Errorf("State = %+v; want %+v", loaded.State, sess.State)
	}
}

func TestSessionStore_NotFound(t *testing.T) {
	store, _ := newTestStore(t, 0)

	if _, err := store.Get("missing"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get() error = %v; want ErrNotFound", err)
	}
	if err := store.Delete("missing"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Delete() error = %v; want ErrNotFound", err)
	}
}

func TestSessionStore_ListOrderAndDelete(t *testing.T) {
	store, _ := newTestStore(t, 0)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	older := newSession(t, base)
	newer := newSession(t, base.Add(time.Hour))
	store.Save(older)
	store.Save(newer)

	ids, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if !reflect.DeepEqual(ids, []string{newer.ID, older.ID}) {
		t.Errorf("List() = %v; want [%s %s]", ids, newer.ID, older.ID)
	}

	if err := store.Delete(newer.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	ids, _ = store.List()
	if !reflect.DeepEqual(ids, []string{older.ID}) {
		t.Errorf("List() after delete = %v", ids)
	}
}

func TestSessionStore_TTLExpiresAndPrunesIndex(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	sess := newSession(t, time.Now())
	store.Save(sess)

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(sess.ID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Get() after TTL error = %v; want ErrNotFound", err)
	}
	ids, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("List() = %v; want empty", ids)
	}
	members, _ := mr.ZMembers("healthbuddy:sessions")
	if len(members) != 0 {
		t.Errorf("index still holds %v", members)
	}
}

func TestNew_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond
	if _, err := New(cfg); err == nil {
		t.Error("New() should fail for an unreachable server")
	}
}
