// Package local keeps JSON documents on disk, one file per record.
package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

const ext = ".json"

// Collection stores values of T as <dir>/<id>.json.
type Collection[T any] struct {
	dir string
	mu  sync.RWMutex
}

// NewCollection creates dir if needed.
func NewCollection[T any](dir string) (*Collection[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create collection directory: %w", err)
	}
	return &Collection[T]{dir: dir}, nil
}

func (c *Collection[T]) Dir() string { return c.dir }

func (c *Collection[T]) path(id string) string {
	return filepath.Join(c.dir, id+ext)
}

// Put writes v under id. The document goes to a temp file first and is
// renamed into place, so readers never see a partial write.
func (c *Collection[T]) Put(id string, v *T) error {
	if err := validID(id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp, err := os.CreateTemp(c.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(id)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (c *Collection[T]) Get(id string) (*T, error) {
	if validID(id) != nil {
		return nil, ErrNotFound
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.read(id)
}

// read expects the caller to hold mu.
func (c *Collection[T]) read(id string) (*T, error) {
	raw, err := os.ReadFile(c.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, id, err)
	}
	return &v, nil
}

func (c *Collection[T]) Delete(id string) error {
	if validID(id) != nil {
		return ErrNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

func (c *Collection[T]) Has(id string) bool {
	if validID(id) != nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := os.Stat(c.path(id))
	return err == nil
}

// IDs returns every record ID, sorted.
func (c *Collection[T]) IDs() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ids()
}

func (c *Collection[T]) ids() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}

	ids := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := strings.CutSuffix(e.Name(), ext); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Each calls fn for every record in ID order under one read lock. Corrupt
// documents are skipped and reported in the returned error; an error from
// fn stops the walk.
func (c *Collection[T]) Each(fn func(id string, v *T) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids, err := c.ids()
	if err != nil {
		return err
	}

	var corrupt []error
	for _, id := range ids {
		v, err := c.read(id)
		switch {
		case errors.Is(err, ErrCorrupt):
			corrupt = append(corrupt, err)
			continue
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return err
		}
		if err := fn(id, v); err != nil {
			return err
		}
	}
	return errors.Join(corrupt...)
}

func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
