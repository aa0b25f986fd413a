// Package memory is an in-process tree store, used for development and
// tests and as the default backend.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"opsconsole/internal/store"
)

// SeedFile is the file NewFromFile looks for inside the data directory.
const SeedFile = "seed.json"

type Store struct {
	mu     sync.Mutex
	root   any
	hub    *store.Hub
	logger *slog.Logger
}

// New returns a store holding a canonical copy of seed.
func New(seed any, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root, err := store.Canonical(seed)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return &Store{root: root, hub: store.NewHub(logger), logger: logger}, nil
}

// NewFromFile seeds the store from base/seed.json. A missing file yields an
// empty tree.
func NewFromFile(base string, logger *slog.Logger) (*Store, error) {
	seed, err := readSeed(filepath.Join(base, SeedFile))
	if err != nil {
		return nil, err
	}
	return New(seed, logger)
}

func readSeed(path string) (any, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return v, nil
}

func (s *Store) Subscribe(ctx context.Context, path string, onChange store.Listener, onError store.ErrorListener) (*store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, err := s.hub.Add(path, onChange, onError)
	if err != nil {
		return nil, err
	}
	s.hub.Deliver(sub, store.Get(s.root, sub.Segments()))
	return sub, nil
}

func (s *Store) Unsubscribe(sub *store.Subscription) {
	s.hub.Remove(sub)
}

// ReadOnce returns a private copy of the value at path.
func (s *Store) ReadOnce(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segs, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	v := store.Get(s.root, segs)
	s.mu.Unlock()
	return store.Canonical(v)
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	v, err := store.Canonical(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = store.Set(s.root, segs, v)
	s.notify([][]string{segs})
	return nil
}

func (s *Store) Update(ctx context.Context, path string, partial map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	canon, err := store.Canonical(partial)
	if err != nil {
		return err
	}
	fields, _ := canon.(map[string]any)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch store.Get(s.root, segs).(type) {
	case nil, map[string]any:
	default:
		return fmt.Errorf("update %q: %w", path, store.ErrNotObject)
	}
	root, changed, err := store.Merge(s.root, segs, fields)
	if err != nil {
		return err
	}
	s.root = root
	s.notify(changed)
	return nil
}

// notify must be called with s.mu held so events carry a consistent tree.
func (s *Store) notify(changed [][]string) {
	root := s.root
	s.hub.Notify(changed, func(segs []string) (any, error) {
		return store.Get(root, segs), nil
	})
}

// Snapshot returns a copy of the whole tree.
func (s *Store) Snapshot() (any, error) {
	s.mu.Lock()
	v := s.root
	s.mu.Unlock()
	return store.Canonical(v)
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

var _ store.Store = (*Store)(nil)
