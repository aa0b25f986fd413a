// Package sqlite persists the tree in SQLite, one JSON document per
// top-level key, and fans change notifications out over AMQP so several
// processes sharing the database see each other's writes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"opsconsole/internal/amqp"
	applog "opsconsole/internal/log"
	"opsconsole/internal/store"
)

// Broadcaster carries change notifications between processes.
type Broadcaster interface {
	PublishChange(ctx context.Context, msg *amqp.ChangeMessage) error
	ConsumeChanges(ctx context.Context, handler func(*amqp.ChangeMessage) error) error
}

type Store struct {
	db       *sql.DB
	hub      *store.Hub
	bus      Broadcaster
	instance string
	logger   *slog.Logger

	// writeMu orders commits and their notifications.
	writeMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open creates the database if needed, migrates it and, when bus is not
// nil, starts listening for changes made by other processes.
func Open(ctx context.Context, dbPath string, bus Broadcaster, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:       db,
		hub:      store.NewHub(logger),
		bus:      bus,
		instance: uuid.NewString(),
		logger:   logger,
	}

	if bus != nil {
		consumeCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			err := bus.ConsumeChanges(consumeCtx, s.applyRemote)
			if err != nil && consumeCtx.Err() == nil {
				logger.Error("Change consumer stopped", applog.FieldError, err)
			}
		}()
	}

	logger.Info("SQLite store ready", "db_path", dbPath, applog.FieldInstance, s.instance)
	return s, nil
}

// Instance identifies this process on the change bus.
func (s *Store) Instance() string { return s.instance }

func (s *Store) Subscribe(ctx context.Context, path string, onChange store.Listener, onError store.ErrorListener) (*store.Subscription, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sub, err := s.hub.Add(path, onChange, onError)
	if err != nil {
		return nil, err
	}
	v, err := s.read(ctx, sub.Segments())
	if err != nil {
		s.hub.Fail(sub, err)
	} else {
		s.hub.Deliver(sub, v)
	}
	return sub, nil
}

func (s *Store) Unsubscribe(sub *store.Subscription) {
	s.hub.Remove(sub)
}

func (s *Store) ReadOnce(ctx context.Context, path string) (any, error) {
	segs, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}
	return s.read(ctx, segs)
}

func (s *Store) Write(ctx context.Context, path string, value any) error {
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	v, err := store.Canonical(value)
	if err != nil {
		return err
	}
	return s.mutate(ctx, path, func(root any) (any, [][]string, error) {
		return store.Set(root, segs, v), [][]string{segs}, nil
	})
}

func (s *Store) Update(ctx context.Context, path string, partial map[string]any) error {
	segs, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	canon, err := store.Canonical(partial)
	if err != nil {
		return err
	}
	fields, _ := canon.(map[string]any)
	return s.mutate(ctx, path, func(root any) (any, [][]string, error) {
		switch store.Get(root, segs).(type) {
		case nil, map[string]any:
		default:
			return nil, nil, fmt.Errorf("update %q: %w", path, store.ErrNotObject)
		}
		return store.Merge(root, segs, fields)
	})
}

func (s *Store) read(ctx context.Context, segs []string) (any, error) {
	if len(segs) == 0 {
		docs, _, err := loadAll(ctx, s.db)
		if err != nil {
			return nil, err
		}
		if len(docs) == 0 {
			return nil, nil
		}
		return docs, nil
	}
	doc, _, err := loadDoc(ctx, s.db, segs[0])
	if err != nil {
		return nil, err
	}
	return store.Get(doc, segs[1:]), nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadDoc(ctx context.Context, q querier, key string) (any, int64, error) {
	var body string
	var version int64
	err := q.QueryRowContext(ctx, `SELECT body, version FROM documents WHERE key = ?`, key).Scan(&body, &version)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load document %q: %w", key, err)
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, 0, fmt.Errorf("decode document %q: %w", key, err)
	}
	return v, version, nil
}

func loadAll(ctx context.Context, q querier) (map[string]any, map[string]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT key, body, version FROM documents`)
	if err != nil {
		return nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	docs := map[string]any{}
	versions := map[string]int64{}
	for rows.Next() {
		var key, body string
		var version int64
		if err := rows.Scan(&key, &body, &version); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return nil, nil, fmt.Errorf("decode document %q: %w", key, err)
		}
		docs[key] = v
		versions[key] = version
	}
	return docs, versions, rows.Err()
}

// mutate loads the documents a change can touch, applies fn to them as one
// tree, persists the top-level keys whose value changed and notifies.
func (s *Store) mutate(ctx context.Context, path string, fn func(root any) (any, [][]string, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	docs, versions, err := loadAll(ctx, tx)
	if err != nil {
		return err
	}
	var root any
	if len(docs) > 0 {
		root = docs
	}

	next, changed, err := fn(root)
	if err != nil {
		return err
	}
	nextDocs, _ := next.(map[string]any)

	keys := touchedKeys(changed, docs, nextDocs)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var version int64
	for _, key := range keys {
		val, ok := nextDocs[key]
		if !ok {
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, key); err != nil {
				return fmt.Errorf("delete document %q: %w", key, err)
			}
			continue
		}
		body, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encode document %q: %w", key, err)
		}
		v := versions[key] + 1
		version = max(version, v)
		_, err = tx.ExecContext(ctx, `INSERT INTO documents (key, body, version, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET body = excluded.body, version = excluded.version, updated_at = excluded.updated_at`,
			key, string(body), v, now)
		if err != nil {
			return fmt.Errorf("save document %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.notify(ctx, changed)
	s.publish(ctx, path, version)
	return nil
}

// touchedKeys lists the top-level keys a change may have modified. A change
// at the root touches every key present before or after.
func touchedKeys(changed [][]string, before, after map[string]any) []string {
	set := map[string]struct{}{}
	for _, c := range changed {
		if len(c) == 0 {
			for k := range before {
				set[k] = struct{}{}
			}
			for k := range after {
				set[k] = struct{}{}
			}
			continue
		}
		set[c[0]] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) notify(ctx context.Context, changed [][]string) {
	s.hub.Notify(changed, func(segs []string) (any, error) {
		return s.read(ctx, segs)
	})
}

func (s *Store) publish(ctx context.Context, path string, version int64) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishChange(ctx, amqp.NewChangeMessage(s.instance, path, version)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish change",
			applog.FieldPath, path,
			applog.FieldError, err)
	}
}

func (s *Store) applyRemote(msg *amqp.ChangeMessage) error {
	if msg.Instance == s.instance {
		return nil
	}
	segs, err := store.SplitPath(msg.Path)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.notify(context.Background(), [][]string{segs})
	return nil
}

func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
	s.hub.Close()
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)
