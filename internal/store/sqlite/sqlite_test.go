package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"opsconsole/internal/amqp"
)

type fakeBus struct {
	mu        sync.Mutex
	published []*amqp.ChangeMessage
	handler   func(*amqp.ChangeMessage) error
	ready     chan struct{}
}

func newFakeBus() *fakeBus { return &fakeBus{ready: make(chan struct{})} }

func (b *fakeBus) PublishChange(_ context.Context, msg *amqp.ChangeMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, msg)
	return nil
}

func (b *fakeBus) ConsumeChanges(ctx context.Context, handler func(*amqp.ChangeMessage) error) error {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
	close(b.ready)
	<-ctx.Done()
	return ctx.Err()
}

func openStore(t *testing.T, dbPath string, bus Broadcaster) *Store {
	t.Helper()
	s, err := Open(context.Background(), dbPath, bus, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriteReadAndUpdatePersist(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "data", "console.db")
	s := openStore(t, dbPath, nil)

	if err := s.Write(ctx, "pettyCash/p1", map[string]any{"amount": "₹1,200", "date": "2024-03-15"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Update(ctx, "Staff/s1", map[string]any{"name": "Asha", "payments/r1": map[string]any{"amount": 10}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.ReadOnce(ctx, "pettyCash/p1/amount")
	if err != nil || got != "₹1,200" {
		t.Fatalf("read amount = %v, %v", got, err)
	}

	root, err := s.ReadOnce(ctx, "")
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	keys := root.(map[string]any)
	if _, ok := keys["Staff"]; !ok || len(keys) != 2 {
		t.Fatalf("unexpected root: %v", root)
	}

	// reopen and make sure the data survived
	_ = s.Close()
	s2 := openStore(t, dbPath, nil)
	got, _ = s2.ReadOnce(ctx, "Staff/s1/payments/r1/amount")
	if got != float64(10) {
		t.Fatalf("after reopen amount = %v", got)
	}
}

func TestDeleteRemovesDocument(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "c.db"), nil)

	if err := s.Write(ctx, "assets", map[string]any{"a": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(ctx, "assets/a", nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if v, _ := s.ReadOnce(ctx, "assets"); v != nil {
		t.Fatalf("expected assets to be gone, got %v", v)
	}
}

func TestSubscribeSeesLocalAndRemoteChanges(t *testing.T) {
	ctx := context.Background()
	bus := newFakeBus()
	s := openStore(t, filepath.Join(t.TempDir(), "c.db"), bus)
	<-bus.ready

	values := make(chan any, 8)
	sub, err := s.Subscribe(ctx, "pettyCash", func(v any) { values <- v }, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer s.Unsubscribe(sub)

	next := func() any {
		t.Helper()
		select {
		case v := <-values:
			return v
		case <-time.After(2 * time.Second):
			t.Fatalf("no value delivered")
			return nil
		}
	}

	if v := next(); v != nil {
		t.Fatalf("initial value = %v, want nil", v)
	}

	if err := s.Write(ctx, "pettyCash/p1", map[string]any{"amount": 5}); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := map[string]any{"p1": map[string]any{"amount": float64(5)}}
	if v := next(); !reflect.DeepEqual(v, want) {
		t.Fatalf("after write = %v, want %v", v, want)
	}

	bus.mu.Lock()
	if len(bus.published) != 1 || bus.published[0].Path != "pettyCash/p1" || bus.published[0].Instance != s.Instance() {
		t.Fatalf("unexpected published messages: %+v", bus.published)
	}
	handler := bus.handler
	bus.mu.Unlock()

	// own messages are ignored
	if err := handler(amqp.NewChangeMessage(s.Instance(), "pettyCash", 1)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	select {
	case v := <-values:
		t.Fatalf("own message should not notify, got %v", v)
	case <-time.After(50 * time.Millisecond):
	}

	// a change written by another process is read back from the database
	if _, err := s.db.ExecContext(ctx, `UPDATE documents SET body = ? WHERE key = ?`, `{"p2":{"amount":9}}`, "pettyCash"); err != nil {
		t.Fatalf("simulate remote write: %v", err)
	}
	if err := handler(amqp.NewChangeMessage("other", "pettyCash/p2", 2)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	want = map[string]any{"p2": map[string]any{"amount": float64(9)}}
	if v := next(); !reflect.DeepEqual(v, want) {
		t.Fatalf("after remote change = %v, want %v", v, want)
	}
}
