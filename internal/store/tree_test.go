package store

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "/", want: nil},
		{in: "Staff/s1/payments", want: []string{"Staff", "s1", "payments"}},
		{in: "/pettyCash/", want: []string{"pettyCash"}},
		{in: "a//b", wantErr: true},
		{in: "a.b", wantErr: true},
		{in: "a/#", wantErr: true},
		{in: "a/[0]", wantErr: true},
	}
	for _, tt := range tests {
		got, err := SplitPath(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidPath) {
				t.Fatalf("SplitPath(%q) err = %v, want ErrInvalidPath", tt.in, err)
			}
			continue
		}
		if err != nil || !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("SplitPath(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestSetIsCopyOnWrite(t *testing.T) {
	orig := map[string]any{"a": map[string]any{"b": 1.0}}
	next := Set(orig, []string{"a", "c"}, 2.0)

	if _, ok := orig["a"].(map[string]any)["c"]; ok {
		t.Fatalf("original tree was modified")
	}
	if Get(next, []string{"a", "c"}) != 2.0 || Get(next, []string{"a", "b"}) != 1.0 {
		t.Fatalf("unexpected tree: %v", next)
	}
}

func TestSetNilPrunesEmptyParents(t *testing.T) {
	root := map[string]any{"a": map[string]any{"b": 1.0}, "x": 1.0}
	got := Set(root, []string{"a", "b"}, nil)
	if !reflect.DeepEqual(got, map[string]any{"x": 1.0}) {
		t.Fatalf("unexpected tree: %v", got)
	}
}

func TestGetIndexesArrays(t *testing.T) {
	root := map[string]any{"items": []any{"zero", map[string]any{"v": 1.0}}}
	if Get(root, []string{"items", "1", "v"}) != 1.0 {
		t.Fatalf("array index lookup failed")
	}
	if Get(root, []string{"items", "5"}) != nil {
		t.Fatalf("out of range index should be nil")
	}
}

func TestMergeReportsChangedPaths(t *testing.T) {
	root, changed, err := Merge(nil, []string{"Staff", "s1"}, map[string]any{
		"work/w1": map[string]any{"hours": 2.0},
		"name":    "Ravi",
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	want := [][]string{{"Staff", "s1", "name"}, {"Staff", "s1", "work", "w1"}}
	if !reflect.DeepEqual(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if Get(root, []string{"Staff", "s1", "work", "w1", "hours"}) != 2.0 {
		t.Fatalf("unexpected tree: %v", root)
	}
}

func TestRelated(t *testing.T) {
	if !Related([]string{"a"}, []string{"a", "b"}) || !Related([]string{"a", "b"}, []string{"a"}) {
		t.Fatalf("ancestor and descendant should be related")
	}
	if !Related(nil, []string{"a"}) {
		t.Fatalf("root is related to everything")
	}
	if Related([]string{"a", "b"}, []string{"a", "c"}) {
		t.Fatalf("siblings are not related")
	}
}

func TestHubRemoveIsIdempotentAndDropsQueuedEvents(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	var mu sync.Mutex
	var got []any
	sub, err := h.Add("a", func(v any) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	h.Remove(sub)
	h.Remove(sub)
	h.Remove(nil)
	h.Deliver(sub, 1)
	h.Notify([][]string{{"a"}}, func([]string) (any, error) { return 2, nil })

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 0 {
		t.Fatalf("removed subscription received %v", got)
	}
	if h.Len() != 0 {
		t.Fatalf("expected no subscriptions, got %d", h.Len())
	}
}

func TestHubDeliversErrorsToErrorListener(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	errs := make(chan error, 1)
	sub, _ := h.Add("a", func(any) { t.Errorf("change listener should not run") }, func(err error) { errs <- err })
	boom := errors.New("boom")
	h.Fail(sub, boom)

	select {
	case err := <-errs:
		if !errors.Is(err, boom) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("error listener not called")
	}
}

func TestHubAddAfterCloseFails(t *testing.T) {
	h := NewHub(nil)
	h.Close()
	h.Close()
	if _, err := h.Add("a", nil, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
