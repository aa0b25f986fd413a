package store

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Subscription is a live registration returned by Subscribe.
type Subscription struct {
	id       uint64
	path     string
	segs     []string
	onChange Listener
	onError  ErrorListener
	active   atomic.Bool
}

func (s *Subscription) Path() string       { return s.path }
func (s *Subscription) Segments() []string { return s.segs }

// Active is false once the subscription has been removed.
func (s *Subscription) Active() bool { return s.active.Load() }

type event struct {
	sub   *Subscription
	value any
	err   error
}

// Hub keeps the subscriptions of one store and delivers their events from
// a single goroutine, in the order they were queued.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	subs   map[uint64]*Subscription
	queue  []event
	nextID uint64
	closed bool
	done   chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger: logger,
		subs:   make(map[uint64]*Subscription),
		done:   make(chan struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	go h.run()
	return h
}

// Add registers a subscription for path.
func (h *Hub) Add(path string, onChange Listener, onError ErrorListener) (*Subscription, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.nextID++
	sub := &Subscription{
		id:       h.nextID,
		path:     JoinPath(segs...),
		segs:     segs,
		onChange: onChange,
		onError:  onError,
	}
	sub.active.Store(true)
	h.subs[sub.id] = sub
	return sub, nil
}

// Remove deactivates sub. Queued events for it are dropped. Unknown or
// already removed subscriptions are ignored.
func (h *Hub) Remove(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.active.Store(false)
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
}

// Notify queues an event for every subscription related to one of the
// changed paths. valueOf is called once per affected subscription, while
// the caller still holds whatever lock makes the tree consistent.
func (h *Hub) Notify(changed [][]string, valueOf func(segs []string) (any, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.sortedSubs() {
		if !affected(sub.segs, changed) {
			continue
		}
		v, err := valueOf(sub.segs)
		h.queue = append(h.queue, event{sub: sub, value: v, err: err})
	}
	h.cond.Signal()
}

// Deliver queues a single value for sub.
func (h *Hub) Deliver(sub *Subscription, value any) {
	h.push(event{sub: sub, value: value})
}

// Fail queues an error for sub.
func (h *Hub) Fail(sub *Subscription, err error) {
	h.push(event{sub: sub, err: err})
}

// Len returns the number of registered subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops the dispatcher after draining the queue. It must not be
// called from a listener.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		sub.active.Store(false)
		delete(h.subs, id)
	}
	h.cond.Signal()
	h.mu.Unlock()
	<-h.done
}

func (h *Hub) push(ev event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.queue = append(h.queue, ev)
	h.cond.Signal()
}

// sortedSubs returns the subscriptions in registration order.
func (h *Hub) sortedSubs() []*Subscription {
	out := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func affected(segs []string, changed [][]string) bool {
	for _, c := range changed {
		if Related(segs, c) {
			return true
		}
	}
	return false
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		h.mu.Lock()
		for len(h.queue) == 0 && !h.closed {
			h.cond.Wait()
		}
		if len(h.queue) == 0 && h.closed {
			h.mu.Unlock()
			return
		}
		ev := h.queue[0]
		h.queue[0] = event{}
		h.queue = h.queue[1:]
		h.mu.Unlock()

		h.dispatch(ev)
	}
}

func (h *Hub) dispatch(ev event) {
	if !ev.sub.Active() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Subscription listener panicked", "path", ev.sub.path, "panic", r)
		}
	}()
	if ev.err != nil {
		if ev.sub.onError != nil {
			ev.sub.onError(ev.err)
		}
		return
	}
	if ev.sub.onChange != nil {
		ev.sub.onChange(ev.value)
	}
}
