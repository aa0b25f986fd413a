package view

import (
	"context"
	"sync"
	"time"

	"opsconsole/internal/core"
	applog "opsconsole/internal/log"
	"opsconsole/internal/store"
)

// Snapshot is one computed state of a view.
type Snapshot struct {
	View      string                  `json:"view"`
	Version   uint64                  `json:"version"`
	Records   []core.NormalizedRecord `json:"records"`
	Errors    map[string]string       `json:"errors,omitempty"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// Session keeps one view current. Every notification for a watched path
// replaces that path's data and recomputes the whole view under the
// session lock, so the last notification wins.
type Session struct {
	def        Definition
	categories []core.Category
	subscriber store.Subscriber
	logger     *applog.Logger
	onUpdate   func(Snapshot)

	mu       sync.Mutex
	data     PathData
	errs     map[string]string
	subs     []*store.Subscription
	snapshot Snapshot
	started  bool
	closed   bool
}

// NewSession prepares a session. onUpdate, if set, is called with every new
// snapshot while the session lock is held and must not call back into it.
func NewSession(def Definition, categories []core.Category, sub store.Subscriber, logger *applog.Logger, onUpdate func(Snapshot)) *Session {
	if len(categories) == 0 {
		categories = core.CanonicalCategories()
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Session{
		def:        def,
		categories: categories,
		subscriber: sub,
		logger:     logger.WithComponent(applog.ComponentView),
		onUpdate:   onUpdate,
		data:       PathData{},
		errs:       map[string]string{},
		snapshot:   Snapshot{View: def.Name, Records: []core.NormalizedRecord{}},
	}
}

// Start subscribes to every watched path. A path that cannot be
// subscribed contributes no records; the others still render.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	for _, p := range s.def.Paths {
		sub, err := s.subscriber.Subscribe(ctx, p,
			func(v any) { s.set(p, v, nil) },
			func(err error) { s.set(p, nil, err) },
		)
		if err != nil {
			s.set(p, nil, err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			s.subscriber.Unsubscribe(sub)
			return nil
		}
		s.subs = append(s.subs, sub)
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) set(path string, value any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.data[path] = value
	if err != nil {
		s.errs[path] = err.Error()
		sourceErrors.WithLabelValues(s.def.Name, path).Inc()
		s.logger.Warn("Watched path failed to load",
			applog.FieldView, s.def.Name,
			applog.FieldPath, path,
			applog.FieldError, err)
	} else {
		delete(s.errs, path)
	}
	s.recompute()
}

// recompute must be called with s.mu held.
func (s *Session) recompute() {
	start := time.Now()
	records := Recompute(s.def.Paths, s.data, Options{Categories: s.categories, Filter: s.def.Filter})

	var errs map[string]string
	if len(s.errs) > 0 {
		errs = make(map[string]string, len(s.errs))
		for k, v := range s.errs {
			errs[k] = v
		}
	}
	s.snapshot = Snapshot{
		View:      s.def.Name,
		Version:   s.snapshot.Version + 1,
		Records:   records,
		Errors:    errs,
		UpdatedAt: time.Now(),
	}

	recomputeTotal.WithLabelValues(s.def.Name).Inc()
	recomputeDuration.WithLabelValues(s.def.Name).Observe(time.Since(start).Seconds())
	viewRecords.WithLabelValues(s.def.Name).Set(float64(len(records)))
	s.logger.Debug("View recomputed",
		applog.FieldView, s.def.Name,
		applog.FieldVersion, s.snapshot.Version,
		applog.FieldRecords, len(records))

	if s.onUpdate != nil {
		s.onUpdate(s.snapshot)
	}
}

// Snapshot returns the latest computed state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *Session) Definition() Definition { return s.def }

// Close detaches every subscription the session made. Calling it again is
// a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		s.subscriber.Unsubscribe(sub)
	}
}
