// Package cache keeps derived results (matrices, year lists) keyed by view
// and snapshot version so repeated reads of an unchanged view skip the
// aggregation.
package cache

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsconsole",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	evictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsconsole",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries dropped for size or age",
	}, []string{"cache"})
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches whose entries expire.
type Cleaner interface {
	Name() string
	CleanExpired() int
}

// Janitor periodically drops expired entries from registered caches.
type Janitor struct {
	caches []Cleaner
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
}

func NewJanitor(logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{logger: logger}
}

// Register must be called before Start.
func (j *Janitor) Register(c Cleaner) {
	j.caches = append(j.caches, c)
}

func (j *Janitor) Start(interval time.Duration) {
	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	go j.run(interval)
}

func (j *Janitor) run(interval time.Duration) {
	defer close(j.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, c := range j.caches {
				if n := c.CleanExpired(); n > 0 {
					j.logger.Debug("Expired cache entries removed", "cache", c.Name(), "removed", n)
				}
			}
		case <-j.stop:
			return
		}
	}
}

// Stop waits for the cleanup goroutine to exit. It is a no-op if Start was
// never called.
func (j *Janitor) Stop() {
	if j.stop == nil {
		return
	}
	close(j.stop)
	<-j.done
	j.stop = nil
}
