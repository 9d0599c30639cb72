package affinity

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"storefront/recommender/internal/metrics"
	"storefront/recommender/internal/store"
)

// Manager hands out one Tracker per session so concurrent requests of a session
// share a single writer.
type Manager struct {
	store    store.PersistentStore
	metrics  *metrics.Metrics
	trackers *expirable.LRU[string, *Tracker]
	locks    *keyedMutex
	opts     []Option

	mu sync.Mutex
}

// NewManager keeps up to size idle trackers for ttl. Evicting a tracker loses nothing:
// journals live in the store and the session lock is held by the manager.
func NewManager(s store.PersistentStore, m *metrics.Metrics, size int, ttl time.Duration, opts ...Option) *Manager {
	if size <= 0 {
		size = 1024
	}
	return &Manager{
		store:    s,
		metrics:  m,
		trackers: expirable.NewLRU[string, *Tracker](size, nil, ttl),
		locks:    newKeyedMutex(),
		opts:     opts,
	}
}

// ForSession returns the tracker bound to sessionID.
func (m *Manager) ForSession(sessionID string) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.trackers.Get(sessionID); ok {
		return t
	}

	// Trackers of one session share a lock, so a tracker evicted while still in use and
	// its replacement never write the journal concurrently.
	opts := append([]Option{WithMetrics(m.metrics), withLock(sessionLock{locks: m.locks, key: sessionID})}, m.opts...)
	t := NewTracker(m.store, sessionID, opts...)
	m.trackers.Add(sessionID, t)
	return t
}
