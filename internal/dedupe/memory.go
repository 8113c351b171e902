package dedupe

import (
	"context"
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

type memEntry struct {
	expireAt int64 // unix nano
}

type MemoryDedupe struct {
	log     logger.Logger
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	items   map[string]memEntry
	stopCh  chan struct{}
	stopped bool
}

type MemoryOption func(*MemoryDedupe)

// WithClock replaces time.Now (tests)
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryDedupe) {
		if now != nil {
			m.now = now
		}
	}
}

// one instance only;
// ttl-how long a key suppresses repeats;
// janitorEvery-how often expired keys are swept; 0 -> lazy expiry on lookup only
func NewInMemoryDedupe(log logger.Logger, ttl, janitorEvery time.Duration, opts ...MemoryOption) *MemoryDedupe {
	m := &MemoryDedupe{
		log:    log,
		ttl:    ttl,
		now:    time.Now,
		items:  make(map[string]memEntry, 64),
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	}

	return m
}

func (m *MemoryDedupe) Seen(_ context.Context, key string) (bool, error) {
	now := m.now().UnixNano()
	exp := now + m.ttl.Nanoseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	// if exists and not expired
	if e, ok := m.items[key]; ok && e.expireAt > now {
		return true, nil
	}

	m.items[key] = memEntry{
		expireAt: exp,
	}

	m.log.Debugf("Recorded dedup key=%s until %s", key, time.Unix(0, exp).UTC().Format(time.RFC3339))

	return false, nil
}

// Len count keys including expired, not yet swept
func (m *MemoryDedupe) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryDedupe) Health(_ context.Context) error {
	return nil
}

func (m *MemoryDedupe) sweep() {
	now := m.now().UnixNano()
	m.mu.Lock()
	for k, e := range m.items {
		if e.expireAt <= now {
			m.log.Debugf("Removing expired dedup key: %s", k)
			delete(m.items, k)
		}
	}
	m.mu.Unlock()
}

func (m *MemoryDedupe) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.sweep()
		}
	}
}

// Close stops the janitor (if running)
func (m *MemoryDedupe) Close() {
	m.mu.Lock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
	m.mu.Unlock()
}
