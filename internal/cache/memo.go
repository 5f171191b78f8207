package cache

import (
	"sync"

	"go.uber.org/zap"
)

// Memo is a concurrency-safe memoization cache with first-writer-wins
// semantics: once a key is populated it is never overwritten. A later Put
// with a different value is ignored and logged, which protects a shared memo
// from races between concurrent lookups. Entries live until Clear is called
// between batches; there is no eviction.
type Memo[V comparable] struct {
	name    string
	mu      sync.RWMutex
	entries map[string]V
	logger  *zap.Logger
}

// NewMemo builds a named memo cache.
func NewMemo[V comparable](name string, logger *zap.Logger) *Memo[V] {
	return &Memo[V]{
		name:    name,
		entries: make(map[string]V),
		logger:  logger,
	}
}

// Get returns the cached value for key.
func (m *Memo[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	return value, ok
}

// Put stores value for key. The first write wins; a conflicting later write
// is discarded. Returns whether the value was stored.
func (m *Memo[V]) Put(key string, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.entries[key]
	if ok {
		if existing != value {
			m.logger.Warn("conflicting cache write ignored",
				zap.String("cache", m.name),
				zap.String("key", key))
		}
		return false
	}
	m.entries[key] = value
	return true
}

// Len returns the number of cached entries.
func (m *Memo[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear drops all entries; called between batches on long-running processes.
func (m *Memo[V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]V)
}
