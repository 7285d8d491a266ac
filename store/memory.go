// Package store provides Store implementations: an in-process map and a
// Redis store shared between dashboard hosts.
package store

import (
	"context"
	"sync"
	"time"

	reportsync "github.com/AnandSundar/go-reportsync"
)

// MemoryStore is an in-memory implementation of reportsync.Store
type MemoryStore struct {
	mu   sync.RWMutex
	data map[reportsync.Key]*entry
	ttl  time.Duration
	done chan struct{}
	once sync.Once
}

type entry struct {
	value     *reportsync.Entry
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMemoryTTL expires entries d after their last Put. Zero, the default,
// keeps entries until Reset.
func WithMemoryTTL(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.ttl = d
	}
}

// NewMemoryStore creates a new in-memory store. Call Close to stop the
// cleanup goroutine started when a TTL is set.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data: make(map[reportsync.Key]*entry),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.ttl > 0 {
		go s.cleanup()
	}

	return s
}

// Get returns a copy of the entry for key
func (s *MemoryStore) Get(_ context.Context, key reportsync.Key) (*reportsync.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[key]
	if !exists || s.expired(e, time.Now()) {
		return nil, reportsync.ErrNotFound
	}

	return e.value.Clone(), nil
}

// Put replaces the entry for key with a copy of value
func (s *MemoryStore) Put(_ context.Context, key reportsync.Key, value *reportsync.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{value: value.Clone()}
	if s.ttl > 0 {
		e.expiresAt = time.Now().Add(s.ttl)
	}
	s.data[key] = e

	return nil
}

// Reset drops every entry
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[reportsync.Key]*entry)
	return nil
}

// Len returns the number of stored entries, expired or not
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close stops the cleanup goroutine
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) expired(e *entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// cleanup periodically removes expired entries
func (s *MemoryStore) cleanup() {
	interval := time.Minute
	if s.ttl < interval {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			for key, e := range s.data {
				if s.expired(e, now) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
