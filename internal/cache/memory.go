package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryCacheSize = 10_000

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryProvider is a bounded in-process cache. Entries past their TTL are dropped on read.
type MemoryProvider struct {
	entries *lru.Cache[string, entry]
	now     func() time.Time
}

func NewMemoryProvider() (*MemoryProvider, error) {
	return newMemoryProvider(defaultMemoryCacheSize, time.Now)
}

func newMemoryProvider(size int, now func() time.Time) (*MemoryProvider, error) {
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{entries: entries, now: now}, nil
}

func (m *MemoryProvider) Get(_ context.Context, key string) (string, error) {
	cached, ok := m.entries.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	if !cached.expiresAt.IsZero() && !m.now().Before(cached.expiresAt) {
		m.entries.Remove(key)
		return "", ErrNotFound
	}
	return cached.value, nil
}

// Set stores value under key. A non-positive ttl keeps the entry until it is evicted.
func (m *MemoryProvider) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.entries.Add(key, entry{value: value, expiresAt: expiresAt})
	return nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.entries.Remove(key)
	return nil
}

func (m *MemoryProvider) Close() error {
	m.entries.Purge()
	return nil
}
