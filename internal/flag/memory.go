package flag

import (
	"context"
	"sync"
	"time"

	"github.com/dtroode/taq-server/internal/model"
)

var _ model.FlagStore = (*MemoryStore)(nil)

// MemoryStore is a process-local FlagStore for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	flags map[string]time.Time
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (m *MemoryStore) Set(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.flags[key] = expires
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.flags, key)
	return nil
}

func (m *MemoryStore) IsSet(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires, ok := m.flags[key]
	if !ok {
		return false, nil
	}
	if !expires.IsZero() && !m.now().Before(expires) {
		delete(m.flags, key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
