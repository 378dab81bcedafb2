package session

import (
	"context"
	"sync"
	"time"

	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/metrics"
	"github.com/dtroode/taq-server/internal/notify"
)

// ManagerConfig tunes session bookkeeping.
type ManagerConfig struct {
	IdleTTL   time.Duration
	NotifyTTL time.Duration
	// Now is the clock used by sessions. Nil means time.Now.
	Now func() time.Time
}

// Manager is the registry of live sessions.
type Manager struct {
	cfg     ManagerConfig
	metrics *metrics.Metrics
	logger  *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	onEvict  []func(*Session)
}

func NewManager(cfg ManagerConfig, m *metrics.Metrics, logger *logger.Logger) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 24 * time.Hour
	}
	if cfg.NotifyTTL <= 0 {
		cfg.NotifyTTL = notify.DefaultTTL
	}
	return &Manager{
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Create starts a session under a fresh random id.
func (m *Manager) Create() (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}
	return m.GetOrCreate(id), nil
}

// GetOrCreate returns the session with id, creating an empty one if needed.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := newSession(id, m.cfg.Now, m.cfg.NotifyTTL)
	m.sessions[id] = s
	m.metrics.Sessions.Set(float64(len(m.sessions)))
	return s
}

// OnEvict registers fn to run for every evicted session.
func (m *Manager) OnEvict(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvict = append(m.onEvict, fn)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// EvictIdle removes sessions idle for longer than the configured TTL.
func (m *Manager) EvictIdle() int {
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var evicted []*Session
	for id, s := range m.sessions {
		if s.lastActive().Before(cutoff) {
			evicted = append(evicted, s)
			delete(m.sessions, id)
		}
	}
	hooks := append([]func(*Session){}, m.onEvict...)
	m.metrics.Sessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range evicted {
		s.close()
		for _, fn := range hooks {
			fn(s)
		}
	}
	return len(evicted)
}

// StartJanitor evicts idle sessions every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.EvictIdle(); n > 0 {
					m.logger.Debug("Session manager: evicted idle sessions", "count", n)
				}
			}
		}
	}()
}
