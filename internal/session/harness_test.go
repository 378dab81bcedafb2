package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/taq-server/internal/flag"
	"github.com/dtroode/taq-server/internal/metrics"
	"github.com/dtroode/taq-server/internal/mocks"
	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/retry"
	"github.com/dtroode/taq-server/internal/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// instantTimer fires at once and records every requested wait.
type instantTimer struct {
	waits *waitLog
	c     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits.add(d)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

type waitLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitLog) add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waits = append(w.waits, d)
}

func (w *waitLog) all() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.waits...)
}

type harness struct {
	provider   *mocks.IdentityProvider
	store      *mocks.ProfileStore
	flagStore  *flag.MemoryStore
	flags      *flag.Channel
	manager    *Manager
	reconciler *Reconciler
	onboarding *Onboarding
	metrics    *metrics.Metrics
	clock      *fakeClock
	waits      *waitLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := testutil.MakeNoopLogger()
	h := &harness{
		provider:  mocks.NewIdentityProvider(t),
		store:     mocks.NewProfileStore(t),
		flagStore: flag.NewMemoryStore(),
		metrics:   metrics.New(prometheus.NewRegistry()),
		clock:     &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		waits:     &waitLog{},
	}
	h.manager = NewManager(ManagerConfig{IdleTTL: time.Hour, Now: h.clock.Now}, h.metrics, log)
	h.build(ctx, h.flagStore)
	return h
}

func (h *harness) build(ctx context.Context, store model.FlagStore) {
	log := testutil.MakeNoopLogger()
	h.flags = flag.NewChannel(store, log)

	cfg := DefaultConfig()
	cfg.NewTimer = func() retry.Timer {
		return &instantTimer{waits: h.waits, c: make(chan time.Time, 1)}
	}
	h.reconciler = NewReconciler(ctx, h.provider, h.store, h.flags, h.manager, h.metrics, log, cfg)
	h.onboarding = NewOnboarding(h.store, h.flags, h.metrics, log)
}

// useFlagStore rebuilds the flag channel, reconciler and onboarding over store.
func (h *harness) useFlagStore(t *testing.T, store model.FlagStore) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.build(ctx, store)
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	s, err := h.manager.Create()
	require.NoError(t, err)
	return s
}

func (h *harness) login(t *testing.T, s *Session, identityID string) {
	t.Helper()
	h.reconciler.Observe(context.Background(), s, AuthEvent{Ready: true, Authenticated: true, IdentityID: identityID})
	h.await(t, s)
}

func (h *harness) await(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.reconciler.Await(ctx, s))
}
