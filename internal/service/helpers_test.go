package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/taq-server/internal/flag"
	"github.com/dtroode/taq-server/internal/metrics"
	"github.com/dtroode/taq-server/internal/mocks"
	"github.com/dtroode/taq-server/internal/session"
	"github.com/dtroode/taq-server/internal/testutil"
)

type fixture struct {
	provider   *mocks.IdentityProvider
	store      *mocks.ProfileStore
	verifier   *mocks.TokenVerifier
	archive    *mocks.Storage
	flags      *flag.Channel
	sessions   *session.Manager
	reconciler *session.Reconciler
	metrics    *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := testutil.MakeNoopLogger()
	f := &fixture{
		provider: mocks.NewIdentityProvider(t),
		store:    mocks.NewProfileStore(t),
		verifier: mocks.NewTokenVerifier(t),
		archive:  mocks.NewStorage(t),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.flags = flag.NewChannel(flag.NewMemoryStore(), log)
	f.sessions = session.NewManager(session.ManagerConfig{}, f.metrics, log)

	cfg := session.DefaultConfig()
	cfg.IdentityRetryDelay = time.Millisecond
	f.reconciler = session.NewReconciler(ctx, f.provider, f.store, f.flags, f.sessions, f.metrics, log, cfg)
	return f
}

func (f *fixture) session(t *testing.T) *session.Session {
	t.Helper()
	s, err := f.sessions.Create()
	require.NoError(t, err)
	return s
}

func (f *fixture) await(t *testing.T, s *session.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.reconciler.Await(ctx, s))
}
