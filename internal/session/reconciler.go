package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/taq-server/internal/flag"
	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/metrics"
	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/retry"
)

// LogoutTimeout bounds the provider sign-out call.
const LogoutTimeout = 10 * time.Second

// Config tunes the wait for the identity provider.
type Config struct {
	IdentityRetries    int
	IdentityRetryDelay time.Duration
	// NewTimer supplies the timer used between identity retries. Nil means a real timer.
	NewTimer func() retry.Timer
}

// DefaultConfig waits for an identity with three retries one second apart.
func DefaultConfig() Config {
	return Config{
		IdentityRetries:    3,
		IdentityRetryDelay: time.Second,
	}
}

// Reconciler drives sessions from provider auth events to a resolved profile.
type Reconciler struct {
	base     context.Context
	provider model.IdentityProvider
	store    model.ProfileStore
	flags    *flag.Channel
	sessions *Manager
	metrics  *metrics.Metrics
	logger   *logger.Logger
	cfg      Config
}

// NewReconciler wires the reconciler to the logout flag of every session in
// sessions. Attempts run under ctx and stop when it is done.
func NewReconciler(
	ctx context.Context,
	provider model.IdentityProvider,
	store model.ProfileStore,
	flags *flag.Channel,
	sessions *Manager,
	m *metrics.Metrics,
	logger *logger.Logger,
	cfg Config,
) *Reconciler {
	// the identity wait is always bounded
	if cfg.IdentityRetries < 0 {
		cfg.IdentityRetries = 0
	}

	r := &Reconciler{
		base:     ctx,
		provider: provider,
		store:    store,
		flags:    flags,
		sessions: sessions,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}

	flags.Subscribe(r.onFlag)
	sessions.OnEvict(func(s *Session) { flags.Forget(s.ID()) })

	return r
}

func (r *Reconciler) onFlag(ev flag.Event) {
	s, ok := r.sessions.Get(ev.SessionID)
	if !ok {
		return
	}
	switch ev.Kind {
	case flag.Began:
		s.beginLogout()
	case flag.Ended:
		s.endLogout()
	}
}

// Observe feeds a provider auth event into the session. Reconciliation for a
// new identity starts in the background; use Await to wait for it.
func (r *Reconciler) Observe(ctx context.Context, s *Session, ev AuthEvent) {
	if r.flags.InProgress(ctx, s.ID()) {
		r.logger.Debug("Reconciler: logout in progress, ignoring auth event", "session", s.ID())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLocked()
	if s.state.LoggingOut {
		return
	}

	s.state.IdentityReady = ev.Ready
	if !ev.Ready {
		return
	}

	if !ev.Authenticated || ev.IdentityID == "" {
		if s.state.Authenticated || s.target != "" {
			r.logger.Debug("Reconciler: session no longer authenticated", "session", s.ID())
		}
		s.resetLocked()
		return
	}

	// one attempt per identity change; Refresh starts another explicitly
	if s.state.Authenticated && s.target == ev.IdentityID {
		return
	}

	s.state.Authenticated = true
	r.startLocked(s, ev.IdentityID, uuid.Nil)
}

// Refresh re-runs reconciliation for the session's current identity,
// preferring the profile id it already knows.
func (r *Reconciler) Refresh(ctx context.Context, s *Session) error {
	if r.flags.InProgress(ctx, s.ID()) {
		return model.ErrLogoutInProgress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.LoggingOut {
		return model.ErrLogoutInProgress
	}
	if !s.state.Authenticated || s.target == "" {
		return model.ErrNotAuthenticated
	}

	s.touchLocked()
	r.startLocked(s, s.target, s.knownProfileID)
	return nil
}

// Await blocks until the session's current attempt settles or ctx is done.
func (r *Reconciler) Await(ctx context.Context, s *Session) error {
	s.mu.Lock()
	ch := s.settled
	s.mu.Unlock()

	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logout raises the session's logout flag, clears its state, signs the
// identity out at the provider and lowers the flag. Provider failures are
// logged; local state is cleared regardless. The flag is raised and lowered
// even when ctx is cancelled midway.
func (r *Reconciler) Logout(ctx context.Context, s *Session) {
	identityID := s.IdentityID()

	ctx = context.WithoutCancel(ctx)
	r.flags.Begin(ctx, s.ID())
	defer r.flags.End(ctx, s.ID())

	if identityID != "" {
		pctx, cancel := context.WithTimeout(ctx, LogoutTimeout)
		err := r.provider.Logout(pctx, identityID)
		cancel()
		if err != nil {
			r.metrics.Logouts.WithLabelValues("provider_error").Inc()
			r.logger.Warn("Reconciler: provider logout failed", "session", s.ID(), "identity", identityID, "error", err)
		} else {
			r.metrics.Logouts.WithLabelValues("ok").Inc()
		}
	}

	s.finishLogout()
	r.logger.Info("Reconciler: session logged out", "session", s.ID(), "identity", identityID)
}

func (r *Reconciler) startLocked(s *Session, identityID string, knownProfileID uuid.UUID) {
	s.discardLocked()
	if s.target != identityID {
		s.state.Identity = nil
		s.state.Profile = nil
		s.knownProfileID = uuid.Nil
		knownProfileID = uuid.Nil
	}

	a := attempt{
		gen:            s.generation,
		identityID:     identityID,
		knownProfileID: knownProfileID,
	}

	ctx, cancel := context.WithCancel(r.base)
	settled := make(chan struct{})
	s.target = identityID
	s.cancel = cancel
	s.settled = settled
	s.inFlight = true
	s.state.Phase = IdentityPending
	s.state.ProfileLoading = true

	go r.run(ctx, s, a, settled)
}

func (r *Reconciler) run(ctx context.Context, s *Session, a attempt, settled chan struct{}) {
	defer close(settled)
	defer s.settle(a)

	log := r.logger.With("session", s.ID(), "identity", a.identityID)

	identity, err := r.awaitIdentity(ctx, s, a)
	if err != nil {
		switch {
		case errors.Is(err, retry.ErrExhausted):
			r.metrics.Reconciliations.WithLabelValues("exhausted").Inc()
			log.Warn("Reconciler: identity not available after retries", "error", err)
		case errors.Is(err, model.ErrLogoutInProgress), ctx.Err() != nil:
			r.metrics.Reconciliations.WithLabelValues("discarded").Inc()
			log.Debug("Reconciler: identity wait abandoned")
		default:
			r.metrics.Reconciliations.WithLabelValues("exhausted").Inc()
			log.Warn("Reconciler: identity wait failed", "error", err)
		}
		return
	}

	if r.guarded(ctx, s, a) || !s.applyIdentity(a, identity) {
		r.metrics.Reconciliations.WithLabelValues("discarded").Inc()
		return
	}

	profile, err := r.lookup(ctx, a)

	if r.guarded(ctx, s, a) {
		r.metrics.Reconciliations.WithLabelValues("discarded").Inc()
		log.Debug("Reconciler: discarding superseded profile lookup")
		return
	}

	switch {
	case err == nil:
		if s.applyFound(a, profile) {
			r.metrics.Reconciliations.WithLabelValues("found").Inc()
			log.Info("Reconciler: profile found", "profile", profile.ID)
			return
		}
	case errors.Is(err, model.ErrNotFound):
		if s.applyMissing(a) {
			r.metrics.Reconciliations.WithLabelValues("missing").Inc()
			log.Info("Reconciler: no profile for identity")
			return
		}
	default:
		if s.applyLookupError(a, err) {
			r.metrics.Reconciliations.WithLabelValues("error").Inc()
			log.Error("Reconciler: profile lookup failed", "error", err)
			return
		}
	}
	r.metrics.Reconciliations.WithLabelValues("discarded").Inc()
}

// guarded reports whether the attempt must stop: its context ended, a logout
// is underway or a newer attempt replaced it.
func (r *Reconciler) guarded(ctx context.Context, s *Session, a attempt) bool {
	if ctx.Err() != nil {
		return true
	}
	if r.flags.InProgress(ctx, s.ID()) {
		return true
	}
	return !s.current(a.gen)
}

func (r *Reconciler) awaitIdentity(ctx context.Context, s *Session, a attempt) (model.Identity, error) {
	policy := retry.Policy{
		Retries: r.cfg.IdentityRetries,
		Delay:   r.cfg.IdentityRetryDelay,
		OnRetry: func(err error, wait time.Duration) {
			r.metrics.IdentityRetries.Inc()
			r.logger.Debug("Reconciler: waiting for identity", "session", s.ID(), "identity", a.identityID, "wait", wait, "error", err)
		},
	}
	if r.cfg.NewTimer != nil {
		policy.Timer = r.cfg.NewTimer()
	}

	var identity model.Identity
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		if r.guarded(ctx, s, a) {
			return retry.Permanent(model.ErrLogoutInProgress)
		}
		id, err := r.provider.Identity(ctx, a.identityID)
		if err != nil {
			return err
		}
		identity = id
		return nil
	})
	if err != nil {
		return model.Identity{}, err
	}
	if identity.ID == "" {
		identity.ID = a.identityID
	}
	return identity, nil
}

// lookup prefers the known internal profile id and falls back to the identity
// id whenever that lookup does not yield this identity's profile.
func (r *Reconciler) lookup(ctx context.Context, a attempt) (model.Profile, error) {
	if a.knownProfileID != uuid.Nil {
		p, err := r.store.FindByID(ctx, a.knownProfileID)
		switch {
		case err == nil && p.IdentityID == a.identityID:
			return p, nil
		case err == nil:
			r.logger.Warn("Reconciler: known profile belongs to another identity, falling back",
				"profile", a.knownProfileID, "identity", a.identityID)
		case errors.Is(err, model.ErrNotFound):
			r.logger.Debug("Reconciler: known profile id not found, falling back", "profile", a.knownProfileID)
		default:
			r.logger.Warn("Reconciler: lookup by profile id failed, falling back", "profile", a.knownProfileID, "error", err)
		}
	}

	p, err := r.store.FindByIdentityID(ctx, a.identityID)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}
