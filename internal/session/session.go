// Package session owns per-client session state and the reconciliation of a
// provider identity against the profile store.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/notify"
)

// Session is one client's state. It is written only by the Reconciler and
// Onboarding in this package; everyone else reads snapshots.
type Session struct {
	id    string
	now   func() time.Time
	notes *notify.Queue

	mu    sync.Mutex
	state State

	// generation increases whenever in-flight work must be discarded.
	generation uint64
	// target is the identity id the current generation reconciles.
	target         string
	knownProfileID uuid.UUID
	inFlight       bool
	cancel         context.CancelFunc
	settled        chan struct{}

	// epoch increases on every reset; submissions from an older epoch are dropped.
	epoch      uint64
	submitting bool
	redirect   *Redirect
	lastSeen   time.Time
}

func newSession(id string, now func() time.Time, notifyTTL time.Duration) *Session {
	return &Session{
		id:       id,
		now:      now,
		notes:    notify.NewQueue(notifyTTL, now),
		state:    State{Phase: Unauthenticated},
		lastSeen: now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	if s.state.Identity != nil {
		id := *s.state.Identity
		st.Identity = &id
	}
	if s.state.Profile != nil {
		p := *s.state.Profile
		st.Profile = &p
	}
	return st
}

// Notifications returns the notifications currently visible.
func (s *Session) Notifications() []notify.Notification {
	return s.notes.Active()
}

// DrainNotifications returns the visible notifications and removes them.
func (s *Session) DrainNotifications() []notify.Notification {
	return s.notes.Drain()
}

// Dismiss removes one notification.
func (s *Session) Dismiss(id uuid.UUID) bool {
	return s.notes.Dismiss(id)
}

// Notify queues a notification for the client.
func (s *Session) Notify(n notify.Notification) notify.Notification {
	return s.notes.Push(n)
}

// Navigate records that the client is now showing route.
func (s *Session) Navigate(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = s.now()
	s.state.Route = route
	if s.redirect != nil && s.redirect.To == route {
		s.redirect = nil
	}
}

// PendingRedirect returns the navigation the session is waiting for, due or not.
func (s *Session) PendingRedirect() (Redirect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.redirect == nil || s.state.LoggingOut {
		return Redirect{}, false
	}
	return *s.redirect, true
}

// TakeRedirect returns and clears the pending redirect once it is due.
func (s *Session) TakeRedirect() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.redirect == nil || s.state.LoggingOut {
		return "", false
	}
	if s.now().Before(s.redirect.At) {
		return "", false
	}
	to := s.redirect.To
	s.redirect = nil
	s.state.Route = to
	return to, true
}

// IdentityID returns the identity the session is reconciling, if any.
func (s *Session) IdentityID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *Session) lastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touchLocked() {
	s.lastSeen = s.now()
}

func (s *Session) redirectLocked(to string, delay time.Duration) {
	if s.state.LoggingOut {
		return
	}
	s.redirect = &Redirect{To: to, At: s.now().Add(delay)}
	if delay <= 0 {
		s.state.Route = to
	}
}

// discardLocked invalidates in-flight work.
func (s *Session) discardLocked() {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.inFlight = false
}

func (s *Session) currentLocked(gen uint64) bool {
	return s.generation == gen && !s.state.LoggingOut
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(gen)
}

// resetLocked returns the session to Unauthenticated, keeping route and readiness.
func (s *Session) resetLocked() {
	s.discardLocked()
	s.epoch++
	s.state.Authenticated = false
	s.state.Identity = nil
	s.state.Profile = nil
	s.state.ProfileLoading = false
	s.state.Phase = Unauthenticated
	s.state.Submission = SubmissionIdle
	s.target = ""
	s.knownProfileID = uuid.Nil
	s.submitting = false
	s.redirect = nil
}

// beginLogout runs when the logout flag is raised.
func (s *Session) beginLogout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discardLocked()
	s.epoch++
	s.state.LoggingOut = true
	s.state.Identity = nil
	s.state.Profile = nil
	s.state.ProfileLoading = false
	s.redirect = nil
}

// finishLogout clears everything the logged out identity left behind.
func (s *Session) finishLogout() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()

	s.notes.Reset()
}

// endLogout runs when the logout flag is cleared.
func (s *Session) endLogout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LoggingOut = false
}

// close cancels any in-flight work of an evicted session.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
}

// attempt identifies one reconciliation run.
type attempt struct {
	gen            uint64
	identityID     string
	knownProfileID uuid.UUID
}

func (s *Session) applyIdentity(a attempt, identity model.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(a.gen) {
		return false
	}
	s.state.Identity = &identity
	s.state.Phase = ProfileLookup
	return true
}

func (s *Session) applyFound(a attempt, p model.Profile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(a.gen) || p.IdentityID != a.identityID {
		return false
	}
	s.state.Profile = &p
	s.state.Phase = ProfileFound
	s.state.ProfileLoading = false
	s.knownProfileID = p.ID
	if s.state.Route == RouteOnboarding {
		s.redirectLocked(RouteHome, 0)
	}
	return true
}

func (s *Session) applyMissing(a attempt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(a.gen) {
		return false
	}
	s.state.Profile = nil
	s.state.Phase = ProfileMissing
	s.state.ProfileLoading = false
	s.knownProfileID = uuid.Nil
	if s.state.Route != RouteOnboarding {
		s.redirectLocked(RouteOnboarding, 0)
		s.notes.PushOnce("account-required:"+a.identityID, notify.Notification{
			Title:       "Account Required",
			Description: "Please create an account to continue.",
			Variant:     notify.Default,
		})
	}
	return true
}

func (s *Session) applyLookupError(a attempt, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(a.gen) {
		return false
	}
	s.state.Phase = ProfileLookup
	s.state.ProfileLoading = false
	s.notes.PushOnce("load-error:"+err.Error(), notify.Notification{
		Title:       "Error",
		Description: "Failed to load user data. Please try again.",
		Variant:     notify.Destructive,
	})
	return true
}

func (s *Session) settle(a attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != a.gen {
		return
	}
	s.inFlight = false
	s.state.ProfileLoading = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
