package service

import (
	"context"
	"fmt"

	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/notify"
	"github.com/dtroode/taq-server/internal/session"
)

// Auth turns provider identity tokens into session auth events.
type Auth struct {
	verifier   model.TokenVerifier
	reconciler *session.Reconciler
	logger     *logger.Logger
}

func NewAuth(verifier model.TokenVerifier, reconciler *session.Reconciler, logger *logger.Logger) *Auth {
	return &Auth{
		verifier:   verifier,
		reconciler: reconciler,
		logger:     logger,
	}
}

// LoginResult tells the client where to go after login.
type LoginResult struct {
	Redirect string        `json:"redirect,omitempty"`
	State    session.State `json:"state"`
}

// Event reports what the provider says about the bearer of token. An empty
// or invalid token is an unauthenticated client.
func (a *Auth) Event(ctx context.Context, token string) session.AuthEvent {
	if !a.verifier.Ready() {
		return session.AuthEvent{}
	}
	if token == "" {
		return session.AuthEvent{Ready: true}
	}

	identityID, err := a.verifier.Verify(ctx, token)
	if err != nil {
		a.logger.Debug("Auth service: rejected identity token", "error", err)
		return session.AuthEvent{Ready: true}
	}

	return session.AuthEvent{Ready: true, Authenticated: true, IdentityID: identityID}
}

// Sync feeds the token presented with a request into the session.
func (a *Auth) Sync(ctx context.Context, s *session.Session, token string) session.AuthEvent {
	ev := a.Event(ctx, token)
	a.reconciler.Observe(ctx, s, ev)
	return ev
}

// CompleteLogin handles the provider's login completion: it verifies token,
// reconciles the identity with a fresh profile lookup and greets the user.
func (a *Auth) CompleteLogin(ctx context.Context, s *session.Session, token string) (LoginResult, error) {
	if !a.verifier.Ready() {
		return LoginResult{}, model.ErrIdentityPending
	}

	identityID, err := a.verifier.Verify(ctx, token)
	if err != nil {
		a.logger.Info("Auth service: login with invalid token", "session", s.ID(), "error", err)
		return LoginResult{}, fmt.Errorf("failed to verify token: %w", err)
	}

	a.logger.Debug("Auth service: completing login", "session", s.ID(), "identity", identityID)

	if s.Snapshot().Authenticated && s.IdentityID() == identityID {
		if err := a.reconciler.Refresh(ctx, s); err != nil {
			return LoginResult{}, err
		}
	} else {
		a.reconciler.Observe(ctx, s, session.AuthEvent{Ready: true, Authenticated: true, IdentityID: identityID})
		if s.IdentityID() != identityID {
			return LoginResult{}, model.ErrLogoutInProgress
		}
	}

	if err := a.reconciler.Await(ctx, s); err != nil {
		return LoginResult{}, fmt.Errorf("failed to await profile lookup: %w", err)
	}

	st := s.Snapshot()
	res := LoginResult{State: st}
	switch st.Phase {
	case session.ProfileFound:
		s.Notify(notify.Notification{Title: "Welcome back!", Variant: notify.Success})
		res.Redirect = session.RouteHome
	case session.ProfileMissing:
		s.Notify(notify.Notification{
			Title:       "Welcome!",
			Description: "Please complete your profile setup.",
		})
		res.Redirect = session.RouteOnboarding
	}

	a.logger.Info("Auth service: login completed",
		"session", s.ID(),
		"identity", identityID,
		"phase", st.Phase.String())

	return res, nil
}

// Logout signs the session out locally and at the provider.
func (a *Auth) Logout(ctx context.Context, s *session.Session) {
	a.reconciler.Logout(ctx, s)
}
