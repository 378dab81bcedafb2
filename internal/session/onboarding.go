package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/dtroode/taq-server/internal/flag"
	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/metrics"
	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/notify"
)

// SuccessRedirectDelay keeps the success notification visible before navigating home.
const SuccessRedirectDelay = 1500 * time.Millisecond

var walletAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// OnboardingInput is the profile creation form.
type OnboardingInput struct {
	FullName         string `json:"full_name"`
	Email            string `json:"email"`
	WalletAddress    string `json:"wallet_address"`
	OrganizationName string `json:"organization_name"`
}

func (in OnboardingInput) normalized() OnboardingInput {
	return OnboardingInput{
		FullName:         strings.TrimSpace(in.FullName),
		Email:            strings.TrimSpace(in.Email),
		WalletAddress:    strings.TrimSpace(in.WalletAddress),
		OrganizationName: strings.TrimSpace(in.OrganizationName),
	}
}

// Validate checks the trimmed form.
func (in OnboardingInput) Validate() error {
	in = in.normalized()
	return validation.ValidateStruct(&in,
		validation.Field(&in.FullName, validation.Required.Error("full name is required"), validation.Length(1, 200)),
		validation.Field(&in.Email, is.Email, validation.Length(0, 320)),
		validation.Field(&in.WalletAddress, validation.Match(walletAddressRe).Error("must be a 0x-prefixed 40 character hex address")),
		validation.Field(&in.OrganizationName, validation.Length(0, 200)),
	)
}

// Onboarding creates the profile for a session's identity.
type Onboarding struct {
	store   model.ProfileStore
	flags   *flag.Channel
	metrics *metrics.Metrics
	logger  *logger.Logger
	delay   time.Duration
}

func NewOnboarding(store model.ProfileStore, flags *flag.Channel, m *metrics.Metrics, logger *logger.Logger) *Onboarding {
	return &Onboarding{
		store:   store,
		flags:   flags,
		metrics: m,
		logger:  logger,
		delay:   SuccessRedirectDelay,
	}
}

// Submit validates in and creates the session identity's profile. Invalid
// input never reaches the store. Only one create runs per session at a time,
// and a session that already holds its profile gets it back without a create.
func (o *Onboarding) Submit(ctx context.Context, s *Session, in OnboardingInput) (model.Profile, error) {
	in = in.normalized()
	if err := in.Validate(); err != nil {
		o.metrics.Onboarding.WithLabelValues("rejected").Inc()
		return model.Profile{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	if o.flags.InProgress(ctx, s.ID()) {
		return model.Profile{}, model.ErrLogoutInProgress
	}

	s.mu.Lock()
	s.touchLocked()
	switch {
	case s.state.LoggingOut:
		s.mu.Unlock()
		return model.Profile{}, model.ErrLogoutInProgress
	case !s.state.Authenticated || s.target == "":
		s.mu.Unlock()
		return model.Profile{}, model.ErrNotAuthenticated
	case s.submitting:
		s.mu.Unlock()
		o.metrics.Onboarding.WithLabelValues("rejected").Inc()
		return model.Profile{}, model.ErrSubmissionInProgress
	case s.state.Profile != nil && s.state.Profile.IdentityID == s.target:
		p := *s.state.Profile
		s.mu.Unlock()
		o.metrics.Onboarding.WithLabelValues("existing").Inc()
		return p, nil
	}

	params := model.CreateProfileParams{
		IdentityID:       s.target,
		FullName:         in.FullName,
		Email:            in.Email,
		WalletAddress:    in.WalletAddress,
		OrganizationName: in.OrganizationName,
	}
	if id := s.state.Identity; id != nil {
		if params.Email == "" {
			params.Email = id.Email
		}
		if params.WalletAddress == "" {
			params.WalletAddress = id.WalletAddress
		}
	}
	epoch := s.epoch
	s.submitting = true
	s.state.Submission = SubmissionSubmitting
	s.mu.Unlock()

	profile, err := o.store.Create(ctx, params)
	if err != nil {
		o.metrics.Onboarding.WithLabelValues("failed").Inc()
		o.logger.Error("Onboarding: failed to create profile", "session", s.ID(), "identity", params.IdentityID, "error", err)
		s.failSubmission(epoch, err)
		return model.Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}

	if !s.completeSubmission(epoch, profile, o.delay) {
		o.logger.Warn("Onboarding: session changed while creating profile", "session", s.ID(), "profile", profile.ID)
		return model.Profile{}, model.ErrLogoutInProgress
	}

	o.metrics.Onboarding.WithLabelValues("created").Inc()
	o.logger.Info("Onboarding: profile created", "session", s.ID(), "profile", profile.ID)
	return profile, nil
}

func (s *Session) failSubmission(epoch uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		return
	}
	s.submitting = false
	s.state.Submission = SubmissionIdle
	s.notes.Push(notify.Notification{
		Title:       "Error",
		Description: model.UserMessage(err),
		Variant:     notify.Destructive,
	})
}

func (s *Session) completeSubmission(epoch uint64, p model.Profile, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || s.state.LoggingOut {
		return false
	}
	s.submitting = false
	if p.IdentityID != s.target {
		s.state.Submission = SubmissionIdle
		return false
	}
	// the created profile supersedes any lookup still in flight
	if s.inFlight {
		s.discardLocked()
	}
	s.state.Submission = SubmissionSucceeded
	s.state.Profile = &p
	s.state.Phase = ProfileFound
	s.state.ProfileLoading = false
	s.knownProfileID = p.ID
	s.notes.Push(notify.Notification{
		Title:       "Welcome to Taq!",
		Description: "Your account has been created successfully.",
		Variant:     notify.Success,
	})
	s.redirectLocked(RouteHome, delay)
	return true
}
