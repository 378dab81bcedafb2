package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/notify"
)

// missingProfile logs s in as identityID with no stored profile.
func missingProfile(t *testing.T, h *harness, s *Session, identity model.Identity) {
	t.Helper()
	h.provider.On("Identity", mock.Anything, identity.ID).Return(identity, nil).Once()
	h.store.On("FindByIdentityID", mock.Anything, identity.ID).Return(model.Profile{}, model.ErrNotFound).Once()
	s.Navigate(RouteOnboarding)
	h.login(t, s, identity.ID)
	require.Equal(t, ProfileMissing, s.Snapshot().Phase)
}

func TestOnboardingInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      OnboardingInput
		wantErr bool
	}{
		{name: "minimal", in: OnboardingInput{FullName: "Ann"}},
		{name: "full", in: OnboardingInput{
			FullName:         "Ann Lee",
			Email:            "ann@example.com",
			WalletAddress:    "0x00000000000000000000000000000000000000aB",
			OrganizationName: "Acme",
		}},
		{name: "empty name", in: OnboardingInput{}, wantErr: true},
		{name: "blank name", in: OnboardingInput{FullName: "   "}, wantErr: true},
		{name: "bad email", in: OnboardingInput{FullName: "Ann", Email: "ann"}, wantErr: true},
		{name: "short wallet", in: OnboardingInput{FullName: "Ann", WalletAddress: "0x1234"}, wantErr: true},
		{name: "wallet without prefix", in: OnboardingInput{FullName: "Ann", WalletAddress: "00000000000000000000000000000000000000aB00"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOnboarding_EmptyNameRejectedBeforeStore(t *testing.T) {
	h := newHarness(t)
	s := h.session(t)
	missingProfile(t, h, s, model.Identity{ID: "priv_1"})

	_, err := h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: "  "})
	require.ErrorIs(t, err, model.ErrValidation)

	h.store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Equal(t, SubmissionIdle, s.Snapshot().Submission)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Onboarding.WithLabelValues("rejected")))
}

func TestOnboarding_Success(t *testing.T) {
	h := newHarness(t)
	s := h.session(t)
	missingProfile(t, h, s, model.Identity{
		ID:            "priv_1",
		Email:         "ann@example.com",
		WalletAddress: "0x00000000000000000000000000000000000000aB",
	})

	created := model.Profile{ID: uuid.New(), IdentityID: "priv_1", FullName: "Ann", Email: "ann@example.com"}
	h.store.On("Create", mock.Anything, model.CreateProfileParams{
		IdentityID:       "priv_1",
		FullName:         "Ann",
		Email:            "ann@example.com",
		WalletAddress:    "0x00000000000000000000000000000000000000aB",
		OrganizationName: "Acme",
	}).Return(created, nil).Once()

	got, err := h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: " Ann ", OrganizationName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, created, got)

	st := s.Snapshot()
	assert.Equal(t, SubmissionSucceeded, st.Submission)
	assert.Equal(t, ProfileFound, st.Phase)
	require.NotNil(t, st.Profile)
	assert.Equal(t, created.ID, st.Profile.ID)

	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Welcome to Taq!", notes[0].Title)
	assert.Equal(t, notify.Success, notes[0].Variant)

	// home only after the delay
	_, ok := s.TakeRedirect()
	assert.False(t, ok)
	r, ok := s.PendingRedirect()
	require.True(t, ok)
	assert.Equal(t, RouteHome, r.To)

	h.clock.Advance(SuccessRedirectDelay)
	to, ok := s.TakeRedirect()
	require.True(t, ok)
	assert.Equal(t, RouteHome, to)
	assert.Equal(t, RouteHome, s.Snapshot().Route)
}

func TestOnboarding_NoSecondCreateWhileSubmitting(t *testing.T) {
	h := newHarness(t)
	s := h.session(t)
	missingProfile(t, h, s, model.Identity{ID: "priv_1"})

	started := make(chan struct{})
	release := make(chan struct{})
	created := model.Profile{ID: uuid.New(), IdentityID: "priv_1", FullName: "Ann"}
	h.store.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(created, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: "Ann"})
		assert.NoError(t, err)
	}()
	<-started

	assert.Equal(t, SubmissionSubmitting, s.Snapshot().Submission)
	_, err := h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: "Ann"})
	require.ErrorIs(t, err, model.ErrSubmissionInProgress)

	close(release)
	wg.Wait()

	// the profile is now held, so another submit is answered locally
	got, err := h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	h.store.AssertNumberOfCalls(t, "Create", 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Onboarding.WithLabelValues("existing")))
}

func TestOnboarding_CreateFailure(t *testing.T) {
	h := newHarness(t)
	s := h.session(t)
	missingProfile(t, h, s, model.Identity{ID: "priv_1"})

	h.store.On("Create", mock.Anything, mock.Anything).Return(model.Profile{}, model.ErrProfileExists).Once()

	_, err := h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: "Ann"})
	require.ErrorIs(t, err, model.ErrProfileExists)

	st := s.Snapshot()
	assert.Equal(t, SubmissionIdle, st.Submission)
	assert.Nil(t, st.Profile)

	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.Destructive, notes[0].Variant)
	assert.Equal(t, model.UserMessage(model.ErrProfileExists), notes[0].Description)

	// a failed submission can be retried
	created := model.Profile{ID: uuid.New(), IdentityID: "priv_1", FullName: "Ann"}
	h.store.On("Create", mock.Anything, mock.Anything).Return(created, nil).Once()
	_, err = h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: "Ann"})
	require.NoError(t, err)
}

func TestOnboarding_RequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	s := h.session(t)

	_, err := h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: "Ann"})
	require.ErrorIs(t, err, model.ErrNotAuthenticated)
}

func TestOnboarding_RejectedDuringLogout(t *testing.T) {
	h := newHarness(t)
	s := h.session(t)
	missingProfile(t, h, s, model.Identity{ID: "priv_1"})

	h.flags.Begin(context.Background(), s.ID())
	defer h.flags.End(context.Background(), s.ID())

	_, err := h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: "Ann"})
	require.ErrorIs(t, err, model.ErrLogoutInProgress)
}

func TestOnboarding_LogoutDuringCreateDropsResult(t *testing.T) {
	h := newHarness(t)
	s := h.session(t)
	missingProfile(t, h, s, model.Identity{ID: "priv_1"})

	started := make(chan struct{})
	release := make(chan struct{})
	h.store.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(model.Profile{ID: uuid.New(), IdentityID: "priv_1", FullName: "Ann"}, nil).Once()
	h.provider.On("Logout", mock.Anything, "priv_1").Return(nil).Once()

	errc := make(chan error, 1)
	go func() {
		_, err := h.onboarding.Submit(context.Background(), s, OnboardingInput{FullName: "Ann"})
		errc <- err
	}()
	<-started

	h.reconciler.Logout(context.Background(), s)
	close(release)

	select {
	case err := <-errc:
		require.ErrorIs(t, err, model.ErrLogoutInProgress)
	case <-time.After(5 * time.Second):
		t.Fatal("submit did not return")
	}

	st := s.Snapshot()
	assert.Nil(t, st.Profile)
	assert.Equal(t, Unauthenticated, st.Phase)
	assert.Equal(t, SubmissionIdle, st.Submission)
	_, ok := s.PendingRedirect()
	assert.False(t, ok)
	assert.Empty(t, s.Notifications())
}
