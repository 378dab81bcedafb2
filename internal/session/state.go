package session

import (
	"fmt"
	"time"

	"github.com/dtroode/taq-server/internal/model"
)

const (
	RouteLogin      = "/login"
	RouteOnboarding = "/onboarding"
	RouteHome       = "/"
)

// Phase is the reconciliation progress of a session.
type Phase int

const (
	Unauthenticated Phase = iota
	IdentityPending
	ProfileLookup
	ProfileFound
	ProfileMissing
)

var phaseNames = map[Phase]string{
	Unauthenticated: "unauthenticated",
	IdentityPending: "identity_pending",
	ProfileLookup:   "profile_lookup",
	ProfileFound:    "profile_found",
	ProfileMissing:  "profile_missing",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Submission is the state of the onboarding action. A failed submission
// returns to SubmissionIdle so the form can be sent again.
type Submission int

const (
	SubmissionIdle Submission = iota
	SubmissionSubmitting
	SubmissionSucceeded
)

var submissionNames = map[Submission]string{
	SubmissionIdle:       "idle",
	SubmissionSubmitting: "submitting",
	SubmissionSucceeded:  "succeeded",
}

func (s Submission) String() string {
	if name, ok := submissionNames[s]; ok {
		return name
	}
	return fmt.Sprintf("submission(%d)", int(s))
}

func (s Submission) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Submission) UnmarshalText(text []byte) error {
	for sub, name := range submissionNames {
		if name == string(text) {
			*s = sub
			return nil
		}
	}
	return fmt.Errorf("unknown submission state %q", text)
}

// State is a point-in-time copy of a session. Mutating it has no effect on the session.
type State struct {
	IdentityReady  bool            `json:"identity_ready"`
	Authenticated  bool            `json:"authenticated"`
	Identity       *model.Identity `json:"identity,omitempty"`
	Profile        *model.Profile  `json:"profile,omitempty"`
	ProfileLoading bool            `json:"profile_loading"`
	LoggingOut     bool            `json:"logging_out"`
	Phase          Phase           `json:"phase"`
	Submission     Submission      `json:"submission"`
	Route          string          `json:"route"`
}

// Redirect is a navigation the session wants the client to perform once At has passed.
type Redirect struct {
	To string    `json:"to"`
	At time.Time `json:"at"`
}

// AuthEvent is what the identity provider reports about the client.
type AuthEvent struct {
	Ready         bool
	Authenticated bool
	IdentityID    string
}
