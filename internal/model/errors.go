package model

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrProfileExists        = errors.New("profile already exists")
	ErrIdentityPending      = errors.New("identity not yet available")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrLogoutInProgress     = errors.New("logout in progress")
	ErrSubmissionInProgress = errors.New("submission in progress")
	ErrValidation           = errors.New("validation failed")
	ErrNoWallet             = errors.New("identity has no wallet")
	ErrProfileRequired      = errors.New("profile required")
)

// UserMessage returns a short human-readable description of err suitable
// for notifications. Internal error text is never exposed.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProfileExists):
		return "An account already exists for this login."
	case errors.Is(err, ErrValidation):
		return "Please check the form and try again."
	case errors.Is(err, ErrNotAuthenticated):
		return "No authenticated user found. Please login first."
	case errors.Is(err, ErrLogoutInProgress):
		return "You are being logged out."
	case errors.Is(err, ErrSubmissionInProgress):
		return "Your account is already being set up."
	case errors.Is(err, ErrProfileRequired):
		return "Please create an account to continue."
	case errors.Is(err, ErrNoWallet):
		return "No wallet is linked to this login."
	case errors.Is(err, ErrNotFound):
		return "The requested record does not exist."
	default:
		return "Something went wrong. Please try again."
	}
}
