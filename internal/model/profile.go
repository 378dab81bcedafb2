package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProfileStore defines persistence operations for user profiles.
type ProfileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (Profile, error)
	FindByIdentityID(ctx context.Context, identityID string) (Profile, error)
	Create(ctx context.Context, params CreateProfileParams) (Profile, error)
	List(ctx context.Context, limit int) ([]Profile, error)
	Ping(ctx context.Context) error
}

// Profile is the application's own record of a user.
type Profile struct {
	ID               uuid.UUID `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	IdentityID       string    `json:"identity_id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	WalletAddress    string    `json:"wallet_address,omitempty"`
	OrganizationName string    `json:"organization_name,omitempty"`
}

// CreateProfileParams contains parameters to create a profile.
type CreateProfileParams struct {
	IdentityID       string
	FullName         string
	Email            string
	WalletAddress    string
	OrganizationName string
}
