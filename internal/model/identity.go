package model

import (
	"context"
	"math/big"
)

// Identity is the authenticated identity as reported by the identity provider.
type Identity struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	WalletID      string `json:"-"`
}

// TokenVerifier validates identity tokens issued by the identity provider.
type TokenVerifier interface {
	Ready() bool
	Verify(ctx context.Context, token string) (identityID string, err error)
}

// IdentityProvider exposes provider-side operations for an authenticated identity.
type IdentityProvider interface {
	Identity(ctx context.Context, identityID string) (Identity, error)
	Logout(ctx context.Context, identityID string) error
	SendPayment(ctx context.Context, identity Identity, to string, amountWei *big.Int) (txHash string, err error)
}
