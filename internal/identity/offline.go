package identity

import (
	"context"
	"math/big"

	"github.com/dtroode/taq-server/internal/model"
)

var _ model.IdentityProvider = (*Offline)(nil)

// Offline serves identities without a provider account. Identities carry no
// email or wallet, logout always succeeds and payments fail with ErrNoWallet.
// It backs local development with HMAC-signed tokens.
type Offline struct{}

func NewOffline() *Offline {
	return &Offline{}
}

func (Offline) Identity(_ context.Context, identityID string) (model.Identity, error) {
	if identityID == "" {
		return model.Identity{}, model.ErrNotFound
	}
	return model.Identity{ID: identityID}, nil
}

func (Offline) Logout(context.Context, string) error {
	return nil
}

func (Offline) SendPayment(context.Context, model.Identity, string, *big.Int) (string, error) {
	return "", model.ErrNoWallet
}
