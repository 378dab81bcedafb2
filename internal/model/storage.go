package model

import (
	"context"
	"io"
	"math/big"
	"time"
)

// Storage stores opaque objects by key. Download reports a missing key as ErrNotFound.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}

// PaymentReceipt records a demo payment sent from an identity's wallet.
type PaymentReceipt struct {
	TxHash     string    `json:"tx_hash"`
	IdentityID string    `json:"identity_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	AmountWei  *big.Int  `json:"amount_wei"`
	SentAt     time.Time `json:"sent_at"`
}
