package model

import (
	"context"
	"time"
)

// LogoutFlagKey is the well-known key of the durable logout flag.
const LogoutFlagKey = "logging-out"

// LogoutFlagTTL bounds how long a durable logout flag may outlive a crashed logout.
const LogoutFlagTTL = 30 * time.Second

// FlagStore persists durable session flags.
type FlagStore interface {
	Set(ctx context.Context, key string, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
	IsSet(ctx context.Context, key string) (bool, error)
	Ping(ctx context.Context) error
}
