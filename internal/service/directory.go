package service

import (
	"context"
	"fmt"

	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/model"
)

const (
	DefaultDirectoryLimit = 50
	MaxDirectoryLimit     = 100
)

// Directory lists onboarded users.
type Directory struct {
	store  model.ProfileStore
	logger *logger.Logger
}

func NewDirectory(store model.ProfileStore, logger *logger.Logger) *Directory {
	return &Directory{store: store, logger: logger}
}

// List returns up to limit profiles, newest first. Out of range limits are clamped.
func (d *Directory) List(ctx context.Context, limit int) ([]model.Profile, error) {
	switch {
	case limit <= 0:
		limit = DefaultDirectoryLimit
	case limit > MaxDirectoryLimit:
		limit = MaxDirectoryLimit
	}

	profiles, err := d.store.List(ctx, limit)
	if err != nil {
		d.logger.Error("Directory service: failed to list profiles", "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}
