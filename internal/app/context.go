package app

import (
	"context"
	"errors"
	"fmt"

	"questpilot/internal/config"
	"questpilot/internal/repo"
)

// ResolveSettings loads the stored settings, seeding defaults on first use.
// A questpilot.yml in the workspace, when present, takes precedence and is
// written back to the DB so CLI and server agree on one source.
func ResolveSettings(ctx context.Context, workspace string, r repo.SettingsRepo) (*config.Config, error) {
	if fileCfg, err := config.LoadOptional(workspace); err != nil {
		return nil, err
	} else if fileCfg != nil {
		if err := r.Upsert(ctx, fileCfg); err != nil {
			return nil, fmt.Errorf("store settings: %w", err)
		}
		return fileCfg, nil
	}
	cfg, err := r.Get(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed := config.Default()
	if err := r.Upsert(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return seed, nil
}
