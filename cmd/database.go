package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/database/postgres"
)

// connectDatabase validates the configuration, connects to PostgreSQL, applies pending
// migrations and registers the repositories.
func connectDatabase(ctx context.Context) (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	if err := postgres.Initialize(ctx, &cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return cfg, nil
}

// closeDatabase releases the global pool.
func closeDatabase() {
	if pool := postgres.GetGlobalPool(); pool != nil {
		pool.Close()
	}
}

// loadDescriptorIndex builds the duplicate-enrollment index so CLI enrollments are
// checked the same way the web registration is.
func loadDescriptorIndex(ctx context.Context, cfg *config.Config, users database.UserReader) (*database.DescriptorIndex, error) {
	idx := database.NewDescriptorIndex()
	idx.SetPath(cfg.FaceAuth.IndexPath)
	if err := idx.Warm(ctx, users); err != nil {
		return nil, err
	}
	database.RegisterDescriptorIndex(idx)
	return idx, nil
}
