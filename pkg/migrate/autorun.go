package migrate

import (
	"context"
	"fmt"

	"github.com/tablepoints/tablepoints-backend/pkg/config"
	"github.com/tablepoints/tablepoints-backend/pkg/db"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations on boot. It is a no-op outside dev
// or when the auto-migrate flag is off, so deployed environments always
// migrate through the dedicated binary.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrapping sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"dir": DefaultDir})
	logg.Info(ctx, "auto-applying migrations on dev boot")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	logg.Info(ctx, "migrations up to date")
	return nil
}
