package settings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
)

// TenantCreator inserts a tenant unless it already exists.
type TenantCreator interface {
	CreateTenantIfMissing(ctx context.Context, cfg domain.TenantConfig) (bool, error)
}

// SeedTenants creates each tenant that is not yet stored. Existing tenants
// keep their current settings. It returns the number created.
func SeedTenants(ctx context.Context, store TenantCreator, tenants []domain.TenantConfig, logger *slog.Logger) (int, error) {
	created := 0
	for _, cfg := range tenants {
		ok, err := store.CreateTenantIfMissing(ctx, cfg)
		if err != nil {
			return created, fmt.Errorf("seed tenant %s: %w", cfg.TenantID, err)
		}
		if ok {
			created++
			logger.Info("tenant seeded", "tenant_id", cfg.TenantID, "enabled", cfg.Enabled)
		}
	}
	return created, nil
}
