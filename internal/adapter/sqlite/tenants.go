package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
)

const tenantColumns = `tenant_id, enabled, channel_id, feed_url, magnitude_threshold,
	ping_role, everyone_threshold, region_code, updated_by, updated_at`

// GetConfig returns the tenant's configuration, creating a disabled default
// row on first access.
func (s *Store) GetConfig(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	if _, err := s.CreateTenantIfMissing(ctx, domain.NewTenantConfig(tenantID)); err != nil {
		return domain.TenantConfig{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE tenant_id = ?`, tenantID)
	cfg, err := scanTenant(row)
	if err != nil {
		return domain.TenantConfig{}, fmt.Errorf("get tenant %s: %w", tenantID, err)
	}
	return cfg, nil
}

// CreateTenantIfMissing inserts cfg unless the tenant already exists.
// It reports whether a row was created.
func (s *Store) CreateTenantIfMissing(ctx context.Context, cfg domain.TenantConfig) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants(`+tenantColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(tenant_id) DO NOTHING`,
		tenantArgs(cfg)...,
	)
	if err != nil {
		return false, fmt.Errorf("create tenant %s: %w", cfg.TenantID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create tenant %s: %w", cfg.TenantID, err)
	}
	return n > 0, nil
}

// SaveConfig writes every field of cfg.
func (s *Store) SaveConfig(ctx context.Context, cfg domain.TenantConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants(`+tenantColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(tenant_id) DO UPDATE SET
			enabled = excluded.enabled,
			channel_id = excluded.channel_id,
			feed_url = excluded.feed_url,
			magnitude_threshold = excluded.magnitude_threshold,
			ping_role = excluded.ping_role,
			everyone_threshold = excluded.everyone_threshold,
			region_code = excluded.region_code,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		tenantArgs(cfg)...,
	)
	if err != nil {
		return fmt.Errorf("save tenant %s: %w", cfg.TenantID, err)
	}
	return nil
}

// ListEnabled returns all tenants with enabled=true, ordered by id.
func (s *Store) ListEnabled(ctx context.Context) ([]domain.TenantConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE enabled = 1 ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.TenantConfig
	for rows.Next() {
		cfg, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (domain.TenantConfig, error) {
	var (
		cfg       domain.TenantConfig
		enabled   int
		channelID sql.NullInt64
		feedURL   sql.NullString
		pingRole  sql.NullString
		everyone  sql.NullFloat64
		updatedAt int64
	)
	err := row.Scan(&cfg.TenantID, &enabled, &channelID, &feedURL, &cfg.MagnitudeThreshold,
		&pingRole, &everyone, &cfg.RegionCode, &cfg.UpdatedBy, &updatedAt)
	if err != nil {
		return domain.TenantConfig{}, err
	}

	cfg.Enabled = enabled != 0
	if channelID.Valid {
		cfg.ChannelID = &channelID.Int64
	}
	if feedURL.Valid {
		cfg.FeedURL = &feedURL.String
	}
	if pingRole.Valid {
		cfg.PingRole = &pingRole.String
	}
	if everyone.Valid {
		cfg.EveryoneThreshold = &everyone.Float64
	}
	cfg.UpdatedAt = fromMillis(updatedAt)
	return cfg, nil
}

func tenantArgs(cfg domain.TenantConfig) []any {
	var channelID, feedURL, pingRole, everyone any
	if cfg.ChannelID != nil {
		channelID = *cfg.ChannelID
	}
	if cfg.FeedURL != nil {
		feedURL = *cfg.FeedURL
	}
	if cfg.PingRole != nil {
		pingRole = *cfg.PingRole
	}
	if cfg.EveryoneThreshold != nil {
		everyone = *cfg.EveryoneThreshold
	}
	region := cfg.RegionCode
	if region == "" {
		region = domain.DefaultRegionCode
	}
	return []any{
		cfg.TenantID, boolToInt(cfg.Enabled), channelID, feedURL, cfg.MagnitudeThreshold,
		pingRole, everyone, region, cfg.UpdatedBy, toMillis(cfg.UpdatedAt),
	}
}
