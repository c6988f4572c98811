package config

import (
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
)

// TenantSeed is one entry of the optional TENANTS_FILE used to bootstrap
// tenants that do not exist in the store yet.
type TenantSeed struct {
	TenantID           string   `yaml:"tenant_id"`
	Enabled            bool     `yaml:"enabled"`
	ChannelID          *int64   `yaml:"channel_id"`
	FeedURL            *string  `yaml:"feed_url"`
	MagnitudeThreshold *float64 `yaml:"magnitude_threshold"`
	PingRole           *string  `yaml:"ping_role"`
	EveryoneThreshold  *float64 `yaml:"everyone_threshold"`
	RegionCode         string   `yaml:"region_code"`
}

type tenantsFile struct {
	Tenants []TenantSeed `yaml:"tenants"`
}

// LoadTenantSeeds reads and validates a tenants YAML file.
func LoadTenantSeeds(path string) ([]TenantSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	return ParseTenantSeeds(data)
}

// ParseTenantSeeds decodes tenants YAML. Tenant ids must be unique and non-empty.
func ParseTenantSeeds(data []byte) ([]TenantSeed, error) {
	var f tenantsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Tenants))
	for i, t := range f.Tenants {
		id := strings.TrimSpace(t.TenantID)
		if id == "" {
			return nil, fmt.Errorf("tenants[%d]: tenant_id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("tenants[%d]: duplicate tenant_id %q", i, id)
		}
		seen[id] = struct{}{}
		f.Tenants[i].TenantID = id
	}
	return f.Tenants, nil
}

// TenantConfig converts the seed into a stored configuration, filling defaults.
func (s TenantSeed) TenantConfig() domain.TenantConfig {
	cfg := domain.NewTenantConfig(s.TenantID)
	cfg.Enabled = s.Enabled
	cfg.ChannelID = s.ChannelID
	cfg.FeedURL = s.FeedURL
	cfg.PingRole = s.PingRole
	cfg.EveryoneThreshold = s.EveryoneThreshold
	if s.MagnitudeThreshold != nil {
		cfg.MagnitudeThreshold = *s.MagnitudeThreshold
	}
	if s.RegionCode != "" {
		cfg.RegionCode = s.RegionCode
	}
	return cfg
}
