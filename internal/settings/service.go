// Package settings validates and applies tenant configuration changes.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Field names accepted by SetField.
const (
	FieldEnabled           = "enabled"
	FieldChannel           = "channel"
	FieldPingRole          = "ping_role"
	FieldThreshold         = "threshold"
	FieldEveryoneThreshold = "everyone_threshold"
	FieldFeedURL           = "feed_url"
	FieldRegion            = "region"
)

// Fields lists every settable field in display order.
var Fields = []string{
	FieldEnabled, FieldChannel, FieldPingRole, FieldThreshold,
	FieldEveryoneThreshold, FieldFeedURL, FieldRegion,
}

const maxRegionLen = 10

var feedURLPattern = regexp.MustCompile(`^https://(www\.)?seismicportal\.eu/fdsnws/event/1/query\?\S+$`)

// Store reads and writes tenant configuration.
type Store interface {
	GetConfig(ctx context.Context, tenantID string) (domain.TenantConfig, error)
	SaveConfig(ctx context.Context, cfg domain.TenantConfig) error
}

type Service struct {
	store  Store
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewService(store Store, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, clock: clock, logger: logger}
}

// Get returns the tenant's configuration, creating it on first access.
func (s *Service) Get(ctx context.Context, tenantID string) (domain.TenantConfig, error) {
	return s.store.GetConfig(ctx, tenantID)
}

// SetField validates value for field and persists it. Only administrators
// may change settings. Nothing is written when validation fails.
func (s *Service) SetField(ctx context.Context, tenantID string, actor domain.Actor, field, value string) (domain.TenantConfig, error) {
	if !actor.IsAdmin {
		return domain.TenantConfig{}, domain.ErrNotPermitted
	}

	cfg, err := s.store.GetConfig(ctx, tenantID)
	if err != nil {
		return domain.TenantConfig{}, err
	}
	if err := apply(&cfg, strings.ToLower(strings.TrimSpace(field)), strings.TrimSpace(value)); err != nil {
		return domain.TenantConfig{}, err
	}

	cfg.UpdatedBy = actor.ID
	cfg.UpdatedAt = s.clock.Now()
	if err := s.store.SaveConfig(ctx, cfg); err != nil {
		return domain.TenantConfig{}, err
	}
	s.logger.Info("tenant setting changed", "tenant_id", tenantID, "field", field, "actor_id", actor.ID)
	return cfg, nil
}

func apply(cfg *domain.TenantConfig, field, value string) error {
	switch field {
	case FieldEnabled:
		on, err := parseSwitch(value)
		if err != nil {
			return err
		}
		cfg.Enabled = on
	case FieldChannel:
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id == 0 {
			return invalid("channel must be a chat id, got %q", value)
		}
		cfg.ChannelID = &id
	case FieldPingRole:
		if isClear(value) {
			cfg.PingRole = nil
			return nil
		}
		if value == "" || strings.ContainsAny(value, " \t\n") {
			return invalid("ping_role must be a single mention, got %q", value)
		}
		cfg.PingRole = &value
	case FieldThreshold:
		v, err := ParseThreshold(value)
		if err != nil {
			return err
		}
		cfg.MagnitudeThreshold = v
	case FieldEveryoneThreshold:
		if isClear(value) {
			cfg.EveryoneThreshold = nil
			return nil
		}
		v, err := ParseThreshold(value)
		if err != nil {
			return err
		}
		cfg.EveryoneThreshold = &v
	case FieldFeedURL:
		if !feedURLPattern.MatchString(value) {
			return invalid("feed_url must be a seismicportal.eu FDSN event query, got %q", value)
		}
		cfg.FeedURL = &value
	case FieldRegion:
		if value == "" || len(value) > maxRegionLen || strings.ContainsAny(value, " \t\n") {
			return invalid("region must be 1-%d characters, got %q", maxRegionLen, value)
		}
		cfg.RegionCode = value
	default:
		return invalid("unknown field %q", field)
	}
	return nil
}

// ParseThreshold parses a magnitude, accepting a decimal comma.
func ParseThreshold(value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(value), ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid("magnitude must be a number, got %q", value)
	}
	if v < 0 {
		return 0, invalid("magnitude must not be negative, got %q", value)
	}
	return v, nil
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disable", "disabled":
		return false, nil
	}
	return false, invalid("enabled must be on or off, got %q", value)
}

func isClear(value string) bool {
	return slices.Contains([]string{"none", "off", "-"}, strings.ToLower(value))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfigValue, fmt.Sprintf(format, args...))
}
