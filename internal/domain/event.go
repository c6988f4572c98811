package domain

import "time"

// SeismicEvent is one feature from a tenant's event feed. It lives for a single
// poll cycle and is never persisted.
type SeismicEvent struct {
	SourceID  string    `json:"source_id"`
	Time      time.Time `json:"time"`
	Magnitude float64   `json:"magnitude"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Authority string    `json:"authority"`
}

// DeliveryRecord marks a source id as processed for a tenant. Once a record
// exists the event is never reconsidered, whether Delivered is set or not.
type DeliveryRecord struct {
	TenantID  string
	SourceID  string
	Authority string
	Delivered bool
	Timestamp time.Time
}

// Subscription registers a subscriber's interest in a city. City is always
// stored in NormalizeText form.
type Subscription struct {
	TenantID     string
	SubscriberID int64
	City         string
	CreatedAt    time.Time
}

// TenantConfig is the per-community alert configuration.
type TenantConfig struct {
	TenantID           string
	Enabled            bool
	ChannelID          *int64
	FeedURL            *string
	MagnitudeThreshold float64
	PingRole           *string
	EveryoneThreshold  *float64
	RegionCode         string
	UpdatedBy          int64
	UpdatedAt          time.Time
}

// Defaults applied when a tenant row is created lazily.
const (
	DefaultMagnitudeThreshold = 4.0
	DefaultRegionCode         = "en"
)

// NewTenantConfig returns the lazily-created configuration for a tenant.
func NewTenantConfig(tenantID string) TenantConfig {
	return TenantConfig{
		TenantID:           tenantID,
		MagnitudeThreshold: DefaultMagnitudeThreshold,
		RegionCode:         DefaultRegionCode,
	}
}

// Deliverable reports whether the tenant has both a channel and a feed URL.
func (c TenantConfig) Deliverable() bool {
	return c.ChannelID != nil && c.FeedURL != nil && *c.FeedURL != ""
}

// Actor identifies the subscriber issuing a command and whether they
// administer the tenant.
type Actor struct {
	ID      int64
	IsAdmin bool
}

// CanActFor reports whether the actor may manage target's data.
func (a Actor) CanActFor(target int64) bool {
	return a.IsAdmin || a.ID == target
}
