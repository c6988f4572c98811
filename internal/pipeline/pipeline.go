package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
	"github.com/couchcryptid/seismic-alert-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// LedgerRetention is the number of delivery records kept per tenant.
const LedgerRetention = 50

// TenantSource lists the tenants to process in a cycle.
type TenantSource interface {
	ListEnabled(ctx context.Context) ([]domain.TenantConfig, error)
}

// FeedFetcher reads the current events of a tenant's feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]domain.SeismicEvent, error)
}

// Ledger records which events were processed for a tenant.
type Ledger interface {
	KnownSourceIDs(ctx context.Context, tenantID string) (map[string]struct{}, error)
	AppendDelivery(ctx context.Context, rec domain.DeliveryRecord) error
	PruneDeliveries(ctx context.Context, tenantID string, keep int) error
}

// SubscriberMatcher finds subscribers interested in any of the given cities.
type SubscriberMatcher interface {
	MatchSubscribers(ctx context.Context, tenantID string, cities []string) ([]int64, error)
}

// Notifier delivers alerts to a tenant's channel and to subscribers.
type Notifier interface {
	ResolveChannel(ctx context.Context, channelID int64) error
	SendChannel(ctx context.Context, channelID int64, alert domain.Alert) error
	SendDirect(ctx context.Context, subscriberID int64, alert domain.Alert) error
}

// DeliveryPublisher mirrors ledger writes to an external stream.
type DeliveryPublisher interface {
	PublishDelivery(ctx context.Context, rec domain.DeliveryRecord) error
}

// Locker provides per-tenant try-locks.
type Locker interface {
	TryLock(ctx context.Context, tenantID string) (release func(), ok bool, err error)
}

// Deps are the collaborators of a Pipeline. Geocoder and Publisher may be nil.
type Deps struct {
	Tenants     TenantSource
	Feed        FeedFetcher
	Ledger      Ledger
	Subscribers SubscriberMatcher
	Geocoder    domain.ReverseGeocoder
	Notifier    Notifier
	Publisher   DeliveryPublisher
	Locker      Locker
}

// Pipeline runs poll cycles: fetch, filter, enrich, dispatch, record.
type Pipeline struct {
	deps    Deps
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New creates a Pipeline. A nil clock uses the real clock.
func New(deps Deps, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		deps:    deps,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a full cycle has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("first poll cycle not completed")
	}
	return nil
}

// RunCycle processes every enabled tenant once, sequentially. Failures are
// contained per tenant; only a failure to list tenants is returned.
func (p *Pipeline) RunCycle(ctx context.Context) error {
	start := p.clock.Now()
	p.metrics.CyclesTotal.Inc()

	tenants, err := p.deps.Tenants.ListEnabled(ctx)
	if err != nil {
		p.logger.Error("list enabled tenants failed", "error", err)
		return err
	}

	for _, cfg := range tenants {
		if ctx.Err() != nil {
			p.logger.Info("cycle cancelled", "reason", ctx.Err())
			return ctx.Err()
		}
		p.processTenant(ctx, cfg)
	}

	elapsed := p.clock.Since(start)
	p.metrics.CycleDuration.Observe(elapsed.Seconds())
	p.ready.Store(true)
	p.logger.Info("cycle completed", "tenants", len(tenants), "duration", elapsed)
	return nil
}

func (p *Pipeline) processTenant(ctx context.Context, cfg domain.TenantConfig) {
	log := p.logger.With("tenant_id", cfg.TenantID)

	if !cfg.Deliverable() {
		log.Debug("tenant not configured, skipping")
		p.metrics.TenantsSkipped.WithLabelValues("not_configured").Inc()
		return
	}

	release, ok, err := p.deps.Locker.TryLock(ctx, cfg.TenantID)
	if err != nil {
		log.Warn("tenant lock failed, skipping", "error", err)
		p.metrics.TenantsSkipped.WithLabelValues("locked").Inc()
		return
	}
	if !ok {
		log.Info("tenant held by an overlapping cycle, skipping")
		p.metrics.TenantsSkipped.WithLabelValues("locked").Inc()
		return
	}
	defer release()

	events, err := p.deps.Feed.Fetch(ctx, *cfg.FeedURL)
	if err != nil {
		log.Warn("feed fetch failed, skipping tenant", "error", err)
		p.metrics.FeedErrors.Inc()
		p.metrics.TenantsSkipped.WithLabelValues("feed_error").Inc()
		return
	}
	p.metrics.EventsFetched.Add(float64(len(events)))

	known, err := p.deps.Ledger.KnownSourceIDs(ctx, cfg.TenantID)
	if err != nil {
		log.Error("read delivery ledger failed, skipping tenant", "error", err)
		p.metrics.TenantsSkipped.WithLabelValues("ledger_error").Inc()
		return
	}

	selected := domain.SelectEvents(events, cfg.MagnitudeThreshold, known)
	p.metrics.EventsSelected.Add(float64(len(selected)))
	log.Debug("events selected", "fetched", len(events), "selected", len(selected))

	for _, event := range selected {
		if ctx.Err() != nil {
			return
		}
		if err := p.dispatch(ctx, cfg, event); err != nil {
			log.Warn("event dispatch aborted", "source_id", event.SourceID, "error", err)
		}
	}
}
