package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
)

// dispatch delivers one selected event and records the outcome. A returned
// error means nothing was recorded and the event stays eligible.
func (p *Pipeline) dispatch(ctx context.Context, cfg domain.TenantConfig, event domain.SeismicEvent) error {
	log := p.logger.With("tenant_id", cfg.TenantID, "source_id", event.SourceID)

	loc, err := domain.ResolveLocation(ctx, p.deps.Geocoder, event.Lat, event.Lon, cfg.RegionCode)
	if err != nil {
		log.Warn("location lookup failed", "error", err)
	}

	var subscribers []int64
	if len(loc.Candidates) > 0 {
		subscribers, err = p.deps.Subscribers.MatchSubscribers(ctx, cfg.TenantID, loc.Candidates)
		if err != nil {
			log.Warn("subscriber match failed", "error", err)
			subscribers = nil
		}
	}

	alert := domain.BuildAlert(event, loc, cfg)
	channelID := *cfg.ChannelID

	if err := p.deps.Notifier.ResolveChannel(ctx, channelID); err != nil {
		p.metrics.Deliveries.WithLabelValues("unreachable").Inc()
		if errors.Is(err, domain.ErrChannelUnreachable) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrChannelUnreachable, err)
	}

	if err := p.deps.Ledger.PruneDeliveries(ctx, cfg.TenantID, LedgerRetention-1); err != nil {
		log.Warn("prune delivery ledger failed", "error", err)
	}

	delivered := true
	if err := p.deps.Notifier.SendChannel(ctx, channelID, alert); err != nil {
		delivered = false
		p.metrics.Deliveries.WithLabelValues("send_failed").Inc()
		log.Warn("channel send failed", "channel_id", channelID, "error", err)
	} else {
		p.metrics.Deliveries.WithLabelValues("delivered").Inc()
		log.Info("alert delivered", "channel_id", channelID, "magnitude", event.Magnitude,
			"location", loc.Display, "subscribers", len(subscribers))
		p.notifySubscribers(ctx, subscribers, alert)
	}

	rec := domain.DeliveryRecord{
		TenantID:  cfg.TenantID,
		SourceID:  event.SourceID,
		Authority: event.Authority,
		Delivered: delivered,
		Timestamp: p.clock.Now(),
	}
	if err := p.deps.Ledger.AppendDelivery(ctx, rec); err != nil {
		log.Error("append delivery record failed", "error", err)
		return nil
	}
	p.publish(ctx, rec)
	return nil
}

func (p *Pipeline) notifySubscribers(ctx context.Context, subscribers []int64, alert domain.Alert) {
	for _, id := range subscribers {
		if err := p.deps.Notifier.SendDirect(ctx, id, alert); err != nil {
			p.metrics.DirectNotifications.WithLabelValues("failed").Inc()
			p.logger.Warn("direct notification failed",
				"subscriber_id", id,
				"source_id", alert.SourceID,
				"error", fmt.Errorf("%w: %w", domain.ErrDirectNotificationFailed, err),
			)
			continue
		}
		p.metrics.DirectNotifications.WithLabelValues("sent").Inc()
	}
}

func (p *Pipeline) publish(ctx context.Context, rec domain.DeliveryRecord) {
	if p.deps.Publisher == nil {
		return
	}
	if err := p.deps.Publisher.PublishDelivery(ctx, rec); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Warn("publish delivery failed", "tenant_id", rec.TenantID, "source_id", rec.SourceID, "error", err)
	}
}
