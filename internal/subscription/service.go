// Package subscription manages subscribers' city interests within a tenant.
package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Store persists subscriptions.
type Store interface {
	AddSubscription(ctx context.Context, sub domain.Subscription) error
	RemoveSubscription(ctx context.Context, tenantID string, subscriberID int64, city string) error
	ListSubscriptions(ctx context.Context, tenantID string, subscriberID int64) ([]string, error)
}

// Service applies permission and validation rules before touching the store.
type Service struct {
	store     Store
	validator domain.CityValidator
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewService creates a Service. A nil validator accepts any non-empty city.
func NewService(store Store, validator domain.CityValidator, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, validator: validator, clock: clock, logger: logger}
}

// Add subscribes target to city. It returns the normalized city stored.
func (s *Service) Add(ctx context.Context, tenantID string, actor domain.Actor, target int64, city string, language string) (string, error) {
	if !actor.CanActFor(target) {
		return "", domain.ErrNotPermitted
	}
	normalized := domain.NormalizeText(city)
	if normalized == "" {
		return "", domain.ErrInvalidCity
	}

	if s.validator != nil {
		ok, err := s.validator.IsCity(ctx, normalized, language)
		if err != nil {
			return "", fmt.Errorf("validate city %q: %w", normalized, err)
		}
		if !ok {
			return "", domain.ErrNotACity
		}
	}

	err := s.store.AddSubscription(ctx, domain.Subscription{
		TenantID:     tenantID,
		SubscriberID: target,
		City:         normalized,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("subscription added", "tenant_id", tenantID, "subscriber_id", target, "city", normalized, "actor_id", actor.ID)
	return normalized, nil
}

// Remove unsubscribes target from city.
func (s *Service) Remove(ctx context.Context, tenantID string, actor domain.Actor, target int64, city string) (string, error) {
	if !actor.CanActFor(target) {
		return "", domain.ErrNotPermitted
	}
	normalized := domain.NormalizeText(city)
	if normalized == "" {
		return "", domain.ErrInvalidCity
	}
	if err := s.store.RemoveSubscription(ctx, tenantID, target, normalized); err != nil {
		return "", err
	}
	s.logger.Info("subscription removed", "tenant_id", tenantID, "subscriber_id", target, "city", normalized, "actor_id", actor.ID)
	return normalized, nil
}

// List returns target's cities.
func (s *Service) List(ctx context.Context, tenantID string, actor domain.Actor, target int64) ([]string, error) {
	if !actor.CanActFor(target) {
		return nil, domain.ErrNotPermitted
	}
	return s.store.ListSubscriptions(ctx, tenantID, target)
}
