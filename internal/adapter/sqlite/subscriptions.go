package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
)

// AddSubscription stores sub. The city must already be normalized.
func (s *Store) AddSubscription(ctx context.Context, sub domain.Subscription) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(tenant_id, subscriber_id, city, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(tenant_id, subscriber_id, city) DO NOTHING`,
		sub.TenantID, sub.SubscriberID, sub.City, toMillis(sub.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrDuplicateSubscription
	}
	return nil
}

// RemoveSubscription deletes one (tenant, subscriber, city) row.
func (s *Store) RemoveSubscription(ctx context.Context, tenantID string, subscriberID int64, city string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE tenant_id = ? AND subscriber_id = ? AND city = ?`,
		tenantID, subscriberID, city,
	)
	if err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// ListSubscriptions returns the subscriber's cities in alphabetical order.
func (s *Store) ListSubscriptions(ctx context.Context, tenantID string, subscriberID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT city FROM subscriptions WHERE tenant_id = ? AND subscriber_id = ? ORDER BY city`,
		tenantID, subscriberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		cities = append(cities, city)
	}
	return cities, rows.Err()
}

// MatchSubscribers returns the distinct subscribers of the tenant whose
// stored city equals any of cities. No query is issued for an empty list.
func (s *Store) MatchSubscribers(ctx context.Context, tenantID string, cities []string) ([]int64, error) {
	if len(cities) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cities)), ",")
	args := make([]any, 0, len(cities)+1)
	args = append(args, tenantID)
	for _, c := range cities {
		args = append(args, c)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT subscriber_id FROM subscriptions
		 WHERE tenant_id = ? AND city IN (`+placeholders+`)
		 ORDER BY subscriber_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("match subscribers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
