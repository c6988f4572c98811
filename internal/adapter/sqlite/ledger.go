package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
)

// KnownSourceIDs returns every source id recorded for the tenant.
func (s *Store) KnownSourceIDs(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id FROM deliveries WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		known[id] = struct{}{}
	}
	return known, rows.Err()
}

// FindDelivery returns the record for (tenant, source id), or nil when absent.
func (s *Store) FindDelivery(ctx context.Context, tenantID, sourceID string) (*domain.DeliveryRecord, error) {
	var (
		rec        domain.DeliveryRecord
		delivered  int
		recordedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, source_id, source_authority, delivered, recorded_at
		 FROM deliveries WHERE tenant_id = ? AND source_id = ?`,
		tenantID, sourceID,
	).Scan(&rec.TenantID, &rec.SourceID, &rec.Authority, &delivered, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find delivery: %w", err)
	}
	rec.Delivered = delivered != 0
	rec.Timestamp = fromMillis(recordedAt)
	return &rec, nil
}

// AppendDelivery inserts a record. A second record for the same
// (tenant, source id) is ignored; records are never updated in place.
func (s *Store) AppendDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries(tenant_id, source_id, source_authority, delivered, recorded_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(tenant_id, source_id) DO NOTHING`,
		rec.TenantID, rec.SourceID, rec.Authority, boolToInt(rec.Delivered), toMillis(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append delivery: %w", err)
	}
	return nil
}

// PruneDeliveries keeps only the newest keep records of the tenant.
func (s *Store) PruneDeliveries(ctx context.Context, tenantID string, keep int) error {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM deliveries
		 WHERE tenant_id = ? AND rowid NOT IN (
			SELECT rowid FROM deliveries
			WHERE tenant_id = ?
			ORDER BY recorded_at DESC, rowid DESC
			LIMIT ?
		 )`,
		tenantID, tenantID, keep,
	)
	if err != nil {
		return fmt.Errorf("prune deliveries: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("pruned deliveries", "tenant_id", tenantID, "removed", n, "keep", keep)
	}
	return nil
}

// CountDeliveries returns the number of ledger records for the tenant.
func (s *Store) CountDeliveries(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return n, nil
}
