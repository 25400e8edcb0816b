package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
)

type DeliverabilityRepository struct {
	db *sql.DB
}

func NewDeliverabilityRepository(db *sql.DB) *DeliverabilityRepository {
	return &DeliverabilityRepository{db: db}
}

func (r *DeliverabilityRepository) RecordEvent(ctx context.Context, event *models.DeliverabilityEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deliverability_events (id, tenant_id, email, type, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		event.ID, event.TenantID, models.NormalizeEmail(event.Email), string(event.Type), nullString(event.Reason), event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record deliverability event: %w", err)
	}

	return nil
}

// Suppress keeps the first suppression recorded for a recipient.
func (r *DeliverabilityRepository) Suppress(ctx context.Context, record *models.SuppressionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppressions (tenant_id, email, status, reason, since)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, email) DO NOTHING`,
		record.TenantID, models.NormalizeEmail(record.Email), string(record.Status), nullString(record.Reason), record.Since,
	)
	if err != nil {
		return fmt.Errorf("failed to suppress recipient: %w", err)
	}

	return nil
}

func (r *DeliverabilityRepository) Suppression(ctx context.Context, tenantID, email string) (*models.SuppressionRecord, error) {
	var (
		record models.SuppressionRecord
		status string
		reason sql.NullString
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT tenant_id, email, status, reason, since FROM suppressions WHERE tenant_id = $1 AND email = $2",
		tenantID, models.NormalizeEmail(email),
	).Scan(&record.TenantID, &record.Email, &status, &reason, &record.Since)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrSuppressionNotFound
		}

		return nil, fmt.Errorf("failed to query suppression: %w", err)
	}

	record.Status = models.SuppressionStatus(status)
	record.Reason = reason.String

	return &record, nil
}

func (r *DeliverabilityRepository) EventCounts(ctx context.Context, tenantID string, since time.Time) (map[models.DeliverabilityEventType]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT type, COUNT(*) FROM deliverability_events WHERE tenant_id = $1 AND occurred_at >= $2 GROUP BY type",
		tenantID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts: %w", err)
	}

	defer rows.Close()

	counts := map[models.DeliverabilityEventType]int64{}

	for rows.Next() {
		var (
			eventType string
			count     int64
		)

		err := rows.Scan(&eventType, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}

		counts[models.DeliverabilityEventType(eventType)] = count
	}

	return counts, rows.Err()
}
