package postgresql

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/lib/pq"
)

// QueueRepository is the durable send queue.
type QueueRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewQueueRepository(db *sql.DB, logger *slog.Logger) *QueueRepository {
	return &QueueRepository{db: db, logger: logger}
}

const queuedEmailColumns = `
	id
  , tenant_id
  , source
  , execution_id
  , to_email
  , from_name
  , from_email
  , subject
  , html_content
  , text_content
  , reply_to
  , headers
  , status
  , priority
  , attempts
  , max_attempts
  , queued_at
  , sent_at
  , next_retry_at
  , last_error
  , claimed_at
`

func (r *QueueRepository) Enqueue(ctx context.Context, email *models.QueuedEmail) error {
	var headersJSON any

	if len(email.Headers) > 0 {
		b, err := json.Marshal(email.Headers)
		if err != nil {
			return fmt.Errorf("failed to marshal headers: %w", err)
		}

		headersJSON = b
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO queued_emails (`+queuedEmailColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		email.ID,
		email.TenantID,
		string(email.Source),
		nullString(email.ExecutionID),
		email.ToEmail,
		email.FromName,
		email.FromEmail,
		email.Subject,
		email.HTMLContent,
		nullString(email.TextContent),
		nullString(email.ReplyTo),
		headersJSON,
		string(email.Status),
		email.Priority,
		email.Attempts,
		email.MaxAttempts,
		email.QueuedAt,
		email.SentAt,
		email.NextRetryAt,
		nullString(email.LastError),
		email.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue email %s: %w", email.ID, err)
	}

	return nil
}

func (r *QueueRepository) GetByIDs(ctx context.Context, ids []string) ([]*models.QueuedEmail, error) {
	return r.query(ctx, "SELECT "+queuedEmailColumns+" FROM queued_emails WHERE id = ANY($1) ORDER BY queued_at, id", pq.Array(ids))
}

func (r *QueueRepository) TenantsWithDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT tenant_id FROM queued_emails
		WHERE status = 'queued' AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY tenant_id`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants with due mail: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	var tenants []string

	for rows.Next() {
		var tenantID string

		err := rows.Scan(&tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}

		tenants = append(tenants, tenantID)
	}

	return tenants, rows.Err()
}

// ClaimBatch moves due messages to sending and increments attempts in the
// same statement that selects them.
func (r *QueueRepository) ClaimBatch(ctx context.Context, tenantID string, now time.Time, limit int) ([]*models.QueuedEmail, error) {
	claimed, err := r.query(ctx, `
		UPDATE queued_emails SET status = 'sending', attempts = attempts + 1, claimed_at = $2
		WHERE id IN (
			SELECT id FROM queued_emails
			WHERE tenant_id = $1
			  AND status = 'queued'
			  AND (next_retry_at IS NULL OR next_retry_at <= $2)
			ORDER BY priority, queued_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+queuedEmailColumns,
		tenantID, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch for tenant %s: %w", tenantID, err)
	}

	slices.SortFunc(claimed, func(a, b *models.QueuedEmail) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), a.QueuedAt.Compare(b.QueuedAt), cmp.Compare(a.ID, b.ID))
	})

	return claimed, nil
}

func (r *QueueRepository) MarkSent(ctx context.Context, ids []string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE queued_emails SET status = 'sent', sent_at = $2 WHERE id = ANY($1) AND status = 'sending'",
		pq.Array(ids), at,
	)
	if err != nil {
		return fmt.Errorf("failed to mark emails sent: %w", err)
	}

	return nil
}

func (r *QueueRepository) Requeue(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE queued_emails SET status = 'queued', next_retry_at = $2, last_error = $3 WHERE id = $1 AND status = 'sending'",
		id, nextRetryAt, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue email %s: %w", id, err)
	}

	return nil
}

func (r *QueueRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE queued_emails SET status = 'failed', last_error = $2 WHERE id = $1 AND status = 'sending'",
		id, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to mark email %s failed: %w", id, err)
	}

	return nil
}

func (r *QueueRepository) ResetStale(ctx context.Context, cutoff time.Time, lastError string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE queued_emails SET
			status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'queued' END,
			next_retry_at = NULL,
			claimed_at = NULL,
			last_error = $2
		WHERE status = 'sending' AND claimed_at < $1`,
		cutoff, lastError,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale queued emails: %w", err)
	}

	return result.RowsAffected()
}

func (r *QueueRepository) CountSent(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	var n int64

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM queued_emails WHERE tenant_id = $1 AND status = 'sent' AND sent_at >= $2",
		tenantID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent emails: %w", err)
	}

	return n, nil
}

func (r *QueueRepository) query(ctx context.Context, query string, args ...any) ([]*models.QueuedEmail, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer closeRows(ctx, r.logger, rows)

	result := make([]*models.QueuedEmail, 0)

	for rows.Next() {
		email, err := scanQueuedEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queued email: %w", err)
		}

		result = append(result, email)
	}

	return result, rows.Err()
}

func scanQueuedEmail(row scanner) (*models.QueuedEmail, error) {
	var (
		email                                        models.QueuedEmail
		source, status                               string
		executionID, textContent, replyTo, lastError sql.NullString
		headersJSON                                  []byte
		sentAt, nextRetryAt, claimedAt               sql.NullTime
	)

	err := row.Scan(
		&email.ID,
		&email.TenantID,
		&source,
		&executionID,
		&email.ToEmail,
		&email.FromName,
		&email.FromEmail,
		&email.Subject,
		&email.HTMLContent,
		&textContent,
		&replyTo,
		&headersJSON,
		&status,
		&email.Priority,
		&email.Attempts,
		&email.MaxAttempts,
		&email.QueuedAt,
		&sentAt,
		&nextRetryAt,
		&lastError,
		&claimedAt,
	)
	if err != nil {
		return nil, err
	}

	email.Source = models.EmailSource(source)
	email.Status = models.QueueStatus(status)
	email.ExecutionID = executionID.String
	email.TextContent = textContent.String
	email.ReplyTo = replyTo.String
	email.LastError = lastError.String

	if len(headersJSON) > 0 {
		err = json.Unmarshal(headersJSON, &email.Headers)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
		}
	}

	if sentAt.Valid {
		email.SentAt = &sentAt.Time
	}

	if nextRetryAt.Valid {
		email.NextRetryAt = &nextRetryAt.Time
	}

	if claimedAt.Valid {
		email.ClaimedAt = &claimedAt.Time
	}

	return &email, nil
}
