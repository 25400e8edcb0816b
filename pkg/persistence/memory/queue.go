package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"time"

	"github.com/dukex/mailflow/pkg/models"
)

type queueRepository struct {
	p *Persistence
}

func cloneQueued(q *models.QueuedEmail) *models.QueuedEmail {
	clone := *q
	clone.Headers = maps.Clone(q.Headers)

	return &clone
}

func isDue(q *models.QueuedEmail, now time.Time) bool {
	return q.Status == models.QueueQueued && (q.NextRetryAt == nil || !q.NextRetryAt.After(now))
}

func (r *queueRepository) Enqueue(_ context.Context, email *models.QueuedEmail) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.queue[email.ID] = cloneQueued(email)

	return nil
}

func (r *queueRepository) GetByIDs(_ context.Context, ids []string) ([]*models.QueuedEmail, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	result := make([]*models.QueuedEmail, 0, len(ids))

	for _, id := range ids {
		if q, ok := r.p.queue[id]; ok {
			result = append(result, cloneQueued(q))
		}
	}

	return result, nil
}

func (r *queueRepository) TenantsWithDue(_ context.Context, now time.Time) ([]string, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	seen := map[string]bool{}

	for _, q := range r.p.queue {
		if isDue(q, now) {
			seen[q.TenantID] = true
		}
	}

	return slices.Sorted(maps.Keys(seen)), nil
}

func (r *queueRepository) ClaimBatch(_ context.Context, tenantID string, now time.Time, limit int) ([]*models.QueuedEmail, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var due []*models.QueuedEmail

	for _, q := range r.p.queue {
		if q.TenantID == tenantID && isDue(q, now) {
			due = append(due, q)
		}
	}

	slices.SortFunc(due, func(a, b *models.QueuedEmail) int {
		return cmp.Or(
			cmp.Compare(a.Priority, b.Priority),
			a.QueuedAt.Compare(b.QueuedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*models.QueuedEmail, 0, len(due))

	for _, q := range due {
		claimedAt := now
		q.Status = models.QueueSending
		q.Attempts++
		q.ClaimedAt = &claimedAt
		claimed = append(claimed, cloneQueued(q))
	}

	return claimed, nil
}

func (r *queueRepository) MarkSent(_ context.Context, ids []string, at time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, id := range ids {
		if q, ok := r.p.queue[id]; ok && q.Status == models.QueueSending {
			sentAt := at
			q.Status = models.QueueSent
			q.SentAt = &sentAt
		}
	}

	return nil
}

func (r *queueRepository) Requeue(_ context.Context, id string, nextRetryAt time.Time, lastError string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if q, ok := r.p.queue[id]; ok && q.Status == models.QueueSending {
		retry := nextRetryAt
		q.Status = models.QueueQueued
		q.NextRetryAt = &retry
		q.LastError = lastError
	}

	return nil
}

func (r *queueRepository) MarkFailed(_ context.Context, id string, lastError string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if q, ok := r.p.queue[id]; ok && q.Status == models.QueueSending {
		q.Status = models.QueueFailed
		q.LastError = lastError
	}

	return nil
}

func (r *queueRepository) ResetStale(_ context.Context, cutoff time.Time, lastError string) (int64, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var n int64

	for _, q := range r.p.queue {
		if q.Status != models.QueueSending || q.ClaimedAt == nil || !q.ClaimedAt.Before(cutoff) {
			continue
		}

		if q.Attempts >= q.MaxAttempts {
			q.Status = models.QueueFailed
		} else {
			q.Status = models.QueueQueued
			q.NextRetryAt = nil
		}

		q.ClaimedAt = nil
		q.LastError = lastError
		n++
	}

	return n, nil
}

func (r *queueRepository) CountSent(_ context.Context, tenantID string, since time.Time) (int64, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var n int64

	for _, q := range r.p.queue {
		if q.TenantID == tenantID && q.Status == models.QueueSent && q.SentAt != nil && !q.SentAt.Before(since) {
			n++
		}
	}

	return n, nil
}

// AllQueued returns every queued message ordered by queue time.
func (p *Persistence) AllQueued() []*models.QueuedEmail {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.QueuedEmail, 0, len(p.queue))
	for _, q := range p.queue {
		result = append(result, cloneQueued(q))
	}

	slices.SortFunc(result, func(a, b *models.QueuedEmail) int {
		return cmp.Or(a.QueuedAt.Compare(b.QueuedAt), cmp.Compare(a.ID, b.ID))
	})

	return result
}
