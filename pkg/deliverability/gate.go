// Package deliverability records provider feedback for recipients and answers
// whether a recipient may still be mailed.
package deliverability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/mailflow/pkg/clock"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidEvent = errors.New("invalid deliverability event")

const (
	cacheKeyPrefix     = "mailflow:suppression:"
	notSuppressed      = "none"
	DefaultNegativeTTL = time.Minute
)

// Gate is the single source of truth for suppression. Suppression is
// terminal: once recorded it is never lifted by later events.
type Gate struct {
	events   persistence.DeliverabilityRepository
	contacts persistence.ContactRepository
	queue    persistence.QueueRepository

	cache       *redis.Client
	negativeTTL time.Duration

	clock    clock.Clock
	logger   *slog.Logger
	validate *validator.Validate
}

type Option func(*Gate)

// WithCache caches suppression lookups in Redis. Suppressed recipients are
// cached without expiry; clean recipients for negativeTTL.
func WithCache(client *redis.Client, negativeTTL time.Duration) Option {
	return func(g *Gate) {
		g.cache = client
		if negativeTTL > 0 {
			g.negativeTTL = negativeTTL
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(g *Gate) {
		g.clock = c
	}
}

func NewGate(p persistence.Persistence, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		events:      p.Deliverability(),
		contacts:    p.Contacts(),
		queue:       p.Queue(),
		negativeTTL: DefaultNegativeTTL,
		clock:       clock.Real{},
		logger:      logger.With("module", "deliverability"),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// IsSuppressed reports whether sending to the recipient is forbidden.
func (g *Gate) IsSuppressed(ctx context.Context, tenantID, email string) (bool, error) {
	status, err := g.Status(ctx, tenantID, email)
	if err != nil {
		return false, err
	}

	return status != models.SuppressionNone, nil
}

// Status returns the recipient's suppression status, SuppressionNone when
// the recipient may be mailed.
func (g *Gate) Status(ctx context.Context, tenantID, email string) (models.SuppressionStatus, error) {
	key := cacheKey(tenantID, email)

	if g.cache != nil {
		cached, err := g.cache.Get(ctx, key).Result()

		switch {
		case err == nil && cached == notSuppressed:
			return models.SuppressionNone, nil
		case err == nil:
			return models.SuppressionStatus(cached), nil
		case !errors.Is(err, redis.Nil):
			g.logger.WarnContext(ctx, "Suppression cache read failed", "error", err)
		}
	}

	status := models.SuppressionNone

	record, err := g.events.Suppression(ctx, tenantID, email)

	switch {
	case err == nil:
		status = record.Status
	case errors.Is(err, persistence.ErrSuppressionNotFound):
	default:
		return models.SuppressionNone, fmt.Errorf("failed to look up suppression: %w", err)
	}

	g.remember(ctx, key, status)

	return status, nil
}

// Record stores a deliverability event and applies its suppression, if any.
// Hard bounces mark the contact bounced; complaints and unsubscribes mark it
// unsubscribed. Other event types are informational.
func (g *Gate) Record(ctx context.Context, event *models.DeliverabilityEvent) error {
	err := g.validate.Struct(event)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if event.ID == "" {
		event.ID = uuid.Must(uuid.NewV7()).String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = g.clock.Now()
	}

	event.Email = models.NormalizeEmail(event.Email)

	logger := g.logger.With("tenant_id", event.TenantID, "email", event.Email, "type", event.Type)

	err = g.events.RecordEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", event.Type, err)
	}

	suppression := event.Type.Suppression()
	if suppression == models.SuppressionNone {
		logger.DebugContext(ctx, "Recorded informational deliverability event")

		return nil
	}

	err = g.events.Suppress(ctx, &models.SuppressionRecord{
		TenantID: event.TenantID,
		Email:    event.Email,
		Status:   suppression,
		Reason:   event.Reason,
		Since:    event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to suppress %s: %w", event.Email, err)
	}

	g.forget(ctx, cacheKey(event.TenantID, event.Email))

	contactStatus := models.ContactUnsubscribed
	if event.Type == models.EventHardBounce {
		contactStatus = models.ContactBounced
	}

	err = g.contacts.SetStatusByEmail(ctx, event.TenantID, event.Email, contactStatus)
	if err != nil {
		return fmt.Errorf("failed to update contact status: %w", err)
	}

	logger.InfoContext(ctx, "Recipient suppressed", "suppression", suppression)

	return nil
}

func (g *Gate) remember(ctx context.Context, key string, status models.SuppressionStatus) {
	if g.cache == nil {
		return
	}

	value, ttl := string(status), time.Duration(0)
	if status == models.SuppressionNone {
		value, ttl = notSuppressed, g.negativeTTL
	}

	err := g.cache.Set(ctx, key, value, ttl).Err()
	if err != nil {
		g.logger.WarnContext(ctx, "Suppression cache write failed", "error", err)
	}
}

func (g *Gate) forget(ctx context.Context, key string) {
	if g.cache == nil {
		return
	}

	err := g.cache.Del(ctx, key).Err()
	if err != nil {
		g.logger.WarnContext(ctx, "Suppression cache invalidation failed", "error", err)
	}
}

func cacheKey(tenantID, email string) string {
	return cacheKeyPrefix + tenantID + ":" + models.NormalizeEmail(email)
}
