// Package sendqueue holds personalized messages until the batch dispatcher
// hands them to the transport, retrying failures with exponential backoff.
package sendqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/mailflow/pkg/clock"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const interruptedCause = "delivery interrupted"

var ErrInvalidMessage = errors.New("invalid queued email")

type Service struct {
	repo     persistence.QueueRepository
	clock    clock.Clock
	backoff  *BackoffPolicy
	validate *validator.Validate
	logger   *slog.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithBackoff(b *BackoffPolicy) Option {
	return func(s *Service) {
		s.backoff = b
	}
}

func NewService(repo persistence.QueueRepository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		clock:    clock.Real{},
		backoff:  NewBackoffPolicy(nil),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "sendqueue"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Enqueue stores a copy of the message as queued and returns its id. Zero
// priority and maxAttempts take the queue defaults.
func (s *Service) Enqueue(ctx context.Context, email *models.QueuedEmail) (string, error) {
	msg := *email
	msg.Headers = maps.Clone(email.Headers)
	msg.ToEmail = models.NormalizeEmail(msg.ToEmail)

	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}

	if msg.Priority == 0 {
		msg.Priority = models.DefaultPriority
	}

	if msg.MaxAttempts == 0 {
		msg.MaxAttempts = models.DefaultMaxAttempts
	}

	msg.Status = models.QueueQueued
	msg.Attempts = 0
	msg.QueuedAt = s.clock.Now()
	msg.SentAt = nil
	msg.NextRetryAt = nil
	msg.LastError = ""

	err := s.validate.Struct(&msg)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	err = s.repo.Enqueue(ctx, &msg)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue email: %w", err)
	}

	s.logger.DebugContext(ctx, "Email queued",
		"id", msg.ID,
		"tenant_id", msg.TenantID,
		"source", msg.Source,
		"priority", msg.Priority)

	return msg.ID, nil
}

// TenantsWithDue lists tenants that have messages ready to claim.
func (s *Service) TenantsWithDue(ctx context.Context) ([]string, error) {
	return s.repo.TenantsWithDue(ctx, s.clock.Now())
}

// ClaimBatchForTenant moves up to limit due messages of the tenant to
// sending, most urgent first.
func (s *Service) ClaimBatchForTenant(ctx context.Context, tenantID string, limit int) ([]*models.QueuedEmail, error) {
	batch, err := s.repo.ClaimBatch(ctx, tenantID, s.clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch for tenant %s: %w", tenantID, err)
	}

	return batch, nil
}

// ResetStale releases messages that have been sending for longer than lease.
// Messages with attempts left are queued again; the rest fail.
func (s *Service) ResetStale(ctx context.Context, lease time.Duration) (int64, error) {
	n, err := s.repo.ResetStale(ctx, s.clock.Now().Add(-lease), interruptedCause)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale sending emails: %w", err)
	}

	return n, nil
}

func (s *Service) MarkSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	err := s.repo.MarkSent(ctx, ids, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to mark %d emails sent: %w", len(ids), err)
	}

	return nil
}

// MarkFailed requeues each message with a backoff delay while attempts
// remain, and fails it permanently otherwise.
func (s *Service) MarkFailed(ctx context.Context, ids []string, cause string) error {
	if len(ids) == 0 {
		return nil
	}

	messages, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load failed emails: %w", err)
	}

	now := s.clock.Now()

	var errs []error

	for _, msg := range messages {
		logger := s.logger.With("id", msg.ID, "tenant_id", msg.TenantID, "attempts", msg.Attempts)

		if msg.Attempts < msg.MaxAttempts {
			retryAt := now.Add(s.backoff.Delay(msg.Attempts))

			err := s.repo.Requeue(ctx, msg.ID, retryAt, cause)
			if err != nil {
				errs = append(errs, err)

				continue
			}

			logger.WarnContext(ctx, "Email delivery failed, retrying", "next_retry_at", retryAt, "error", cause)

			continue
		}

		err := s.repo.MarkFailed(ctx, msg.ID, cause)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		logger.ErrorContext(ctx, "Email delivery failed permanently", "error", cause)
	}

	return errors.Join(errs...)
}
