package sendqueue_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/dukex/mailflow/pkg/clock"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence/memory"
	"github.com/dukex/mailflow/pkg/sendqueue"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*sendqueue.Service, *memory.Persistence, *clock.Manual) {
	t.Helper()

	p := memory.NewPersistence()
	clk := clock.NewManual(testutil.FixedNow)

	service := sendqueue.NewService(p.Queue(), testutil.Logger(),
		sendqueue.WithClock(clk),
		sendqueue.WithBackoff(sendqueue.NewBackoffPolicy(rand.NewPCG(7, 7))))

	return service, p, clk
}

func message(tenantID, to string) *models.QueuedEmail {
	return &models.QueuedEmail{
		TenantID:    tenantID,
		Source:      models.SourceWorkflow,
		ToEmail:     to,
		FromName:    "Acme",
		FromEmail:   "hello@acme.test",
		Subject:     "Welcome",
		HTMLContent: "<p>hi</p>",
	}
}

func TestService_Enqueue_Defaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, p, _ := newService(t)

	id, err := service.Enqueue(ctx, message("t1", "Ana@Example.com"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stored, err := p.Queue().GetByIDs(ctx, []string{id})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	msg := stored[0]
	assert.Equal(t, models.QueueQueued, msg.Status)
	assert.Equal(t, models.DefaultPriority, msg.Priority)
	assert.Equal(t, models.DefaultMaxAttempts, msg.MaxAttempts)
	assert.Equal(t, 0, msg.Attempts)
	assert.Equal(t, testutil.FixedNow, msg.QueuedAt)
	assert.Equal(t, "ana@example.com", msg.ToEmail)
	assert.Nil(t, msg.NextRetryAt)
}

func TestService_Enqueue_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*models.QueuedEmail)
	}{
		{"missing tenant", func(m *models.QueuedEmail) { m.TenantID = "" }},
		{"bad recipient", func(m *models.QueuedEmail) { m.ToEmail = "nobody" }},
		{"missing sender", func(m *models.QueuedEmail) { m.FromEmail = "" }},
		{"empty subject", func(m *models.QueuedEmail) { m.Subject = "" }},
		{"empty body", func(m *models.QueuedEmail) { m.HTMLContent = "" }},
		{"unknown source", func(m *models.QueuedEmail) { m.Source = "newsletter" }},
		{"negative priority", func(m *models.QueuedEmail) { m.Priority = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			service, p, _ := newService(t)

			msg := message("t1", "ana@example.com")
			tt.mutate(msg)

			_, err := service.Enqueue(context.Background(), msg)
			require.ErrorIs(t, err, sendqueue.ErrInvalidMessage)
			assert.Empty(t, p.AllQueued())
		})
	}
}

func TestService_ClaimOrdersByPriority(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, _, clk := newService(t)

	low := message("t1", "low@example.com")
	low.Priority = 9
	_, err := service.Enqueue(ctx, low)
	require.NoError(t, err)

	clk.Advance(time.Second)

	urgent := message("t1", "urgent@example.com")
	urgent.Priority = 1
	_, err = service.Enqueue(ctx, urgent)
	require.NoError(t, err)

	_, err = service.Enqueue(ctx, message("t1", "normal@example.com"))
	require.NoError(t, err)

	batch, err := service.ClaimBatchForTenant(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Equal(t, "urgent@example.com", batch[0].ToEmail)
	assert.Equal(t, "normal@example.com", batch[1].ToEmail)
	assert.Equal(t, models.QueueSending, batch[0].Status)
	assert.Equal(t, 1, batch[0].Attempts)
}

func TestService_RetryThenFailAfterThirdAttempt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, p, clk := newService(t)

	id, err := service.Enqueue(ctx, message("t1", "ana@example.com"))
	require.NoError(t, err)

	var retryTimes []time.Time

	for attempt := 1; attempt <= 3; attempt++ {
		batch, err := service.ClaimBatchForTenant(ctx, "t1", 10)
		require.NoError(t, err)
		require.Len(t, batch, 1, "attempt %d", attempt)
		assert.Equal(t, attempt, batch[0].Attempts)

		require.NoError(t, service.MarkFailed(ctx, []string{id}, "connection reset"))

		stored, err := p.Queue().GetByIDs(ctx, []string{id})
		require.NoError(t, err)

		msg := stored[0]
		assert.Equal(t, "connection reset", msg.LastError)

		if attempt < 3 {
			assert.Equal(t, models.QueueQueued, msg.Status)
			require.NotNil(t, msg.NextRetryAt)

			retryTimes = append(retryTimes, *msg.NextRetryAt)

			// Not claimable before the retry time.
			batch, err = service.ClaimBatchForTenant(ctx, "t1", 10)
			require.NoError(t, err)
			assert.Empty(t, batch)

			clk.Set(*msg.NextRetryAt)

			continue
		}

		assert.Equal(t, models.QueueFailed, msg.Status)
	}

	require.Len(t, retryTimes, 2)

	first := retryTimes[0].Sub(testutil.FixedNow)
	assert.GreaterOrEqual(t, first, 2*time.Second)
	assert.Less(t, first, 3*time.Second)

	second := retryTimes[1].Sub(retryTimes[0])
	assert.GreaterOrEqual(t, second, 4*time.Second)
	assert.Less(t, second, 5*time.Second)

	tenants, err := service.TenantsWithDue(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestService_MarkSent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	service, p, _ := newService(t)

	id, err := service.Enqueue(ctx, message("t1", "ana@example.com"))
	require.NoError(t, err)

	_, err = service.ClaimBatchForTenant(ctx, "t1", 10)
	require.NoError(t, err)

	require.NoError(t, service.MarkSent(ctx, []string{id}))

	stored, err := p.Queue().GetByIDs(ctx, []string{id})
	require.NoError(t, err)
	assert.Equal(t, models.QueueSent, stored[0].Status)
	require.NotNil(t, stored[0].SentAt)
	assert.Equal(t, testutil.FixedNow, *stored[0].SentAt)
}

func TestBackoffPolicy_Monotonic(t *testing.T) {
	t.Parallel()

	policy := sendqueue.NewBackoffPolicy(rand.NewPCG(1, 2))

	previous := time.Duration(0)

	for attempts := 1; attempts <= 8; attempts++ {
		base := time.Duration(1<<attempts) * time.Second

		for range 50 {
			delay := policy.Delay(attempts)

			assert.GreaterOrEqual(t, delay, base)
			assert.Less(t, delay, base+time.Second)
			assert.Greater(t, delay, previous, "attempt %d", attempts)
		}

		previous = base + time.Second - 1
	}
}
