package deliverability_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/mailflow/pkg/clock"
	"github.com/dukex/mailflow/pkg/deliverability"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence/memory"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T, opts ...deliverability.Option) (*deliverability.Gate, *memory.Persistence) {
	t.Helper()

	p := memory.NewPersistence()
	require.NoError(t, p.Contacts().Save(context.Background(), testutil.TestContact()))

	opts = append([]deliverability.Option{deliverability.WithClock(clock.NewManual(testutil.FixedNow))}, opts...)

	return deliverability.NewGate(p, testutil.Logger(), opts...), p
}

func TestGate_Record(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		eventType     models.DeliverabilityEventType
		suppressed    bool
		suppression   models.SuppressionStatus
		contactStatus models.ContactStatus
	}{
		{"hard bounce", models.EventHardBounce, true, models.SuppressionBounced, models.ContactBounced},
		{"spam complaint", models.EventSpamComplaint, true, models.SuppressionComplained, models.ContactUnsubscribed},
		{"unsubscribe", models.EventUnsubscribe, true, models.SuppressionUnsubscribed, models.ContactUnsubscribed},
		{"soft bounce", models.EventSoftBounce, false, models.SuppressionNone, models.ContactActive},
		{"blocked", models.EventBlocked, false, models.SuppressionNone, models.ContactActive},
		{"delivery delay", models.EventDeliveryDelay, false, models.SuppressionNone, models.ContactActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			gate, p := newGate(t)

			err := gate.Record(ctx, &models.DeliverabilityEvent{
				TenantID: testutil.TestTenantID,
				Email:    "ANA@example.com",
				Type:     tt.eventType,
			})
			require.NoError(t, err)

			suppressed, err := gate.IsSuppressed(ctx, testutil.TestTenantID, "ana@example.com")
			require.NoError(t, err)
			assert.Equal(t, tt.suppressed, suppressed)

			status, err := gate.Status(ctx, testutil.TestTenantID, "ana@example.com")
			require.NoError(t, err)
			assert.Equal(t, tt.suppression, status)

			contact, err := p.Contacts().GetByID(ctx, testutil.TestTenantID, "contact-1")
			require.NoError(t, err)
			assert.Equal(t, tt.contactStatus, contact.Status)
		})
	}
}

func TestGate_SuppressionIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate, _ := newGate(t)

	for _, eventType := range []models.DeliverabilityEventType{
		models.EventHardBounce, models.EventSoftBounce, models.EventDeliveryDelay, models.EventUnsubscribe,
	} {
		require.NoError(t, gate.Record(ctx, &models.DeliverabilityEvent{
			TenantID: testutil.TestTenantID,
			Email:    "ana@example.com",
			Type:     eventType,
		}))
	}

	status, err := gate.Status(ctx, testutil.TestTenantID, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.SuppressionBounced, status)
}

func TestGate_SuppressionIsTenantScoped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate, _ := newGate(t)

	require.NoError(t, gate.Record(ctx, &models.DeliverabilityEvent{
		TenantID: "tenant-2",
		Email:    "ana@example.com",
		Type:     models.EventSpamComplaint,
	}))

	suppressed, err := gate.IsSuppressed(ctx, testutil.TestTenantID, "ana@example.com")
	require.NoError(t, err)
	assert.False(t, suppressed)
}

func TestGate_Record_RejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event *models.DeliverabilityEvent
	}{
		{"missing tenant", &models.DeliverabilityEvent{Email: "a@x.com", Type: models.EventHardBounce}},
		{"bad email", &models.DeliverabilityEvent{TenantID: "t", Email: "nope", Type: models.EventHardBounce}},
		{"unknown type", &models.DeliverabilityEvent{TenantID: "t", Email: "a@x.com", Type: "opened"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate, _ := newGate(t)

			err := gate.Record(context.Background(), tt.event)
			assert.ErrorIs(t, err, deliverability.ErrInvalidEvent)
		})
	}
}

func TestGate_RedisCache(t *testing.T) {
	client := testutil.RedisClient(t)
	ctx := context.Background()

	gate, _ := newGate(t, deliverability.WithCache(client, time.Minute))

	suppressed, err := gate.IsSuppressed(ctx, testutil.TestTenantID, "ana@example.com")
	require.NoError(t, err)
	assert.False(t, suppressed)

	cached, err := client.Get(ctx, "mailflow:suppression:tenant-1:ana@example.com").Result()
	require.NoError(t, err)
	assert.Equal(t, "none", cached)

	ttl, err := client.TTL(ctx, "mailflow:suppression:tenant-1:ana@example.com").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// Recording through the gate invalidates the negative entry.
	require.NoError(t, gate.Record(ctx, &models.DeliverabilityEvent{
		TenantID: testutil.TestTenantID,
		Email:    "ana@example.com",
		Type:     models.EventHardBounce,
	}))

	suppressed, err = gate.IsSuppressed(ctx, testutil.TestTenantID, "ana@example.com")
	require.NoError(t, err)
	assert.True(t, suppressed)

	cached, err = client.Get(ctx, "mailflow:suppression:tenant-1:ana@example.com").Result()
	require.NoError(t, err)
	assert.Equal(t, "bounced", cached)

	// Positive entries are served from the cache without expiry.
	ttl, err = client.TTL(ctx, "mailflow:suppression:tenant-1:ana@example.com").Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)

	other := deliverability.NewGate(memory.NewPersistence(), testutil.Logger(), deliverability.WithCache(client, time.Minute))

	suppressed, err = other.IsSuppressed(ctx, testutil.TestTenantID, "ana@example.com")
	require.NoError(t, err)
	assert.True(t, suppressed)
}
