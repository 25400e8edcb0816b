package deliverability_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/mailflow/pkg/deliverability"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_HealthScore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gate, p := newGate(t)
	since := testutil.FixedNow.Add(-24 * time.Hour)

	for i := range 100 {
		sentAt := testutil.FixedNow.Add(-time.Hour)
		require.NoError(t, p.Queue().Enqueue(ctx, &models.QueuedEmail{
			ID:       fmt.Sprintf("q%d", i),
			TenantID: testutil.TestTenantID,
			Status:   models.QueueSent,
			SentAt:   &sentAt,
		}))
	}

	for i, eventType := range []models.DeliverabilityEventType{
		models.EventHardBounce, models.EventHardBounce, models.EventHardBounce, models.EventSoftBounce,
	} {
		require.NoError(t, gate.Record(ctx, &models.DeliverabilityEvent{
			TenantID:   testutil.TestTenantID,
			Email:      fmt.Sprintf("r%d@example.com", i),
			Type:       eventType,
			OccurredAt: testutil.FixedNow.Add(-time.Hour),
		}))
	}

	report, err := gate.HealthScore(ctx, testutil.TestTenantID, since, "FREE gift, act now!")
	require.NoError(t, err)

	assert.Equal(t, int64(100), report.Sent)
	assert.Equal(t, int64(3), report.Counts[models.EventHardBounce])
	assert.InDelta(t, 0.03, report.Rates.HardBounce, 1e-9)
	assert.InDelta(t, 0.01, report.Rates.SoftBounce, 1e-9)
	// 100 - 3%*1000 - 1%*200
	assert.Equal(t, 68, report.Score)
	assert.Equal(t, []string{"free", "act now"}, report.SpamWords)
	require.Len(t, report.Recommendations, 2)
	assert.Contains(t, report.Recommendations[0], "Hard bounce rate")
	assert.Contains(t, report.Recommendations[1], "spam trigger words")
}

func TestGate_HealthScore_NoActivity(t *testing.T) {
	t.Parallel()

	gate, _ := newGate(t)

	report, err := gate.HealthScore(context.Background(), testutil.TestTenantID, testutil.FixedNow.Add(-time.Hour), "")
	require.NoError(t, err)

	assert.Equal(t, 100, report.Score)
	assert.Empty(t, report.Recommendations)
	assert.Empty(t, report.SpamWords)
}

func TestSpamWords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		subject string
		want    []string
	}{
		{"Your weekly digest", nil},
		{"Risk free trial, click here", []string{"risk free", "click here"}},
		{"Freedom of choice", nil},
		{"URGENT: urgent reply needed", []string{"urgent"}},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, deliverability.SpamWords(tt.subject))
		})
	}
}
