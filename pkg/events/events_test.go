package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source TriggerSource
		want   models.TriggerEvent
	}{
		{
			name:   "lead signup",
			source: LeadSignup{StoreID: "s1", Email: "a@x.com", Name: "Ana", Source: "landing"},
			want:   models.TriggerEvent{Type: models.TriggerLeadSignup, TenantID: "s1", Email: "a@x.com", Name: "Ana", Source: "landing"},
		},
		{
			name:   "purchase",
			source: ProductPurchase{StoreID: "s1", Email: "a@x.com", ProductID: "p1", OrderID: "o1", Amount: 49.9},
			want:   models.TriggerEvent{Type: models.TriggerProductPurchase, TenantID: "s1", Email: "a@x.com", ProductID: "p1", OrderID: "o1", Amount: 49.9},
		},
		{
			name:   "tag added",
			source: TagAdded{StoreID: "s1", Email: "a@x.com", Tag: "vip"},
			want:   models.TriggerEvent{Type: models.TriggerTagAdded, TenantID: "s1", Email: "a@x.com", Tag: "vip"},
		},
		{
			name:   "customer action",
			source: CustomerAction{StoreID: "s1", Email: "a@x.com", Action: "login"},
			want:   models.TriggerEvent{Type: models.TriggerCustomerAction, TenantID: "s1", Email: "a@x.com", Action: "login"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.source.TriggerEvent())
		})
	}
}

func TestExecutionFinished_TypeFollowsStatus(t *testing.T) {
	t.Parallel()

	eventType, ok := LifecycleEventType(models.ExecutionCancelled)
	require.True(t, ok)

	event := ExecutionFinished{BaseEvent: NewBaseEvent(eventType), Status: models.ExecutionCancelled}
	assert.Equal(t, ExecutionCancelledEvent, event.GetType())

	_, ok = LifecycleEventType(models.ExecutionPending)
	assert.False(t, ok)
}

func TestLeadSignup_WireFormat(t *testing.T) {
	t.Parallel()

	var event LeadSignup
	require.NoError(t, json.Unmarshal([]byte(`{"store_id":"s1","email":"a@x.com","product_id":"p9"}`), &event))
	assert.Equal(t, "p9", event.TriggerEvent().ProductID)
}
