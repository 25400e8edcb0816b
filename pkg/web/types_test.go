package web_test

import (
	"testing"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestDeliverabilityEventRequest_Event(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 3, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))

	event := web.DeliverabilityEventRequest{
		TenantID:   "tenant-1",
		Email:      "Ana@Example.com",
		Type:       "spam_complaint",
		Reason:     "feedback loop",
		OccurredAt: &at,
	}.Event()

	assert.Equal(t, models.EventSpamComplaint, event.Type)
	assert.Equal(t, "feedback loop", event.Reason)
	assert.Equal(t, time.UTC, event.OccurredAt.Location())
	assert.True(t, at.Equal(event.OccurredAt))

	assert.True(t, web.DeliverabilityEventRequest{Type: "blocked"}.Event().OccurredAt.IsZero())
}

func TestRequestValidation(t *testing.T) {
	t.Parallel()

	validate := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name  string
		req   any
		valid bool
	}{
		{"enroll", web.EnrollRequest{ContactID: "c1"}, true},
		{"enroll without contact", web.EnrollRequest{}, false},
		{"bulk", web.BulkEnrollRequest{ContactIDs: []string{"c1", "c2"}}, true},
		{"bulk with blank id", web.BulkEnrollRequest{ContactIDs: []string{"c1", ""}}, false},
		{"bulk empty", web.BulkEnrollRequest{ContactIDs: []string{}}, false},
		{"unsubscribe", web.UnsubscribeRequest{Email: "a@b.co", Tenant: "t", Token: "abcdef01"}, true},
		{"unsubscribe bad token", web.UnsubscribeRequest{Email: "a@b.co", Tenant: "t", Token: "xyz"}, false},
		{"unsubscribe without tenant", web.UnsubscribeRequest{Email: "a@b.co", Token: "ab"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validate.Struct(tt.req)
			assert.Equal(t, tt.valid, err == nil, "%v", err)
		})
	}
}
