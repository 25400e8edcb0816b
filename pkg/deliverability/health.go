package deliverability

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dukex/mailflow/pkg/models"
)

// Rates are event counts relative to messages sent in the report window.
type Rates struct {
	HardBounce  float64 `json:"hard_bounce"`
	SoftBounce  float64 `json:"soft_bounce"`
	Complaint   float64 `json:"complaint"`
	Blocked     float64 `json:"blocked"`
	Unsubscribe float64 `json:"unsubscribe"`
}

// Report is a read-only health view over a tenant's deliverability events.
// It never gates sending.
type Report struct {
	TenantID        string                                   `json:"tenant_id"`
	Since           time.Time                                `json:"since"`
	Score           int                                      `json:"score"`
	Sent            int64                                    `json:"sent"`
	Counts          map[models.DeliverabilityEventType]int64 `json:"counts"`
	Rates           Rates                                    `json:"rates"`
	SpamWords       []string                                 `json:"spam_words,omitempty"`
	Recommendations []string                                 `json:"recommendations"`
}

// Score deduction per unit of rate, e.g. a 1% hard bounce rate costs 10 points.
var penalties = map[models.DeliverabilityEventType]float64{
	models.EventHardBounce:    1000,
	models.EventSpamComplaint: 10000,
	models.EventBlocked:       500,
	models.EventSoftBounce:    200,
	models.EventUnsubscribe:   100,
}

type threshold struct {
	rate    func(Rates) float64
	limit   float64
	message string
}

var thresholds = []threshold{
	{
		rate:    func(r Rates) float64 { return r.HardBounce },
		limit:   0.02,
		message: "Hard bounce rate is above 2%: remove invalid addresses and confirm new signups with double opt-in.",
	},
	{
		rate:    func(r Rates) float64 { return r.Complaint },
		limit:   0.001,
		message: "Spam complaint rate is above 0.1%: mail only engaged contacts and keep the unsubscribe link visible.",
	},
	{
		rate:    func(r Rates) float64 { return r.Blocked },
		limit:   0.01,
		message: "Messages are being blocked: check SPF, DKIM and DMARC for the sending domain.",
	},
	{
		rate:    func(r Rates) float64 { return r.SoftBounce },
		limit:   0.05,
		message: "Soft bounce rate is above 5%: slow down sending to affected mailbox providers.",
	},
	{
		rate:    func(r Rates) float64 { return r.Unsubscribe },
		limit:   0.005,
		message: "Unsubscribe rate is above 0.5%: review sending frequency and content relevance.",
	},
}

// HealthScore summarizes the tenant's events since the given time into a
// 0-100 score with recommendations. A non-empty subject is checked for spam
// trigger words.
func (g *Gate) HealthScore(ctx context.Context, tenantID string, since time.Time, subject string) (*Report, error) {
	counts, err := g.events.EventCounts(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count deliverability events: %w", err)
	}

	sent, err := g.queue.CountSent(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count sent emails: %w", err)
	}

	report := &Report{
		TenantID:        tenantID,
		Since:           since,
		Sent:            sent,
		Counts:          counts,
		SpamWords:       SpamWords(subject),
		Recommendations: []string{},
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	denominator := float64(max(sent, total))

	rate := func(t models.DeliverabilityEventType) float64 {
		if denominator == 0 {
			return 0
		}

		return float64(counts[t]) / denominator
	}

	report.Rates = Rates{
		HardBounce:  rate(models.EventHardBounce),
		SoftBounce:  rate(models.EventSoftBounce),
		Complaint:   rate(models.EventSpamComplaint),
		Blocked:     rate(models.EventBlocked),
		Unsubscribe: rate(models.EventUnsubscribe),
	}

	penalty := 0.0
	for eventType, weight := range penalties {
		penalty += rate(eventType) * weight
	}

	report.Score = int(math.Round(math.Max(0, 100-penalty)))

	for _, th := range thresholds {
		if th.rate(report.Rates) > th.limit {
			report.Recommendations = append(report.Recommendations, th.message)
		}
	}

	if len(report.SpamWords) > 0 {
		report.Recommendations = append(report.Recommendations,
			"Subject contains spam trigger words: "+strings.Join(report.SpamWords, ", ")+".")
	}

	return report, nil
}
