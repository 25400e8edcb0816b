// Package log provides a development transport that logs messages instead
// of sending them.
package log

import (
	"context"
	"log/slog"

	"github.com/dukex/mailflow/pkg/transport"
)

type Transport struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Transport {
	return &Transport{logger: logger.With("module", "log_transport")}
}

// SendBatch logs every message and reports it delivered.
func (t *Transport) SendBatch(ctx context.Context, messages []transport.Message) ([]transport.Result, error) {
	results := make([]transport.Result, 0, len(messages))

	for _, m := range messages {
		t.logger.InfoContext(ctx, "Email sent",
			"id", m.ID,
			"tenant_id", m.TenantID,
			"to", m.To,
			"from", m.FromEmail,
			"subject", m.Subject)

		results = append(results, transport.Result{ID: m.ID, Success: true, ProviderID: "log-" + m.ID})
	}

	return results, nil
}
