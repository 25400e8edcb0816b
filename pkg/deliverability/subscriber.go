package deliverability

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/mailflow/pkg/eventbus"
	"github.com/dukex/mailflow/pkg/events"
)

// Subscribe records provider feedback published on the bus.
func (g *Gate) Subscribe(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.DeliverabilityReportedEvent, g.handleBusEvent)
}

func (g *Gate) handleBusEvent(ctx context.Context, event any) error {
	reported, ok := event.(*events.DeliverabilityReported)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", event, events.DeliverabilityReportedEvent)
	}

	err := g.Record(ctx, &reported.Event)
	if errors.Is(err, ErrInvalidEvent) {
		// Redelivery cannot fix a malformed report.
		g.logger.WarnContext(ctx, "Dropping invalid deliverability event", "error", err)

		return nil
	}

	return err
}
