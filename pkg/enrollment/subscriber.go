package enrollment

import (
	"context"
	"fmt"

	"github.com/dukex/mailflow/pkg/eventbus"
	"github.com/dukex/mailflow/pkg/events"
)

// TriggerEventTypes are the bus events that can enroll recipients.
var TriggerEventTypes = []events.EventType{
	events.LeadSignupEvent,
	events.ProductPurchaseEvent,
	events.TagAddedEvent,
	events.CustomerActionEvent,
}

// Subscribe registers the dispatcher for every trigger event type.
func (d *Dispatcher) Subscribe(subscriber eventbus.EventSubscriber) error {
	for _, eventType := range TriggerEventTypes {
		err := subscriber.Handle(eventType, d.handleBusEvent)
		if err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return nil
}

func (d *Dispatcher) handleBusEvent(ctx context.Context, event any) error {
	source, ok := event.(events.TriggerSource)
	if !ok {
		d.logger.WarnContext(ctx, "Ignoring event that cannot enroll", "event", fmt.Sprintf("%T", event))

		return nil
	}

	result, err := d.HandleEvent(ctx, source.TriggerEvent())
	if err != nil {
		return err
	}

	d.logger.DebugContext(ctx, "Trigger event handled",
		"enrolled", result.Enrolled,
		"skipped", result.Skipped,
		"errors", len(result.Errors))

	return nil
}
