package registry

import (
	"github.com/dukex/mailflow/pkg/nodes/action"
	"github.com/dukex/mailflow/pkg/nodes/condition"
	"github.com/dukex/mailflow/pkg/nodes/delay"
	"github.com/dukex/mailflow/pkg/nodes/email"
	"github.com/dukex/mailflow/pkg/nodes/notify"
	"github.com/dukex/mailflow/pkg/nodes/split"
	"github.com/dukex/mailflow/pkg/nodes/terminal"
	"github.com/dukex/mailflow/pkg/nodes/trigger"
	"github.com/dukex/mailflow/pkg/nodes/webhook"
	"github.com/dukex/mailflow/pkg/protocol"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() error {
	for _, factory := range []protocol.NodeFactory{
		trigger.NewFactory(),
		email.NewFactory(),
		delay.NewFactory(),
		condition.NewFactory(),
		action.NewFactory(),
		webhook.NewFactory(),
		split.NewFactory(),
		notify.NewFactory(),
		terminal.NewGoalFactory(),
		terminal.NewStopFactory(),
	} {
		err := r.RegisterNode(factory)
		if err != nil {
			return err
		}
	}

	return nil
}
