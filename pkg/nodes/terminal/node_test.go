package terminal

import (
	"context"
	"testing"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlers_Complete(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow([]*models.Node{
		models.NewNode("goal", &models.GoalData{GoalName: "purchased"}),
		testutil.StopNode("stop"),
	})

	outcome, err := NewGoalHandler().Handle(context.Background(), testutil.NewEnv(workflow, "goal"))
	require.NoError(t, err)
	assert.True(t, outcome.Complete)
	assert.Equal(t, "goal reached: purchased", outcome.Reason)

	outcome, err = NewStopHandler().Handle(context.Background(), testutil.NewEnv(workflow, "stop"))
	require.NoError(t, err)
	assert.True(t, outcome.Complete)
	assert.Equal(t, "stopped", outcome.Reason)
}
