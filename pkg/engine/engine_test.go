package engine_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/mailflow/pkg/clock"
	"github.com/dukex/mailflow/pkg/compliance"
	"github.com/dukex/mailflow/pkg/deliverability"
	"github.com/dukex/mailflow/pkg/engine"
	"github.com/dukex/mailflow/pkg/events"
	"github.com/dukex/mailflow/pkg/mocks"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence/memory"
	"github.com/dukex/mailflow/pkg/protocol"
	"github.com/dukex/mailflow/pkg/registry"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	p         *memory.Persistence
	clock     *clock.Manual
	queue     *mocks.RecordingEnqueuer
	publisher *mocks.RecordingPublisher
	gate      *deliverability.Gate
	engine    *engine.Engine
}

func newFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()

	ctx := context.Background()
	logger := testutil.Logger()

	p := memory.NewPersistence()
	require.NoError(t, p.Tenants().Save(ctx, testutil.TestTenant()))

	clk := clock.NewManual(testutil.FixedNow)
	queue := &mocks.RecordingEnqueuer{}
	publisher := &mocks.RecordingPublisher{}

	signer, err := compliance.NewSigner("secret", "https://mail.example.com/unsubscribe")
	require.NoError(t, err)

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterDefaultNodes())

	handlers, err := reg.Handlers(protocol.Dependencies{
		Logger:      logger,
		Queue:       queue,
		Contacts:    p.Contacts(),
		Templates:   p.Templates(),
		Unsubscribe: signer,
		HTTPClient:  http.DefaultClient,
		Rand:        rand.New(rand.NewPCG(1, 2)),
	})
	require.NoError(t, err)

	gate := deliverability.NewGate(p, logger, deliverability.WithClock(clk))

	opts = append([]engine.Option{
		engine.WithClock(clk),
		engine.WithPublisher(publisher),
		engine.WithLogger(logger),
	}, opts...)

	return &fixture{
		p:         p,
		clock:     clk,
		queue:     queue,
		publisher: publisher,
		gate:      gate,
		engine:    engine.New(p, handlers, gate, opts...),
	}
}

// enroll saves the workflow and creates a pending execution at nodeID.
func (f *fixture) enroll(t *testing.T, workflow *models.Workflow, nodeID string) string {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, f.p.Workflows().Save(ctx, workflow))

	execution := &models.Execution{
		ID:             "exec-1",
		WorkflowID:     workflow.ID,
		TenantID:       workflow.TenantID,
		RecipientEmail: "lead@example.com",
		Status:         models.ExecutionPending,
		CurrentNodeID:  nodeID,
		ScheduledFor:   models.EpochMillis(f.clock.Now()),
		ExecutionData:  map[string]any{"trigger_type": string(workflow.Trigger.Type), "name": "Lea Lima"},
		CreatedAt:      f.clock.Now(),
	}

	created, err := f.p.Executions().CreateIfNotActive(ctx, execution)
	require.NoError(t, err)
	require.True(t, created)

	return execution.ID
}

// tick claims every due execution and runs it, like one scheduler tick.
func (f *fixture) tick(t *testing.T) int {
	t.Helper()

	ctx := context.Background()

	claimed, err := f.p.Executions().ClaimDue(ctx, f.clock.Now(), 100)
	require.NoError(t, err)

	for _, execution := range claimed {
		require.NoError(t, f.engine.Run(ctx, execution))
	}

	return len(claimed)
}

func (f *fixture) execution(t *testing.T, id string) *models.Execution {
	t.Helper()

	execution, err := f.p.Executions().GetByID(context.Background(), id)
	require.NoError(t, err)

	return execution
}

func subjects(messages []*models.QueuedEmail) []string {
	result := make([]string, 0, len(messages))
	for _, m := range messages {
		result = append(result, m.Subject)
	}

	return result
}

func TestEngine_WelcomeSeries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.enroll(t, testutil.WelcomeSeries(), "welcome")

	assert.Equal(t, 1, f.tick(t))
	assert.Equal(t, []string{"Welcome"}, subjects(f.queue.Sent()))

	execution := f.execution(t, id)
	assert.Equal(t, models.ExecutionPending, execution.Status)
	assert.Equal(t, "tip", execution.CurrentNodeID)
	assert.Equal(t, models.EpochMillis(testutil.FixedNow.Add(time.Hour)), execution.ScheduledFor)

	// Nothing is due before the delay elapses.
	f.clock.Advance(59 * time.Minute)
	assert.Equal(t, 0, f.tick(t))

	f.clock.Advance(time.Minute)
	assert.Equal(t, 1, f.tick(t))
	assert.Equal(t, []string{"Welcome", "Day 1 tip"}, subjects(f.queue.Sent()))

	execution = f.execution(t, id)
	assert.Equal(t, models.ExecutionCompleted, execution.Status)
	assert.Equal(t, 4, execution.StepCount)
	require.NotNil(t, execution.CompletedAt)

	sent := f.queue.Sent()
	assert.Equal(t, "<p>Hi Lea</p>", sent[0].HTMLContent)
	assert.Equal(t, "hello@acme.test", sent[0].FromEmail)
	assert.Equal(t, models.SourceWorkflow, sent[0].Source)
	assert.Equal(t, id, sent[0].ExecutionID)
	assert.Equal(t, compliance.OneClickValue, sent[0].Headers[compliance.HeaderListUnsubscribePost])

	published := f.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.ExecutionCompletedEvent, published[0].GetType())
}

func TestEngine_Step_DelayCorrectness(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	workflow := testutil.CreateTestWorkflow([]*models.Node{
		testutil.DelayNode("wait", 2, models.DelayDays),
		testutil.StopNode("stop"),
	})
	id := f.enroll(t, workflow, "wait")

	claimed, err := f.p.Executions().ClaimDue(context.Background(), f.clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, f.engine.Step(context.Background(), claimed[0]))

	execution := f.execution(t, id)
	assert.Equal(t, models.ExecutionPending, execution.Status)
	assert.Equal(t, "stop", execution.CurrentNodeID)
	assert.Equal(t, testutil.FixedNow.UnixMilli()+172800000, execution.ScheduledFor)
}

func TestEngine_Step_EvaluatesOneNode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.enroll(t, testutil.WelcomeSeries(), "welcome")

	claimed, err := f.p.Executions().ClaimDue(context.Background(), f.clock.Now(), 10)
	require.NoError(t, err)
	require.NoError(t, f.engine.Step(context.Background(), claimed[0]))

	execution := f.execution(t, id)
	assert.Equal(t, models.ExecutionPending, execution.Status)
	assert.Equal(t, "wait", execution.CurrentNodeID)
	assert.Equal(t, testutil.FixedNow.UnixMilli(), execution.ScheduledFor)
	assert.Len(t, f.queue.Sent(), 1)
}

func TestEngine_SuppressionHaltsMidFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	id := f.enroll(t, testutil.WelcomeSeries(), "welcome")

	f.tick(t)
	require.Len(t, f.queue.Sent(), 1)

	require.NoError(t, f.gate.Record(ctx, &models.DeliverabilityEvent{
		TenantID: testutil.TestTenantID,
		Email:    "lead@example.com",
		Type:     models.EventSpamComplaint,
	}))

	f.clock.Advance(time.Hour)
	assert.Equal(t, 1, f.tick(t))

	execution := f.execution(t, id)
	assert.Equal(t, models.ExecutionCancelled, execution.Status)
	assert.Equal(t, "tip", execution.CurrentNodeID)
	assert.Len(t, f.queue.Sent(), 1)

	published := f.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.ExecutionCancelledEvent, published[0].GetType())

	finished, ok := published[0].(events.ExecutionFinished)
	require.True(t, ok)
	assert.Equal(t, "recipient suppressed", finished.Reason)
}

func TestEngine_GraphTermination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		node *models.Node
	}{
		{"email", testutil.EmailNode("last", "Bye", "<p>bye</p>")},
		{"action", models.NewNode("last", &models.ActionData{ActionType: models.ActionAddTag, Value: "done"})},
		{"condition without matching edge", models.NewNode("last", &models.ConditionData{ConditionType: models.ConditionHasTag, Value: "vip"})},
		{"webhook", models.NewNode("last", &models.WebhookData{WebhookURL: "http://127.0.0.1:1/hook"})},
		{"delay", testutil.DelayNode("last", 1, models.DelayMinutes)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			id := f.enroll(t, testutil.CreateTestWorkflow([]*models.Node{tt.node}), "last")

			f.tick(t)

			execution := f.execution(t, id)
			assert.Equal(t, models.ExecutionCompleted, execution.Status)
			assert.NotNil(t, execution.CompletedAt)
		})
	}
}

func TestEngine_TerminalNodes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	workflow := testutil.CreateTestWorkflow([]*models.Node{
		models.NewNode("goal", &models.GoalData{GoalName: "purchased"}),
		testutil.EmailNode("never", "Never", "<p>never</p>"),
	})
	id := f.enroll(t, workflow, "goal")

	f.tick(t)

	execution := f.execution(t, id)
	assert.Equal(t, models.ExecutionCompleted, execution.Status)
	assert.Empty(t, f.queue.Sent())

	finished, ok := f.publisher.Published()[0].(events.ExecutionFinished)
	require.True(t, ok)
	assert.Equal(t, "goal reached: purchased", finished.Reason)
}

func TestEngine_StepLimitBoundsCycles(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tag := models.NewNode("tag", &models.ActionData{ActionType: models.ActionAddTag, Value: "loop"})
	untag := models.NewNode("untag", &models.ActionData{ActionType: models.ActionRemoveTag, Value: "loop"})
	workflow := testutil.CreateTestWorkflow([]*models.Node{tag, untag}, func(w *models.Workflow) {
		w.MaxSteps = 5
		w.Edges = append(w.Edges, &models.Edge{ID: "back", Source: "untag", Target: "tag"})
	})
	require.True(t, workflow.Graph().HasCycle())

	id := f.enroll(t, workflow, "tag")

	f.tick(t)

	execution := f.execution(t, id)
	assert.Equal(t, models.ExecutionFailed, execution.Status)
	assert.Equal(t, 6, execution.StepCount)
	assert.Contains(t, execution.ErrorMessage, engine.ErrStepLimitExceeded.Error())
}

func TestEngine_DefaultStepLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t, engine.WithDefaultMaxSteps(3))
	workflow := testutil.CreateTestWorkflow([]*models.Node{
		models.NewNode("tag", &models.ActionData{ActionType: models.ActionAddTag, Value: "loop"}),
	}, func(w *models.Workflow) {
		w.Edges = append(w.Edges, &models.Edge{ID: "self", Source: "tag", Target: "tag"})
	})
	id := f.enroll(t, workflow, "tag")

	f.tick(t)

	execution := f.execution(t, id)
	assert.Equal(t, models.ExecutionFailed, execution.Status)
	assert.Equal(t, 4, execution.StepCount)
}

func TestEngine_Cancellation(t *testing.T) {
	t.Parallel()

	t.Run("inactive workflow", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		id := f.enroll(t, testutil.CreateTestWorkflow([]*models.Node{
			testutil.EmailNode("hello", "Hello", "<p>hi</p>"),
		}, testutil.Inactive()), "hello")

		f.tick(t)

		assert.Equal(t, models.ExecutionCancelled, f.execution(t, id).Status)
		assert.Empty(t, f.queue.Sent())
	})

	t.Run("deactivated mid-flight", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		f := newFixture(t)
		workflow := testutil.WelcomeSeries()
		id := f.enroll(t, workflow, "welcome")

		f.tick(t)
		require.NoError(t, f.p.Workflows().SetActive(ctx, workflow.ID, false))

		f.clock.Advance(time.Hour)
		f.tick(t)

		assert.Equal(t, models.ExecutionCancelled, f.execution(t, id).Status)
		assert.Len(t, f.queue.Sent(), 1)
	})

	t.Run("missing workflow", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		f := newFixture(t)

		_, err := f.p.Executions().CreateIfNotActive(ctx, &models.Execution{
			ID:             "orphan",
			WorkflowID:     "deleted",
			TenantID:       testutil.TestTenantID,
			RecipientEmail: "lead@example.com",
			Status:         models.ExecutionPending,
			CurrentNodeID:  "welcome",
			ScheduledFor:   models.EpochMillis(f.clock.Now()),
		})
		require.NoError(t, err)

		f.tick(t)

		assert.Equal(t, models.ExecutionCancelled, f.execution(t, "orphan").Status)
	})
}

func TestEngine_HandlerErrorFailsExecution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	workflow := testutil.CreateTestWorkflow([]*models.Node{
		testutil.EmailNode("hello", "Hello", "<p>hi</p>"),
	}, func(w *models.Workflow) {
		w.TenantID = "tenant-without-sender"
	})
	id := f.enroll(t, workflow, "hello")

	f.tick(t)

	execution := f.execution(t, id)
	assert.Equal(t, models.ExecutionFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "no sender address")
	assert.Empty(t, f.queue.Sent())

	published := f.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.ExecutionFailedEvent, published[0].GetType())
}

func TestEngine_EmptyContentSkipsSend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.enroll(t, testutil.CreateTestWorkflow([]*models.Node{
		testutil.EmailNode("empty", "", ""),
		testutil.StopNode("stop"),
	}), "empty")

	f.tick(t)

	assert.Equal(t, models.ExecutionCompleted, f.execution(t, id).Status)
	assert.Empty(t, f.queue.Sent())
}

func TestEngine_PublishFailureIsLogged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.publisher.Err = errors.New("broker down")

	id := f.enroll(t, testutil.CreateTestWorkflow([]*models.Node{testutil.StopNode("stop")}), "stop")

	f.tick(t)

	assert.Equal(t, models.ExecutionCompleted, f.execution(t, id).Status)
}

func TestEngine_TerminalExecutionIsNotRewritten(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	id := f.enroll(t, testutil.WelcomeSeries(), "welcome")

	claimed, err := f.p.Executions().ClaimDue(ctx, f.clock.Now(), 10)
	require.NoError(t, err)

	// Another worker finished the execution after this one claimed it.
	stored := f.execution(t, id)
	stored.Status = models.ExecutionCancelled
	require.NoError(t, f.p.Executions().Update(ctx, stored))

	require.NoError(t, f.engine.Run(ctx, claimed[0]))
	assert.Equal(t, models.ExecutionCancelled, claimed[0].Status)
	assert.Equal(t, models.ExecutionCancelled, f.execution(t, id).Status)
}

func TestEngine_RunRenewsLeaseAcrossChain(t *testing.T) {
	t.Parallel()

	const lease = 15 * time.Minute

	f := newFixture(t)

	var resets atomic.Int64

	// Each call takes ten minutes; a concurrent tick looks for stale executions.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.clock.Advance(10 * time.Minute)

		n, err := f.p.Executions().ResetStale(r.Context(), f.clock.Now().Add(-lease))
		assert.NoError(t, err)

		resets.Add(n)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	nodes := []*models.Node{
		models.NewNode("hook-1", &models.WebhookData{WebhookURL: server.URL}),
		models.NewNode("hook-2", &models.WebhookData{WebhookURL: server.URL}),
		models.NewNode("hook-3", &models.WebhookData{WebhookURL: server.URL}),
		testutil.StopNode("stop"),
	}
	id := f.enroll(t, testutil.CreateTestWorkflow(nodes), "hook-1")

	assert.Equal(t, 1, f.tick(t))

	assert.Zero(t, resets.Load())

	execution := f.execution(t, id)
	assert.Equal(t, models.ExecutionCompleted, execution.Status)
	assert.Equal(t, 4, execution.StepCount)
}
