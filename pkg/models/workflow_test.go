package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain(nodes ...*Node) []*Edge {
	var edges []*Edge
	for i := 1; i < len(nodes); i++ {
		edges = append(edges, &Edge{ID: nodes[i-1].ID + "-" + nodes[i].ID, Source: nodes[i-1].ID, Target: nodes[i].ID})
	}

	return edges
}

func validWorkflow() *Workflow {
	nodes := []*Node{
		NewNode("t", &TriggerData{}),
		NewNode("welcome", &EmailData{Subject: "Welcome", HTMLContent: "<p>hi</p>"}),
		NewNode("wait", &DelayData{Value: 2, Unit: DelayDays}),
		NewNode("stop", &StopData{}),
	}

	return &Workflow{
		ID:       "wf-1",
		TenantID: "tenant-1",
		Name:     "Welcome",
		IsActive: true,
		Trigger:  Trigger{Type: TriggerLeadSignup},
		Nodes:    nodes,
		Edges:    chain(nodes...),
	}
}

func TestWorkflow_Validate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(w *Workflow)
		err    error
	}{
		{name: "valid", mutate: func(*Workflow) {}},
		{
			name:   "no trigger",
			mutate: func(w *Workflow) { w.Nodes = w.Nodes[1:]; w.Edges = w.Edges[1:] },
			err:    ErrNoTriggerNode,
		},
		{
			name:   "two triggers",
			mutate: func(w *Workflow) { w.Nodes = append(w.Nodes, NewNode("t2", &TriggerData{})) },
			err:    ErrMultipleTriggers,
		},
		{
			name:   "unreachable node",
			mutate: func(w *Workflow) { w.Nodes = append(w.Nodes, NewNode("orphan", &GoalData{})) },
			err:    ErrUnreachableNode,
		},
		{
			name:   "dangling edge",
			mutate: func(w *Workflow) { w.Edges = append(w.Edges, &Edge{ID: "x", Source: "stop", Target: "missing"}) },
			err:    ErrDanglingEdge,
		},
		{
			name:   "edge into trigger",
			mutate: func(w *Workflow) { w.Edges = append(w.Edges, &Edge{ID: "x", Source: "stop", Target: "t"}) },
			err:    ErrEdgeIntoTrigger,
		},
		{
			name:   "duplicate node id",
			mutate: func(w *Workflow) { w.Nodes = append(w.Nodes, NewNode("stop", &StopData{})) },
			err:    ErrDuplicateNodeID,
		},
		{
			name:   "zero delay",
			mutate: func(w *Workflow) { w.Nodes[2].Data = &DelayData{Value: 0, Unit: DelayDays} },
			err:    ErrInvalidNodeData,
		},
		{
			name:   "mismatched payload",
			mutate: func(w *Workflow) { w.Nodes[2].Data = &StopData{} },
			err:    ErrInvalidNodeData,
		},
		{
			name:   "bad date_time schedule",
			mutate: func(w *Workflow) { w.Trigger = Trigger{Type: TriggerDateTime, Config: TriggerConfig{Schedule: "not a cron"}} },
			err:    ErrInvalidTrigger,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := validWorkflow()
			tc.mutate(w)

			err := w.Validate()
			if tc.err == nil {
				assert.NoError(t, err)

				return
			}

			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestWorkflow_StructValidation(t *testing.T) {
	t.Parallel()

	validate := validator.New(validator.WithRequiredStructEnabled())

	assert.NoError(t, validate.Struct(validWorkflow()))

	w := validWorkflow()
	w.TenantID = ""
	assert.Error(t, validate.Struct(w))
}

func TestNode_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	t.Run("decodes variant by type", func(t *testing.T) {
		t.Parallel()

		var n Node

		err := json.Unmarshal([]byte(`{"id":"d","type":"delay","position":{"x":1,"y":2},"data":{"value":2,"unit":"days"}}`), &n)
		require.NoError(t, err)

		require.NotNil(t, n.Delay())
		assert.Equal(t, 48*time.Hour, n.Delay().Duration())
		assert.Equal(t, int64(172800000), n.Delay().Duration().Milliseconds())
		assert.Nil(t, n.Email())
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		t.Parallel()

		var n Node

		err := json.Unmarshal([]byte(`{"id":"x","type":"sms","data":{}}`), &n)
		assert.ErrorIs(t, err, ErrUnknownNodeType)
	})

	t.Run("trigger without data", func(t *testing.T) {
		t.Parallel()

		var n Node

		require.NoError(t, json.Unmarshal([]byte(`{"id":"t","type":"trigger"}`), &n))
		assert.NoError(t, n.Validate())
	})

	t.Run("round trips a workflow", func(t *testing.T) {
		t.Parallel()

		b, err := json.Marshal(validWorkflow())
		require.NoError(t, err)

		var w Workflow
		require.NoError(t, json.Unmarshal(b, &w))
		require.NoError(t, w.Validate())
		assert.Equal(t, "Welcome", w.Nodes[1].Email().Subject)
	})
}

func TestGraph_Routing(t *testing.T) {
	t.Parallel()

	nodes := []*Node{
		NewNode("t", &TriggerData{}),
		NewNode("cond", &ConditionData{ConditionType: ConditionOpenedEmail}),
		NewNode("yes", &GoalData{}),
		NewNode("no", &StopData{}),
		NewNode("fallback", &StopData{}),
	}
	edges := []*Edge{
		{ID: "1", Source: "t", Target: "cond"},
		{ID: "2", Source: "cond", Target: "yes", SourceHandle: "Yes"},
		{ID: "3", Source: "cond", Target: "no", SourceHandle: "false"},
		{ID: "4", Source: "cond", Target: "fallback"},
	}

	g := NewGraph(nodes, edges)
	require.NoError(t, g.Validate())

	entry, err := g.EntryNode()
	require.NoError(t, err)
	assert.Equal(t, "cond", entry.ID)

	assert.Equal(t, "yes", g.NextByHandle("cond", "yes", "true"))
	assert.Equal(t, "no", g.NextByHandle("cond", "no", "false"))
	assert.Equal(t, "fallback", g.DefaultNext("cond"))
	assert.Empty(t, g.Next("yes"))
	assert.False(t, g.HasCycle())
}

func TestGraph_HasCycle(t *testing.T) {
	t.Parallel()

	nodes := []*Node{
		NewNode("t", &TriggerData{}),
		NewNode("mail", &EmailData{Subject: "Nudge", HTMLContent: "x"}),
		NewNode("wait", &DelayData{Value: 7, Unit: DelayDays}),
	}
	edges := append(chain(nodes...), &Edge{ID: "loop", Source: "wait", Target: "mail"})

	g := NewGraph(nodes, edges)
	require.NoError(t, g.Validate())
	assert.True(t, g.HasCycle())
}

func TestTrigger_Matches(t *testing.T) {
	t.Parallel()

	purchase := Trigger{Type: TriggerProductPurchase, Config: TriggerConfig{ProductID: "course-1"}}
	anyPurchase := Trigger{Type: TriggerProductPurchase}

	assert.True(t, purchase.Matches(TriggerEvent{Type: TriggerProductPurchase, ProductID: "course-1"}))
	assert.False(t, purchase.Matches(TriggerEvent{Type: TriggerProductPurchase, ProductID: "course-2"}))
	assert.True(t, anyPurchase.Matches(TriggerEvent{Type: TriggerProductPurchase, ProductID: "course-2"}))
	assert.False(t, anyPurchase.Matches(TriggerEvent{Type: TriggerLeadSignup}))
}

func TestTriggerEvent_ExecutionData(t *testing.T) {
	t.Parallel()

	data := TriggerEvent{
		Type:      TriggerProductPurchase,
		ProductID: "course-1",
		Amount:    49.5,
		Data:      map[string]any{"trigger_type": "ignored", "campaign": "spring"},
	}.ExecutionData()

	assert.Equal(t, "product_purchase", data["trigger_type"])
	assert.Equal(t, "course-1", data["product_id"])
	assert.InDelta(t, 49.5, data["amount"], 0.001)
	assert.Equal(t, "spring", data["campaign"])
	assert.NotContains(t, data, "order_id")
}

func TestTrigger_StartAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		trigger Trigger
		want    time.Time
	}{
		{"immediate", Trigger{Type: TriggerLeadSignup}, now},
		{
			"time delay",
			Trigger{Type: TriggerTimeDelay, Config: TriggerConfig{DelayValue: 2, DelayUnit: DelayDays}},
			now.Add(48 * time.Hour),
		},
		{
			"next schedule fire",
			Trigger{Type: TriggerDateTime, Config: TriggerConfig{Schedule: "0 8 * * *"}},
			time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC),
		},
		{"bad schedule", Trigger{Type: TriggerDateTime, Config: TriggerConfig{Schedule: "nope"}}, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.trigger.StartAt(now))
		})
	}
}
