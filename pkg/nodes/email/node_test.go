package email

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/mailflow/pkg/compliance"
	"github.com/dukex/mailflow/pkg/mocks"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence/memory"
	"github.com/dukex/mailflow/pkg/protocol"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Handler, *mocks.RecordingEnqueuer, *memory.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	queue := &mocks.RecordingEnqueuer{}

	signer, err := compliance.NewSigner("secret", "https://mail.example.com/unsubscribe")
	require.NoError(t, err)

	h, err := NewHandler(protocol.Dependencies{
		Logger:      testutil.Logger(),
		Queue:       queue,
		Contacts:    store.Contacts(),
		Templates:   store.Templates(),
		Unsubscribe: signer,
	})
	require.NoError(t, err)

	return h, queue, store
}

func TestNewHandler_RequiresQueue(t *testing.T) {
	t.Parallel()

	_, err := NewHandler(protocol.Dependencies{})
	assert.ErrorIs(t, err, protocol.ErrMissingDependency)
}

func TestHandler_EnqueuesPersonalizedEmail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h, queue, store := setup(t)

	contact := testutil.TestContact()
	require.NoError(t, store.Contacts().Save(ctx, contact))

	workflow := testutil.CreateTestWorkflow([]*models.Node{
		testutil.EmailNode("welcome", "Welcome {{firstName}}", `<p>Hi {{name}}, <a href="{{unsubscribeLink}}">unsubscribe</a></p>`),
		testutil.StopNode("stop"),
	})
	env := testutil.NewEnv(workflow, "welcome", testutil.WithContact(contact))

	outcome, err := h.Handle(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, protocol.Advance("stop"), outcome)

	sent := queue.Sent()
	require.Len(t, sent, 1)

	msg := sent[0]
	assert.Equal(t, "Welcome Ana", msg.Subject)
	assert.Contains(t, msg.HTMLContent, "Hi Ana Silva")
	assert.Contains(t, msg.HTMLContent, "https://mail.example.com/unsubscribe?")
	assert.NotContains(t, msg.HTMLContent, "{{")
	assert.Equal(t, "ana@example.com", msg.ToEmail)
	assert.Equal(t, "hello@acme.test", msg.FromEmail)
	assert.Equal(t, "Acme", msg.FromName)
	assert.Equal(t, models.SourceWorkflow, msg.Source)
	assert.Equal(t, env.Execution.ID, msg.ExecutionID)
	assert.Equal(t, compliance.OneClickValue, msg.Headers[compliance.HeaderListUnsubscribePost])
	assert.NotEmpty(t, msg.Headers[compliance.HeaderListUnsubscribe])

	stored, err := store.Contacts().GetByID(ctx, contact.TenantID, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.EmailsSent)
}

func TestHandler_TemplateContent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h, queue, store := setup(t)

	require.NoError(t, store.Templates().Save(ctx, &models.EmailTemplate{
		ID:          "tpl-1",
		TenantID:    testutil.TestTenantID,
		Subject:     "From template",
		HTMLContent: "<p>Template body for {{email}}</p>",
	}))

	node := models.NewNode("mail", &models.EmailData{TemplateID: "tpl-1", Subject: "Inline subject"})
	workflow := testutil.CreateTestWorkflow([]*models.Node{node})

	outcome, err := h.Handle(ctx, testutil.NewEnv(workflow, "mail"))
	require.NoError(t, err)
	assert.True(t, outcome.IsTerminal())

	sent := queue.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Inline subject", sent[0].Subject)
	assert.Equal(t, "<p>Template body for lead@example.com</p>", sent[0].HTMLContent)
}

func TestHandler_EmptyContentSkipsSend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data *models.EmailData
	}{
		{"no subject", &models.EmailData{HTMLContent: "<p>body</p>"}},
		{"no body", &models.EmailData{Subject: "Hello"}},
		{"missing template", &models.EmailData{TemplateID: "missing"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, queue, _ := setup(t)

			workflow := testutil.CreateTestWorkflow([]*models.Node{
				models.NewNode("mail", tt.data),
				testutil.StopNode("stop"),
			})

			outcome, err := h.Handle(context.Background(), testutil.NewEnv(workflow, "mail"))
			require.NoError(t, err)
			assert.Equal(t, "stop", outcome.Next)
			assert.Empty(t, queue.Sent())
		})
	}
}

func TestHandler_Errors(t *testing.T) {
	t.Parallel()

	workflow := testutil.CreateTestWorkflow([]*models.Node{
		testutil.EmailNode("mail", "Hi", "<p>Hi</p>"),
	})

	t.Run("no sender", func(t *testing.T) {
		t.Parallel()

		h, _, _ := setup(t)
		env := testutil.NewEnv(workflow, "mail", func(env *protocol.Env) { env.Tenant = nil })

		_, err := h.Handle(context.Background(), env)
		assert.ErrorIs(t, err, ErrMissingSender)
	})

	t.Run("queue failure", func(t *testing.T) {
		t.Parallel()

		h, queue, _ := setup(t)
		queue.Err = errors.New("queue down")

		_, err := h.Handle(context.Background(), testutil.NewEnv(workflow, "mail"))
		assert.ErrorContains(t, err, "queue down")
	})
}
