package action

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/mailflow/pkg/mocks"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence/memory"
	"github.com/dukex/mailflow/pkg/protocol"
	"github.com/dukex/mailflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func tagWorkflow(actionType models.ActionType) *models.Workflow {
	return testutil.CreateTestWorkflow([]*models.Node{
		models.NewNode("tag", &models.ActionData{ActionType: actionType, Value: "customer"}),
		testutil.StopNode("stop"),
	})
}

func TestHandler_AddAndRemoveTag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()
	contact := testutil.TestContact()
	require.NoError(t, store.Contacts().Save(ctx, contact))

	h, err := NewHandler(protocol.Dependencies{Contacts: store.Contacts()})
	require.NoError(t, err)

	outcome, err := h.Handle(ctx, testutil.NewEnv(tagWorkflow(models.ActionAddTag), "tag", testutil.WithContact(contact)))
	require.NoError(t, err)
	assert.Equal(t, "stop", outcome.Next)

	stored, err := store.Contacts().GetByID(ctx, contact.TenantID, contact.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasTag("customer"))

	_, err = h.Handle(ctx, testutil.NewEnv(tagWorkflow(models.ActionRemoveTag), "tag", testutil.WithContact(contact)))
	require.NoError(t, err)

	stored, err = store.Contacts().GetByID(ctx, contact.TenantID, contact.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasTag("customer"))
}

func TestHandler_AdvancesOnFailure(t *testing.T) {
	t.Parallel()

	contacts := &mocks.MockContactRepository{}
	contacts.On("AddTag", mock.Anything, testutil.TestTenantID, "contact-1", "customer").Return(errors.New("db down"))

	h, err := NewHandler(protocol.Dependencies{Contacts: contacts})
	require.NoError(t, err)

	outcome, err := h.Handle(context.Background(), testutil.NewEnv(tagWorkflow(models.ActionAddTag), "tag", testutil.WithContact(testutil.TestContact())))
	require.NoError(t, err)
	assert.Equal(t, "stop", outcome.Next)
	contacts.AssertExpectations(t)
}

func TestHandler_NoContact(t *testing.T) {
	t.Parallel()

	contacts := &mocks.MockContactRepository{}

	h, err := NewHandler(protocol.Dependencies{Contacts: contacts})
	require.NoError(t, err)

	outcome, err := h.Handle(context.Background(), testutil.NewEnv(tagWorkflow(models.ActionAddTag), "tag"))
	require.NoError(t, err)
	assert.Equal(t, "stop", outcome.Next)
	contacts.AssertNotCalled(t, "AddTag", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
