package mocks

import (
	"context"
	"sync"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockEnqueuer is a mock implementation of protocol.Enqueuer.
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, email *models.QueuedEmail) (string, error) {
	args := m.Called(ctx, email)

	return args.String(0), args.Error(1)
}

// RecordingEnqueuer keeps every enqueued message in memory.
type RecordingEnqueuer struct {
	mu       sync.Mutex
	Messages []*models.QueuedEmail
	Err      error
}

func (r *RecordingEnqueuer) Enqueue(_ context.Context, email *models.QueuedEmail) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Err != nil {
		return "", r.Err
	}

	r.Messages = append(r.Messages, email)

	return email.ID, nil
}

// Sent returns a snapshot of the enqueued messages.
func (r *RecordingEnqueuer) Sent() []*models.QueuedEmail {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*models.QueuedEmail(nil), r.Messages...)
}
