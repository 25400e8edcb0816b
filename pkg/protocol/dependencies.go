package protocol

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
)

var ErrMissingDependency = errors.New("missing node dependency")

// Enqueuer accepts fully personalized messages for delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, email *models.QueuedEmail) (string, error)
}

// Unsubscriber builds per-recipient unsubscribe links and headers.
type Unsubscriber interface {
	Link(tenantID, email string) string
	Headers(tenantID, email string) map[string]string
}

// Dependencies contains the collaborators node handlers may use. Factories
// fail when a collaborator they need is missing.
type Dependencies struct {
	Logger      *slog.Logger
	Queue       Enqueuer
	Contacts    persistence.ContactRepository
	Templates   persistence.TemplateRepository
	Unsubscribe Unsubscriber
	HTTPClient  *http.Client
	// Rand drives split tests. Seed it for reproducible routing.
	Rand *rand.Rand
}
