package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/dukex/mailflow/pkg/persistence/memory"
	"github.com/dukex/mailflow/pkg/persistence/postgresql"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

// NewPersistence selects the store by URL scheme: memory:// keeps
// everything in process, postgres:// and postgresql:// connect and migrate.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, _, _ := strings.Cut(databaseURL, "://")

	switch provider {
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence, state is lost on exit")

		return memory.NewPersistence(), nil
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: database %q", ErrUnsupportedProvider, provider)
	}
}
