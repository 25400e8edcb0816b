// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/dukex/mailflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	workflowRepo       *WorkflowRepository
	executionRepo      *ExecutionRepository
	queueRepo          *QueueRepository
	deliverabilityRepo *DeliverabilityRepository
	contactRepo        *ContactRepository
	tenantRepo         *TenantRepository
	templateRepo       *TemplateRepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence connects to PostgreSQL and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:                 database,
		logger:             logger,
		workflowRepo:       NewWorkflowRepository(database, logger),
		executionRepo:      NewExecutionRepository(database, logger),
		queueRepo:          NewQueueRepository(database, logger),
		deliverabilityRepo: NewDeliverabilityRepository(database),
		contactRepo:        NewContactRepository(database),
		tenantRepo:         NewTenantRepository(database),
		templateRepo:       NewTemplateRepository(database),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

func (p *Persistence) Workflows() persistence.WorkflowRepository { return p.workflowRepo }

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executionRepo }

func (p *Persistence) Queue() persistence.QueueRepository { return p.queueRepo }

func (p *Persistence) Deliverability() persistence.DeliverabilityRepository {
	return p.deliverabilityRepo
}

func (p *Persistence) Contacts() persistence.ContactRepository { return p.contactRepo }

func (p *Persistence) Tenants() persistence.TenantRepository { return p.tenantRepo }

func (p *Persistence) Templates() persistence.TemplateRepository { return p.templateRepo }

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
