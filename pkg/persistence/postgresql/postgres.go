// Package postgresql provides the PostgreSQL implementation of the action store.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/dukex/actiontrack/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements persistence.ActionStore for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	actionRepo    *ActionRepository
	stepRepo      *StepRepository
	referenceRepo *ReferenceRepository
}

var _ persistence.ActionStore = (*Persistence)(nil)

// NewPersistence creates a new PostgreSQL persistence layer and runs pending migrations.
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

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewPersistenceWithDB(logger, database), nil
}

// NewPersistenceWithDB wraps an already opened and migrated database.
func NewPersistenceWithDB(logger *slog.Logger, database *sql.DB) *Persistence {
	return &Persistence{
		db:            database,
		logger:        logger,
		actionRepo:    NewActionRepository(database, logger),
		stepRepo:      NewStepRepository(database, logger),
		referenceRepo: NewReferenceRepository(database),
	}
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
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

// ReferenceRepository exposes user and resource seeding.
func (p *Persistence) ReferenceRepository() *ReferenceRepository {
	return p.referenceRepo
}

func (p *Persistence) CreateAction(ctx context.Context, action models.NewAction) (*models.Action, error) {
	return p.actionRepo.Create(ctx, action)
}

func (p *Persistence) FindActionByCorrelationID(ctx context.Context, actionID string, actionType models.ActionType) (*models.Action, error) {
	return p.actionRepo.GetByCorrelationID(ctx, actionID, actionType)
}

func (p *Persistence) FindActionByID(ctx context.Context, id string) (*models.Action, error) {
	return p.actionRepo.GetByID(ctx, id)
}

func (p *Persistence) ListStaleActions(ctx context.Context, olderThan time.Time, limit int) ([]*models.Action, error) {
	return p.actionRepo.ListStale(ctx, olderThan, limit)
}

func (p *Persistence) ActionSteps(ctx context.Context, id string) ([]*models.ActionStep, error) {
	return p.stepRepo.GetByAction(ctx, id)
}

func (p *Persistence) FindStepByName(ctx context.Context, id string, stepName string) (*models.ActionStep, error) {
	return p.stepRepo.GetByName(ctx, id, stepName)
}

func (p *Persistence) FindStepByID(ctx context.Context, stepID string) (*models.ActionStep, error) {
	return p.stepRepo.GetByID(ctx, stepID)
}

func (p *Persistence) AppendLog(ctx context.Context, stepID string, line models.ActionLogLine) (*models.ActionLogLine, error) {
	return p.stepRepo.AppendLog(ctx, stepID, line)
}

func (p *Persistence) UpdateStepStatus(ctx context.Context, stepID string, from []models.StepStatus, to models.StepStatus) (bool, error) {
	return p.stepRepo.UpdateStatus(ctx, stepID, from, to)
}

func (p *Persistence) LoadUser(ctx context.Context, userID string) (*models.User, error) {
	return p.referenceRepo.GetUser(ctx, userID)
}

func (p *Persistence) LoadResource(ctx context.Context, resourceID string) (*models.Resource, error) {
	return p.referenceRepo.GetResource(ctx, resourceID)
}
