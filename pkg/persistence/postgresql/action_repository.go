package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const userActionColumns = `
			ua.id
		  , ua.action_id
		  , ua.user_action_type
		  , ua.metadata
		  , ua.user_id
		  , ua.resource_id
		  , ua.created_at
`

// ActionRepository handles action-related database operations.
type ActionRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewActionRepository creates a new action repository.
func NewActionRepository(db *sql.DB, logger *slog.Logger) *ActionRepository {
	return &ActionRepository{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts the inner action, the user action and every initial step in a single transaction.
func (r *ActionRepository) Create(ctx context.Context, newAction models.NewAction) (*models.Action, error) {
	metadata, err := models.EncodeMetadata(newAction.Metadata)
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", "", err)
	}

	correlationID, err := uuid.NewV7()
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", "", err)
	}

	now := r.now()
	resourceID := newAction.ResourceID
	action := &models.Action{
		ID:         uuid.NewString(),
		ActionID:   correlationID.String(),
		Type:       newAction.Type,
		Metadata:   metadata,
		UserID:     newAction.UserID,
		ResourceID: &resourceID,
		CreatedAt:  now,
		Steps:      make([]*models.ActionStep, 0, len(newAction.InitialSteps)),
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", "", fmt.Errorf("failed to begin transaction: %w", err))
	}

	err = r.insertAction(ctx, transaction, action, newAction.InitialSteps)
	if err != nil {
		_ = transaction.Rollback()

		return nil, err
	}

	err = transaction.Commit()
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", action.ID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return action, nil
}

func (r *ActionRepository) insertAction(ctx context.Context, transaction *sql.Tx, action *models.Action, steps []models.StepTemplate) error {
	err := r.requireReference(ctx, transaction, "SELECT 1 FROM users WHERE id = $1", action.UserID, persistence.ErrUserNotFound)
	if err != nil {
		return persistence.NewStoreError("CreateAction", "user", action.UserID, err)
	}

	err = r.requireReference(ctx, transaction, "SELECT 1 FROM resources WHERE id = $1", *action.ResourceID, persistence.ErrResourceNotFound)
	if err != nil {
		return persistence.NewStoreError("CreateAction", "resource", *action.ResourceID, err)
	}

	_, err = transaction.ExecContext(ctx, "INSERT INTO actions (id, created_at) VALUES ($1, $2)", action.ActionID, action.CreatedAt)
	if err != nil {
		return persistence.NewStoreError("CreateAction", "action", action.ActionID, fmt.Errorf("failed to insert action: %w", err))
	}

	_, err = transaction.ExecContext(ctx, `
		INSERT INTO user_actions (id, action_id, user_action_type, metadata, user_id, resource_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		action.ID,
		action.ActionID,
		action.Type,
		[]byte(action.Metadata),
		action.UserID,
		action.ResourceID,
		action.CreatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("CreateAction", "action", action.ID, fmt.Errorf("failed to insert user action: %w", err))
	}

	for position, template := range steps {
		step := &models.ActionStep{
			ID:        uuid.NewString(),
			ActionID:  action.ActionID,
			Name:      template.Name,
			Status:    template.Status,
			Logs:      []*models.ActionLogLine{},
			CreatedAt: action.CreatedAt,
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO action_steps (id, action_id, name, status, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, step.ID, step.ActionID, step.Name, step.Status, position, step.CreatedAt)
		if err != nil {
			return persistence.NewStoreError("CreateAction", "step", template.Name, fmt.Errorf("failed to insert step: %w", err))
		}

		action.Steps = append(action.Steps, step)
	}

	return nil
}

func (r *ActionRepository) requireReference(ctx context.Context, transaction *sql.Tx, query, id string, notFound error) error {
	var exists int

	err := transaction.QueryRowContext(ctx, query, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}

	return err
}

// GetByCorrelationID returns the action carrying the given correlation id, scoped to actionType.
func (r *ActionRepository) GetByCorrelationID(ctx context.Context, actionID string, actionType models.ActionType) (*models.Action, error) {
	query := `SELECT ` + userActionColumns + `
		FROM user_actions ua
		WHERE ua.action_id = $1 AND ua.user_action_type = $2
		LIMIT 1
	`

	action, err := r.scanAction(r.db.QueryRowContext(ctx, query, actionID, actionType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("FindActionByCorrelationID", "action", actionID, persistence.ErrActionNotFound)
		}

		return nil, persistence.NewStoreError("FindActionByCorrelationID", "action", actionID, err)
	}

	return action, nil
}

// GetByID returns the action with the given internal id.
func (r *ActionRepository) GetByID(ctx context.Context, id string) (*models.Action, error) {
	query := `SELECT ` + userActionColumns + `
		FROM user_actions ua
		WHERE ua.id = $1
	`

	action, err := r.scanAction(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("FindActionByID", "action", id, persistence.ErrActionNotFound)
		}

		return nil, persistence.NewStoreError("FindActionByID", "action", id, err)
	}

	return action, nil
}

// ListStale returns actions owning a non-terminal step created before olderThan, oldest first.
// A limit of zero or less returns every match.
func (r *ActionRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*models.Action, error) {
	query := `SELECT ` + userActionColumns + `
		FROM user_actions ua
		WHERE EXISTS (
			SELECT 1 FROM action_steps s
			WHERE s.action_id = ua.action_id AND s.status = ANY($1) AND s.created_at < $2
		)
		ORDER BY ua.created_at
		LIMIT $3
	`

	// LIMIT NULL is no limit
	rowLimit := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(statusStrings(models.NonTerminalStepStatuses)), olderThan, rowLimit)
	if err != nil {
		return nil, persistence.NewStoreError("ListStaleActions", "action", "", fmt.Errorf("failed to query stale actions: %w", err))
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	actions := make([]*models.Action, 0)

	for rows.Next() {
		action, err := r.scanAction(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ListStaleActions", "action", "", fmt.Errorf("failed to scan action: %w", err))
		}

		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ListStaleActions", "action", "", fmt.Errorf("error iterating actions: %w", err))
	}

	return actions, nil
}

func (r *ActionRepository) scanAction(scanner interface {
	Scan(dest ...any) error
}) (*models.Action, error) {
	var (
		action     models.Action
		metadata   []byte
		resourceID sql.NullString
	)

	err := scanner.Scan(
		&action.ID,
		&action.ActionID,
		&action.Type,
		&metadata,
		&action.UserID,
		&resourceID,
		&action.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	action.Metadata = metadata

	if resourceID.Valid {
		action.ResourceID = &resourceID.String
	}

	return &action, nil
}

func statusStrings(statuses []models.StepStatus) []string {
	values := make([]string, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}

	return values
}
