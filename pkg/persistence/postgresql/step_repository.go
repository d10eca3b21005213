package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/lib/pq"
)

const stepColumns = `
			s.id
		  , s.action_id
		  , s.name
		  , s.status
		  , s.created_at
		  , s.completed_at
`

// StepRepository handles step and log line database operations.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// GetByName returns the step called stepName that belongs to the user action id.
func (r *StepRepository) GetByName(ctx context.Context, id, stepName string) (*models.ActionStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM action_steps s
		JOIN user_actions ua ON ua.action_id = s.action_id
		WHERE ua.id = $1 AND s.name = $2
	`

	step, err := r.scanStep(r.db.QueryRowContext(ctx, query, id, stepName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("FindStepByName", "step", stepName, persistence.ErrStepNotFound)
		}

		return nil, persistence.NewStoreError("FindStepByName", "step", stepName, err)
	}

	return step, nil
}

// GetByID returns a step by its id.
func (r *StepRepository) GetByID(ctx context.Context, stepID string) (*models.ActionStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM action_steps s
		WHERE s.id = $1
	`

	step, err := r.scanStep(r.db.QueryRowContext(ctx, query, stepID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("FindStepByID", "step", stepID, persistence.ErrStepNotFound)
		}

		return nil, persistence.NewStoreError("FindStepByID", "step", stepID, err)
	}

	return step, nil
}

// GetByAction returns the ordered steps of a user action with their logs.
func (r *StepRepository) GetByAction(ctx context.Context, id string) ([]*models.ActionStep, error) {
	query := `SELECT ` + stepColumns + `
		FROM action_steps s
		JOIN user_actions ua ON ua.action_id = s.action_id
		WHERE ua.id = $1
		ORDER BY s.position
	`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, persistence.NewStoreError("ActionSteps", "action", id, fmt.Errorf("failed to query steps: %w", err))
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	steps := make([]*models.ActionStep, 0)
	byID := make(map[string]*models.ActionStep)
	stepIDs := make([]string, 0)

	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, persistence.NewStoreError("ActionSteps", "action", id, fmt.Errorf("failed to scan step: %w", err))
		}

		step.Logs = []*models.ActionLogLine{}
		steps = append(steps, step)
		byID[step.ID] = step
		stepIDs = append(stepIDs, step.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStoreError("ActionSteps", "action", id, fmt.Errorf("error iterating steps: %w", err))
	}

	if len(stepIDs) == 0 {
		return steps, nil
	}

	err = r.loadLogs(ctx, stepIDs, byID)
	if err != nil {
		return nil, persistence.NewStoreError("ActionSteps", "action", id, err)
	}

	return steps, nil
}

func (r *StepRepository) loadLogs(ctx context.Context, stepIDs []string, byID map[string]*models.ActionStep) error {
	query := `
		SELECT id, step_id, level, message, meta, created_at
		FROM action_logs
		WHERE step_id = ANY($1)
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(stepIDs))
	if err != nil {
		return fmt.Errorf("failed to query logs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		var (
			line models.ActionLogLine
			meta []byte
		)

		err := rows.Scan(&line.ID, &line.StepID, &line.Level, &line.Message, &meta, &line.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan log: %w", err)
		}

		if len(meta) > 0 {
			err = json.Unmarshal(meta, &line.Meta)
			if err != nil {
				return fmt.Errorf("failed to unmarshal log meta: %w", err)
			}
		}

		if step, ok := byID[line.StepID]; ok {
			step.Logs = append(step.Logs, &line)
		}
	}

	return rows.Err()
}

// AppendLog inserts a log line. The stored timestamp is clamped to the latest
// line of the same step so ordering by time and by insertion agree.
func (r *StepRepository) AppendLog(ctx context.Context, stepID string, line models.ActionLogLine) (*models.ActionLogLine, error) {
	if line.CreatedAt.IsZero() {
		line.CreatedAt = r.now()
	}

	meta := []byte("{}")

	if line.Meta != nil {
		encoded, err := json.Marshal(line.Meta)
		if err != nil {
			return nil, persistence.NewStoreError("AppendLog", "step", stepID, fmt.Errorf("failed to marshal log meta: %w", err))
		}

		meta = encoded
	}

	query := `
		INSERT INTO action_logs (step_id, level, message, meta, created_at)
		SELECT s.id, $2, $3, $4, GREATEST(
			$5::timestamptz,
			COALESCE((SELECT MAX(l.created_at) FROM action_logs l WHERE l.step_id = s.id), $5::timestamptz)
		)
		FROM action_steps s
		WHERE s.id = $1
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, stepID, line.Level, line.Message, meta, line.CreatedAt).Scan(&line.ID, &line.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStoreError("AppendLog", "step", stepID, persistence.ErrStepNotFound)
		}

		return nil, persistence.NewStoreError("AppendLog", "step", stepID, err)
	}

	line.StepID = stepID

	return &line, nil
}

// UpdateStatus sets the step status when the current status is one of from.
func (r *StepRepository) UpdateStatus(ctx context.Context, stepID string, from []models.StepStatus, to models.StepStatus) (bool, error) {
	var completedAt *time.Time

	if to.IsTerminal() {
		now := r.now()
		completedAt = &now
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE action_steps
		SET status = $2, completed_at = COALESCE($4, completed_at)
		WHERE id = $1 AND status = ANY($3)
	`, stepID, to, pq.Array(statusStrings(from)), completedAt)
	if err != nil {
		return false, persistence.NewStoreError("UpdateStepStatus", "step", stepID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewStoreError("UpdateStepStatus", "step", stepID, err)
	}

	return affected > 0, nil
}

func (r *StepRepository) scanStep(scanner interface {
	Scan(dest ...any) error
}) (*models.ActionStep, error) {
	var (
		step        models.ActionStep
		completedAt sql.NullTime
	)

	err := scanner.Scan(
		&step.ID,
		&step.ActionID,
		&step.Name,
		&step.Status,
		&step.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		step.CompletedAt = &completedAt.Time
	}

	return &step, nil
}
