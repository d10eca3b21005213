// Package redis provides a Redis-backed action store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "actiontrack:"
	maxRetries = 10
)

// Persistence implements persistence.ActionStore on Redis. Actions, steps and
// references are JSON strings, logs are per-step lists and pending steps are
// kept in a sorted set scored by creation time.
type Persistence struct {
	client redis.UniversalClient
	logger *slog.Logger
	now    func() time.Time
}

var _ persistence.ActionStore = (*Persistence)(nil)

// NewPersistence connects to the Redis server described by url (redis:// or rediss://).
func NewPersistence(ctx context.Context, logger *slog.Logger, url string) (*Persistence, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(logger, client), nil
}

// NewPersistenceWithClient wraps an existing client.
func NewPersistenceWithClient(logger *slog.Logger, client redis.UniversalClient) *Persistence {
	return &Persistence{
		client: client,
		logger: logger.With("module", "redis_persistence"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func actionKey(id string) string { return keyPrefix + "action:" + id }

func actionStepsKey(id string) string { return keyPrefix + "action:" + id + ":steps" }

func stepNamesKey(id string) string { return keyPrefix + "action:" + id + ":step-names" }

func correlationKey(actionType models.ActionType, actionID string) string {
	return keyPrefix + "correlation:" + string(actionType) + ":" + actionID
}

func stepKey(stepID string) string { return keyPrefix + "step:" + stepID }

func stepLogsKey(stepID string) string { return keyPrefix + "step:" + stepID + ":logs" }

func userKey(id string) string { return keyPrefix + "user:" + id }

func resourceKey(id string) string { return keyPrefix + "resource:" + id }

func pendingStepsKey() string { return keyPrefix + "pending-steps" }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// storedStep is the step document; Owner is the internal id of the action.
type storedStep struct {
	models.ActionStep

	Owner string `json:"owner"`
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// SaveUser stores a user document. Used for seeding.
func (p *Persistence) SaveUser(ctx context.Context, user *models.User) error {
	return p.setJSON(ctx, userKey(user.ID), user)
}

// SaveResource stores a resource document. Used for seeding.
func (p *Persistence) SaveResource(ctx context.Context, resource *models.Resource) error {
	return p.setJSON(ctx, resourceKey(resource.ID), resource)
}

func (p *Persistence) LoadUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User

	err := p.getJSON(ctx, userKey(userID), &user)
	if err != nil {
		return nil, persistence.NewStoreError("LoadUser", "user", userID, notFoundAs(err, persistence.ErrUserNotFound))
	}

	return &user, nil
}

func (p *Persistence) LoadResource(ctx context.Context, resourceID string) (*models.Resource, error) {
	var resource models.Resource

	err := p.getJSON(ctx, resourceKey(resourceID), &resource)
	if err != nil {
		return nil, persistence.NewStoreError("LoadResource", "resource", resourceID, notFoundAs(err, persistence.ErrResourceNotFound))
	}

	return &resource, nil
}

func (p *Persistence) CreateAction(ctx context.Context, newAction models.NewAction) (*models.Action, error) {
	metadata, err := models.EncodeMetadata(newAction.Metadata)
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", "", err)
	}

	correlationID, err := uuid.NewV7()
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", "", err)
	}

	now := p.now()
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

	for _, template := range newAction.InitialSteps {
		if action.StepByName(template.Name) != nil {
			return nil, persistence.NewStoreError("CreateAction", "step", template.Name, fmt.Errorf("duplicate step name %q", template.Name))
		}

		action.Steps = append(action.Steps, &models.ActionStep{
			ID:        uuid.NewString(),
			ActionID:  action.ActionID,
			Name:      template.Name,
			Status:    template.Status,
			Logs:      []*models.ActionLogLine{},
			CreatedAt: now,
		})
	}

	header, err := json.Marshal(headerOf(action))
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", action.ID, err)
	}

	// References are checked under WATCH so a concurrent delete aborts the transaction.
	err = p.withRetry(ctx, func(tx *redis.Tx) error {
		counts, err := tx.Exists(ctx, userKey(action.UserID)).Result()
		if err != nil {
			return err
		}

		if counts == 0 {
			return persistence.NewStoreError("CreateAction", "user", action.UserID, persistence.ErrUserNotFound)
		}

		counts, err = tx.Exists(ctx, resourceKey(resourceID)).Result()
		if err != nil {
			return err
		}

		if counts == 0 {
			return persistence.NewStoreError("CreateAction", "resource", resourceID, persistence.ErrResourceNotFound)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, actionKey(action.ID), header, 0)
			pipe.Set(ctx, correlationKey(action.Type, action.ActionID), action.ID, 0)

			for _, step := range action.Steps {
				document, err := json.Marshal(storedStep{ActionStep: *step, Owner: action.ID})
				if err != nil {
					return err
				}

				pipe.Set(ctx, stepKey(step.ID), document, 0)
				pipe.RPush(ctx, actionStepsKey(action.ID), step.ID)
				pipe.HSet(ctx, stepNamesKey(action.ID), step.Name, step.ID)

				if !step.Status.IsTerminal() {
					pipe.ZAdd(ctx, pendingStepsKey(), redis.Z{Score: float64(step.CreatedAt.UnixNano()), Member: step.ID})
				}
			}

			return nil
		})

		return err
	}, userKey(action.UserID), resourceKey(resourceID))
	if err != nil {
		var storeErr *persistence.StoreError
		if errors.As(err, &storeErr) {
			return nil, storeErr
		}

		return nil, persistence.NewStoreError("CreateAction", "action", action.ID, err)
	}

	return action, nil
}

func (p *Persistence) FindActionByCorrelationID(ctx context.Context, actionID string, actionType models.ActionType) (*models.Action, error) {
	id, err := p.client.Get(ctx, correlationKey(actionType, actionID)).Result()
	if err != nil {
		return nil, persistence.NewStoreError("FindActionByCorrelationID", "action", actionID, notFoundAs(err, persistence.ErrActionNotFound))
	}

	action, err := p.loadAction(ctx, id)
	if err != nil {
		return nil, persistence.NewStoreError("FindActionByCorrelationID", "action", actionID, err)
	}

	return action, nil
}

func (p *Persistence) FindActionByID(ctx context.Context, id string) (*models.Action, error) {
	action, err := p.loadAction(ctx, id)
	if err != nil {
		return nil, persistence.NewStoreError("FindActionByID", "action", id, err)
	}

	return action, nil
}

func (p *Persistence) ActionSteps(ctx context.Context, id string) ([]*models.ActionStep, error) {
	_, err := p.loadAction(ctx, id)
	if err != nil {
		return nil, persistence.NewStoreError("ActionSteps", "action", id, err)
	}

	stepIDs, err := p.client.LRange(ctx, actionStepsKey(id), 0, -1).Result()
	if err != nil {
		return nil, persistence.NewStoreError("ActionSteps", "action", id, err)
	}

	steps := make([]*models.ActionStep, 0, len(stepIDs))

	for _, stepID := range stepIDs {
		step, err := p.loadStep(ctx, p.client, stepID)
		if err != nil {
			return nil, persistence.NewStoreError("ActionSteps", "step", stepID, err)
		}

		logs, err := p.loadLogs(ctx, stepID)
		if err != nil {
			return nil, persistence.NewStoreError("ActionSteps", "step", stepID, err)
		}

		step.Logs = logs
		steps = append(steps, &step.ActionStep)
	}

	return steps, nil
}

func (p *Persistence) FindStepByName(ctx context.Context, id string, stepName string) (*models.ActionStep, error) {
	stepID, err := p.client.HGet(ctx, stepNamesKey(id), stepName).Result()
	if err != nil {
		return nil, persistence.NewStoreError("FindStepByName", "step", stepName, notFoundAs(err, persistence.ErrStepNotFound))
	}

	step, err := p.loadStep(ctx, p.client, stepID)
	if err != nil {
		return nil, persistence.NewStoreError("FindStepByName", "step", stepName, err)
	}

	return &step.ActionStep, nil
}

func (p *Persistence) FindStepByID(ctx context.Context, stepID string) (*models.ActionStep, error) {
	step, err := p.loadStep(ctx, p.client, stepID)
	if err != nil {
		return nil, persistence.NewStoreError("FindStepByID", "step", stepID, err)
	}

	return &step.ActionStep, nil
}

func (p *Persistence) AppendLog(ctx context.Context, stepID string, line models.ActionLogLine) (*models.ActionLogLine, error) {
	if line.CreatedAt.IsZero() {
		line.CreatedAt = p.now()
	}

	line.StepID = stepID

	err := p.withRetry(ctx, func(tx *redis.Tx) error {
		counts, err := tx.Exists(ctx, stepKey(stepID)).Result()
		if err != nil {
			return err
		}

		if counts == 0 {
			return persistence.ErrStepNotFound
		}

		last, err := tx.LIndex(ctx, stepLogsKey(stepID), -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if last != "" {
			var previous models.ActionLogLine
			if err := json.Unmarshal([]byte(last), &previous); err == nil && line.CreatedAt.Before(previous.CreatedAt) {
				line.CreatedAt = previous.CreatedAt
			}
		}

		length, err := tx.LLen(ctx, stepLogsKey(stepID)).Result()
		if err != nil {
			return err
		}

		line.ID = strconv.FormatInt(length+1, 10)

		document, err := json.Marshal(line)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, stepLogsKey(stepID), document)

			return nil
		})

		return err
	}, stepKey(stepID), stepLogsKey(stepID))
	if err != nil {
		return nil, persistence.NewStoreError("AppendLog", "step", stepID, err)
	}

	return &line, nil
}

func (p *Persistence) UpdateStepStatus(ctx context.Context, stepID string, from []models.StepStatus, to models.StepStatus) (bool, error) {
	updated := false

	err := p.withRetry(ctx, func(tx *redis.Tx) error {
		updated = false

		step, err := p.loadStep(ctx, tx, stepID)
		if err != nil {
			return err
		}

		if !slices.Contains(from, step.Status) {
			return nil
		}

		step.Status = to

		if to.IsTerminal() {
			now := p.now()
			step.CompletedAt = &now
		}

		document, err := json.Marshal(step)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, stepKey(stepID), document, 0)

			if to.IsTerminal() {
				pipe.ZRem(ctx, pendingStepsKey(), stepID)
			}

			return nil
		})
		if err != nil {
			return err
		}

		updated = true

		return nil
	}, stepKey(stepID))
	if err != nil {
		return false, persistence.NewStoreError("UpdateStepStatus", "step", stepID, err)
	}

	return updated, nil
}

func (p *Persistence) ListStaleActions(ctx context.Context, olderThan time.Time, limit int) ([]*models.Action, error) {
	stepIDs, err := p.client.ZRangeByScore(ctx, pendingStepsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(olderThan.UnixNano(), 10),
	}).Result()
	if err != nil {
		return nil, persistence.NewStoreError("ListStaleActions", "action", "", err)
	}

	seen := make(map[string]bool)
	stale := make([]*models.Action, 0)

	for _, stepID := range stepIDs {
		step, err := p.loadStep(ctx, p.client, stepID)
		if err != nil {
			p.logger.WarnContext(ctx, "Skipping pending step that cannot be loaded", "step_id", stepID, "error", err)

			continue
		}

		if seen[step.Owner] {
			continue
		}

		seen[step.Owner] = true

		action, err := p.loadAction(ctx, step.Owner)
		if err != nil {
			return nil, persistence.NewStoreError("ListStaleActions", "action", step.Owner, err)
		}

		stale = append(stale, action)
	}

	slices.SortFunc(stale, func(a, b *models.Action) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	return stale, nil
}

// withRetry runs fn under WATCH on keys, retrying when a watched key changed.
func (p *Persistence) withRetry(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxRetries {
		err := p.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return fmt.Errorf("transaction aborted after %d attempts: %w", maxRetries, redis.TxFailedErr)
}

func (p *Persistence) loadAction(ctx context.Context, id string) (*models.Action, error) {
	var action models.Action

	err := p.getJSON(ctx, actionKey(id), &action)
	if err != nil {
		return nil, notFoundAs(err, persistence.ErrActionNotFound)
	}

	return &action, nil
}

func (p *Persistence) loadStep(ctx context.Context, client getter, stepID string) (*storedStep, error) {
	body, err := client.Get(ctx, stepKey(stepID)).Bytes()
	if err != nil {
		return nil, notFoundAs(err, persistence.ErrStepNotFound)
	}

	var step storedStep

	err = json.Unmarshal(body, &step)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal step %s: %w", stepID, err)
	}

	return &step, nil
}

func (p *Persistence) loadLogs(ctx context.Context, stepID string) ([]*models.ActionLogLine, error) {
	documents, err := p.client.LRange(ctx, stepLogsKey(stepID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	logs := make([]*models.ActionLogLine, 0, len(documents))

	for _, document := range documents {
		var line models.ActionLogLine

		err := json.Unmarshal([]byte(document), &line)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal log line: %w", err)
		}

		logs = append(logs, &line)
	}

	return logs, nil
}

func (p *Persistence) setJSON(ctx context.Context, key string, value any) error {
	document, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return p.client.Set(ctx, key, document, 0).Err()
}

func (p *Persistence) getJSON(ctx context.Context, key string, target any) error {
	body, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return nil
}

func notFoundAs(err, notFound error) error {
	if errors.Is(err, redis.Nil) {
		return notFound
	}

	return err
}

func headerOf(action *models.Action) *models.Action {
	header := *action
	header.Steps = nil

	return &header
}
