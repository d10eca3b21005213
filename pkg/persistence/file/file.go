// Package file provides a file-based action store for local development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	lockFileName   = ".lock"
	lockRetryDelay = 5 * time.Millisecond
)

// ErrLockNotAcquired is returned when the store lock could not be taken.
var ErrLockNotAcquired = errors.New("store lock not acquired")

// Persistence implements persistence.ActionStore on the file system. Each
// action is one JSON document holding its steps and their logs.
//
// Mutations hold an exclusive lock on <root>/.lock, so several processes may
// share one root. Documents are replaced by rename, so reads take no file lock.
type Persistence struct {
	root     string
	mu       sync.RWMutex
	fileLock *flock.Flock
	now      func() time.Time
}

var _ persistence.ActionStore = (*Persistence)(nil)

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	root = strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:     root,
		fileLock: flock.New(filepath.Join(root, lockFileName)),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close releases the store lock if it is still held.
func (fp *Persistence) Close(_ context.Context) error {
	return fp.fileLock.Close()
}

// HealthCheck creates the root directory when missing and verifies it is a directory.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(fp.root, 0750)
	if err != nil {
		return fmt.Errorf("failed to create store root: %w", err)
	}

	return nil
}

// lock serialises a read-modify-write within this process and across every
// process sharing the root.
func (fp *Persistence) lock(ctx context.Context) (func(), error) {
	fp.mu.Lock()

	err := os.MkdirAll(fp.root, 0750)
	if err != nil {
		fp.mu.Unlock()

		return nil, fmt.Errorf("failed to create store root: %w", err)
	}

	locked, err := fp.fileLock.TryLockContext(ctx, lockRetryDelay)
	if err == nil && !locked {
		err = ErrLockNotAcquired
	}

	if err != nil {
		fp.mu.Unlock()

		return nil, fmt.Errorf("failed to lock store %s: %w", fp.root, err)
	}

	return func() {
		_ = fp.fileLock.Unlock()

		fp.mu.Unlock()
	}, nil
}

// SaveUser stores a user document. Used for seeding.
func (fp *Persistence) SaveUser(ctx context.Context, user *models.User) error {
	unlock, err := fp.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return fp.writeDocument("users", user.ID, user)
}

// SaveResource stores a resource document. Used for seeding.
func (fp *Persistence) SaveResource(ctx context.Context, resource *models.Resource) error {
	unlock, err := fp.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return fp.writeDocument("resources", resource.ID, resource)
}

func (fp *Persistence) LoadUser(_ context.Context, userID string) (*models.User, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var user models.User

	err := fp.readDocument("users", userID, &user)
	if err != nil {
		return nil, persistence.NewStoreError("LoadUser", "user", userID, notFoundAs(err, persistence.ErrUserNotFound))
	}

	return &user, nil
}

func (fp *Persistence) LoadResource(_ context.Context, resourceID string) (*models.Resource, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var resource models.Resource

	err := fp.readDocument("resources", resourceID, &resource)
	if err != nil {
		return nil, persistence.NewStoreError("LoadResource", "resource", resourceID, notFoundAs(err, persistence.ErrResourceNotFound))
	}

	return &resource, nil
}

func (fp *Persistence) CreateAction(ctx context.Context, newAction models.NewAction) (*models.Action, error) {
	metadata, err := models.EncodeMetadata(newAction.Metadata)
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", "", err)
	}

	correlationID, err := uuid.NewV7()
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", "", err)
	}

	unlock, err := fp.lock(ctx)
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", "", err)
	}
	defer unlock()

	err = fp.readDocument("users", newAction.UserID, &models.User{})
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "user", newAction.UserID, notFoundAs(err, persistence.ErrUserNotFound))
	}

	err = fp.readDocument("resources", newAction.ResourceID, &models.Resource{})
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "resource", newAction.ResourceID, notFoundAs(err, persistence.ErrResourceNotFound))
	}

	now := fp.now()
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

	err = fp.writeDocument("actions", action.ID, action)
	if err != nil {
		return nil, persistence.NewStoreError("CreateAction", "action", action.ID, err)
	}

	return action, nil
}

func (fp *Persistence) FindActionByCorrelationID(_ context.Context, actionID string, actionType models.ActionType) (*models.Action, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	actions, err := fp.listActions()
	if err != nil {
		return nil, persistence.NewStoreError("FindActionByCorrelationID", "action", actionID, err)
	}

	for _, action := range actions {
		if action.ActionID == actionID && action.Type == actionType {
			return header(action), nil
		}
	}

	return nil, persistence.NewStoreError("FindActionByCorrelationID", "action", actionID, persistence.ErrActionNotFound)
}

func (fp *Persistence) FindActionByID(_ context.Context, id string) (*models.Action, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	action, err := fp.readAction(id)
	if err != nil {
		return nil, persistence.NewStoreError("FindActionByID", "action", id, err)
	}

	return header(action), nil
}

func (fp *Persistence) ActionSteps(_ context.Context, id string) ([]*models.ActionStep, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	action, err := fp.readAction(id)
	if err != nil {
		return nil, persistence.NewStoreError("ActionSteps", "action", id, err)
	}

	return action.Steps, nil
}

func (fp *Persistence) FindStepByName(_ context.Context, id string, stepName string) (*models.ActionStep, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	action, err := fp.readAction(id)
	if err != nil {
		if errors.Is(err, persistence.ErrActionNotFound) {
			err = persistence.ErrStepNotFound
		}

		return nil, persistence.NewStoreError("FindStepByName", "step", stepName, err)
	}

	step := action.StepByName(stepName)
	if step == nil {
		return nil, persistence.NewStoreError("FindStepByName", "step", stepName, persistence.ErrStepNotFound)
	}

	step.Logs = nil

	return step, nil
}

func (fp *Persistence) FindStepByID(_ context.Context, stepID string) (*models.ActionStep, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	_, step, err := fp.findStep(stepID)
	if err != nil {
		return nil, persistence.NewStoreError("FindStepByID", "step", stepID, err)
	}

	step.Logs = nil

	return step, nil
}

func (fp *Persistence) AppendLog(ctx context.Context, stepID string, line models.ActionLogLine) (*models.ActionLogLine, error) {
	unlock, err := fp.lock(ctx)
	if err != nil {
		return nil, persistence.NewStoreError("AppendLog", "step", stepID, err)
	}
	defer unlock()

	action, step, err := fp.findStep(stepID)
	if err != nil {
		return nil, persistence.NewStoreError("AppendLog", "step", stepID, err)
	}

	if line.CreatedAt.IsZero() {
		line.CreatedAt = fp.now()
	}

	if last := len(step.Logs); last > 0 && line.CreatedAt.Before(step.Logs[last-1].CreatedAt) {
		line.CreatedAt = step.Logs[last-1].CreatedAt
	}

	line.ID = uuid.NewString()
	line.StepID = stepID
	step.Logs = append(step.Logs, &line)

	err = fp.writeDocument("actions", action.ID, action)
	if err != nil {
		return nil, persistence.NewStoreError("AppendLog", "step", stepID, err)
	}

	return &line, nil
}

func (fp *Persistence) UpdateStepStatus(ctx context.Context, stepID string, from []models.StepStatus, to models.StepStatus) (bool, error) {
	unlock, err := fp.lock(ctx)
	if err != nil {
		return false, persistence.NewStoreError("UpdateStepStatus", "step", stepID, err)
	}
	defer unlock()

	action, step, err := fp.findStep(stepID)
	if err != nil {
		return false, persistence.NewStoreError("UpdateStepStatus", "step", stepID, err)
	}

	if !slices.Contains(from, step.Status) {
		return false, nil
	}

	step.Status = to

	if to.IsTerminal() {
		now := fp.now()
		step.CompletedAt = &now
	}

	err = fp.writeDocument("actions", action.ID, action)
	if err != nil {
		return false, persistence.NewStoreError("UpdateStepStatus", "step", stepID, err)
	}

	return true, nil
}

func (fp *Persistence) ListStaleActions(_ context.Context, olderThan time.Time, limit int) ([]*models.Action, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	actions, err := fp.listActions()
	if err != nil {
		return nil, persistence.NewStoreError("ListStaleActions", "action", "", err)
	}

	stale := make([]*models.Action, 0)

	for _, action := range actions {
		if slices.ContainsFunc(action.Steps, func(step *models.ActionStep) bool {
			return !step.Status.IsTerminal() && step.CreatedAt.Before(olderThan)
		}) {
			stale = append(stale, header(action))
		}
	}

	slices.SortFunc(stale, func(a, b *models.Action) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	return stale, nil
}

func (fp *Persistence) findStep(stepID string) (*models.Action, *models.ActionStep, error) {
	actions, err := fp.listActions()
	if err != nil {
		return nil, nil, err
	}

	for _, action := range actions {
		for _, step := range action.Steps {
			if step.ID == stepID {
				return action, step, nil
			}
		}
	}

	return nil, nil, persistence.ErrStepNotFound
}

func (fp *Persistence) readAction(id string) (*models.Action, error) {
	var action models.Action

	err := fp.readDocument("actions", id, &action)
	if err != nil {
		return nil, notFoundAs(err, persistence.ErrActionNotFound)
	}

	return &action, nil
}

func (fp *Persistence) listActions() ([]*models.Action, error) {
	jsonFiles, err := fs.Glob(os.DirFS(path.Join(fp.root, "actions")), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list action files: %w", err)
	}

	actions := make([]*models.Action, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		action, err := fp.readAction(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, fmt.Errorf("failed to load action %s: %w", file, err)
		}

		actions = append(actions, action)
	}

	return actions, nil
}

func (fp *Persistence) documentPath(kind, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: %q", persistence.ErrInvalidIdentifier, id)
	}

	return filepath.Clean(path.Join(fp.root, kind, id+".json")), nil
}

func (fp *Persistence) readDocument(kind, id string, target any) error {
	filePath, err := fp.documentPath(kind, id)
	if err != nil {
		return err
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", kind, id, err)
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", kind, id, err)
	}

	return nil
}

// writeDocument replaces the document through a rename so readers never see a partial file.
func (fp *Persistence) writeDocument(kind, id string, document any) error {
	filePath, err := fp.documentPath(kind, id)
	if err != nil {
		return err
	}

	dir := path.Join(fp.root, kind)

	err = os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", kind, id, err)
	}

	tmp, err := os.CreateTemp(dir, id+".json.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s %s: %w", kind, id, err)
	}

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}

	err = errors.Join(err, tmp.Close())
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s %s: %w", kind, id, err)
	}

	err = os.Rename(tmp.Name(), filePath)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s %s: %w", kind, id, err)
	}

	return nil
}

func notFoundAs(err, notFound error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return notFound
	}

	return err
}

func header(action *models.Action) *models.Action {
	action.Steps = nil

	return action
}
