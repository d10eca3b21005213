package mocks

import (
	"context"
	"time"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockActionStore is a mock implementation of persistence.ActionStore interface.
type MockActionStore struct {
	mock.Mock
}

var _ persistence.ActionStore = (*MockActionStore)(nil)

func (m *MockActionStore) CreateAction(ctx context.Context, action models.NewAction) (*models.Action, error) {
	args := m.Called(ctx, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Action), args.Error(1)
}

func (m *MockActionStore) FindActionByCorrelationID(ctx context.Context, actionID string, actionType models.ActionType) (*models.Action, error) {
	args := m.Called(ctx, actionID, actionType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Action), args.Error(1)
}

func (m *MockActionStore) FindActionByID(ctx context.Context, id string) (*models.Action, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Action), args.Error(1)
}

func (m *MockActionStore) ActionSteps(ctx context.Context, id string) ([]*models.ActionStep, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ActionStep), args.Error(1)
}

func (m *MockActionStore) FindStepByName(ctx context.Context, id string, stepName string) (*models.ActionStep, error) {
	args := m.Called(ctx, id, stepName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ActionStep), args.Error(1)
}

func (m *MockActionStore) FindStepByID(ctx context.Context, stepID string) (*models.ActionStep, error) {
	args := m.Called(ctx, stepID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ActionStep), args.Error(1)
}

func (m *MockActionStore) AppendLog(ctx context.Context, stepID string, line models.ActionLogLine) (*models.ActionLogLine, error) {
	args := m.Called(ctx, stepID, line)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ActionLogLine), args.Error(1)
}

func (m *MockActionStore) UpdateStepStatus(ctx context.Context, stepID string, from []models.StepStatus, to models.StepStatus) (bool, error) {
	args := m.Called(ctx, stepID, from, to)

	return args.Bool(0), args.Error(1)
}

func (m *MockActionStore) ListStaleActions(ctx context.Context, olderThan time.Time, limit int) ([]*models.Action, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Action), args.Error(1)
}

func (m *MockActionStore) LoadUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockActionStore) LoadResource(ctx context.Context, resourceID string) (*models.Resource, error) {
	args := m.Called(ctx, resourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Resource), args.Error(1)
}

func (m *MockActionStore) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockActionStore) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
