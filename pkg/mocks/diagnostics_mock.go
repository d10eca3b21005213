package mocks

import (
	"context"

	"github.com/dukex/actiontrack/pkg/diagnostics"
	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/useraction"
	"github.com/stretchr/testify/mock"
)

// MockSink is a mock implementation of diagnostics.Sink interface.
type MockSink struct {
	mock.Mock
}

var _ diagnostics.Sink = (*MockSink)(nil)

func (m *MockSink) Report(ctx context.Context, message string, err error) {
	m.Called(ctx, message, err)
}

// MockProcessor is a mock implementation of useraction.Processor interface.
type MockProcessor struct {
	mock.Mock
}

var _ useraction.Processor = (*MockProcessor)(nil)

func (m *MockProcessor) Process(ctx context.Context, actionCtx useraction.ActionContext, payload string, fileName string, resourceID string, user *models.User) error {
	args := m.Called(ctx, actionCtx, payload, fileName, resourceID, user)

	return args.Error(0)
}

// MockActionContext is a mock implementation of useraction.ActionContext interface.
type MockActionContext struct {
	mock.Mock
}

var _ useraction.ActionContext = (*MockActionContext)(nil)

func (m *MockActionContext) LogByStep(level models.LogLevel, message string) {
	m.Called(level, message)
}

func (m *MockActionContext) OnComplete(status models.StepStatus) {
	m.Called(status)
}
