package useraction_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/dukex/actiontrack/pkg/eventbus"
	"github.com/dukex/actiontrack/pkg/events"
	"github.com/dukex/actiontrack/pkg/metrics"
	"github.com/dukex/actiontrack/pkg/mocks"
	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/dukex/actiontrack/pkg/persistence/file"
	"github.com/dukex/actiontrack/pkg/services"
	"github.com/dukex/actiontrack/pkg/useraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	correlationID        = "0190b6a8-7f5e-7c2a-9d1e-3b4c5d6e7f80"
	unknownCorrelationID = "0190b6a8-0000-7000-8000-000000000000"
)

// recordingStore wraps a real store and records every mutating call.
type recordingStore struct {
	persistence.ActionStore

	mu        sync.Mutex
	calls     []string
	appendErr error
}

func (s *recordingStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, call)
}

func (s *recordingStore) mutations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.calls...)
}

func (s *recordingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = nil
}

func (s *recordingStore) CreateAction(ctx context.Context, action models.NewAction) (*models.Action, error) {
	s.record("CreateAction")

	return s.ActionStore.CreateAction(ctx, action)
}

func (s *recordingStore) AppendLog(ctx context.Context, stepID string, line models.ActionLogLine) (*models.ActionLogLine, error) {
	s.record("AppendLog")

	if s.appendErr != nil {
		return nil, s.appendErr
	}

	return s.ActionStore.AppendLog(ctx, stepID, line)
}

func (s *recordingStore) UpdateStepStatus(ctx context.Context, stepID string, from []models.StepStatus, to models.StepStatus) (bool, error) {
	s.record("UpdateStepStatus:" + string(to))

	return s.ActionStore.UpdateStepStatus(ctx, stepID, from, to)
}

type recordingSink struct {
	mu       sync.Mutex
	messages []string
	errs     []error
}

func (s *recordingSink) Report(_ context.Context, message string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, message)
	s.errs = append(s.errs, err)
}

func (s *recordingSink) reports() ([]string, []error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.messages...), append([]error(nil), s.errs...)
}

type publisherFunc func(ctx context.Context, topic string, key string, event eventbus.Event) error

func (f publisherFunc) Publish(ctx context.Context, topic string, key string, event eventbus.Event) error {
	return f(ctx, topic, key, event)
}

type fixture struct {
	store     *recordingStore
	sink      *recordingSink
	published []*events.DBSchemaImportRequest
	publish   func(event events.DBSchemaImportRequest) error
	processor useraction.Processor
	service   *useraction.DBSchemaImport
}

func parsingProcessor() useraction.ProcessorFunc {
	return func(_ context.Context, actionCtx useraction.ActionContext, _ string, _ string, _ string, _ *models.User) error {
		actionCtx.LogByStep(models.LogLevelInfo, "parsing")
		actionCtx.OnComplete(models.StepStatusSuccess)

		return nil
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fileStore := file.NewPersistence(t.TempDir())
	require.NoError(t, fileStore.SaveUser(t.Context(), &models.User{ID: "U1", Email: "u1@example.com"}))
	require.NoError(t, fileStore.SaveResource(t.Context(), &models.Resource{ID: "R1", Name: "orders-db"}))

	f := &fixture{
		store:     &recordingStore{ActionStore: fileStore},
		sink:      &recordingSink{},
		processor: parsingProcessor(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()

	f.service = useraction.NewDBSchemaImport(useraction.Options{
		Store:   f.store,
		Actions: services.NewAction(f.store, logger, m),
		Publisher: publisherFunc(func(_ context.Context, topic string, key string, event eventbus.Event) error {
			assert.Equal(t, events.DBSchemaImportTopic, topic)
			assert.Empty(t, key)

			request := event.(events.DBSchemaImportRequest)
			if f.publish != nil {
				if err := f.publish(request); err != nil {
					return err
				}
			}

			f.published = append(f.published, &request)

			return nil
		}),
		Processor: useraction.ProcessorFunc(func(ctx context.Context, actionCtx useraction.ActionContext, payload string, fileName string, resourceID string, user *models.User) error {
			return f.processor.Process(ctx, actionCtx, payload, fileName, resourceID, user)
		}),
		Sink:    f.sink,
		Logger:  logger,
		Metrics: m,
	})

	return f
}

func (f *fixture) dispatch(t *testing.T) *models.Action {
	t.Helper()

	action, err := f.service.StartProcessing(t.Context(), "schema-text", "f.prisma", useraction.CreateUserActionArgs{ResourceID: "R1"}, &models.User{ID: "U1"})
	require.NoError(t, err)

	return action
}

func (f *fixture) stepOf(t *testing.T, action *models.Action) *models.ActionStep {
	t.Helper()

	steps, err := f.store.ActionSteps(t.Context(), action.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)

	return steps[0]
}

func payload(s string) *string {
	return &s
}

func TestStartProcessing_StoresBeforePublishing(t *testing.T) {
	f := newFixture(t)

	f.publish = func(event events.DBSchemaImportRequest) error {
		action, err := f.store.FindActionByCorrelationID(context.Background(), event.CorrelationID, models.ActionTypeDBSchemaImport)
		require.NoError(t, err)

		steps, err := f.store.ActionSteps(context.Background(), action.ID)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, useraction.ProcessingSchemaStep, steps[0].Name)
		assert.Equal(t, models.StepStatusWaiting, steps[0].Status)

		return nil
	}

	first := f.dispatch(t)
	second := f.dispatch(t)

	assert.NotEmpty(t, first.ActionID)
	assert.NotEqual(t, first.ActionID, second.ActionID)
	assert.Equal(t, []string{"CreateAction", "CreateAction"}, f.store.mutations())

	require.Len(t, f.published, 2)
	assert.Equal(t, first.ActionID, f.published[0].CorrelationID)
	assert.Equal(t, "schema-text", *f.published[0].Payload)

	assert.Equal(t, models.ActionTypeDBSchemaImport, first.Type)
	assert.Equal(t, "U1", first.UserID)
	require.NotNil(t, first.ResourceID)
	assert.Equal(t, "R1", *first.ResourceID)
	assert.JSONEq(t, `{"schema":"schema-text","fileName":"f.prisma"}`, string(first.Metadata))
}

func TestStartProcessing_Errors(t *testing.T) {
	tests := []struct {
		name string
		args useraction.CreateUserActionArgs
		user *models.User
		want error
	}{
		{
			name: "missing resource id",
			args: useraction.CreateUserActionArgs{},
			user: &models.User{ID: "U1"},
			want: useraction.ErrInvalidArguments,
		},
		{
			name: "missing user",
			args: useraction.CreateUserActionArgs{ResourceID: "R1"},
			want: useraction.ErrInvalidArguments,
		},
		{
			name: "unknown resource",
			args: useraction.CreateUserActionArgs{ResourceID: "R2"},
			user: &models.User{ID: "U1"},
			want: persistence.ErrResourceNotFound,
		},
		{
			name: "unknown user",
			args: useraction.CreateUserActionArgs{ResourceID: "R1"},
			user: &models.User{ID: "U2"},
			want: persistence.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			action, err := f.service.StartProcessing(t.Context(), "schema-text", "f.prisma", tt.args, tt.user)
			assert.Nil(t, action)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.published)
		})
	}
}

func TestStartProcessing_PublishFailure(t *testing.T) {
	f := newFixture(t)

	f.publish = func(events.DBSchemaImportRequest) error {
		return errors.New("broker unavailable")
	}

	action, err := f.service.StartProcessing(t.Context(), "schema-text", "f.prisma", useraction.CreateUserActionArgs{ResourceID: "R1"}, &models.User{ID: "U1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, useraction.ErrDispatchFailed)
	assert.Contains(t, err.Error(), "broker unavailable")

	// The action stays behind in Waiting so the sweep can find it.
	require.NotNil(t, action)
	assert.Equal(t, models.StepStatusWaiting, f.stepOf(t, action).Status)
}

func TestOnEventProcessed_UnknownCorrelationID(t *testing.T) {
	f := newFixture(t)

	action := f.dispatch(t)
	f.store.reset()

	err := f.service.OnEventProcessed(t.Context(), &events.DBSchemaImportRequest{CorrelationID: unknownCorrelationID, Payload: payload("schema-text")})
	require.NoError(t, err)

	assert.Empty(t, f.store.mutations())

	messages, errs := f.sink.reports()
	require.Len(t, messages, 1)
	assert.True(t, persistence.IsActionNotFound(errs[0]))
	assert.Contains(t, messages[0], unknownCorrelationID)

	// The next valid event is still processed.
	require.NoError(t, f.service.OnEventProcessed(t.Context(), &events.DBSchemaImportRequest{CorrelationID: action.ActionID, Payload: payload("schema-text")}))

	assert.Equal(t, models.StepStatusSuccess, f.stepOf(t, action).Status)

	messages, _ = f.sink.reports()
	assert.Len(t, messages, 1)
}

func TestOnEventProcessed_InvalidEnvelope(t *testing.T) {
	f := newFixture(t)

	invalid := []any{
		&events.DBSchemaImportRequest{CorrelationID: correlationID},
		&events.DBSchemaImportRequest{CorrelationID: "A1", Payload: payload("x")},
		&events.DBSchemaImportRequest{Payload: payload("x")},
		events.DBSchemaImportRequest{CorrelationID: correlationID, Payload: payload("x")},
	}

	for _, event := range invalid {
		require.NoError(t, f.service.OnEventProcessed(t.Context(), event))
	}

	_, errs := f.sink.reports()
	require.Len(t, errs, 4)
	assert.ErrorIs(t, errs[0], events.ErrInvalidEvent)
	assert.ErrorIs(t, errs[1], events.ErrInvalidEvent)
	assert.ErrorIs(t, errs[2], events.ErrInvalidEvent)
	assert.ErrorIs(t, errs[3], useraction.ErrUnexpectedEvent)
	assert.Empty(t, f.store.mutations())
}

func TestOnEventProcessed_LogFailuresDoNotStopProcessing(t *testing.T) {
	f := newFixture(t)

	action := f.dispatch(t)
	f.store.appendErr = errors.New("disk full")

	reachedComplete := false
	f.processor = useraction.ProcessorFunc(func(_ context.Context, actionCtx useraction.ActionContext, _ string, _ string, _ string, _ *models.User) error {
		actionCtx.LogByStep(models.LogLevelInfo, "parsing")
		actionCtx.LogByStep(models.LogLevelInfo, "still parsing")

		reachedComplete = true

		actionCtx.OnComplete(models.StepStatusSuccess)

		return nil
	})

	require.NoError(t, f.service.OnEventProcessed(t.Context(), &events.DBSchemaImportRequest{CorrelationID: action.ActionID, Payload: payload("schema-text")}))

	assert.True(t, reachedComplete)

	step := f.stepOf(t, action)
	assert.Equal(t, models.StepStatusSuccess, step.Status)

	messages, errs := f.sink.reports()
	require.Len(t, messages, 2)
	assert.Equal(t, "Failed to log action step "+step.ID, messages[0])

	var appendErr *services.LogAppendError
	assert.ErrorAs(t, errs[0], &appendErr)
}

func TestOnEventProcessed_ProcessorFailure(t *testing.T) {
	tests := []struct {
		name      string
		processor useraction.ProcessorFunc
		want      error
	}{
		{
			name: "returns error",
			processor: func(context.Context, useraction.ActionContext, string, string, string, *models.User) error {
				return errors.New("cannot parse schema")
			},
		},
		{
			name: "panics",
			processor: func(context.Context, useraction.ActionContext, string, string, string, *models.User) error {
				panic("processor exploded")
			},
			want: useraction.ErrPanic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			action := f.dispatch(t)

			f.processor = tt.processor

			require.NoError(t, f.service.OnEventProcessed(t.Context(), &events.DBSchemaImportRequest{CorrelationID: action.ActionID, Payload: payload("schema-text")}))

			assert.Equal(t, models.StepStatusFailed, f.stepOf(t, action).Status)

			_, errs := f.sink.reports()
			require.Len(t, errs, 1)

			if tt.want != nil {
				assert.ErrorIs(t, errs[0], tt.want)
			}
		})
	}
}

func TestOnEventProcessed_DuplicateDelivery(t *testing.T) {
	f := newFixture(t)
	action := f.dispatch(t)

	event := &events.DBSchemaImportRequest{CorrelationID: action.ActionID, Payload: payload("schema-text")}

	require.NoError(t, f.service.OnEventProcessed(t.Context(), event))
	require.NoError(t, f.service.OnEventProcessed(t.Context(), event))

	step := f.stepOf(t, action)
	assert.Equal(t, models.StepStatusSuccess, step.Status)
	assert.Len(t, step.Logs, 2)

	messages, _ := f.sink.reports()
	assert.Empty(t, messages)
}

func newMockedService(store *mocks.MockActionStore, processor *mocks.MockProcessor, sink *mocks.MockSink) *useraction.DBSchemaImport {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return useraction.NewDBSchemaImport(useraction.Options{
		Store:     store,
		Actions:   services.NewAction(store, logger, nil),
		Publisher: publisherFunc(func(context.Context, string, string, eventbus.Event) error { return nil }),
		Processor: processor,
		Sink:      sink,
		Logger:    logger,
	})
}

func TestOnEventProcessed_RejectedActions(t *testing.T) {
	resourceID := "R1"

	tests := []struct {
		name     string
		action   *models.Action
		user     *models.User
		userErr  error
		wantErr  error
		wantText string
	}{
		{
			name: "metadata failing the shape check",
			action: &models.Action{
				ID: "UA1", ActionID: correlationID, Type: models.ActionTypeDBSchemaImport,
				Metadata: json.RawMessage(`{"schema":"s"}`), UserID: "U1", ResourceID: &resourceID,
			},
			user:     &models.User{ID: "U1"},
			wantErr:  models.ErrInvalidMetadata,
			wantText: "metadata is not in the expected format",
		},
		{
			name: "missing resource",
			action: &models.Action{
				ID: "UA1", ActionID: correlationID, Type: models.ActionTypeDBSchemaImport,
				Metadata: json.RawMessage(`{"schema":"s","fileName":"f.prisma"}`), UserID: "U1",
			},
			user:     &models.User{ID: "U1"},
			wantErr:  useraction.ErrMissingResource,
			wantText: "resource id is missing",
		},
		{
			name: "unknown user",
			action: &models.Action{
				ID: "UA1", ActionID: correlationID, Type: models.ActionTypeDBSchemaImport,
				Metadata: json.RawMessage(`{"schema":"s","fileName":"f.prisma"}`), UserID: "U9", ResourceID: &resourceID,
			},
			userErr:  persistence.NewStoreError("LoadUser", "user", "U9", persistence.ErrUserNotFound),
			wantErr:  persistence.ErrUserNotFound,
			wantText: "user with id U9 not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mocks.MockActionStore{}
			processor := &mocks.MockProcessor{}
			sink := &mocks.MockSink{}

			store.On("FindActionByCorrelationID", mock.Anything, correlationID, models.ActionTypeDBSchemaImport).Return(tt.action, nil)

			if tt.userErr != nil {
				store.On("LoadUser", mock.Anything, tt.action.UserID).Return(nil, tt.userErr)
			} else {
				store.On("LoadUser", mock.Anything, tt.action.UserID).Return(tt.user, nil)
			}

			sink.On("Report", mock.Anything, mock.MatchedBy(func(message string) bool {
				return strings.Contains(message, tt.wantText)
			}), mock.MatchedBy(func(err error) bool {
				return errors.Is(err, tt.wantErr)
			})).Once()

			service := newMockedService(store, processor, sink)

			err := service.OnEventProcessed(t.Context(), &events.DBSchemaImportRequest{CorrelationID: correlationID, Payload: payload("s")})
			require.NoError(t, err)

			processor.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			store.AssertNotCalled(t, "UpdateStepStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			store.AssertNotCalled(t, "AppendLog", mock.Anything, mock.Anything, mock.Anything)
			sink.AssertExpectations(t)
		})
	}
}

func TestOnEventProcessed_DelegatesToProcessor(t *testing.T) {
	resourceID := "R1"
	user := &models.User{ID: "U1", Email: "u1@example.com"}
	step := &models.ActionStep{ID: "S1", ActionID: correlationID, Name: useraction.ProcessingSchemaStep, Status: models.StepStatusWaiting}

	store := &mocks.MockActionStore{}
	processor := &mocks.MockProcessor{}
	sink := &mocks.MockSink{}

	store.On("FindActionByCorrelationID", mock.Anything, correlationID, models.ActionTypeDBSchemaImport).Return(&models.Action{
		ID: "UA1", ActionID: correlationID, Type: models.ActionTypeDBSchemaImport,
		Metadata: json.RawMessage(`{"schema":"schema-text","fileName":"f.prisma"}`), UserID: "U1", ResourceID: &resourceID,
	}, nil)
	store.On("LoadUser", mock.Anything, "U1").Return(user, nil)
	store.On("FindStepByName", mock.Anything, "UA1", useraction.ProcessingSchemaStep).Return(step, nil)
	store.On("UpdateStepStatus", mock.Anything, "S1", []models.StepStatus{models.StepStatusWaiting}, models.StepStatusRunning).Return(true, nil)
	processor.On("Process", mock.Anything, mock.Anything, "schema-text", "f.prisma", "R1", user).Return(nil).Once()

	service := newMockedService(store, processor, sink)

	require.NoError(t, service.OnEventProcessed(t.Context(), &events.DBSchemaImportRequest{CorrelationID: correlationID, Payload: payload("schema-text")}))

	processor.AssertExpectations(t)
	store.AssertExpectations(t)
	sink.AssertNotCalled(t, "Report", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteStep(t *testing.T) {
	f := newFixture(t)
	action := f.dispatch(t)

	require.NoError(t, f.service.CompleteStep(t.Context(), action.ID, models.StepStatusFailed))
	require.NoError(t, f.service.CompleteStep(t.Context(), action.ID, models.StepStatusFailed))

	err := f.service.CompleteStep(t.Context(), action.ID, models.StepStatusSuccess)
	assert.True(t, services.IsInvalidTransition(err))
	assert.Equal(t, models.StepStatusFailed, f.stepOf(t, action).Status)

	err = f.service.CompleteStep(t.Context(), "missing", models.StepStatusSuccess)
	assert.True(t, persistence.IsStepNotFound(err))
	assert.Contains(t, err.Error(), "step processing-schema not found for action with id missing")
}

func TestFindStep(t *testing.T) {
	f := newFixture(t)
	action := f.dispatch(t)

	step, err := f.service.FindStep(t.Context(), action.ID)
	require.NoError(t, err)
	assert.Equal(t, action.Steps[0].ID, step.ID)
}

func TestRegister(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.DBSchemaImportRequestEvent, mock.Anything).Return(nil)

	f := newFixture(t)
	require.NoError(t, f.service.Register(bus))

	bus.AssertExpectations(t)
}
