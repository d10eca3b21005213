package useraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/actiontrack/pkg/diagnostics"
	"github.com/dukex/actiontrack/pkg/eventbus"
	"github.com/dukex/actiontrack/pkg/events"
	"github.com/dukex/actiontrack/pkg/metrics"
	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/otelhelper"
	"github.com/dukex/actiontrack/pkg/persistence"
	"github.com/dukex/actiontrack/pkg/services"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ProcessingSchemaStep is the only step of a schema import action.
const ProcessingSchemaStep = "processing-schema"

// DBSchemaImportSteps is the fixed initial step set of a schema import.
func DBSchemaImportSteps() []models.StepTemplate {
	return []models.StepTemplate{
		{Name: ProcessingSchemaStep, Status: models.StepStatusWaiting},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateUserActionArgs identifies what a new action operates on.
type CreateUserActionArgs struct {
	ResourceID string `json:"resourceId" validate:"required,max=255"`
}

// Options configures DBSchemaImport.
type Options struct {
	Store     persistence.ActionStore
	Actions   *services.Action
	Publisher eventbus.EventPublisher
	Processor Processor
	Sink      diagnostics.Sink
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Metrics   *metrics.Metrics
	Topic     string
}

// DBSchemaImport dispatches schema import requests and correlates their
// completion events back to the stored action.
type DBSchemaImport struct {
	store     persistence.ActionStore
	actions   *services.Action
	publisher eventbus.EventPublisher
	processor Processor
	sink      diagnostics.Sink
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	topic     string
}

func NewDBSchemaImport(opts Options) *DBSchemaImport {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sink := opts.Sink
	if sink == nil {
		sink = diagnostics.NewLogSink(logger)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	topic := opts.Topic
	if topic == "" {
		topic = events.DBSchemaImportTopic
	}

	return &DBSchemaImport{
		store:     opts.Store,
		actions:   opts.Actions,
		publisher: opts.Publisher,
		processor: opts.Processor,
		sink:      sink,
		logger:    logger.With("module", "db_schema_import"),
		tracer:    tracer,
		metrics:   opts.Metrics,
		topic:     topic,
	}
}

// Register subscribes the correlator to schema import events on bus.
func (s *DBSchemaImport) Register(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.DBSchemaImportRequestEvent, s.OnEventProcessed)
}

// StartProcessing records a new schema import action and publishes its work
// request. The action is durable before anything is published. When publishing
// fails the stored action is returned together with an error wrapping
// ErrDispatchFailed.
func (s *DBSchemaImport) StartProcessing(ctx context.Context, file string, fileName string, args CreateUserActionArgs, user *models.User) (*models.Action, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "useraction.StartProcessing",
		attribute.String(otelhelper.ActionTypeKey, string(models.ActionTypeDBSchemaImport)),
		attribute.String(otelhelper.ResourceIDKey, args.ResourceID),
	)
	defer span.End()

	action, err := s.createAction(ctx, file, fileName, args, user)
	if err != nil {
		s.metrics.IncDispatched(string(models.ActionTypeDBSchemaImport), metrics.ResultError)
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.ActionIDKey, action.ID),
		attribute.String(otelhelper.CorrelationIDKey, action.ActionID),
	)

	err = s.publisher.Publish(ctx, s.topic, "", events.DBSchemaImportRequest{
		CorrelationID: action.ActionID,
		Payload:       &file,
	})
	if err != nil {
		s.metrics.IncDispatched(string(models.ActionTypeDBSchemaImport), metrics.ResultError)
		otelhelper.SetError(span, err)

		s.logger.ErrorContext(ctx, "Failed to publish schema import request",
			"action_id", action.ActionID,
			"user_action_id", action.ID,
			"error", err,
		)

		return action, fmt.Errorf("%w %s: %w", ErrDispatchFailed, action.ActionID, err)
	}

	s.metrics.IncDispatched(string(models.ActionTypeDBSchemaImport), metrics.ResultOK)
	s.logger.InfoContext(ctx, "Schema import dispatched",
		"action_id", action.ActionID,
		"user_action_id", action.ID,
		"resource_id", args.ResourceID,
	)

	return action, nil
}

func (s *DBSchemaImport) createAction(ctx context.Context, file string, fileName string, args CreateUserActionArgs, user *models.User) (*models.Action, error) {
	err := validate.Struct(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidArguments)
	}

	_, err = s.store.LoadResource(ctx, args.ResourceID)
	if err != nil {
		return nil, err
	}

	return s.store.CreateAction(ctx, models.NewAction{
		Type:         models.ActionTypeDBSchemaImport,
		Metadata:     models.DBSchemaImportMetadata{Schema: file, FileName: fileName},
		UserID:       user.ID,
		ResourceID:   args.ResourceID,
		InitialSteps: DBSchemaImportSteps(),
	})
}

// OnEventProcessed correlates a schema import event with its action and hands
// the payload to the processor. It always returns nil: every failure is
// reported to the diagnostic sink and the message is acknowledged.
func (s *DBSchemaImport) OnEventProcessed(ctx context.Context, event any) error {
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "useraction.OnEventProcessed",
		attribute.String(otelhelper.ActionTypeKey, string(models.ActionTypeDBSchemaImport)),
	)
	defer span.End()

	outcome, err := s.correlate(ctx, span, event)

	s.metrics.IncCorrelation(string(models.ActionTypeDBSchemaImport), outcome)
	s.metrics.ObserveCorrelation(string(models.ActionTypeDBSchemaImport), time.Since(started))

	if err != nil {
		s.sink.Report(ctx, err.Error(), err)
	}

	return nil
}

func (s *DBSchemaImport) correlate(ctx context.Context, span trace.Span, event any) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = metrics.OutcomeProcessorFailed
			err = fmt.Errorf("%w while correlating schema import: %v", ErrPanic, r)
		}
	}()

	request, ok := event.(*events.DBSchemaImportRequest)
	if !ok {
		return metrics.OutcomeInvalidEnvelope, fmt.Errorf("%w: %T", ErrUnexpectedEvent, event)
	}

	err = request.Validate()
	if err != nil {
		return metrics.OutcomeInvalidEnvelope, err
	}

	actionID := request.CorrelationID
	span.SetAttributes(attribute.String(otelhelper.CorrelationIDKey, actionID))

	action, err := s.store.FindActionByCorrelationID(ctx, actionID, models.ActionTypeDBSchemaImport)
	if err != nil {
		if persistence.IsActionNotFound(err) {
			return metrics.OutcomeActionNotFound, fmt.Errorf("schema import action with id %s not found: %w", actionID, err)
		}

		return metrics.OutcomeStoreError, err
	}

	span.SetAttributes(attribute.String(otelhelper.ActionIDKey, action.ID))

	user, err := s.store.LoadUser(ctx, action.UserID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return metrics.OutcomeUserNotFound, fmt.Errorf("user with id %s not found: %w", action.UserID, err)
		}

		return metrics.OutcomeStoreError, err
	}

	if action.ResourceID == nil || *action.ResourceID == "" {
		return metrics.OutcomeMissingResource, fmt.Errorf("%w for action with id %s", ErrMissingResource, actionID)
	}

	resourceID := *action.ResourceID
	span.SetAttributes(
		attribute.String(otelhelper.ResourceIDKey, resourceID),
		attribute.String(otelhelper.UserIDKey, user.ID),
	)

	decoded, err := models.DecodeMetadata(action.Type, action.Metadata)
	if err != nil {
		return metrics.OutcomeInvalidMetadata, fmt.Errorf("metadata is not in the expected format for action with id %s: %w", actionID, err)
	}

	metadata, ok := decoded.(models.DBSchemaImportMetadata)
	if !ok {
		return metrics.OutcomeInvalidMetadata, fmt.Errorf("%w: unexpected metadata %T for action with id %s", models.ErrInvalidMetadata, decoded, actionID)
	}

	step, err := s.FindStep(ctx, action.ID)
	if err != nil {
		if persistence.IsStepNotFound(err) {
			return metrics.OutcomeStepNotFound, err
		}

		return metrics.OutcomeStoreError, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepNameKey, step.Name),
	)

	err = s.actions.Start(ctx, step)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to mark step as running",
			"step_id", step.ID,
			"action_id", actionID,
			"error", err,
		)
	}

	actionCtx := newActionContext(ctx, step, action.ID, s.actions, s.CompleteStep, s.sink)

	err = s.process(ctx, actionCtx, *request.Payload, metadata.FileName, resourceID, user)
	if err != nil {
		actionCtx.OnComplete(models.StepStatusFailed)

		return metrics.OutcomeProcessorFailed, fmt.Errorf("failed to process schema import for action with id %s: %w", actionID, err)
	}

	return metrics.OutcomeProcessed, nil
}

func (s *DBSchemaImport) process(ctx context.Context, actionCtx ActionContext, payload, fileName, resourceID string, user *models.User) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return s.processor.Process(ctx, actionCtx, payload, fileName, resourceID, user)
}

// FindStep returns the processing step of a schema import action.
func (s *DBSchemaImport) FindStep(ctx context.Context, userActionID string) (*models.ActionStep, error) {
	return s.store.FindStepByName(ctx, userActionID, ProcessingSchemaStep)
}

// CompleteStep moves the processing step of a schema import action to a
// terminal status.
func (s *DBSchemaImport) CompleteStep(ctx context.Context, userActionID string, status models.StepStatus) error {
	step, err := s.FindStep(ctx, userActionID)
	if err != nil {
		if errors.Is(err, persistence.ErrStepNotFound) {
			return fmt.Errorf("step %s not found for action with id %s: %w", ProcessingSchemaStep, userActionID, err)
		}

		return err
	}

	return s.actions.Complete(ctx, step, status)
}
