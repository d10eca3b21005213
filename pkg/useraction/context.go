package useraction

import (
	"context"
	"fmt"

	"github.com/dukex/actiontrack/pkg/diagnostics"
	"github.com/dukex/actiontrack/pkg/models"
)

// ActionContext lets a processor report progress on one step without seeing
// the store. Calls never fail from the caller's point of view; bookkeeping
// errors go to the diagnostic sink.
type ActionContext interface {
	LogByStep(level models.LogLevel, message string)
	OnComplete(status models.StepStatus)
}

type stepLogger interface {
	AppendLog(ctx context.Context, stepID string, level models.LogLevel, message string) error
}

type stepCompleter func(ctx context.Context, userActionID string, status models.StepStatus) error

type actionContext struct {
	ctx          context.Context
	step         *models.ActionStep
	userActionID string
	logger       stepLogger
	complete     stepCompleter
	sink         diagnostics.Sink
}

var _ ActionContext = (*actionContext)(nil)

// newActionContext binds a step and its owning action. Bookkeeping runs on a
// context detached from cancellation so progress of an accepted event is kept.
func newActionContext(ctx context.Context, step *models.ActionStep, userActionID string, logger stepLogger, complete stepCompleter, sink diagnostics.Sink) *actionContext {
	return &actionContext{
		ctx:          context.WithoutCancel(ctx),
		step:         step,
		userActionID: userActionID,
		logger:       logger,
		complete:     complete,
		sink:         sink,
	}
}

func (c *actionContext) LogByStep(level models.LogLevel, message string) {
	failure := fmt.Sprintf("Failed to log action step %s", c.step.ID)

	c.guard(failure, func() error {
		return c.logger.AppendLog(c.ctx, c.step.ID, level, message)
	})
}

func (c *actionContext) OnComplete(status models.StepStatus) {
	failure := fmt.Sprintf("Failed to complete action step %s", c.step.ID)

	c.guard(failure, func() error {
		return c.complete(c.ctx, c.userActionID, status)
	})
}

func (c *actionContext) guard(failure string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.sink.Report(c.ctx, failure, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	err := fn()
	if err != nil {
		c.sink.Report(c.ctx, failure, err)
	}
}
