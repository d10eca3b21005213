// Package useraction tracks user-initiated asynchronous actions: it dispatches
// work onto the bus and correlates completion events back to the stored action.
package useraction

import (
	"context"

	"github.com/dukex/actiontrack/pkg/models"
)

// Processor performs the downstream work for a schema import once its
// completion event has been correlated. It reports progress through actionCtx
// and is expected to call OnComplete exactly once.
type Processor interface {
	Process(ctx context.Context, actionCtx ActionContext, payload string, fileName string, resourceID string, user *models.User) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, actionCtx ActionContext, payload string, fileName string, resourceID string, user *models.User) error

func (f ProcessorFunc) Process(ctx context.Context, actionCtx ActionContext, payload string, fileName string, resourceID string, user *models.User) error {
	return f(ctx, actionCtx, payload, fileName, resourceID, user)
}
