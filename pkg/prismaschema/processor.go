// Package prismaschema is the default schema import processor. It reads the
// model blocks of a Prisma schema and reports them on the processing step.
package prismaschema

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dukex/actiontrack/pkg/models"
	"github.com/dukex/actiontrack/pkg/useraction"
)

var (
	modelPattern   = regexp.MustCompile(`(?m)^\s*model\s+([A-Za-z][A-Za-z0-9_]*)\s*\{`)
	commentPattern = regexp.MustCompile(`//[^\n]*`)
)

// Model is one model block found in a schema.
type Model struct {
	Name string
	Line int
}

// Processor validates uploaded Prisma schemas.
type Processor struct {
	logger *slog.Logger
}

var _ useraction.Processor = (*Processor)(nil)

func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{logger: logger.With("module", "prisma_schema")}
}

// Process reports every model found in payload and completes the step.
// Schemas without models or with duplicated model names fail the step.
func (p *Processor) Process(ctx context.Context, actionCtx useraction.ActionContext, payload string, fileName string, resourceID string, user *models.User) error {
	p.logger.InfoContext(ctx, "Processing Prisma schema",
		"file_name", fileName,
		"resource_id", resourceID,
		"user_id", user.ID,
	)

	actionCtx.LogByStep(models.LogLevelInfo, fmt.Sprintf("Processing Prisma schema %s", fileName))

	found := ParseModels(payload)
	if len(found) == 0 {
		actionCtx.LogByStep(models.LogLevelError, "No models found in the schema")
		actionCtx.OnComplete(models.StepStatusFailed)

		return nil
	}

	seen := make(map[string]int, len(found))
	failed := false

	for _, model := range found {
		if line, ok := seen[model.Name]; ok {
			failed = true

			actionCtx.LogByStep(models.LogLevelError,
				fmt.Sprintf("Model %s on line %d is already defined on line %d", model.Name, model.Line, line))

			continue
		}

		seen[model.Name] = model.Line

		actionCtx.LogByStep(models.LogLevelInfo, fmt.Sprintf("Found model %s", model.Name))
	}

	if failed {
		actionCtx.OnComplete(models.StepStatusFailed)

		return nil
	}

	actionCtx.LogByStep(models.LogLevelInfo, fmt.Sprintf("Schema contains %d models", len(seen)))
	actionCtx.OnComplete(models.StepStatusSuccess)

	return nil
}

// ParseModels returns the model blocks of a schema in source order.
// Line comments are ignored.
func ParseModels(schema string) []Model {
	lines := strings.Split(schema, "\n")
	result := make([]Model, 0)

	for i, line := range lines {
		line = commentPattern.ReplaceAllString(line, "")

		match := modelPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		result = append(result, Model{Name: match[1], Line: i + 1})
	}

	return result
}
