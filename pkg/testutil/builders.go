// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"

	"github.com/dukex/actiontrack/pkg/models"
)

const (
	DefaultUserID     = "U1"
	DefaultResourceID = "R1"
	DefaultStepName   = "processing-schema"
)

// CreateSchemaImport creates a schema import NewAction with default values that can be overridden.
func CreateSchemaImport(overrides ...func(*models.NewAction)) models.NewAction {
	action := models.NewAction{
		Type:       models.ActionTypeDBSchemaImport,
		Metadata:   models.DBSchemaImportMetadata{Schema: "schema-text", FileName: "f.prisma"},
		UserID:     DefaultUserID,
		ResourceID: DefaultResourceID,
		InitialSteps: []models.StepTemplate{
			{Name: DefaultStepName, Status: models.StepStatusWaiting},
		},
	}

	for _, override := range overrides {
		override(&action)
	}

	return action
}

// WithUser sets the owning user.
func WithUser(userID string) func(*models.NewAction) {
	return func(a *models.NewAction) {
		a.UserID = userID
	}
}

// WithResource sets the target resource.
func WithResource(resourceID string) func(*models.NewAction) {
	return func(a *models.NewAction) {
		a.ResourceID = resourceID
	}
}

// WithSteps replaces the initial step set; every step starts Waiting.
func WithSteps(names ...string) func(*models.NewAction) {
	return func(a *models.NewAction) {
		a.InitialSteps = make([]models.StepTemplate, 0, len(names))
		for _, name := range names {
			a.InitialSteps = append(a.InitialSteps, models.StepTemplate{Name: name, Status: models.StepStatusWaiting})
		}
	}
}

// WithMetadata sets the action metadata.
func WithMetadata(metadata models.Metadata) func(*models.NewAction) {
	return func(a *models.NewAction) {
		a.Metadata = metadata
	}
}

// ReferenceSaver is implemented by stores that can hold users and resources.
type ReferenceSaver interface {
	SaveUser(ctx context.Context, user *models.User) error
	SaveResource(ctx context.Context, resource *models.Resource) error
}

// SeedReferences stores the default user and resource.
func SeedReferences(ctx context.Context, store ReferenceSaver) error {
	err := store.SaveUser(ctx, &models.User{ID: DefaultUserID, Email: "u1@example.com"})
	if err != nil {
		return err
	}

	return store.SaveResource(ctx, &models.Resource{ID: DefaultResourceID, Name: "orders-db"})
}
