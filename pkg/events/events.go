// Package events defines the messages exchanged over the bus for tracked actions.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

type EventType string

// DBSchemaImportTopic is the default topic for schema import work requests.
const DBSchemaImportTopic = "actiontrack.db-schema-import"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DBSchemaImportRequestEvent EventType = "db_schema_import.requested"
)

// ErrInvalidEvent is returned when a message body is missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

var validate = validator.New(validator.WithRequiredStructEnabled())

// DBSchemaImportRequest carries a schema file to the processing pipeline. The
// same envelope comes back to the correlator once the upload is processed.
type DBSchemaImportRequest struct {
	CorrelationID string  `json:"correlationId" validate:"required,uuid"`
	Payload       *string `json:"payload"       validate:"required"`
}

func (e DBSchemaImportRequest) GetType() EventType {
	return DBSchemaImportRequestEvent
}

// Validate checks the decoded envelope; a missing payload is distinguishable
// from an empty one.
func (e DBSchemaImportRequest) Validate() error {
	err := validate.Struct(e)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	return nil
}

// DecodeDBSchemaImportRequest strictly decodes and validates a message body.
// Unknown fields and trailing data are rejected.
func DecodeDBSchemaImportRequest(body []byte) (*DBSchemaImportRequest, error) {
	var event DBSchemaImportRequest

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()

	err := decoder.Decode(&event)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after the event body", ErrInvalidEvent)
	}

	err = event.Validate()
	if err != nil {
		return nil, err
	}

	return &event, nil
}
