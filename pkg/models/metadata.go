package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidMetadata indicates stored metadata does not match the shape expected for its action type.
var ErrInvalidMetadata = errors.New("invalid action metadata")

// ErrUnknownActionType indicates no metadata shape is registered for an action type.
var ErrUnknownActionType = errors.New("unknown action type")

// Metadata is the kind-specific payload stored with an action. Each action type
// has exactly one concrete implementation.
type Metadata interface {
	ActionType() ActionType
}

// DBSchemaImportMetadata is stored with DBSchemaImport actions.
type DBSchemaImportMetadata struct {
	Schema   string `json:"schema"`
	FileName string `json:"fileName"`
}

func (DBSchemaImportMetadata) ActionType() ActionType {
	return ActionTypeDBSchemaImport
}

// ValidationError lists the shape violations found in a metadata document.
type ValidationError struct {
	ActionType ActionType
	Problems   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("metadata for %s action is not in the expected format: %s", e.ActionType, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidMetadata
}

type metadataKind struct {
	schema *gojsonschema.Schema
	decode func(raw []byte) (Metadata, error)
}

var metadataKinds = map[ActionType]metadataKind{
	ActionTypeDBSchemaImport: {
		schema: mustCompileSchema(map[string]any{
			"type":     "object",
			"required": []any{"schema", "fileName"},
			"properties": map[string]any{
				"schema":   map[string]any{"type": "string"},
				"fileName": map[string]any{"type": "string", "minLength": 1},
			},
		}),
		decode: func(raw []byte) (Metadata, error) {
			var metadata DBSchemaImportMetadata

			err := json.Unmarshal(raw, &metadata)

			return metadata, err
		},
	},
}

func mustCompileSchema(schema map[string]any) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic(fmt.Errorf("invalid metadata schema: %w", err))
	}

	return compiled
}

// EncodeMetadata serializes metadata for storage. The result must pass the
// same shape check DecodeMetadata applies.
func EncodeMetadata(metadata Metadata) (json.RawMessage, error) {
	if metadata == nil {
		return nil, &ValidationError{Problems: []string{"metadata is required"}}
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = DecodeMetadata(metadata.ActionType(), raw)
	if err != nil {
		return nil, err
	}

	return raw, nil
}

// DecodeMetadata checks raw against the shape registered for actionType and
// returns the typed value. The stored blob is never trusted without this check.
func DecodeMetadata(actionType ActionType, raw json.RawMessage) (Metadata, error) {
	kind, ok := metadataKinds[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActionType, actionType)
	}

	if len(raw) == 0 {
		return nil, &ValidationError{ActionType: actionType, Problems: []string{"metadata is empty"}}
	}

	result, err := kind.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &ValidationError{ActionType: actionType, Problems: []string{err.Error()}}
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			problems = append(problems, resultErr.String())
		}

		return nil, &ValidationError{ActionType: actionType, Problems: problems}
	}

	metadata, err := kind.decode(raw)
	if err != nil {
		return nil, &ValidationError{ActionType: actionType, Problems: []string{err.Error()}}
	}

	return metadata, nil
}
