package models

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestStepStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     StepStatus
		to       StepStatus
		expected bool
	}{
		{StepStatusWaiting, StepStatusRunning, true},
		{StepStatusWaiting, StepStatusSuccess, true},
		{StepStatusWaiting, StepStatusFailed, true},
		{StepStatusRunning, StepStatusSuccess, true},
		{StepStatusRunning, StepStatusFailed, true},
		{StepStatusRunning, StepStatusWaiting, false},
		{StepStatusRunning, StepStatusRunning, false},
		{StepStatusSuccess, StepStatusFailed, false},
		{StepStatusFailed, StepStatusSuccess, false},
		{StepStatusSuccess, StepStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTransitionSources(t *testing.T) {
	assert.Equal(t, []StepStatus{StepStatusWaiting}, TransitionSources(StepStatusRunning))
	assert.Equal(t, []StepStatus{StepStatusWaiting, StepStatusRunning}, TransitionSources(StepStatusSuccess))
	assert.Equal(t, []StepStatus{StepStatusWaiting, StepStatusRunning}, TransitionSources(StepStatusFailed))
	assert.Empty(t, TransitionSources(StepStatusWaiting))
	assert.Empty(t, TransitionSources(StepStatus("Paused")))
}

func TestStepStatus_IsTerminal(t *testing.T) {
	assert.False(t, StepStatusWaiting.IsTerminal())
	assert.False(t, StepStatusRunning.IsTerminal())
	assert.True(t, StepStatusSuccess.IsTerminal())
	assert.True(t, StepStatusFailed.IsTerminal())
	assert.False(t, StepStatus("Paused").IsValid())
}

func TestNewAction_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	valid := NewAction{
		Type:       ActionTypeDBSchemaImport,
		Metadata:   DBSchemaImportMetadata{Schema: "s", FileName: "f.prisma"},
		UserID:     "U1",
		ResourceID: "R1",
		InitialSteps: []StepTemplate{
			{Name: "processing-schema", Status: StepStatusWaiting},
		},
	}
	assert.NoError(t, validate.Struct(valid))

	missingSteps := valid
	missingSteps.InitialSteps = nil
	assert.Error(t, validate.Struct(missingSteps))

	unnamedStep := valid
	unnamedStep.InitialSteps = []StepTemplate{{Status: StepStatusWaiting}}
	assert.Error(t, validate.Struct(unnamedStep))
}

func TestAction_StepByName(t *testing.T) {
	action := &Action{Steps: []*ActionStep{{ID: "s1", Name: "processing-schema"}}}

	assert.Equal(t, "s1", action.StepByName("processing-schema").ID)
	assert.Nil(t, action.StepByName("missing"))
}
