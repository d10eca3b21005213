package prismaschema

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/actiontrack/pkg/mocks"
	"github.com/dukex/actiontrack/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const schema = `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

// model Ignored {
model User {
  id    Int    @id
  posts Post[]
}

model Post {
  id       Int  @id
  author   User @relation(fields: [authorId], references: [id])
  authorId Int
}
`

func TestParseModels(t *testing.T) {
	found := ParseModels(schema)

	require.Len(t, found, 2)
	assert.Equal(t, Model{Name: "User", Line: 7}, found[0])
	assert.Equal(t, Model{Name: "Post", Line: 12}, found[1])

	assert.Empty(t, ParseModels(""))
	assert.Empty(t, ParseModels("enum Role {\n  USER\n}"))
}

func TestProcessor_Process(t *testing.T) {
	tests := []struct {
		name       string
		schema     string
		wantStatus models.StepStatus
		wantErrors int
	}{
		{
			name:       "valid schema",
			schema:     schema,
			wantStatus: models.StepStatusSuccess,
		},
		{
			name:       "empty schema",
			schema:     "",
			wantStatus: models.StepStatusFailed,
			wantErrors: 1,
		},
		{
			name:       "duplicate model",
			schema:     "model User {\n}\nmodel User {\n}\n",
			wantStatus: models.StepStatusFailed,
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actionCtx := &mocks.MockActionContext{}
			actionCtx.On("LogByStep", models.LogLevelInfo, mock.Anything).Return()
			if tt.wantErrors > 0 {
				actionCtx.On("LogByStep", models.LogLevelError, mock.Anything).Return()
			}

			actionCtx.On("OnComplete", tt.wantStatus).Return().Once()

			processor := NewProcessor(slog.New(slog.NewTextHandler(io.Discard, nil)))

			err := processor.Process(t.Context(), actionCtx, tt.schema, "f.prisma", "R1", &models.User{ID: "U1"})
			require.NoError(t, err)

			actionCtx.AssertExpectations(t)
			actionCtx.AssertNumberOfCalls(t, "OnComplete", 1)
			actionCtx.AssertCalled(t, "LogByStep", models.LogLevelInfo, "Processing Prisma schema f.prisma")

			errorCalls := 0

			for _, call := range actionCtx.Calls {
				if call.Method == "LogByStep" && call.Arguments.Get(0) == models.LogLevelError {
					errorCalls++
				}
			}

			assert.Equal(t, tt.wantErrors, errorCalls)
		})
	}
}
