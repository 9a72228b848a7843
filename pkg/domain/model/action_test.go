package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
)

func strPtr(s string) *string { return &s }

func TestAction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		action  model.Action
		wantErr error
	}{
		{
			name: "file create with path and content",
			action: model.Action{
				Type:    types.ActionTypeFileCreate,
				Details: &model.FileDetails{Path: "/tmp/x.txt", Content: strPtr("hi")},
			},
		},
		{
			name: "file edit with empty content is valid",
			action: model.Action{
				Type:    types.ActionTypeFileEdit,
				Details: &model.FileDetails{Path: "/tmp/x.txt", Content: strPtr("")},
			},
		},
		{
			name: "file create without content",
			action: model.Action{
				Type:    types.ActionTypeFileCreate,
				Details: &model.FileDetails{Path: "/tmp/x.txt"},
			},
			wantErr: model.ErrMissingRequired,
		},
		{
			name: "file delete needs only a path",
			action: model.Action{
				Type:    types.ActionTypeFileDelete,
				Details: &model.FileDetails{Path: "/tmp/x.txt"},
			},
		},
		{
			name: "file delete without path",
			action: model.Action{
				Type:    types.ActionTypeFileDelete,
				Details: &model.FileDetails{},
			},
			wantErr: model.ErrMissingRequired,
		},
		{
			name: "command without command line",
			action: model.Action{
				Type:    types.ActionTypeCommandRun,
				Details: &model.CommandDetails{WorkingDirectory: "/tmp"},
			},
			wantErr: model.ErrMissingRequired,
		},
		{
			name: "command details on a file type",
			action: model.Action{
				Type:    types.ActionTypeFileCreate,
				Details: &model.CommandDetails{Command: "ls"},
			},
			wantErr: model.ErrDetailsMismatch,
		},
		{
			name: "file details on code generation",
			action: model.Action{
				Type:    types.ActionTypeCodeGeneration,
				Details: &model.FileDetails{Path: "/tmp/x"},
			},
			wantErr: model.ErrDetailsMismatch,
		},
		{
			name: "code generation",
			action: model.Action{
				Type:    types.ActionTypeCodeGeneration,
				Details: &model.CodeGenerationDetails{Prompt: "hello world", Language: "go"},
			},
		},
		{
			name:    "missing details",
			action:  model.Action{Type: types.ActionTypeCommandRun},
			wantErr: model.ErrMissingDetails,
		},
		{
			name: "typed nil details",
			action: model.Action{
				Type:    types.ActionTypeCommandRun,
				Details: (*model.CommandDetails)(nil),
			},
			wantErr: model.ErrMissingDetails,
		},
		{
			name: "unknown type",
			action: model.Action{
				Type:    types.ActionType("file_move"),
				Details: &model.FileDetails{Path: "/tmp/x"},
			},
			wantErr: model.ErrInvalidActionType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.wantErr != nil {
				gt.Error(t, err).Is(tt.wantErr)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestAction_Copy(t *testing.T) {
	original := &model.Action{
		ID:   model.NewActionID(),
		Type: types.ActionTypeCommandRun,
		Details: &model.CommandDetails{
			Command:     "echo $GREETING",
			Environment: map[string]string{"GREETING": "hi"},
		},
	}

	copied := original.Copy()
	copied.CommandDetails().Environment["GREETING"] = "changed"
	copied.CommandDetails().Command = "true"

	gt.V(t, original.CommandDetails().Environment["GREETING"]).Equal("hi")
	gt.V(t, original.CommandDetails().Command).Equal("echo $GREETING")
}

func TestAction_JSONRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name   string
		action *model.Action
	}{
		{
			name: "file create",
			action: &model.Action{
				ID:          "a-1",
				Type:        types.ActionTypeFileCreate,
				Status:      types.ActionStatusPending,
				Timestamp:   ts,
				Description: "write x",
				Details:     &model.FileDetails{Path: "/tmp/x.txt", Content: strPtr("hi")},
			},
		},
		{
			name: "command with environment",
			action: &model.Action{
				ID:        "a-2",
				Type:      types.ActionTypeCommandRun,
				Status:    types.ActionStatusFailed,
				Timestamp: ts,
				Details: &model.CommandDetails{
					Command:          "make test",
					WorkingDirectory: "/src",
					Environment:      map[string]string{"CI": "1"},
				},
				Error:     "exit status 2",
				ProjectID: "p1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.action)
			gt.NoError(t, err).Required()

			var decoded model.Action
			gt.NoError(t, json.Unmarshal(data, &decoded)).Required()
			gt.V(t, decoded.Details).Equal(tt.action.Details)
			gt.V(t, decoded.Type).Equal(tt.action.Type)
			gt.V(t, decoded.Status).Equal(tt.action.Status)
			gt.V(t, decoded.Error).Equal(tt.action.Error)
			gt.B(t, decoded.Timestamp.Equal(tt.action.Timestamp)).True()
		})
	}
}

func TestAction_UnmarshalJSON_SelectsVariantByType(t *testing.T) {
	t.Run("command payload", func(t *testing.T) {
		var a model.Action
		err := json.Unmarshal([]byte(`{"type":"command_run","details":{"command":"ls","workingDirectory":"/tmp"}}`), &a)
		gt.NoError(t, err).Required()
		gt.V(t, a.CommandDetails()).NotNil()
		gt.V(t, a.CommandDetails().WorkingDirectory).Equal("/tmp")
		gt.V(t, a.FileDetails()).Nil()
	})

	t.Run("unknown type fails", func(t *testing.T) {
		var a model.Action
		err := json.Unmarshal([]byte(`{"type":"teleport","details":{}}`), &a)
		gt.Error(t, err).Is(model.ErrInvalidActionType)
	})

	t.Run("missing details fails", func(t *testing.T) {
		var a model.Action
		err := json.Unmarshal([]byte(`{"type":"file_delete"}`), &a)
		gt.Error(t, err).Is(model.ErrMissingDetails)
	})
}

func TestNewActionID(t *testing.T) {
	a := model.NewActionID()
	b := model.NewActionID()
	gt.V(t, a).NotEqual(b)
	gt.N(t, len(a.String())).Equal(36)
}
