package model

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/types"
)

// ActionDetails is the type-specific payload of an Action. The set of
// implementations is closed: CodeGenerationDetails, FileDetails and CommandDetails.
type ActionDetails interface {
	// validate checks required fields for the given action type
	validate(t types.ActionType) error
	// clone returns a deep copy
	clone() ActionDetails
}

// CodeGenerationDetails records generated code. Executing it performs no side effect.
type CodeGenerationDetails struct {
	Prompt        string `json:"prompt"`
	Language      string `json:"language,omitempty"`
	GeneratedCode string `json:"generatedCode,omitempty"`
	Explanation   string `json:"explanation,omitempty"`
}

func (d *CodeGenerationDetails) validate(t types.ActionType) error {
	if d == nil {
		return goerr.Wrap(ErrMissingDetails, "action details are nil", goerr.V(ActionTypeKey, t))
	}
	if t != types.ActionTypeCodeGeneration {
		return goerr.Wrap(ErrDetailsMismatch, "code generation details require code_generation type",
			goerr.V(ActionTypeKey, t))
	}
	return nil
}

func (d *CodeGenerationDetails) clone() ActionDetails {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// FileDetails targets a single file. Content is required for create and edit;
// a nil Content means "absent", while an empty string is a valid empty file.
type FileDetails struct {
	Path       string  `json:"path"`
	Content    *string `json:"content,omitempty"`
	OldContent *string `json:"oldContent,omitempty"`
}

func (d *FileDetails) validate(t types.ActionType) error {
	if d == nil {
		return goerr.Wrap(ErrMissingDetails, "action details are nil", goerr.V(ActionTypeKey, t))
	}
	if !t.IsFileOperation() {
		return goerr.Wrap(ErrDetailsMismatch, "file details require a file operation type",
			goerr.V(ActionTypeKey, t))
	}
	if d.Path == "" {
		return goerr.Wrap(ErrMissingRequired, "path is required", goerr.V(FieldKey, "path"))
	}
	if t != types.ActionTypeFileDelete && d.Content == nil {
		return goerr.Wrap(ErrMissingRequired, "content is required", goerr.V(FieldKey, "content"))
	}
	return nil
}

func (d *FileDetails) clone() ActionDetails {
	if d == nil {
		return nil
	}
	c := FileDetails{Path: d.Path}
	if d.Content != nil {
		content := *d.Content
		c.Content = &content
	}
	if d.OldContent != nil {
		old := *d.OldContent
		c.OldContent = &old
	}
	return &c
}

// CommandDetails is a shell command line, optionally run in WorkingDirectory
// with Environment added on top of the executor environment.
type CommandDetails struct {
	Command          string            `json:"command"`
	WorkingDirectory string            `json:"workingDirectory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
}

func (d *CommandDetails) validate(t types.ActionType) error {
	if d == nil {
		return goerr.Wrap(ErrMissingDetails, "action details are nil", goerr.V(ActionTypeKey, t))
	}
	if t != types.ActionTypeCommandRun {
		return goerr.Wrap(ErrDetailsMismatch, "command details require command_run type",
			goerr.V(ActionTypeKey, t))
	}
	if d.Command == "" {
		return goerr.Wrap(ErrMissingRequired, "command is required", goerr.V(FieldKey, "command"))
	}
	return nil
}

func (d *CommandDetails) clone() ActionDetails {
	if d == nil {
		return nil
	}
	c := *d
	if d.Environment != nil {
		c.Environment = maps.Clone(d.Environment)
	}
	return &c
}

// NewDetails returns an empty details value of the variant that t requires
func NewDetails(t types.ActionType) (ActionDetails, error) {
	switch t {
	case types.ActionTypeCodeGeneration:
		return &CodeGenerationDetails{}, nil
	case types.ActionTypeFileCreate, types.ActionTypeFileEdit, types.ActionTypeFileDelete:
		return &FileDetails{}, nil
	case types.ActionTypeCommandRun:
		return &CommandDetails{}, nil
	default:
		return nil, goerr.Wrap(ErrInvalidActionType, "no details variant for action type",
			goerr.V(ActionTypeKey, t))
	}
}

// DecodeDetails decodes raw JSON into the variant selected by t
func DecodeDetails(t types.ActionType, raw json.RawMessage) (ActionDetails, error) {
	details, err := NewDetails(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, goerr.Wrap(ErrMissingDetails, "details are required", goerr.V(ActionTypeKey, t))
	}
	if err := json.Unmarshal(raw, details); err != nil {
		return nil, goerr.Wrap(err, "failed to decode action details", goerr.V(ActionTypeKey, t))
	}
	return details, nil
}

// DetailsTypeName returns a short name of the variant for logging
func DetailsTypeName(d ActionDetails) string {
	switch d.(type) {
	case *CodeGenerationDetails:
		return "code_generation"
	case *FileDetails:
		return "file"
	case *CommandDetails:
		return "command"
	case nil:
		return "none"
	default:
		return fmt.Sprintf("%T", d)
	}
}
