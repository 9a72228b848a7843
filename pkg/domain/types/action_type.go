package types

import "fmt"

// ActionType identifies which side effect an action proposes
type ActionType string

const (
	ActionTypeCodeGeneration ActionType = "code_generation"
	ActionTypeFileCreate     ActionType = "file_create"
	ActionTypeFileEdit       ActionType = "file_edit"
	ActionTypeFileDelete     ActionType = "file_delete"
	ActionTypeCommandRun     ActionType = "command_run"
)

// AllActionTypes returns all valid action types
func AllActionTypes() []ActionType {
	return []ActionType{
		ActionTypeCodeGeneration,
		ActionTypeFileCreate,
		ActionTypeFileEdit,
		ActionTypeFileDelete,
		ActionTypeCommandRun,
	}
}

// IsValid checks if the action type is valid
func (t ActionType) IsValid() bool {
	switch t {
	case ActionTypeCodeGeneration,
		ActionTypeFileCreate,
		ActionTypeFileEdit,
		ActionTypeFileDelete,
		ActionTypeCommandRun:
		return true
	default:
		return false
	}
}

// IsFileOperation reports whether the type carries file details
func (t ActionType) IsFileOperation() bool {
	return t == ActionTypeFileCreate || t == ActionTypeFileEdit || t == ActionTypeFileDelete
}

// HasSideEffect is false only for code generation, which merely records output
func (t ActionType) HasSideEffect() bool {
	return t.IsValid() && t != ActionTypeCodeGeneration
}

func (t ActionType) String() string {
	return string(t)
}

// ParseActionType parses a string into an ActionType
func ParseActionType(s string) (ActionType, error) {
	t := ActionType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid action type: %s", s)
	}
	return t, nil
}
