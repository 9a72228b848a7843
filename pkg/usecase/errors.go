package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	// Not found errors
	ErrActionNotFound = goerr.New("action not found")

	// Input errors
	ErrValidation = goerr.New("validation error")

	// Status errors
	ErrInvalidState = goerr.New("action is not in a valid state for this operation")
)

// Context keys for error values
const (
	ActionIDKey     = "action_id"
	ActionStatusKey = "status"
	ProjectIDKey    = "project_id"
)

// Messages reported in ExecutionResult.Error when execution is refused
const (
	msgActionNotFound    = "Action not found"
	msgActionNotApproved = "Action not approved"
	msgAlreadyExecuting  = "Action is already executing"
	msgLoadFailed        = "Failed to load action"

	defaultRejectReason = "User rejected"
)
