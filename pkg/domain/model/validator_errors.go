package model

import "github.com/m-mizutani/goerr/v2"

// Validation errors
var (
	ErrValidation         = goerr.New("action validation failed")
	ErrInvalidActionType  = goerr.New("invalid action type")
	ErrMissingDetails     = goerr.New("action details are missing")
	ErrDetailsMismatch    = goerr.New("action details do not match action type")
	ErrMissingRequired    = goerr.New("required field is missing")
	ErrUnknownDetailsType = goerr.New("unknown details type")
)

// Context keys for error values
const (
	ActionIDKey   = "action_id"
	ActionTypeKey = "action_type"
	FieldKey      = "field"
	DetailsKey    = "details_type"
)
