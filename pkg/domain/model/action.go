package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/types"
)

// ActionID is a UUID-based identifier for Action
type ActionID string

// NewActionID generates a time-ordered UUID v7 ActionID
func NewActionID() ActionID {
	return ActionID(uuid.Must(uuid.NewV7()).String())
}

func (id ActionID) String() string {
	return string(id)
}

// Action is a proposed side effect tracked through the approval state machine
type Action struct {
	ID          ActionID
	Type        types.ActionType
	Status      types.ActionStatus
	Timestamp   time.Time
	Description string
	Details     ActionDetails
	Result      string // set once executed
	Error       string // set once rejected or failed

	ProjectID      string // Optional: room that receives lifecycle updates
	SlackMessageTS string // Optional: approval message posted to Slack
	UpdatedAt      time.Time
}

// Validate checks that Details is present and is the variant required by Type
func (a *Action) Validate() error {
	if !a.Type.IsValid() {
		return goerr.Wrap(ErrInvalidActionType, "invalid action type",
			goerr.V(ActionIDKey, a.ID), goerr.V(ActionTypeKey, a.Type))
	}
	if a.Details == nil {
		return goerr.Wrap(ErrMissingDetails, "action details are required",
			goerr.V(ActionIDKey, a.ID), goerr.V(ActionTypeKey, a.Type))
	}
	if err := a.Details.validate(a.Type); err != nil {
		return goerr.Wrap(err, "invalid action details",
			goerr.V(ActionIDKey, a.ID), goerr.V(DetailsKey, DetailsTypeName(a.Details)))
	}
	return nil
}

// Copy returns a deep copy of the action
func (a *Action) Copy() *Action {
	c := *a
	if a.Details != nil {
		c.Details = a.Details.clone()
	}
	return &c
}

// FileDetails returns the details as file details, or nil for other variants
func (a *Action) FileDetails() *FileDetails {
	d, _ := a.Details.(*FileDetails)
	return d
}

// CommandDetails returns the details as command details, or nil for other variants
func (a *Action) CommandDetails() *CommandDetails {
	d, _ := a.Details.(*CommandDetails)
	return d
}

// CodeGenerationDetails returns the details as code generation details, or nil for other variants
func (a *Action) CodeGenerationDetails() *CodeGenerationDetails {
	d, _ := a.Details.(*CodeGenerationDetails)
	return d
}

type actionJSON struct {
	ID             ActionID           `json:"id"`
	Type           types.ActionType   `json:"type"`
	Status         types.ActionStatus `json:"status"`
	Timestamp      time.Time          `json:"timestamp"`
	Description    string             `json:"description"`
	Details        json.RawMessage    `json:"details"`
	Result         string             `json:"result,omitempty"`
	Error          string             `json:"error,omitempty"`
	ProjectID      string             `json:"projectId,omitempty"`
	SlackMessageTS string             `json:"slackMessageTs,omitempty"`
	UpdatedAt      time.Time          `json:"updatedAt,omitzero"`
}

// MarshalJSON encodes the action with details inlined under "details"
func (a Action) MarshalJSON() ([]byte, error) {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode action details", goerr.V(ActionIDKey, a.ID))
	}
	return json.Marshal(actionJSON{
		ID:             a.ID,
		Type:           a.Type,
		Status:         a.Status,
		Timestamp:      a.Timestamp,
		Description:    a.Description,
		Details:        details,
		Result:         a.Result,
		Error:          a.Error,
		ProjectID:      a.ProjectID,
		SlackMessageTS: a.SlackMessageTS,
		UpdatedAt:      a.UpdatedAt,
	})
}

// UnmarshalJSON decodes details into the variant selected by "type"
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return goerr.Wrap(err, "failed to decode action")
	}

	details, err := DecodeDetails(raw.Type, raw.Details)
	if err != nil {
		return goerr.Wrap(err, "failed to decode action", goerr.V(ActionIDKey, raw.ID))
	}

	*a = Action{
		ID:             raw.ID,
		Type:           raw.Type,
		Status:         raw.Status,
		Timestamp:      raw.Timestamp,
		Description:    raw.Description,
		Details:        details,
		Result:         raw.Result,
		Error:          raw.Error,
		ProjectID:      raw.ProjectID,
		SlackMessageTS: raw.SlackMessageTS,
		UpdatedAt:      raw.UpdatedAt,
	}
	return nil
}

// ExecutionResult is the structured outcome of an execute request.
// Exactly one of Result and Error is meaningful, selected by Success.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}
