package http

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/usecase"
	"github.com/musubi-dev/musubi/pkg/utils/errutil"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
	"github.com/slack-go/slack"
)

// SlackInteractionHandler handles Slack interactive component payloads (button clicks, etc.)
type SlackInteractionHandler struct {
	actionUC *usecase.ActionUseCase
}

// NewSlackInteractionHandler creates a new Slack interaction handler
func NewSlackInteractionHandler(actionUC *usecase.ActionUseCase) *SlackInteractionHandler {
	return &SlackInteractionHandler{
		actionUC: actionUC,
	}
}

// ServeHTTP handles Slack interaction webhook requests
func (h *SlackInteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Slack sends interaction payloads as application/x-www-form-urlencoded
	// with a "payload" field containing JSON
	payload := r.FormValue("payload")
	if payload == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("missing payload field in interaction request"), http.StatusBadRequest)
		return
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &callback); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse interaction payload"), http.StatusBadRequest)
		return
	}

	// Only handle block_actions (button clicks)
	if callback.Type != slack.InteractionTypeBlockActions {
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, action := range callback.ActionCallback.BlockActions {
		switch action.ActionID {
		case usecase.SlackActionIDApprove, usecase.SlackActionIDApproveAndRun,
			usecase.SlackActionIDReject, usecase.SlackActionIDRun:
			actionID := model.ActionID(action.Value)
			userID := callback.User.ID

			if err := h.actionUC.HandleSlackInteraction(ctx, actionID, userID, action.ActionID); err != nil {
				logging.From(ctx).Error("failed to handle Slack interaction",
					"error", err,
					"slack_action_id", action.ActionID,
					"action_id", actionID,
					"user_id", userID,
				)
			}

		default:
			// Unknown action ID, skip
			continue
		}
	}

	w.WriteHeader(http.StatusOK)
}
