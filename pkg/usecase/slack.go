package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/utils/errutil"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
	goslack "github.com/slack-go/slack"
)

// Slack interaction action IDs for Block Kit buttons
const (
	SlackActionIDApprove       = "musubi_approve"
	SlackActionIDApproveAndRun = "musubi_approve_and_run"
	SlackActionIDReject        = "musubi_reject"
	SlackActionIDRun           = "musubi_run"
	slackActionBlockID         = "musubi_action_buttons"

	// Section text is limited to 3000 characters by Slack
	slackMaxSectionBytes = 2800
)

// HandleSlackInteraction processes a button click on an approval message.
// Approve and reject go through the same state machine as the REST API;
// runs are started in the background because Slack expects a reply within seconds.
func (uc *ActionUseCase) HandleSlackInteraction(ctx context.Context, id model.ActionID, userID string, slackActionID string) error {
	logger := logging.From(ctx).With("action_id", id, "slack_user_id", userID, "slack_action", slackActionID)

	if _, err := uc.Get(ctx, id); err != nil {
		return err
	}

	switch slackActionID {
	case SlackActionIDApprove, SlackActionIDApproveAndRun:
		ok, err := uc.Approve(ctx, id)
		if err != nil {
			return goerr.Wrap(err, "failed to approve action from Slack", goerr.V(ActionIDKey, id))
		}
		if !ok {
			logger.Info("approval from Slack ignored, action is not pending")
			uc.refreshSlackMessage(ctx, id)
			return nil
		}
		if slackActionID == SlackActionIDApproveAndRun {
			uc.runInBackground(ctx, id)
		}

	case SlackActionIDReject:
		ok, err := uc.Reject(ctx, id, fmt.Sprintf("Rejected by <@%s> in Slack", userID))
		if err != nil {
			return goerr.Wrap(err, "failed to reject action from Slack", goerr.V(ActionIDKey, id))
		}
		if !ok {
			logger.Info("rejection from Slack ignored, action is not pending")
			uc.refreshSlackMessage(ctx, id)
		}

	case SlackActionIDRun:
		uc.runInBackground(ctx, id)

	default:
		logger.Debug("unknown Slack action ignored")
	}

	return nil
}

func (uc *ActionUseCase) runInBackground(ctx context.Context, id model.ActionID) {
	uc.background.Dispatch(ctx, "execute_action", func(ctx context.Context) error {
		result := uc.Execute(ctx, id)
		if !result.Success {
			logging.From(ctx).Warn("action run from Slack did not succeed",
				"action_id", id,
				"error", result.Error,
			)
		}
		return nil
	})
}

// postSlackMessage posts the approval request and stores its timestamp (best-effort)
func (uc *ActionUseCase) postSlackMessage(ctx context.Context, action *model.Action) {
	if uc.slackService == nil || uc.slackChannelID == "" {
		return
	}

	blocks := buildActionMessageBlocks(action)
	fallbackText := fmt.Sprintf("Approval requested: %s", actionTitle(action))
	ts, err := uc.slackService.PostMessage(ctx, uc.slackChannelID, blocks, fallbackText)
	if err != nil {
		_ = errutil.Handle(ctx, err, "failed to post Slack approval message")
		return
	}
	if ts == "" {
		return
	}

	stored := uc.storeSlackMessageTS(ctx, action.ID, ts)
	// The action may have been decided while the message was in flight
	if stored != nil && stored.Status != action.Status {
		uc.updateSlackMessage(ctx, stored)
	}
}

func (uc *ActionUseCase) storeSlackMessageTS(ctx context.Context, id model.ActionID, ts string) *model.Action {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	action, err := uc.repo.Action().Get(ctx, id)
	if err != nil {
		_ = errutil.Handle(ctx, err, "failed to get action to store Slack message timestamp")
		return nil
	}

	action.SlackMessageTS = ts
	updated, err := uc.repo.Action().Update(ctx, action)
	if err != nil {
		_ = errutil.Handle(ctx, err, "failed to update action with Slack message timestamp")
		return nil
	}
	return updated
}

func (uc *ActionUseCase) refreshSlackMessage(ctx context.Context, id model.ActionID) {
	action, err := uc.repo.Action().Get(ctx, id)
	if err != nil {
		_ = errutil.Handle(ctx, err, "failed to get action for Slack message refresh")
		return
	}
	uc.updateSlackMessage(ctx, action)
}

// updateSlackMessage updates the Slack message for an action (best-effort).
func (uc *ActionUseCase) updateSlackMessage(ctx context.Context, action *model.Action) {
	if uc.slackService == nil || uc.slackChannelID == "" || action.SlackMessageTS == "" {
		return
	}

	blocks := buildActionMessageBlocks(action)
	fallbackText := fmt.Sprintf("Action %s: %s", action.Status, actionTitle(action))
	if err := uc.slackService.UpdateMessage(ctx, uc.slackChannelID, action.SlackMessageTS, blocks, fallbackText); err != nil {
		_ = errutil.Handle(ctx, err, "failed to update Slack message for action")
	}
}

func actionTitle(action *model.Action) string {
	if action.Description != "" {
		return action.Description
	}
	return action.Type.String()
}

// buildActionMessageBlocks constructs Block Kit blocks for an approval message.
func buildActionMessageBlocks(action *model.Action) []goslack.Block {
	blocks := []goslack.Block{
		goslack.NewHeaderBlock(
			goslack.NewTextBlockObject(goslack.PlainTextType, "Action: "+action.Status.Emoji()+" "+action.Type.String(), true, false),
		),
	}

	if action.Description != "" {
		blocks = append(blocks, markdownSection(action.Description))
	}

	if detail := detailsMarkdown(action); detail != "" {
		blocks = append(blocks, markdownSection(detail))
	}

	switch action.Status {
	case types.ActionStatusExecuted:
		blocks = append(blocks, markdownSection("*Result*\n"+codeBlock(action.Result)))
	case types.ActionStatusFailed, types.ActionStatusRejected:
		blocks = append(blocks, markdownSection("*Error*\n"+codeBlock(action.Error)))
	}

	contextParts := []string{
		fmt.Sprintf("Status: %s", action.Status),
		fmt.Sprintf("ID: `%s`", action.ID),
	}
	if action.ProjectID != "" {
		contextParts = append(contextParts, fmt.Sprintf("Project: %s", action.ProjectID))
	}
	blocks = append(blocks, goslack.NewContextBlock("",
		goslack.NewTextBlockObject(goslack.MarkdownType, strings.Join(contextParts, "  |  "), false, false),
	))

	buttonValue := action.ID.String()
	var buttons []goslack.BlockElement
	switch action.Status {
	case types.ActionStatusPending:
		approve := goslack.NewButtonBlockElement(SlackActionIDApprove, buttonValue,
			goslack.NewTextBlockObject(goslack.PlainTextType, "Approve", true, false),
		)
		approve.Style = goslack.StylePrimary
		approveAndRun := goslack.NewButtonBlockElement(SlackActionIDApproveAndRun, buttonValue,
			goslack.NewTextBlockObject(goslack.PlainTextType, "Approve & Run", true, false),
		)
		reject := goslack.NewButtonBlockElement(SlackActionIDReject, buttonValue,
			goslack.NewTextBlockObject(goslack.PlainTextType, "Reject", true, false),
		)
		reject.Style = goslack.StyleDanger
		buttons = append(buttons, approve, approveAndRun, reject)

	case types.ActionStatusApproved:
		run := goslack.NewButtonBlockElement(SlackActionIDRun, buttonValue,
			goslack.NewTextBlockObject(goslack.PlainTextType, "Run", true, false),
		)
		run.Style = goslack.StylePrimary
		buttons = append(buttons, run)
	}

	if len(buttons) > 0 {
		blocks = append(blocks, goslack.NewActionBlock(slackActionBlockID, buttons...))
	}

	return blocks
}

func detailsMarkdown(action *model.Action) string {
	switch action.Type {
	case types.ActionTypeCommandRun:
		d := action.CommandDetails()
		if d == nil {
			return ""
		}
		lines := []string{"*Command*", codeBlock(d.Command)}
		if d.WorkingDirectory != "" {
			lines = append(lines, fmt.Sprintf("Working directory: `%s`", d.WorkingDirectory))
		}
		if len(d.Environment) > 0 {
			keys := make([]string, 0, len(d.Environment))
			for k := range d.Environment {
				keys = append(keys, "`"+k+"`")
			}
			sort.Strings(keys)
			// values may hold secrets; only names are shown
			lines = append(lines, "Environment: "+strings.Join(keys, ", "))
		}
		return strings.Join(lines, "\n")

	case types.ActionTypeFileCreate, types.ActionTypeFileEdit, types.ActionTypeFileDelete:
		d := action.FileDetails()
		if d == nil {
			return ""
		}
		text := fmt.Sprintf("*Path* `%s`", d.Path)
		if d.Content != nil {
			text += "\n" + codeBlock(*d.Content)
		}
		return text

	case types.ActionTypeCodeGeneration:
		d := action.CodeGenerationDetails()
		if d == nil {
			return ""
		}
		text := "*Prompt*\n" + d.Prompt
		if d.GeneratedCode != "" {
			text += "\n" + codeBlock(d.GeneratedCode)
		}
		return text
	}
	return ""
}

func markdownSection(text string) *goslack.SectionBlock {
	return goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, truncateToMaxBytes(text, slackMaxSectionBytes), false, false),
		nil, nil,
	)
}

func codeBlock(s string) string {
	if s == "" {
		s = " "
	}
	return "```" + truncateToMaxBytes(s, slackMaxSectionBytes-16) + "```"
}

// truncateToMaxBytes cuts s to at most maxBytes without splitting a UTF-8 sequence
func truncateToMaxBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	const ellipsis = "…"
	limit := maxBytes - len(ellipsis)
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + ellipsis
}
