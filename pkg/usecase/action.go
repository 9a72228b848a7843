package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/interfaces"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/service/slack"
	"github.com/musubi-dev/musubi/pkg/utils/async"
	"github.com/musubi-dev/musubi/pkg/utils/errutil"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
)

// ActionUseCase drives actions through the approval state machine.
// Every status change goes through mu, so a read-check-write on one action
// is never interleaved with another on the same action.
type ActionUseCase struct {
	repo           interfaces.Repository
	executor       interfaces.ActionExecutor
	publisher      interfaces.EventPublisher
	slackService   slack.Service
	slackChannelID string
	background     *async.Group

	mu        sync.Mutex
	executing map[model.ActionID]struct{}
}

func newActionUseCase(uc *UseCases) *ActionUseCase {
	return &ActionUseCase{
		repo:           uc.repo,
		executor:       uc.executor,
		publisher:      uc.publisher,
		slackService:   uc.slackService,
		slackChannelID: uc.slackChannelID,
		background:     uc.background,
		executing:      make(map[model.ActionID]struct{}),
	}
}

// Submit registers a proposed action as pending. It never executes anything.
func (uc *ActionUseCase) Submit(ctx context.Context, action *model.Action) (model.ActionID, error) {
	if action == nil {
		return "", goerr.Wrap(ErrValidation, "action is required")
	}

	submitted := action.Copy()
	if submitted.ID == "" {
		submitted.ID = model.NewActionID()
	}
	submitted.Status = types.ActionStatusPending
	submitted.Timestamp = time.Now().UTC()
	submitted.Result = ""
	submitted.Error = ""
	submitted.SlackMessageTS = ""

	if err := submitted.Validate(); err != nil {
		return "", goerr.Wrap(ErrValidation, err.Error(), goerr.V(ActionIDKey, submitted.ID))
	}

	created, err := uc.repo.Action().Create(ctx, submitted)
	if err != nil {
		if errors.Is(err, interfaces.ErrAlreadyExists) {
			return "", goerr.Wrap(ErrValidation, "action id is already in use", goerr.V(ActionIDKey, submitted.ID))
		}
		return "", goerr.Wrap(err, "failed to create action", goerr.V(ActionIDKey, submitted.ID))
	}

	logging.From(ctx).Info("action submitted",
		"action_id", created.ID,
		"action_type", created.Type,
		"project_id", created.ProjectID,
	)

	uc.postSlackMessage(ctx, created)
	uc.publish(created)

	return created.ID, nil
}

// ListPending returns actions awaiting a decision, oldest first
func (uc *ActionUseCase) ListPending(ctx context.Context) ([]*model.Action, error) {
	actions, err := uc.repo.Action().ListByStatus(ctx, types.ActionStatusPending)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pending actions")
	}
	return actions, nil
}

// List returns every stored action, oldest first
func (uc *ActionUseCase) List(ctx context.Context) ([]*model.Action, error) {
	actions, err := uc.repo.Action().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list actions")
	}
	return actions, nil
}

func (uc *ActionUseCase) Get(ctx context.Context, id model.ActionID) (*model.Action, error) {
	action, err := uc.repo.Action().Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, goerr.Wrap(ErrActionNotFound, "action not found", goerr.V(ActionIDKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get action", goerr.V(ActionIDKey, id))
	}
	return action, nil
}

// Approve moves a pending action to approved. It returns false without any
// change when the action is missing or not pending.
func (uc *ActionUseCase) Approve(ctx context.Context, id model.ActionID) (bool, error) {
	updated, err := uc.transition(ctx, id, types.ActionStatusApproved, func(a *model.Action) {})
	if err != nil || updated == nil {
		return false, err
	}

	logging.From(ctx).Info("action approved", "action_id", id)
	uc.notify(ctx, updated)
	return true, nil
}

// Reject moves a pending action to rejected and records reason as its error.
// An empty reason becomes "User rejected".
func (uc *ActionUseCase) Reject(ctx context.Context, id model.ActionID, reason string) (bool, error) {
	if reason == "" {
		reason = defaultRejectReason
	}

	updated, err := uc.transition(ctx, id, types.ActionStatusRejected, func(a *model.Action) {
		a.Error = reason
	})
	if err != nil || updated == nil {
		return false, err
	}

	logging.From(ctx).Info("action rejected", "action_id", id, "reason", reason)
	uc.notify(ctx, updated)
	return true, nil
}

// transition applies mutate and moves the action to next when the current
// status allows it. A nil action with nil error means the precondition failed.
func (uc *ActionUseCase) transition(ctx context.Context, id model.ActionID, next types.ActionStatus, mutate func(*model.Action)) (*model.Action, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	action, err := uc.repo.Action().Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get action", goerr.V(ActionIDKey, id))
	}

	if !action.Status.CanTransitionTo(next) {
		logging.From(ctx).Debug("action transition refused",
			"action_id", id,
			"from", action.Status,
			"to", next,
		)
		return nil, nil
	}

	action.Status = next
	mutate(action)

	updated, err := uc.repo.Action().Update(ctx, action)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update action",
			goerr.V(ActionIDKey, id), goerr.V(ActionStatusKey, next))
	}
	return updated, nil
}

// Execute runs an approved action and records the outcome on it. Refusals
// and failures are reported in the result, never as a Go error.
func (uc *ActionUseCase) Execute(ctx context.Context, id model.ActionID) *model.ExecutionResult {
	action, refusal := uc.beginExecution(ctx, id)
	if refusal != "" {
		return &model.ExecutionResult{Success: false, Error: refusal}
	}
	defer uc.endExecution(id)

	// The side effect must run to completion even if the requester goes away;
	// the command deadline bounds it instead.
	execCtx := context.WithoutCancel(ctx)

	var (
		output  string
		execErr error
	)
	if uc.executor == nil {
		execErr = goerr.New("action executor is not configured")
	} else {
		output, execErr = uc.executor.Execute(execCtx, action)
	}

	result := &model.ExecutionResult{Success: execErr == nil, Result: output}
	if execErr != nil {
		result.Result = ""
		result.Error = execErr.Error()
		logging.From(ctx).Warn("action execution failed",
			"action_id", id,
			"action_type", action.Type,
			"error", execErr,
		)
	} else {
		logging.From(ctx).Info("action executed", "action_id", id, "action_type", action.Type)
	}

	if recorded := uc.recordExecution(execCtx, id, result); recorded != nil {
		uc.notify(execCtx, recorded)
	}

	return result
}

func (uc *ActionUseCase) beginExecution(ctx context.Context, id model.ActionID) (*model.Action, string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	action, err := uc.repo.Action().Get(ctx, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, msgActionNotFound
		}
		_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to get action", goerr.V(ActionIDKey, id)), "failed to load action for execution")
		return nil, msgLoadFailed
	}

	if _, running := uc.executing[id]; running {
		return nil, msgAlreadyExecuting
	}
	if action.Status != types.ActionStatusApproved {
		return nil, msgActionNotApproved
	}

	uc.executing[id] = struct{}{}
	return action, ""
}

func (uc *ActionUseCase) endExecution(id model.ActionID) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.executing, id)
}

// recordExecution stores the outcome on the action. Storage failures are
// logged; the returned action is nil in that case.
func (uc *ActionUseCase) recordExecution(ctx context.Context, id model.ActionID, result *model.ExecutionResult) *model.Action {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	action, err := uc.repo.Action().Get(ctx, id)
	if err != nil {
		_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to get action", goerr.V(ActionIDKey, id)), "failed to record execution result")
		return nil
	}

	next := types.ActionStatusExecuted
	if !result.Success {
		next = types.ActionStatusFailed
	}
	if !action.Status.CanTransitionTo(next) {
		_ = errutil.Handle(ctx, goerr.Wrap(ErrInvalidState, "action changed while executing",
			goerr.V(ActionIDKey, id), goerr.V(ActionStatusKey, action.Status)), "failed to record execution result")
		return nil
	}

	action.Status = next
	action.Result = result.Result
	action.Error = result.Error

	updated, err := uc.repo.Action().Update(ctx, action)
	if err != nil {
		_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to update action", goerr.V(ActionIDKey, id)), "failed to record execution result")
		return nil
	}
	return updated
}

// Cleanup deletes executed and rejected actions and returns how many were removed.
// Failed, pending and approved actions are kept.
func (uc *ActionUseCase) Cleanup(ctx context.Context) (int, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	actions, err := uc.repo.Action().List(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list actions for cleanup")
	}

	var ids []model.ActionID
	for _, action := range actions {
		if action.Status.IsCleanable() {
			ids = append(ids, action.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := uc.repo.Action().DeleteMany(ctx, ids); err != nil {
		return 0, goerr.Wrap(err, "failed to delete actions", goerr.V("count", len(ids)))
	}

	logging.From(ctx).Info("actions cleaned up", "removed", len(ids))
	return len(ids), nil
}

// notify pushes the new state of action to its project room and its Slack message
func (uc *ActionUseCase) notify(ctx context.Context, action *model.Action) {
	uc.publish(action)
	uc.updateSlackMessage(ctx, action)
}

func (uc *ActionUseCase) publish(action *model.Action) {
	if uc.publisher == nil || action.ProjectID == "" {
		return
	}
	uc.publisher.Publish(action.ProjectID, types.EventActionUpdated, action)
}
