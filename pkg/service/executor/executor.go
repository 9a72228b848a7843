package executor

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/interfaces"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultCommandTimeout = 5 * time.Minute
	DefaultMaxConcurrent  = 4

	codeGenerationResult = "Code generated successfully"
)

// Executor maps an approved action to its side effect. It is the only
// component that writes files or runs commands on behalf of an action.
type Executor struct {
	root           string
	commandTimeout time.Duration
	environment    map[string]string
	maxConcurrent  int64
	sem            *semaphore.Weighted
}

var _ interfaces.ActionExecutor = &Executor{}

type Option func(*Executor)

// WithWorkspaceRoot confines file paths and working directories to root
func WithWorkspaceRoot(root string) Option {
	return func(e *Executor) {
		e.root = root
	}
}

// WithCommandTimeout bounds every command_run execution. Zero or negative disables the deadline.
func WithCommandTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.commandTimeout = d
	}
}

// WithMaxConcurrent caps how many actions may execute at the same time
func WithMaxConcurrent(n int64) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// WithEnvironment sets variables added to every command environment
func WithEnvironment(env map[string]string) Option {
	return func(e *Executor) {
		e.environment = env
	}
}

func New(opts ...Option) *Executor {
	e := &Executor{
		commandTimeout: DefaultCommandTimeout,
		maxConcurrent:  DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = semaphore.NewWeighted(e.maxConcurrent)
	return e
}

// Execute performs the side effect of action and returns a human readable result.
// It does not look at action.Status; the caller owns the approval check.
func (e *Executor) Execute(ctx context.Context, action *model.Action) (string, error) {
	if err := action.Validate(); err != nil {
		return "", goerr.Wrap(err, "refusing to execute invalid action", goerr.V(ActionTypeKey, action.Type))
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return "", goerr.Wrap(err, "waiting for an execution slot was cancelled", goerr.V(ActionTypeKey, action.Type))
	}
	defer e.sem.Release(1)

	logging.From(ctx).Info("executing action",
		"action_id", action.ID,
		"action_type", action.Type,
	)

	switch action.Type {
	case types.ActionTypeFileCreate, types.ActionTypeFileEdit:
		return e.writeFile(action.Type, action.FileDetails())

	case types.ActionTypeFileDelete:
		return e.deleteFile(action.FileDetails())

	case types.ActionTypeCommandRun:
		return e.runCommand(ctx, action.CommandDetails())

	case types.ActionTypeCodeGeneration:
		return codeGenerationResult, nil

	default:
		return "", goerr.Wrap(ErrUnsupportedActionType, "no handler for action type", goerr.V(ActionTypeKey, action.Type))
	}
}
