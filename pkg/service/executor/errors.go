package executor

import "github.com/m-mizutani/goerr/v2"

var (
	ErrExecution             = goerr.New("execution failed")
	ErrFileNotFound          = goerr.New("file not found")
	ErrPathOutsideRoot       = goerr.New("path is outside the workspace root")
	ErrUnsupportedActionType = goerr.New("unsupported action type")
	ErrCommandTimeout        = goerr.New("command timed out")
	ErrInvalidCommand        = goerr.New("invalid command syntax")
)

// Context keys for error values
const (
	PathKey       = "path"
	CommandKey    = "command"
	ActionTypeKey = "action_type"
	StderrKey     = "stderr"
	TimeoutKey    = "timeout"
)
