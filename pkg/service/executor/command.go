package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

const commandSuccessResult = "Command executed successfully"

// runCommand interprets the command line with a POSIX shell interpreter.
// A non-zero exit, a parse error or the deadline is a failure; stderr alone is not.
func (e *Executor) runCommand(ctx context.Context, d *model.CommandDetails) (string, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(d.Command), "")
	if err != nil {
		return "", goerr.Wrap(ErrInvalidCommand, err.Error(), goerr.V(CommandKey, d.Command))
	}

	dir, err := e.workingDirectory(d.WorkingDirectory)
	if err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(expand.ListEnviron(e.environ(d.Environment)...)),
		interp.StdIO(nil, &stdout, &stderr),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to prepare command", goerr.V(CommandKey, d.Command), goerr.V(PathKey, dir))
	}

	runCtx := ctx
	if e.commandTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.commandTimeout)
		defer cancel()
	}

	runErr := runner.Run(runCtx, file)

	if stderr.Len() > 0 {
		logging.From(ctx).Warn("command wrote to stderr",
			"command", d.Command,
			"stderr", stderr.String(),
		)
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", goerr.Wrap(ErrCommandTimeout, "command exceeded its deadline",
			goerr.V(CommandKey, d.Command),
			goerr.V(TimeoutKey, e.commandTimeout.String()))
	}
	if runErr != nil {
		return "", goerr.Wrap(runErr, "command failed",
			goerr.V(CommandKey, d.Command),
			goerr.V(StderrKey, stderr.String()))
	}

	if stdout.Len() == 0 {
		return commandSuccessResult, nil
	}
	return stdout.String(), nil
}

func (e *Executor) workingDirectory(dir string) (string, error) {
	if dir == "" {
		if e.root != "" {
			return e.resolve(".")
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", goerr.Wrap(err, "failed to get current directory")
		}
		return wd, nil
	}
	return e.resolve(dir)
}

// environ merges process, executor and per-action variables; later sources win
func (e *Executor) environ(extra map[string]string) []string {
	env := os.Environ()
	env = append(env, sortedPairs(e.environment)...)
	env = append(env, sortedPairs(extra)...)
	return env
}

func sortedPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return pairs
}
