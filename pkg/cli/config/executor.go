package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/service/executor"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
)

// ExecutorPolicy is the TOML policy file that constrains action execution
type ExecutorPolicy struct {
	WorkspaceRoot  string            `toml:"workspace_root"`
	CommandTimeout string            `toml:"command_timeout"`
	MaxConcurrent  int               `toml:"max_concurrent"`
	Environment    map[string]string `toml:"environment"`
}

// Validate checks if the ExecutorPolicy is valid
func (p *ExecutorPolicy) Validate() error {
	if p.CommandTimeout != "" {
		d, err := time.ParseDuration(p.CommandTimeout)
		if err != nil {
			return goerr.Wrap(ErrInvalidConfig, "command_timeout is not a duration",
				goerr.V(OptionKey, "command_timeout"), goerr.V(ValueKey, p.CommandTimeout))
		}
		if d < 0 {
			return goerr.Wrap(ErrInvalidConfig, "command_timeout must not be negative",
				goerr.V(OptionKey, "command_timeout"), goerr.V(ValueKey, p.CommandTimeout))
		}
	}

	if p.MaxConcurrent < 0 {
		return goerr.Wrap(ErrInvalidConfig, "max_concurrent must not be negative",
			goerr.V(OptionKey, "max_concurrent"), goerr.V(ValueKey, p.MaxConcurrent))
	}

	for name := range p.Environment {
		if name == "" || strings.ContainsAny(name, "= ") {
			return goerr.Wrap(ErrInvalidConfig, "invalid environment variable name",
				goerr.V(OptionKey, "environment"), goerr.V(ValueKey, name))
		}
	}

	return nil
}

// Timeout returns the parsed command timeout, or zero when unset
func (p *ExecutorPolicy) Timeout() time.Duration {
	d, _ := time.ParseDuration(p.CommandTimeout)
	return d
}

// LoadExecutorPolicy loads the executor policy from a TOML file
func LoadExecutorPolicy(path string) (*ExecutorPolicy, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "executor policy not found", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read executor policy", goerr.V(ConfigPathKey, path))
	}

	var policy ExecutorPolicy
	if err := toml.Unmarshal(data, &policy); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML policy",
			goerr.V(ConfigPathKey, path), goerr.V("cause", err.Error()))
	}

	if err := policy.Validate(); err != nil {
		return nil, goerr.Wrap(err, "executor policy validation failed", goerr.V(ConfigPathKey, path))
	}

	return &policy, nil
}

// Executor holds CLI flags that build the action executor. Flags override
// values from the policy file.
type Executor struct {
	policyPath     string
	workspaceRoot  string
	commandTimeout time.Duration
	maxConcurrent  int
}

func (x *Executor) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "executor-policy",
			Usage:       "Path to executor policy TOML file",
			Category:    "Executor",
			Sources:     cli.EnvVars("MUSUBI_EXECUTOR_POLICY"),
			Destination: &x.policyPath,
		},
		&cli.StringFlag{
			Name:        "workspace-root",
			Usage:       "Directory that file actions and commands are confined to",
			Category:    "Executor",
			Sources:     cli.EnvVars("MUSUBI_WORKSPACE_ROOT"),
			Destination: &x.workspaceRoot,
		},
		&cli.DurationFlag{
			Name:        "command-timeout",
			Usage:       "Deadline for each command_run action (default 5m)",
			Category:    "Executor",
			Sources:     cli.EnvVars("MUSUBI_COMMAND_TIMEOUT"),
			Destination: &x.commandTimeout,
		},
		&cli.IntFlag{
			Name:        "max-concurrent-executions",
			Usage:       "Maximum number of actions executing at once (default 4)",
			Category:    "Executor",
			Sources:     cli.EnvVars("MUSUBI_MAX_CONCURRENT_EXECUTIONS"),
			Destination: &x.maxConcurrent,
		},
	}
}

func (x Executor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("policy", x.policyPath),
		slog.String("workspace_root", x.workspaceRoot),
		slog.Duration("command_timeout", x.commandTimeout),
		slog.Int("max_concurrent", x.maxConcurrent),
	)
}

// Policy returns the effective policy: the policy file, if any, with flag values applied on top
func (x *Executor) Policy() (*ExecutorPolicy, error) {
	policy := &ExecutorPolicy{}
	if x.policyPath != "" {
		loaded, err := LoadExecutorPolicy(x.policyPath)
		if err != nil {
			return nil, err
		}
		policy = loaded
	}

	if x.workspaceRoot != "" {
		policy.WorkspaceRoot = x.workspaceRoot
	}
	if x.commandTimeout != 0 {
		policy.CommandTimeout = x.commandTimeout.String()
	}
	if x.maxConcurrent != 0 {
		policy.MaxConcurrent = x.maxConcurrent
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	if policy.WorkspaceRoot != "" {
		abs, err := filepath.Abs(policy.WorkspaceRoot)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to resolve workspace root", goerr.V(ValueKey, policy.WorkspaceRoot))
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return nil, goerr.Wrap(ErrInvalidConfig, "workspace root is not a directory",
				goerr.V(OptionKey, "workspace_root"), goerr.V(ValueKey, abs))
		}
		policy.WorkspaceRoot = abs
	}

	return policy, nil
}

// Configure builds the executor from the effective policy
func (x *Executor) Configure() (*executor.Executor, error) {
	policy, err := x.Policy()
	if err != nil {
		return nil, err
	}

	opts := []executor.Option{
		executor.WithEnvironment(policy.Environment),
		executor.WithMaxConcurrent(int64(policy.MaxConcurrent)),
	}
	if policy.WorkspaceRoot != "" {
		opts = append(opts, executor.WithWorkspaceRoot(policy.WorkspaceRoot))
	}
	if policy.CommandTimeout != "" {
		opts = append(opts, executor.WithCommandTimeout(policy.Timeout()))
	}

	return executor.New(opts...), nil
}
