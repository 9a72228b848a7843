package cli

import (
	"context"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/cli/config"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var execCfg config.Executor
	var slackCfg config.Slack

	var flags []cli.Flag
	flags = append(flags, execCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the executor policy and Slack settings",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			policy, err := execCfg.Policy()
			if err != nil {
				return goerr.Wrap(err, "executor policy validation failed")
			}

			envNames := make([]string, 0, len(policy.Environment))
			for name := range policy.Environment {
				envNames = append(envNames, name)
			}
			sort.Strings(envNames)

			logger.Info("Executor policy validation passed",
				"workspace_root", policy.WorkspaceRoot,
				"command_timeout", policy.CommandTimeout,
				"max_concurrent", policy.MaxConcurrent,
				"environment", envNames,
			)

			if err := slackCfg.Validate(); err != nil {
				return goerr.Wrap(err, "slack settings validation failed")
			}
			logger.Info("Slack settings validation passed",
				"approval_messages", slackCfg.IsConfigured(),
				"interaction", slackCfg.IsInteractionConfigured(),
			)

			ok := color.New(color.FgGreen, color.Bold)
			_, _ = ok.Fprintln(os.Stdout, "✔ executor policy is valid")
			_, _ = ok.Fprintln(os.Stdout, "✔ slack settings are valid")
			if policy.WorkspaceRoot == "" {
				_, _ = color.New(color.FgYellow).Fprintln(os.Stdout, "! no workspace root: actions may touch any path")
			}

			return nil
		},
	}
}
