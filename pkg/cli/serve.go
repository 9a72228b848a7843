package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/cli/config"
	httpctrl "github.com/musubi-dev/musubi/pkg/controller/http"
	"github.com/musubi-dev/musubi/pkg/service/realtime"
	"github.com/musubi-dev/musubi/pkg/service/worker"
	"github.com/musubi-dev/musubi/pkg/usecase"
	"github.com/musubi-dev/musubi/pkg/utils/async"
	"github.com/musubi-dev/musubi/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func cmdServe(version string) *cli.Command {
	var addr string
	var cleanupInterval time.Duration
	var repoCfg config.Repository
	var execCfg config.Executor
	var slackCfg config.Slack
	var sentryCfg config.Sentry

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       "0.0.0.0:3000",
			Sources:     cli.EnvVars("MUSUBI_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "cleanup-interval",
			Usage:       "Interval for purging executed and rejected actions; purged results can no longer be fetched (0 disables)",
			Sources:     cli.EnvVars("MUSUBI_CLEANUP_INTERVAL"),
			Destination: &cleanupInterval,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, execCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP and websocket server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("Configuration",
				"addr", addr,
				"cleanup_interval", cleanupInterval,
				"repository", repoCfg,
				"executor", execCfg,
				"slack", slackCfg,
				"sentry", sentryCfg,
			)

			flush, err := sentryCfg.Configure(version)
			if err != nil {
				return err
			}
			defer flush()

			port, err := portOf(addr)
			if err != nil {
				return err
			}

			// Initialize repository based on backend type
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			exec, err := execCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure executor")
			}

			slackSvc, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure slack")
			}

			rt := realtime.New()
			background := &async.Group{}

			ucOpts := []usecase.Option{
				usecase.WithExecutor(exec),
				usecase.WithPublisher(rt),
				usecase.WithBackground(background),
			}
			if slackSvc != nil {
				ucOpts = append(ucOpts, usecase.WithSlack(slackSvc, slackCfg.ChannelID()))
				logging.Default().Info("Slack approval messages enabled", "channel_id", slackCfg.ChannelID())
			} else {
				logging.Default().Info("Slack not configured, approvals are API only")
			}
			uc := usecase.New(repo, ucOpts...)

			httpOpts := []httpctrl.Options{
				httpctrl.WithFilePreview(exec),
				httpctrl.WithPort(port),
			}
			if slackCfg.IsInteractionConfigured() {
				httpOpts = append(httpOpts, httpctrl.WithSlackInteraction(slackCfg.SigningSecret()))
				logging.Default().Info("Slack interaction handler enabled")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc.Action, rt, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			var cleaner *worker.CleanupWorker
			if cleanupInterval > 0 {
				cleaner = worker.NewCleanupWorker(uc.Action, cleanupInterval)
				if err := cleaner.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start cleanup worker")
				}
			}

			// Setup signal handling for graceful shutdown
			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			eg, egCtx := errgroup.WithContext(sigCtx)
			eg.Go(func() error {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return goerr.Wrap(err, "failed to start server", goerr.V("addr", addr))
				}
				return nil
			})
			eg.Go(func() error {
				<-egCtx.Done()
				logging.Default().Info("Shutting down")

				if cleaner != nil {
					cleaner.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				var shutdownErr error
				if err := server.Shutdown(shutdownCtx); err != nil {
					shutdownErr = goerr.Wrap(err, "failed to shutdown server gracefully")
				}
				rt.Close(shutdownCtx)

				// Executions started from Slack run detached from any request
				background.Wait()

				logging.Default().Info("Server shutdown completed")
				return shutdownErr
			})

			return eg.Wait()
		},
	}
}

func portOf(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, goerr.Wrap(config.ErrInvalidConfig, "invalid listen address", goerr.V(config.ValueKey, addr))
	}
	if p == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 0, goerr.Wrap(config.ErrInvalidConfig, "invalid listen port", goerr.V(config.ValueKey, addr))
	}
	return port, nil
}
