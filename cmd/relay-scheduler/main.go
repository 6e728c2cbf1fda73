// Package main provides the relay scheduler for scheduled and polling triggers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/relay/pkg/cmd"
	"github.com/dukex/relay/pkg/log"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/triggers/schedule"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "relay-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Fire scheduled and polling triggers of active scenarios",
		Flags: append(cmd.CommonFlags(),
			&cli.DurationFlag{
				Name:    "sync-interval",
				Usage:   "How often active scenarios are reloaded",
				Value:   time.Minute,
				Sources: cli.EnvVars("SYNC_INTERVAL"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("relay-scheduler")
			logger.InfoContext(ctx, "Initializing Relay Scheduler")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			stack, err := cmd.NewStack(ctx, logger, cmd.ConfigFromCommand("relay-scheduler", command))
			if err != nil {
				return err
			}

			defer func() {
				if err := stack.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close stack", "error", err)
				}
			}()

			poller, err := stack.Registry.Get(models.NodeTypeAction)
			if err != nil {
				return err
			}

			scheduler := schedule.NewScheduler(logger, stack.Scenarios,
				schedule.DispatchStarter(stack.Executions, stack.Dispatcher), poller)

			if err := scheduler.Sync(ctx); err != nil {
				return err
			}

			scheduler.Start()

			ticker := time.NewTicker(command.Duration("sync-interval"))
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
					scheduler.Stop(stopCtx)
					cancel()

					return nil
				case <-ticker.C:
					if err := scheduler.Sync(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to sync scheduler", "error", err)
					}
				}
			}
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
