// Package main provides the relay worker, which runs dispatched executions.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/relay/pkg/cmd"
	"github.com/dukex/relay/pkg/log"
	"github.com/dukex/relay/pkg/services"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "relay-worker",
		EnableShellCompletion: true,
		Usage:                 "Run dispatched scenario executions",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("relay-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Relay Worker")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			stack, err := cmd.NewStack(ctx, logger, cmd.ConfigFromCommand("relay-worker", command))
			if err != nil {
				return err
			}

			defer func() {
				if err := stack.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close stack", "error", err)
				}
			}()

			if err := services.RegisterWorker(logger, stack.Bus, stack.Executions); err != nil {
				return err
			}

			if err := stack.Bus.Subscribe(ctx); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Worker started")

			<-ctx.Done()

			logger.InfoContext(context.WithoutCancel(ctx), "Worker stopping")

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
