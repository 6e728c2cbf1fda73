package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dukex/relay/pkg/cmd"
	"github.com/dukex/relay/pkg/log"
	"github.com/dukex/relay/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "relay-api",
		Usage:                 "Manage scenarios and trigger executions over HTTP",
		EnableShellCompletion: true,
		Flags: append(cmd.CommonFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("relay-api")
			logger.InfoContext(ctx, "Initializing Relay API")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()

			cfg := cmd.ConfigFromCommand("relay-api", command)
			cfg.Registerer = registry

			stack, err := cmd.NewStack(ctx, logger, cfg)
			if err != nil {
				return err
			}

			defer func() {
				if err := stack.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close stack", "error", err)
				}
			}()

			// The memory bus cannot reach a separate worker process, so the API
			// consumes its own requests.
			if cfg.EventBus == "memory" {
				if err := services.RegisterWorker(logger, stack.Bus, stack.Executions); err != nil {
					return err
				}

				if err := stack.Bus.Subscribe(ctx); err != nil {
					return err
				}
			}

			api := NewAPI(logger, stack, registry, true)
			app := api.App()

			go func() {
				<-ctx.Done()

				if err := app.Shutdown(); err != nil {
					logger.Error("Failed to shut down API", "error", err)
				}
			}()

			return app.Listen(":" + strconv.Itoa(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
