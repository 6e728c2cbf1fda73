package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/relay/pkg/cmd"
	"github.com/dukex/relay/pkg/log"
	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/services"
	"github.com/goccy/go-json"
	cli "github.com/urfave/cli/v3"
)

var fileFlag = &cli.StringFlag{
	Name:     "file",
	Aliases:  []string{"f"},
	Usage:    "Scenario file (YAML or JSON)",
	Required: true,
}

var executionFlag = &cli.StringFlag{
	Name:     "execution-id",
	Aliases:  []string{"e"},
	Usage:    "Execution ID",
	Required: true,
}

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check a scenario file without storing it",
		Flags: []cli.Flag{fileFlag},
		Action: func(_ context.Context, command *cli.Command) error {
			bundle, err := LoadBundle(command.String("file"))
			if err != nil {
				return err
			}

			if bundle.Scenario.Status == "" {
				bundle.Scenario.Status = models.ScenarioStatusDraft
			}

			if err := services.NewScenario(nil).Validate(bundle.Definition()); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(command.Writer, "%s: %d nodes, valid\n", bundle.Scenario.ID, len(bundle.Nodes))

			return nil
		},
	}
}

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Store a scenario file",
		Flags: append(cmd.CommonFlags(),
			fileFlag,
			&cli.BoolFlag{Name: "activate", Usage: "Activate the scenario after import"},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			return withStack(ctx, command, func(stack *cmd.Stack) error {
				def, err := importFile(ctx, stack, command.String("file"))
				if err != nil {
					return err
				}

				if command.Bool("activate") {
					if _, err := stack.Scenarios.Activate(ctx, def.Scenario.ID); err != nil {
						return err
					}
				}

				return printJSON(command.Writer, def)
			})
		},
	}
}

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Import a scenario file and run it once",
		Flags: append(cmd.CommonFlags(),
			fileFlag,
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "Trigger data as a JSON object"},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			data := map[string]any{}
			if raw := command.String("data"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &data); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
			}

			return withStack(ctx, command, func(stack *cmd.Stack) error {
				def, err := importFile(ctx, stack, command.String("file"))
				if err != nil {
					return err
				}

				execution, err := stack.Executions.Execute(ctx, services.TriggerRequest{
					ScenarioID: def.Scenario.ID,
					Type:       models.TriggerTypeManual,
					Data:       data,
				})
				if err != nil {
					return err
				}

				return report(command.Writer, execution)
			})
		},
	}
}

func NewResumeCommand() *cli.Command {
	return &cli.Command{
		Name:  "resume",
		Usage: "Continue a finished execution from a checkpoint",
		Flags: append(cmd.CommonFlags(),
			executionFlag,
			&cli.StringFlag{Name: "checkpoint-id", Usage: "Checkpoint to resume from (latest when empty)"},
			&cli.StringFlag{Name: "start-from", Usage: "Node to run again with its dependents"},
			&cli.BoolFlag{Name: "skip-failed", Usage: "Treat the failed node as skipped"},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			return withStack(ctx, command, func(stack *cmd.Stack) error {
				execution, err := stack.Executions.Resume(ctx, services.ResumeRequest{
					ExecutionID:     command.String("execution-id"),
					CheckpointID:    command.String("checkpoint-id"),
					StartFromNodeID: command.String("start-from"),
					SkipFailedNode:  command.Bool("skip-failed"),
				})
				if err != nil {
					return err
				}

				finished, err := stack.Executions.Run(ctx, execution.ID)
				if err != nil {
					return err
				}

				return report(command.Writer, finished)
			})
		},
	}
}

func NewCancelCommand() *cli.Command {
	return &cli.Command{
		Name:  "cancel",
		Usage: "Request cancellation of a running execution",
		Flags: append(cmd.CommonFlags(), executionFlag),
		Action: func(ctx context.Context, command *cli.Command) error {
			return withStack(ctx, command, func(stack *cmd.Stack) error {
				return stack.Executions.Cancel(ctx, command.String("execution-id"))
			})
		},
	}
}

func withStack(ctx context.Context, command *cli.Command, fn func(*cmd.Stack) error) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("relay")

	stack, err := cmd.NewStack(ctx, logger, cmd.ConfigFromCommand("relay", command))
	if err != nil {
		return err
	}

	defer func() {
		if err := stack.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close stack", "error", err)
		}
	}()

	return fn(stack)
}

func importFile(ctx context.Context, stack *cmd.Stack, path string) (*services.Definition, error) {
	bundle, err := LoadBundle(path)
	if err != nil {
		return nil, err
	}

	return bundle.Import(ctx, stack.Persistence, stack.Credentials, stack.Scenarios)
}

// report prints the execution and fails the command unless it completed.
func report(w io.Writer, execution *models.Execution) error {
	if err := printJSON(w, execution); err != nil {
		return err
	}

	if execution.Status != models.ExecutionStatusCompleted {
		slog.Default().Error("Execution did not complete", "execution_id", execution.ID, "status", execution.Status, "error", execution.Error)

		return cli.Exit("execution "+string(execution.Status), 2)
	}

	return nil
}

func printJSON(w io.Writer, value any) error {
	if w == nil {
		w = os.Stdout
	}

	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(encoded))

	return err
}
