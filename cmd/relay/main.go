// Package main provides the relay command line: import, validate and run
// scenario files and manage their executions.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "relay",
		Usage:                 "Run scenarios from the command line",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewValidateCommand(),
			NewImportCommand(),
			NewRunCommand(),
			NewResumeCommand(),
			NewCancelCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "relay:", err)

		os.Exit(1)
	}
}
