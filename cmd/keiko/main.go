// cmd/keiko/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keikotool/keiko/cmd/keiko/cli"
	"github.com/keikotool/keiko/cmd/keiko/commands"
)

// Version information (set via ldflags during build)
var (
	version = "0.0.0-dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date
	cli.SetupVersion()

	cli.AddCommand(commands.NewUpdateCommand(cli.Console))
	cli.AddCommand(commands.NewVersionCommand(cli.Console))

	// An interrupt cancels the run; in-flight subprocesses terminate with
	// the context and no partial manifest is written.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130) // 128 + SIGINT
		}
		// Print error to stderr since SilenceErrors is true in rootCmd
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
