// Package commands implements the keiko subcommands.
package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/keikotool/keiko/cmd/keiko/output"
	"github.com/keikotool/keiko/engine"
	"github.com/keikotool/keiko/observability"
)

// updateRunner is the engine surface the command needs; substitutable in
// tests.
type updateRunner interface {
	Run(ctx context.Context) (*engine.Result, error)
}

var newUpdateEngine = func(opts engine.Options, logger observability.Logger) updateRunner {
	return engine.New(opts, &engine.Config{Logger: logger})
}

// engineLogger picks the engine's diagnostic level from the console
// verbosity: detailed runs surface per-package debug output on stderr.
func engineLogger(console *output.Console) observability.Logger {
	return observability.NewLogger(os.Stderr, engineLogLevel(console.GetVerbosity()))
}

func engineLogLevel(v output.Verbosity) observability.LogLevel {
	if v >= output.VerbosityDetailed {
		return observability.DebugLevel
	}
	return observability.WarnLevel
}

// NewUpdateCommand creates the update command
func NewUpdateCommand(console *output.Console) *cobra.Command {
	var (
		dryRun     bool
		noBackup   bool
		transitive bool
		manifest   string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update all dependencies to their latest versions",
		Long: `Update rewrites every dependency in pyproject.toml to a floor constraint on
the latest PyPI version, verifies the result with uv in a scratch directory,
and attempts one corrective pass when verification fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.Options{
				ManifestPath:  manifest,
				DryRun:        dryRun,
				NoBackup:      noBackup,
				Transitive:    transitive,
				VerifyTimeout: timeout,
			}
			return runUpdate(cmd.Context(), console, opts)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and verify without writing any files")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "Skip writing the .backup copy before rewriting")
	cmd.Flags().BoolVar(&transitive, "transitive", false, "Walk declared transitive requirements when planning")
	cmd.Flags().StringVar(&manifest, "manifest", engine.DefaultManifestPath, "Path to the manifest to update")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-check timeout for the external package manager")

	return cmd
}

func runUpdate(ctx context.Context, console *output.Console, opts engine.Options) error {
	console.Info("Checking for updates in %s...", opts.ManifestPath)

	result, err := newUpdateEngine(opts, engineLogger(console)).Run(ctx)
	if err != nil {
		return err
	}

	renderResult(console, result, opts)
	return nil
}

func renderResult(console *output.Console, result *engine.Result, opts engine.Options) {
	if result.UpToDate {
		console.Success("All dependencies are already up to date")
		return
	}

	if result.VerifySkipped {
		console.Warning("uv is not available, installability was not checked")
	}

	if len(result.Records) > 0 {
		console.Header("Updated %d package(s):", len(result.Records))
		for _, record := range result.Records {
			console.Update(record)
		}
	}

	if result.ConflictRule != "" {
		console.Info("Resolved a dependency conflict (%s): %s", result.ConflictRule, result.ConflictNote)
	}

	if len(result.Suggestions) > 0 {
		console.Warning("The updated manifest still has a dependency conflict. Suggestions:")
		for _, s := range result.Suggestions {
			console.Update(s)
		}
	}

	if opts.DryRun {
		console.Info("Dry run: %s was not modified", opts.ManifestPath)
		return
	}

	if result.Written {
		if result.BackupPath != "" {
			console.Detail("Backup written to %s", result.BackupPath)
		}
		console.Success("Updated %s", opts.ManifestPath)
		console.Info("Run 'uv lock' to update your lock file")
		console.Info("Run 'uv sync' to apply the updates")
	}
}
