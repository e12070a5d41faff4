// cmd/keiko/cli/app.go
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/keikotool/keiko/cmd/keiko/output"
)

var rootCmd = &cobra.Command{
	Use:   "keiko",
	Short: "Smart dependency updater for pyproject.toml",
	Long: `keiko updates every dependency declared in a pyproject.toml to the latest
version on PyPI, then verifies the result is actually installable with uv and
resolves conflicts when it is not.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		// Show help when no command is provided
		_ = cmd.Help()
	},
}

// Console is the global console for CLI commands
var Console *output.Console

// Execute runs the root command with the given context
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	Console = output.DefaultConsole()

	rootCmd.PersistentFlags().StringP("verbosity", "", "normal", "Display verbosity (quiet, normal, detailed)")
	rootCmd.PersistentFlags().BoolP("no-color", "", false, "Disable colored output")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetString("verbosity"); v != "" {
			switch v {
			case "quiet":
				Console.SetVerbosity(output.VerbosityQuiet)
			case "detailed":
				Console.SetVerbosity(output.VerbosityDetailed)
			default:
				Console.SetVerbosity(output.VerbosityNormal)
			}
		}
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			Console.SetColors(false)
		}
	}
}

// SetupVersion configures version information after variables are set
func SetupVersion() {
	rootCmd.SetVersionTemplate(GetFullVersion() + "\n")
	rootCmd.Version = GetVersion()
}

// AddCommand adds a command to the root command
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}
