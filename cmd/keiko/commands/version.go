// cmd/keiko/commands/version.go
package commands

import (
	"github.com/spf13/cobra"

	"github.com/keikotool/keiko/cmd/keiko/cli"
	"github.com/keikotool/keiko/cmd/keiko/output"
)

// NewVersionCommand creates the version command
func NewVersionCommand(console *output.Console) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long:  `Display detailed version information including commit and build date.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			console.Println(cli.GetFullVersion())
			return nil
		},
	}

	return cmd
}
