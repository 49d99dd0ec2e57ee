package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mandexing/internal/version"
)

// NewVersionCmd creates the version command. It needs no configuration.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mandex %s\n", version.String())
		},
	}
}
