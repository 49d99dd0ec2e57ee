package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewIdentifyCmd creates the identify command.
func NewIdentifyCmd() *cobra.Command {
	var statePath string

	cmd := &cobra.Command{
		Use:   "identify --state FILE [--] X Y",
		Short: "Name the reflection nearest to a detector pixel",
		Long: `Name the reflection nearest to a detector pixel.

Pixels left of or above the beam centre are negative; put -- before
them so they are not read as flags.`,
		Example: `  mandex identify --state matrix.dat 612 480
  mandex identify --state matrix.dat -- -122.5 40`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			xy, err := parseFloats(args[0]+" "+args[1], 2)
			if err != nil {
				return err
			}
			session, err := cliCtx.openSession(statePath)
			if err != nil {
				return err
			}

			hkl, ok := session.IdentifyAt(xy[0], xy[1])
			if !ok {
				return fmt.Errorf("no reflection near (%g, %g)", xy[0], xy[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d %d %d\n", hkl[0], hkl[1], hkl[2])
			return nil
		},
	}
	cmd.Flags().StringVar(&statePath, "state", "", "state file to start from")
	return cmd
}
