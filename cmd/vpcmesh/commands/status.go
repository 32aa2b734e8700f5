package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/vpcmesh/cmd/vpcmesh/handlers"
)

// Status returns the command that shows recorded unit state.
func Status(opts *handlers.Options) *cobra.Command {
	var statusOpts handlers.StatusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded state and reachability of every unit",
		Long: `Show every declared unit and every unit found in state.

With --refresh the live network, peering link and routes of each applied
unit are compared with its record first; units that differ are marked
drifted and the next apply repairs them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), *opts, statusOpts)
		},
	}

	cmd.Flags().BoolVar(&statusOpts.Refresh, "refresh", false, "Check live resources for drift first")
	cmd.Flags().BoolVar(&statusOpts.JSON, "json", false, "Print JSON instead of a table")

	return cmd
}
