package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/vpcmesh/cmd/vpcmesh/handlers"
)

// Apply returns the command that converges the topology.
//
// Environment variables:
//
//	AWS_PROFILE, AWS_REGION, ...: AWS default credential chain (aws provider)
//	HCLOUD_TOKEN: Hetzner Cloud API token (hcloud provider)
func Apply(opts *handlers.Options) *cobra.Command {
	var applyOpts handlers.ApplyOptions

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create or update networks, peering links and routes",
		Long: `Apply every unit of the topology in dependency order.

Units of one level run concurrently. A failed unit stops the units that
depend on it; independent units still run. Re-applying is safe: recorded
networks and links are reused and live routes are left in place.

Examples:
  # Apply everything
  vpcmesh apply

  # Apply one unit whose dependencies are already applied
  vpcmesh apply --unit east2

  # Apply one unit and everything it depends on
  vpcmesh apply --unit east2 --with-deps

  # Follow the run in a live view
  vpcmesh apply --tui`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), *opts, applyOpts)
		},
	}

	cmd.Flags().StringSliceVarP(&applyOpts.Units, "unit", "u", nil, "Apply only these units (repeatable)")
	cmd.Flags().BoolVar(&applyOpts.WithDeps, "with-deps", false, "Also apply the units the selected units depend on")
	cmd.Flags().BoolVar(&applyOpts.TUI, "tui", false, "Show a live view while applying")

	return cmd
}
