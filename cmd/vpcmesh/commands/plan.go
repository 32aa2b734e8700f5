package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/vpcmesh/cmd/vpcmesh/handlers"
)

// Plan returns the dry-run command.
func Plan(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the apply order and address plan without changing anything",
		Long: `Validate the topology, allocate every network block and compare the
result with recorded state.

The plan lists units level by level in apply order, the block and subnets
of every network, the dependencies between units and whether each unit
would be created, updated, left alone or is blocked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Plan(cmd.Context(), *opts)
		},
	}
}
