package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/vpcmesh/cmd/vpcmesh/handlers"
)

// Destroy returns the destroy command.
func Destroy(opts *handlers.Options) *cobra.Command {
	var units []string

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove routes, peering links and networks",
		Long: `Destroy units in reverse dependency order.

Routes are removed first, then peering links, then networks. Units found
in state that are no longer declared are destroyed before the rest. A unit
cannot be destroyed while a unit that depends on it is still applied.

Networks referenced as literal peers are never touched.

WARNING: This operation is irreversible.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), *opts, units)
		},
	}

	cmd.Flags().StringSliceVarP(&units, "unit", "u", nil, "Destroy only these units (repeatable)")

	return cmd
}
