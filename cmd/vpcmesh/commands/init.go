package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/vpcmesh/cmd/vpcmesh/handlers"
)

// Init returns the command for interactively creating a topology file.
func Init() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a topology file",
		Long: `Interactively create a topology file.

The wizard asks for a topology name, a provider, the regions to cover and
where to keep state. Every region gets a network with one public and one
private subnet. Optionally every region is peered with the first one, with
the routes of each side installed from its own region.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "vpcmesh.yaml", "Output file path")

	return cmd
}
