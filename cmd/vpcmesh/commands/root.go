// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/vpcmesh/cmd/vpcmesh/handlers"
)

// Root returns the root command for the vpcmesh CLI.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "vpcmesh",
		Short:         "Provision multi-region networks, peering and routes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to topology file (default: vpcmesh.yaml)")
	flags.CountVarP(&opts.Verbosity, "verbose", "v", "Increase log verbosity (repeatable)")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")

	cmd.AddCommand(Init())
	cmd.AddCommand(Plan(opts))
	cmd.AddCommand(Apply(opts))
	cmd.AddCommand(Status(opts))
	cmd.AddCommand(Destroy(opts))
	cmd.AddCommand(Version())

	return cmd
}
