package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/imamik/vpcmesh/internal/config"
)

// Factory function variables for init - can be replaced in tests.
var (
	// fileExists checks if a file exists.
	fileExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	// runWizard runs the interactive wizard.
	runWizard = config.RunWizard

	// writeConfig writes the config to a file.
	writeConfig = config.WriteYAML
)

// Init runs the configuration wizard and writes the result to a file.
func Init(ctx context.Context, outputPath string) error {
	if fileExists(outputPath) {
		fmt.Fprintf(stdout, "Warning: %s already exists and will be overwritten.\n\n", outputPath)
	}

	printWelcome()

	result, err := runWizard(ctx)
	if err != nil {
		return err
	}

	cfg := result.ToConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("wizard produced an invalid topology: %w", err)
	}
	if err := writeConfig(cfg, outputPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printInitSuccess(outputPath, cfg)
	return nil
}

func printWelcome() {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "vpcmesh - multi-region network topology")
	fmt.Fprintln(stdout, "=======================================")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "This wizard creates a topology with one network per region.")
	fmt.Fprintln(stdout)
}

func printInitSuccess(outputPath string, cfg *config.Config) {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Configuration saved!")
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  File:      %s\n", outputPath)
	fmt.Fprintf(stdout, "  Topology:  %s\n", cfg.Name)
	fmt.Fprintf(stdout, "  Provider:  %s\n", cfg.Provider.Type)
	fmt.Fprintf(stdout, "  State:     %s\n", cfg.State.Backend)
	fmt.Fprintf(stdout, "  Units:     %d\n", len(cfg.Units))
	for _, u := range cfg.Units {
		fmt.Fprintf(stdout, "    - %s (%s)\n", u.Name, u.Region)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Next steps:")
	fmt.Fprintln(stdout, "  vpcmesh plan")
	fmt.Fprintln(stdout, "  vpcmesh apply")
}
