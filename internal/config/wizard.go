package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/imamik/vpcmesh/internal/allocator"
)

// WizardResult holds the user's choices from the init wizard.
type WizardResult struct {
	Name     string
	Provider ProviderType
	Regions  []string
	Peer     bool
	Backend  StateBackend
	Bucket   string
}

// RunWizard runs the interactive init wizard.
func RunWizard(ctx context.Context) (*WizardResult, error) {
	result := &WizardResult{
		Provider: ProviderAWS,
		Peer:     true,
		Backend:  BackendSQLite,
	}

	regionOptions := make([]huh.Option[string], 0)
	for _, selector := range allocator.DefaultRegistry().Selectors() {
		regionOptions = append(regionOptions, huh.NewOption(selector, selector))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Topology name").
				Description("Prefix for every resource name (DNS-safe, lowercase)").
				Placeholder("mesh").
				Value(&result.Name).
				Validate(validateTopologyName),

			huh.NewSelect[ProviderType]().
				Title("Provider").
				Options(
					huh.NewOption("AWS (VPC peering)", ProviderAWS),
					huh.NewOption("Hetzner Cloud (networks only, no peering)", ProviderHCloud),
					huh.NewOption("In-memory sandbox", ProviderMemory),
				).
				Value(&result.Provider),
		),

		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Regions").
				Description("One network unit is created per region").
				Options(regionOptions...).
				Value(&result.Regions).
				Validate(func(regions []string) error {
					if len(regions) == 0 {
						return errors.New("select at least one region")
					}
					return nil
				}),

			huh.NewConfirm().
				Title("Peer every region with the first one?").
				Value(&result.Peer),
		),

		huh.NewGroup(
			huh.NewSelect[StateBackend]().
				Title("State backend").
				Options(
					huh.NewOption("Local SQLite file", BackendSQLite),
					huh.NewOption("S3 bucket", BackendS3),
				).
				Value(&result.Backend),

			huh.NewInput().
				Title("State bucket (S3 only)").
				Placeholder("my-vpcmesh-state").
				Value(&result.Bucket),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("wizard canceled: %w", err)
	}
	if result.Backend == BackendS3 && result.Bucket == "" {
		return nil, errors.New("a bucket is required for the s3 state backend")
	}
	return result, nil
}

// ToConfig converts the wizard result to a Config. Every region gets a
// network unit with one public and one private subnet and the default
// ingress rules. With Peer set, every other region peers with the first and
// the first region gets a routes unit per link, so each side's route is
// installed from its own region.
func (r *WizardResult) ToConfig() *Config {
	cfg := &Config{
		Name:     r.Name,
		Provider: ProviderConfig{Type: r.Provider},
		State:    StateConfig{Backend: r.Backend, Bucket: r.Bucket},
	}
	if r.Backend == BackendS3 {
		cfg.State.Source = BucketCreate
	}

	for i, region := range r.Regions {
		unit := Unit{
			Name:   region,
			Region: region,
			Network: &NetworkSection{
				Subnets: []Subnet{
					{Visibility: "public", Offset: 0},
					{Visibility: "private", Offset: 1},
				},
				Ingress: defaultIngress(),
			},
		}
		if r.Peer && i > 0 && r.Provider != ProviderHCloud {
			hub := r.Regions[0]
			unit.Peering = &PeeringSection{Peer: Peer{Unit: hub}, Routes: "local"}
			cfg.Units = append(cfg.Units, unit, Unit{
				Name:   fmt.Sprintf("%s-routes-%s", hub, region),
				Region: hub,
				Routes: &RoutesSection{Peering: region, Network: hub},
			})
			continue
		}
		cfg.Units = append(cfg.Units, unit)
	}

	cfg.ApplyDefaults()
	return cfg
}

func defaultIngress() []IngressRule {
	return []IngressRule{
		{Protocol: "tcp", Port: 22, Description: "ssh"},
		{Protocol: "tcp", Port: 443, Description: "https"},
		{Protocol: "tcp", Port: 10008, Description: "management"},
	}
}

// validateTopologyName validates the topology name.
func validateTopologyName(s string) error {
	if s == "" {
		return errors.New("topology name is required")
	}
	if !isValidDNSName(strings.ToLower(s)) || s != strings.ToLower(s) {
		return errors.New("topology name must be lowercase letters, numbers and hyphens, starting with a letter")
	}
	return nil
}

// WriteYAML writes the config to a YAML file.
func WriteYAML(cfg *Config, path string) error {
	return Save(cfg, path)
}
