package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/imamik/vpcmesh/internal/allocator"
	"github.com/imamik/vpcmesh/internal/topology"
)

// Validate checks the configuration and returns every problem found.
// Cross-unit references are checked when the dependency graph is built.
func (c *Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	} else if !isValidDNSName(c.Name) {
		errs = append(errs, errors.New("name must be DNS-safe (lowercase alphanumeric and hyphens, must start with letter)"))
	}

	if !c.Provider.Type.IsValid() {
		errs = append(errs, fmt.Errorf("provider.type must be one of: %s, %s, %s", ProviderAWS, ProviderHCloud, ProviderMemory))
	}
	if c.Provider.Type == ProviderHCloud && os.Getenv("HCLOUD_TOKEN") == "" {
		errs = append(errs, errors.New("HCLOUD_TOKEN environment variable required for provider hcloud"))
	}
	if c.Provider.RateLimit < 0 || c.Provider.Burst < 0 {
		errs = append(errs, errors.New("provider.rateLimit and provider.burst must not be negative"))
	}

	errs = append(errs, c.State.validate()...)

	if c.Parallelism < 1 {
		errs = append(errs, errors.New("parallelism must be at least 1"))
	}

	registry, err := c.Registry()
	if err != nil {
		errs = append(errs, fmt.Errorf("regions: %w", err))
	}

	if len(c.Units) == 0 {
		errs = append(errs, errors.New("at least one unit is required"))
	}
	seen := make(map[string]bool, len(c.Units))
	for i := range c.Units {
		u := &c.Units[i]
		if seen[u.Name] {
			errs = append(errs, fmt.Errorf("units[%d]: duplicate unit name %q", i, u.Name))
		}
		seen[u.Name] = true
		errs = append(errs, u.validate(i, registry)...)
	}

	return errors.Join(errs...)
}

func (s *StateConfig) validate() []error {
	var errs []error
	switch s.Backend {
	case BackendSQLite:
		if s.Path == "" {
			errs = append(errs, errors.New("state.path is required for the sqlite backend"))
		}
	case BackendS3:
		if s.Bucket == "" {
			errs = append(errs, errors.New("state.bucket is required for the s3 backend"))
		}
		if s.Source != BucketExisting && s.Source != BucketCreate {
			errs = append(errs, fmt.Errorf("state.source must be %s or %s", BucketExisting, BucketCreate))
		}
		if s.Endpoint != "" {
			if os.Getenv("VPCMESH_S3_ACCESS_KEY") == "" {
				errs = append(errs, errors.New("VPCMESH_S3_ACCESS_KEY environment variable required when state.endpoint is set"))
			}
			if os.Getenv("VPCMESH_S3_SECRET_KEY") == "" {
				errs = append(errs, errors.New("VPCMESH_S3_SECRET_KEY environment variable required when state.endpoint is set"))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("state.backend must be %s or %s", BackendSQLite, BackendS3))
	}
	return errs
}

// validate checks one unit. registry is nil when the region table itself
// is invalid; selectors and offsets are then left unchecked.
func (u *Unit) validate(i int, registry *allocator.Registry) []error {
	var errs []error
	field := func(format string, args ...any) error {
		return fmt.Errorf("units[%d] (%s): %s", i, u.Name, fmt.Sprintf(format, args...))
	}

	if u.Name == "" || !isValidDNSName(u.Name) {
		errs = append(errs, field("name must be DNS-safe"))
	}
	if u.Region == "" {
		errs = append(errs, field("region is required"))
	}
	if u.Network == nil && u.Peering == nil && u.Routes == nil {
		errs = append(errs, field("at least one of network, peering or routes is required"))
	}

	if n := u.Network; n != nil {
		if len(n.Subnets) == 0 {
			errs = append(errs, field("network.subnets must not be empty"))
		}
		for j, s := range n.Subnets {
			if !topology.Visibility(s.Visibility).Valid() {
				errs = append(errs, field("network.subnets[%d].visibility must be public or private", j))
			}
		}
		if registry != nil {
			errs = append(errs, u.validateOffsets(registry, field)...)
		}
		if n.SecurityPolicyID != "" && len(n.Ingress) > 0 {
			errs = append(errs, field("network.securityPolicyId and network.ingress are mutually exclusive"))
		}
		for j, r := range n.Ingress {
			if _, err := r.toTopology(); err != nil {
				errs = append(errs, field("network.ingress[%d]: %v", j, err))
			}
		}
	}

	if p := u.Peering; p != nil {
		if u.Network == nil {
			errs = append(errs, field("peering requires a network section in the same unit"))
		}
		literal := p.Peer.NetworkID != "" || p.Peer.Region != "" || p.Peer.CIDR != ""
		switch {
		case p.Peer.Unit != "" && literal:
			errs = append(errs, field("peering.peer must name either a unit or a literal network, not both"))
		case p.Peer.Unit == "" && !literal:
			errs = append(errs, field("peering.peer is required"))
		case literal && (p.Peer.NetworkID == "" || p.Peer.Region == "" || p.Peer.CIDR == ""):
			errs = append(errs, field("peering.peer literal needs networkId, region and cidr"))
		case p.Peer.Unit == u.Name:
			errs = append(errs, field("peering.peer cannot be the unit itself"))
		}
		if p.Peer.CIDR != "" {
			if _, err := topology.ParseBlock(p.Peer.CIDR); err != nil {
				errs = append(errs, field("peering.peer.cidr: %v", err))
			}
		}
		switch topology.RouteScope(p.Routes) {
		case topology.RoutesLocal, topology.RoutesBoth, topology.RoutesNone:
		default:
			errs = append(errs, field("peering.routes must be local, both or none"))
		}
		if p.Visibility != "" && !topology.Visibility(p.Visibility).Valid() {
			errs = append(errs, field("peering.visibility must be public or private"))
		}
	}

	if r := u.Routes; r != nil {
		if r.Peering == "" {
			errs = append(errs, field("routes.peering is required"))
		}
		if r.Network == "" && u.Network == nil {
			errs = append(errs, field("routes.network is required when the unit has no network section"))
		}
		if r.Visibility != "" && !topology.Visibility(r.Visibility).Valid() {
			errs = append(errs, field("routes.visibility must be public or private"))
		}
	}

	return errs
}

func (u *Unit) validateOffsets(registry *allocator.Registry, field func(string, ...any) error) []error {
	selector := u.Region
	if u.Network.Selector != "" {
		selector = u.Network.Selector
	}
	block, err := registry.NetworkBlock(selector)
	if err != nil {
		return []error{field("network: no block registered for selector %q; add it under regions", selector)}
	}

	var errs []error
	maxOffset := allocator.MaxSubnetOffset(block)
	for j, s := range u.Network.Subnets {
		if s.Offset < 0 || s.Offset > maxOffset {
			errs = append(errs, field("network.subnets[%d].offset %d is outside %s (0-%d)", j, s.Offset, block, maxOffset))
		}
	}
	return errs
}

// isValidDNSName checks for a lowercase DNS label starting with a letter.
func isValidDNSName(s string) bool {
	if len(s) == 0 || len(s) > 63 {
		return false
	}
	if s[0] < 'a' || s[0] > 'z' || s[len(s)-1] == '-' {
		return false
	}
	for _, c := range s {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-') {
			return false
		}
	}
	return true
}
