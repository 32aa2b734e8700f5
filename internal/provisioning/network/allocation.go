package network

import (
	"fmt"

	"github.com/imamik/vpcmesh/internal/allocator"
	"github.com/imamik/vpcmesh/internal/topology"
)

// Allocation is the address plan of a network, computed without touching
// the provider.
type Allocation struct {
	Block   topology.AddressBlock
	Subnets []SubnetAllocation
}

// SubnetAllocation pairs a subnet request with its block.
type SubnetAllocation struct {
	Spec  topology.SubnetSpec
	Block topology.AddressBlock
}

// Visibilities lists the visibility classes present, public first.
func (a *Allocation) Visibilities() []topology.Visibility {
	var hasPublic, hasPrivate bool
	for _, s := range a.Subnets {
		switch s.Spec.Visibility {
		case topology.Public:
			hasPublic = true
		case topology.Private:
			hasPrivate = true
		}
	}
	var out []topology.Visibility
	if hasPublic {
		out = append(out, topology.Public)
	}
	if hasPrivate {
		out = append(out, topology.Private)
	}
	return out
}

// Allocate validates spec and computes its address plan.
func (p *Provisioner) Allocate(spec topology.NetworkSpec) (*Allocation, error) {
	if spec.Region == "" {
		return nil, fmt.Errorf("%w: network %s has no region", topology.ErrInvalidConfig, spec.Name)
	}
	if len(spec.Subnets) == 0 {
		return nil, fmt.Errorf("%w: network %s has no subnets", topology.ErrInvalidConfig, spec.Name)
	}
	if spec.PrivateEgress && p.egress == nil {
		return nil, fmt.Errorf("%w: private egress requested for %s but no egress hook is configured",
			topology.ErrInvalidConfig, spec.Name)
	}
	if !spec.SecurityPolicy.IsExisting() {
		for _, rule := range spec.SecurityPolicy.Rules() {
			if err := rule.Validate(); err != nil {
				return nil, err
			}
		}
	}

	block, err := p.registry.NetworkBlock(spec.BlockSelector())
	if err != nil {
		return nil, err
	}

	alloc := &Allocation{Block: block}
	seen := make(map[int]bool, len(spec.Subnets))
	for _, s := range spec.Subnets {
		if !s.Visibility.Valid() {
			return nil, fmt.Errorf("%w: subnet offset %d has visibility %q", topology.ErrInvalidConfig, s.Offset, s.Visibility)
		}
		if seen[s.Offset] {
			return nil, fmt.Errorf("%w: offset %d in %s", topology.ErrDuplicateSubnetOffset, s.Offset, spec.Name)
		}
		seen[s.Offset] = true

		subnetBlock, err := allocator.SubnetBlock(block, s.Offset)
		if err != nil {
			return nil, err
		}
		alloc.Subnets = append(alloc.Subnets, SubnetAllocation{Spec: s, Block: subnetBlock})
	}
	return alloc, nil
}
