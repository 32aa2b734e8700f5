package config

import (
	"fmt"

	"github.com/imamik/vpcmesh/internal/allocator"
	"github.com/imamik/vpcmesh/internal/topology"
)

// Registry returns the default region registry with the configured
// overrides applied.
func (c *Config) Registry() (*allocator.Registry, error) {
	if len(c.Regions) == 0 {
		return allocator.DefaultRegistry(), nil
	}
	return allocator.DefaultRegistry().With(c.Regions)
}

// UnitSpecs converts the declared units, in file order.
func (c *Config) UnitSpecs() ([]topology.UnitSpec, error) {
	specs := make([]topology.UnitSpec, 0, len(c.Units))
	for i := range c.Units {
		spec, err := c.Units[i].toTopology()
		if err != nil {
			return nil, fmt.Errorf("%w: unit %s: %w", topology.ErrInvalidConfig, c.Units[i].Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (u *Unit) toTopology() (topology.UnitSpec, error) {
	spec := topology.UnitSpec{
		Name:   u.Name,
		Region: u.Region,
		Tags:   u.Tags,
	}

	if n := u.Network; n != nil {
		section := &topology.NetworkSection{
			Selector:         n.Selector,
			SecurityPolicyID: n.SecurityPolicyID,
			PrivateEgress:    n.PrivateEgress,
		}
		for _, s := range n.Subnets {
			section.Subnets = append(section.Subnets, topology.SubnetSpec{
				Visibility: topology.Visibility(s.Visibility),
				Offset:     s.Offset,
				Zone:       s.Zone,
			})
		}
		for _, r := range n.Ingress {
			rule, err := r.toTopology()
			if err != nil {
				return topology.UnitSpec{}, err
			}
			section.Ingress = append(section.Ingress, rule)
		}
		spec.Network = section
	}

	if p := u.Peering; p != nil {
		peer := topology.PeerRef{
			Unit:         p.Peer.Unit,
			NetworkID:    p.Peer.NetworkID,
			Region:       p.Peer.Region,
			RouteTableID: p.Peer.RouteTableID,
		}
		if p.Peer.CIDR != "" {
			block, err := topology.ParseBlock(p.Peer.CIDR)
			if err != nil {
				return topology.UnitSpec{}, fmt.Errorf("peering.peer.cidr: %w", err)
			}
			peer.Block = block
		}
		scope := topology.RouteScope(p.Routes)
		if scope == "" {
			scope = topology.RoutesLocal
		}
		spec.Peering = &topology.PeeringSection{
			Peer:       peer,
			Routes:     scope,
			Visibility: visibilityOrDefault(p.Visibility),
		}
	}

	if r := u.Routes; r != nil {
		spec.Routes = &topology.RoutesSection{
			Peering:    r.Peering,
			Network:    r.Network,
			Visibility: visibilityOrDefault(r.Visibility),
		}
	}

	return spec, nil
}

func (r IngressRule) toTopology() (topology.IngressRule, error) {
	source := topology.AnyIPv4
	if r.Source != "" {
		block, err := topology.ParseBlock(r.Source)
		if err != nil {
			return topology.IngressRule{}, fmt.Errorf("source: %w", err)
		}
		source = block
	}
	rule := topology.IngressRule{
		Protocol:    topology.Protocol(r.Protocol),
		FromPort:    r.Port,
		ToPort:      r.ToPort,
		Source:      source,
		Description: r.Description,
	}
	if err := rule.Validate(); err != nil {
		return topology.IngressRule{}, err
	}
	return rule, nil
}

// Peering routes go to private subnets unless configured otherwise.
func visibilityOrDefault(v string) topology.Visibility {
	if v == "" {
		return topology.Private
	}
	return topology.Visibility(v)
}
