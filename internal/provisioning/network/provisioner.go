package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/vpcmesh/internal/allocator"
	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/topology"
	"github.com/imamik/vpcmesh/internal/util/async"
	"github.com/imamik/vpcmesh/internal/util/labels"
	"github.com/imamik/vpcmesh/internal/util/naming"
)

const phase = "network"

// subnetParallelism bounds concurrent subnet creation per network.
const subnetParallelism = 4

// EgressHook gives private subnets a default route, e.g. through a NAT
// gateway. NAT itself is outside this package.
type EgressHook interface {
	ConfigureEgress(ctx *provisioning.Context, client cloud.Client, network *topology.NetworkUnit, table *topology.RouteTable) error
}

// EgressHookFunc adapts a function to EgressHook.
type EgressHookFunc func(ctx *provisioning.Context, client cloud.Client, network *topology.NetworkUnit, table *topology.RouteTable) error

// ConfigureEgress implements EgressHook.
func (f EgressHookFunc) ConfigureEgress(ctx *provisioning.Context, client cloud.Client, network *topology.NetworkUnit, table *topology.RouteTable) error {
	return f(ctx, client, network, table)
}

// Provisioner creates and tears down networks.
type Provisioner struct {
	registry *allocator.Registry
	egress   EgressHook
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithEgressHook sets the collaborator invoked for PrivateEgress networks.
func WithEgressHook(h EgressHook) Option {
	return func(p *Provisioner) {
		p.egress = h
	}
}

// NewProvisioner creates a network provisioner allocating from registry.
func NewProvisioner(registry *allocator.Registry, opts ...Option) *Provisioner {
	p := &Provisioner{registry: registry}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision creates the network described by spec.
//
// On a provider failure the partially built unit is returned together with
// the error so that the caller can record what exists and tear it down.
func (p *Provisioner) Provision(ctx *provisioning.Context, spec topology.NetworkSpec) (*topology.NetworkUnit, error) {
	start := time.Now()
	provisioning.LogPhaseStart(ctx.Observer, phase)

	unit, err := p.provision(ctx, spec)
	if err != nil {
		provisioning.LogPhaseFailed(ctx.Observer, phase, err)
		return unit, err
	}

	provisioning.LogPhaseComplete(ctx.Observer, phase, time.Since(start))
	return unit, nil
}

func (p *Provisioner) provision(ctx *provisioning.Context, spec topology.NetworkSpec) (*topology.NetworkUnit, error) {
	alloc, err := p.Allocate(spec)
	if err != nil {
		return nil, err
	}

	client, err := ctx.Provider.Client(ctx, spec.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to get client for %s: %w", spec.Region, err)
	}

	zones, err := p.assignZones(ctx, client, alloc)
	if err != nil {
		return nil, err
	}

	tags := func(visibility topology.Visibility, name string) map[string]string {
		return labels.NewLabelBuilder(ctx.Topology).
			WithUnit(ctx.Unit).
			WithRegion(spec.Region).
			WithVisibility(string(visibility)).
			Merge(ctx.Tags).
			Merge(spec.Tags).
			WithName(name).
			Build()
	}

	netName := naming.Network(ctx.Topology, spec.Name)
	provisioning.LogResourceCreating(ctx.Observer, phase, "network", netName)
	netID, err := provisioning.Call(ctx, func(c context.Context) (string, error) {
		return client.CreateNetwork(c, cloud.NetworkRequest{Name: netName, Block: alloc.Block, Tags: tags("", netName)})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create network %s: %w", netName, err)
	}
	p.created(ctx, "network", netName, netID)

	unit := &topology.NetworkUnit{
		ID:          netID,
		Name:        spec.Name,
		Region:      spec.Region,
		Block:       alloc.Block,
		RouteTables: make(map[topology.Visibility]*topology.RouteTable),
	}

	if err := p.ensureSecurityPolicy(ctx, client, spec, unit, tags("", naming.SecurityPolicy(ctx.Topology, spec.Name))); err != nil {
		return unit, err
	}

	for _, v := range alloc.Visibilities() {
		name := naming.RouteTable(ctx.Topology, spec.Name, string(v))
		provisioning.LogResourceCreating(ctx.Observer, phase, "route table", name)
		tableID, err := provisioning.Call(ctx, func(c context.Context) (string, error) {
			return client.CreateRouteTable(c, cloud.RouteTableRequest{NetworkID: netID, Name: name, Visibility: v, Tags: tags(v, name)})
		})
		if err != nil {
			return unit, fmt.Errorf("failed to create %s route table: %w", v, err)
		}
		p.created(ctx, "route table", name, tableID)
		unit.RouteTables[v] = &topology.RouteTable{ID: tableID, Visibility: v}
	}

	if public, ok := unit.RouteTables[topology.Public]; ok {
		if err := p.ensureInternetPath(ctx, client, unit, public, tags("", naming.InternetGateway(ctx.Topology, spec.Name))); err != nil {
			return unit, err
		}
	}

	subnets, err := p.createSubnets(ctx, client, spec, unit, alloc, zones, tags)
	unit.Subnets = subnets
	if err != nil {
		return unit, err
	}

	if spec.PrivateEgress {
		if private, ok := unit.RouteTables[topology.Private]; ok {
			if err := p.egress.ConfigureEgress(ctx, client, unit, private); err != nil {
				return unit, fmt.Errorf("failed to configure private egress: %w", err)
			}
		}
	}

	return unit, nil
}

// assignZones returns the zone of every subnet in allocation order. Subnets
// without an explicit zone are spread round-robin over the region's zones.
func (p *Provisioner) assignZones(ctx *provisioning.Context, client cloud.Client, alloc *Allocation) ([]string, error) {
	zones := make([]string, len(alloc.Subnets))
	var available []string
	next := 0
	for i, s := range alloc.Subnets {
		if s.Spec.Zone != "" {
			zones[i] = s.Spec.Zone
			continue
		}
		if available == nil {
			var err error
			available, err = provisioning.Call(ctx, client.AvailabilityZones)
			if err != nil {
				return nil, fmt.Errorf("failed to list availability zones: %w", err)
			}
			if len(available) == 0 {
				return nil, fmt.Errorf("region %s reports no availability zones", client.Region())
			}
		}
		zones[i] = available[next%len(available)]
		next++
	}
	return zones, nil
}

func (p *Provisioner) ensureSecurityPolicy(ctx *provisioning.Context, client cloud.Client, spec topology.NetworkSpec, unit *topology.NetworkUnit, tags map[string]string) error {
	name := naming.SecurityPolicy(ctx.Topology, spec.Name)

	if id := spec.SecurityPolicy.ExistingID(); id != "" {
		exists, err := provisioning.Call(ctx, func(c context.Context) (bool, error) {
			return client.SecurityPolicyExists(c, id)
		})
		if err != nil {
			return fmt.Errorf("failed to look up security policy %s: %w", id, err)
		}
		if !exists {
			return fmt.Errorf("%w: security policy %s does not exist in %s", topology.ErrInvalidConfig, id, spec.Region)
		}
		provisioning.LogResourceExists(ctx.Observer, phase, "security policy", name, id)
		unit.SecurityPolicy = topology.SecurityPolicy{ID: id, Adopted: true}
		return nil
	}

	rules := spec.SecurityPolicy.Rules()
	provisioning.LogResourceCreating(ctx.Observer, phase, "security policy", name)
	id, err := provisioning.Call(ctx, func(c context.Context) (string, error) {
		return client.CreateSecurityPolicy(c, cloud.SecurityPolicyRequest{
			NetworkID: unit.ID,
			Name:      name,
			Rules:     rules,
			Tags:      tags,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to create security policy: %w", err)
	}
	p.created(ctx, "security policy", name, id)
	unit.SecurityPolicy = topology.SecurityPolicy{ID: id, Rules: rules}
	return nil
}

// ensureInternetPath attaches an internet gateway and routes 0.0.0.0/0 of
// the public table through it. Providers without gateways route public
// traffic implicitly; that case is logged and skipped.
func (p *Provisioner) ensureInternetPath(ctx *provisioning.Context, client cloud.Client, unit *topology.NetworkUnit, table *topology.RouteTable, tags map[string]string) error {
	name := naming.InternetGateway(ctx.Topology, unit.Name)
	provisioning.LogResourceCreating(ctx.Observer, phase, "internet gateway", name)
	gwID, err := provisioning.Call(ctx, func(c context.Context) (string, error) {
		return client.CreateInternetGateway(c, unit.ID, tags)
	})
	if errors.Is(err, cloud.ErrUnsupported) {
		provisioning.LogResourceSkipped(ctx.Observer, phase, "internet gateway", name, "provider routes public traffic implicitly")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create internet gateway: %w", err)
	}
	p.created(ctx, "internet gateway", name, gwID)
	unit.InternetGatewayID = gwID

	routeID, err := provisioning.Call(ctx, func(c context.Context) (string, error) {
		return client.CreateRoute(c, cloud.RouteRequest{
			TableID:     table.ID,
			Destination: topology.AnyIPv4,
			Target:      gwID,
			TargetKind:  topology.TargetGateway,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to route %s through %s: %w", topology.AnyIPv4, gwID, err)
	}
	table.Routes = append(table.Routes, topology.Route{
		ID:          routeID,
		TableID:     table.ID,
		Destination: topology.AnyIPv4,
		Target:      gwID,
		TargetKind:  topology.TargetGateway,
	})
	return nil
}

func (p *Provisioner) createSubnets(
	ctx *provisioning.Context,
	client cloud.Client,
	spec topology.NetworkSpec,
	unit *topology.NetworkUnit,
	alloc *Allocation,
	zones []string,
	tags func(topology.Visibility, string) map[string]string,
) ([]topology.SubnetUnit, error) {
	subnets := make([]topology.SubnetUnit, len(alloc.Subnets))
	tasks := make([]async.Task, len(alloc.Subnets))

	for i, s := range alloc.Subnets {
		name := naming.Subnet(ctx.Topology, spec.Name, string(s.Spec.Visibility), s.Spec.Offset)
		tableID := unit.RouteTableID(s.Spec.Visibility)
		tasks[i] = async.Task{
			Name: name,
			Func: func(_ context.Context) error {
				provisioning.LogResourceCreating(ctx.Observer, phase, "subnet", name)
				id, err := provisioning.Call(ctx, func(c context.Context) (string, error) {
					return client.CreateSubnet(c, cloud.SubnetRequest{
						NetworkID:  unit.ID,
						Name:       name,
						Block:      s.Block,
						Zone:       zones[i],
						Visibility: s.Spec.Visibility,
						Tags:       tags(s.Spec.Visibility, name),
					})
				})
				if err != nil {
					return err
				}
				p.created(ctx, "subnet", name, id)

				subnets[i] = topology.SubnetUnit{
					ID:         id,
					Block:      s.Block,
					Visibility: s.Spec.Visibility,
					Zone:       zones[i],
				}
				if err := provisioning.Do(ctx, func(c context.Context) error {
					return client.AssociateRouteTable(c, tableID, id)
				}); err != nil {
					return fmt.Errorf("failed to associate route table %s: %w", tableID, err)
				}
				subnets[i].RouteTableID = tableID
				return nil
			},
		}
	}

	err := async.RunParallel(ctx, tasks, subnetParallelism)

	created := make([]topology.SubnetUnit, 0, len(subnets))
	for _, s := range subnets {
		if s.ID != "" {
			created = append(created, s)
		}
	}
	if err != nil {
		return created, fmt.Errorf("failed to create subnets: %w", err)
	}
	return created, nil
}

func (p *Provisioner) created(ctx *provisioning.Context, resourceType, name, id string) {
	provisioning.LogResourceCreated(ctx.Observer, phase, resourceType, name, id)
	ctx.Metrics.RecordResourceCreated(resourceType)
}
