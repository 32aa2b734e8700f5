package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
)

// Provider is an in-memory cloud.
type Provider struct {
	world *World
}

// NewProvider returns a provider over a fresh world.
func NewProvider() *Provider {
	return &Provider{world: NewWorld()}
}

// World exposes the shared state for inspection and fault injection.
func (p *Provider) World() *World {
	return p.world
}

// Name implements cloud.Provider.
func (p *Provider) Name() string {
	return "memory"
}

// Client implements cloud.Provider.
func (p *Provider) Client(_ context.Context, region string) (cloud.Client, error) {
	if region == "" {
		return nil, fmt.Errorf("region is required")
	}
	return &Client{world: p.world, region: region}, nil
}

// Client is a region-scoped view of a World.
type Client struct {
	world  *World
	region string
}

var _ cloud.Client = (*Client)(nil)

// Region implements cloud.Client.
func (c *Client) Region() string {
	return c.region
}

// AvailabilityZones returns "<region>a" to "<region>c" unless overridden.
func (c *Client) AvailabilityZones(_ context.Context) ([]string, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("AvailabilityZones"); err != nil {
		return nil, err
	}
	if zones, ok := w.zones[c.region]; ok {
		return slices.Clone(zones), nil
	}
	return []string{c.region + "a", c.region + "b", c.region + "c"}, nil
}

func (c *Client) CreateNetwork(_ context.Context, req cloud.NetworkRequest) (string, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("CreateNetwork"); err != nil {
		return "", err
	}
	if req.Block.IsZero() {
		return "", fmt.Errorf("network %s: block is required", req.Name)
	}
	id := w.newID("vpc")
	w.networks[id] = &network{
		id:     id,
		name:   req.Name,
		region: c.region,
		block:  req.Block,
		tags:   maps.Clone(req.Tags),
	}
	return id, nil
}

func (c *Client) CreateSubnet(_ context.Context, req cloud.SubnetRequest) (string, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("CreateSubnet"); err != nil {
		return "", err
	}
	n, err := c.networkLocked(req.NetworkID)
	if err != nil {
		return "", err
	}
	if !n.block.Contains(req.Block) {
		return "", fmt.Errorf("subnet %s is not within network %s (%s)", req.Block, n.id, n.block)
	}
	for _, s := range w.subnets {
		if s.networkID == n.id && s.block.Overlaps(req.Block) {
			return "", fmt.Errorf("%w: subnet %s overlaps %s (%s)", topology.ErrResourceConflict, req.Block, s.id, s.block)
		}
	}
	id := w.newID("subnet")
	w.subnets[id] = &subnet{
		id:         id,
		networkID:  n.id,
		block:      req.Block,
		zone:       req.Zone,
		visibility: req.Visibility,
		publicIP:   req.Visibility == topology.Public,
	}
	return id, nil
}

func (c *Client) NetworkExists(_ context.Context, networkID string) (bool, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("NetworkExists"); err != nil {
		return false, err
	}
	n, ok := w.networks[networkID]
	return ok && n.region == c.region, nil
}

func (c *Client) DeleteNetwork(_ context.Context, td cloud.NetworkTeardown) error {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DeleteNetwork"); err != nil {
		return err
	}
	delete(w.gateways, td.InternetGatewayID)
	for id, s := range w.subnets {
		if s.networkID == td.NetworkID {
			delete(w.subnets, id)
		}
	}
	for id, t := range w.tables {
		if t.networkID == td.NetworkID {
			delete(w.tables, id)
		}
	}
	if td.SecurityPolicyID != "" {
		delete(w.policies, td.SecurityPolicyID)
	}
	delete(w.networks, td.NetworkID)
	return nil
}

func (c *Client) CreateRouteTable(_ context.Context, req cloud.RouteTableRequest) (string, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("CreateRouteTable"); err != nil {
		return "", err
	}
	n, err := c.networkLocked(req.NetworkID)
	if err != nil {
		return "", err
	}
	id := w.newID("rtb")
	w.tables[id] = &routeTable{
		id:        id,
		networkID: n.id,
		region:    c.region,
		routes: []topology.Route{{
			ID:          cloud.RouteID(id, n.block),
			TableID:     id,
			Destination: n.block,
			Target:      "local",
			TargetKind:  topology.TargetLocal,
		}},
	}
	return id, nil
}

func (c *Client) AssociateRouteTable(_ context.Context, tableID, subnetID string) error {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("AssociateRouteTable"); err != nil {
		return err
	}
	t, err := c.tableLocked(tableID)
	if err != nil {
		return err
	}
	s, ok := w.subnets[subnetID]
	if !ok {
		return fmt.Errorf("%w: subnet %s", cloud.ErrNotFound, subnetID)
	}
	if s.networkID != t.networkID {
		return fmt.Errorf("route table %s and subnet %s belong to different networks", tableID, subnetID)
	}
	s.tableID = tableID
	return nil
}

func (c *Client) CreateInternetGateway(_ context.Context, networkID string, _ map[string]string) (string, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("CreateInternetGateway"); err != nil {
		return "", err
	}
	if _, err := c.networkLocked(networkID); err != nil {
		return "", err
	}
	id := w.newID("igw")
	w.gateways[id] = networkID
	return id, nil
}

func (c *Client) CreateRoute(_ context.Context, req cloud.RouteRequest) (string, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("CreateRoute"); err != nil {
		return "", err
	}
	t, err := c.tableLocked(req.TableID)
	if err != nil {
		return "", err
	}
	for _, r := range t.routes {
		if r.Destination == req.Destination {
			return "", &topology.RouteConflictError{
				TableID:         t.id,
				Destination:     req.Destination,
				ExistingTarget:  r.Target,
				RequestedTarget: req.Target,
			}
		}
	}
	route := topology.Route{
		ID:          cloud.RouteID(t.id, req.Destination),
		TableID:     t.id,
		Destination: req.Destination,
		Target:      req.Target,
		TargetKind:  req.TargetKind,
	}
	t.routes = append(t.routes, route)
	return route.ID, nil
}

func (c *Client) DeleteRoute(_ context.Context, tableID string, destination topology.AddressBlock) error {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DeleteRoute"); err != nil {
		return err
	}
	t, ok := w.tables[tableID]
	if !ok {
		return nil
	}
	t.routes = slices.DeleteFunc(t.routes, func(r topology.Route) bool {
		return r.Destination == destination && r.TargetKind != topology.TargetLocal
	})
	return nil
}

func (c *Client) ListRoutes(_ context.Context, tableID string) ([]topology.Route, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("ListRoutes"); err != nil {
		return nil, err
	}
	t, err := c.tableLocked(tableID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.routes), nil
}

func (c *Client) CreateSecurityPolicy(_ context.Context, req cloud.SecurityPolicyRequest) (string, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("CreateSecurityPolicy"); err != nil {
		return "", err
	}
	if _, err := c.networkLocked(req.NetworkID); err != nil {
		return "", err
	}
	for _, rule := range req.Rules {
		if err := rule.Validate(); err != nil {
			return "", err
		}
	}
	id := w.newID("sg")
	w.policies[id] = req.NetworkID
	return id, nil
}

func (c *Client) SecurityPolicyExists(_ context.Context, policyID string) (bool, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("SecurityPolicyExists"); err != nil {
		return false, err
	}
	_, ok := w.policies[policyID]
	return ok, nil
}

// AdoptSecurityPolicy registers a policy created outside this tool so it
// can be referenced by id.
func (w *World) AdoptSecurityPolicy(networkID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.newID("sg")
	w.policies[id] = networkID
	return id
}

// CreatePeering creates a link in pending-acceptance. As on EC2, an accepter
// that does not exist in the named region, or whose block overlaps the
// requester's, yields a link that is immediately failed.
func (c *Client) CreatePeering(_ context.Context, req cloud.PeeringRequest) (string, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("CreatePeering"); err != nil {
		return "", err
	}
	requester, err := c.networkLocked(req.RequesterNetworkID)
	if err != nil {
		return "", err
	}
	if req.RequesterNetworkID == req.AccepterNetworkID {
		return "", fmt.Errorf("%w: cannot peer network %s with itself", topology.ErrPeeringRejected, req.RequesterNetworkID)
	}

	status := topology.PeeringPendingAcceptance
	accepter, ok := w.networks[req.AccepterNetworkID]
	switch {
	case !ok, accepter.region != req.AccepterRegion:
		status = topology.PeeringFailed
	case accepter.block.Overlaps(requester.block):
		status = topology.PeeringFailed
	}

	id := w.newID("pcx")
	w.peerings[id] = &peering{
		id:                 id,
		requesterNetworkID: requester.id,
		requesterRegion:    c.region,
		accepterNetworkID:  req.AccepterNetworkID,
		accepterRegion:     req.AccepterRegion,
		status:             status,
	}
	return id, nil
}

func (c *Client) AcceptPeering(_ context.Context, linkID string) error {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("AcceptPeering"); err != nil {
		return err
	}
	p, ok := w.peerings[linkID]
	if !ok {
		return fmt.Errorf("%w: peering %s", cloud.ErrNotFound, linkID)
	}
	if p.accepterRegion != c.region {
		return fmt.Errorf("peering %s must be accepted in %s, not %s", linkID, p.accepterRegion, c.region)
	}
	switch p.status {
	case topology.PeeringPendingAcceptance:
		p.status = topology.PeeringActive
	case topology.PeeringActive:
	default:
		return fmt.Errorf("%w: peering %s is %s", topology.ErrPeeringRejected, linkID, p.status)
	}
	return nil
}

func (c *Client) DescribePeering(_ context.Context, linkID string) (topology.PeeringStatus, error) {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DescribePeering"); err != nil {
		return "", err
	}
	p, ok := w.peerings[linkID]
	if !ok {
		return topology.PeeringDeleted, nil
	}
	return p.status, nil
}

func (c *Client) DeletePeering(_ context.Context, linkID string) error {
	w := c.world
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DeletePeering"); err != nil {
		return err
	}
	if p, ok := w.peerings[linkID]; ok {
		p.status = topology.PeeringDeleted
	}
	return nil
}

func (c *Client) networkLocked(id string) (*network, error) {
	n, ok := c.world.networks[id]
	if !ok || n.region != c.region {
		return nil, fmt.Errorf("%w: network %s in %s", cloud.ErrNotFound, id, c.region)
	}
	return n, nil
}

func (c *Client) tableLocked(id string) (*routeTable, error) {
	t, ok := c.world.tables[id]
	if !ok || t.region != c.region {
		return nil, fmt.Errorf("%w: route table %s in %s", cloud.ErrNotFound, id, c.region)
	}
	return t, nil
}
