package memory

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
)

type network struct {
	id     string
	name   string
	region string
	block  topology.AddressBlock
	tags   map[string]string
}

type subnet struct {
	id         string
	networkID  string
	block      topology.AddressBlock
	zone       string
	visibility topology.Visibility
	tableID    string
	publicIP   bool
}

type routeTable struct {
	id        string
	networkID string
	region    string
	routes    []topology.Route
}

type peering struct {
	id                 string
	requesterNetworkID string
	requesterRegion    string
	accepterNetworkID  string
	accepterRegion     string
	status             topology.PeeringStatus
}

// World is the shared state behind every client of a Provider.
type World struct {
	mu       sync.Mutex
	nextID   map[string]int
	networks map[string]*network
	subnets  map[string]*subnet
	tables   map[string]*routeTable
	gateways map[string]string // gateway id -> network id
	policies map[string]string // policy id -> network id
	peerings map[string]*peering
	zones    map[string][]string
	faults   map[string]error
	calls    map[string]int
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{
		nextID:   make(map[string]int),
		networks: make(map[string]*network),
		subnets:  make(map[string]*subnet),
		tables:   make(map[string]*routeTable),
		gateways: make(map[string]string),
		policies: make(map[string]string),
		peerings: make(map[string]*peering),
		zones:    make(map[string][]string),
		faults:   make(map[string]error),
		calls:    make(map[string]int),
	}
}

// newID must be called with mu held.
func (w *World) newID(prefix string) string {
	w.nextID[prefix]++
	return fmt.Sprintf("%s-%04d", prefix, w.nextID[prefix])
}

// enter records a call to op and returns an injected fault, if any. Must be
// called with mu held.
func (w *World) enter(op string) error {
	w.calls[op]++
	return w.faults[op]
}

// InjectFault makes every later call to op fail with err until cleared.
// Op names are the Client method names, e.g. "CreateRoute".
func (w *World) InjectFault(op string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.faults[op] = err
}

// ClearFaults removes all injected faults.
func (w *World) ClearFaults() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.faults)
}

// Calls returns how often op was called.
func (w *World) Calls(op string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[op]
}

// SetZones overrides the availability zones of a region.
func (w *World) SetZones(region string, zones ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.zones[region] = slices.Clone(zones)
}

// Routes returns a copy of the routes in a table.
func (w *World) Routes(tableID string) []topology.Route {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.tables[tableID]; ok {
		return slices.Clone(t.routes)
	}
	return nil
}

// PutRoute installs a route directly, bypassing conflict checks, to model
// a static route created outside this tool.
func (w *World) PutRoute(tableID string, destination topology.AddressBlock, target string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.tables[tableID]; ok {
		t.routes = append(t.routes, topology.Route{
			ID:          cloud.RouteID(tableID, destination),
			TableID:     tableID,
			Destination: destination,
			Target:      target,
			TargetKind:  topology.TargetGateway,
		})
	}
}

// DropRoute removes a route directly, to model out-of-band drift.
func (w *World) DropRoute(tableID string, destination topology.AddressBlock) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.tables[tableID]; ok {
		t.routes = slices.DeleteFunc(t.routes, func(r topology.Route) bool {
			return r.Destination == destination
		})
	}
}

// DropNetwork removes a network record directly, to model out-of-band
// deletion.
func (w *World) DropNetwork(networkID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.networks, networkID)
}

// SetPeeringStatus forces the status of a link.
func (w *World) SetPeeringStatus(linkID string, status topology.PeeringStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.peerings[linkID]; ok {
		p.status = status
	}
}

// PeeringStatus returns the status of a link and whether it exists.
func (w *World) PeeringStatus(linkID string) (topology.PeeringStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.peerings[linkID]; ok {
		return p.status, true
	}
	return "", false
}

// NetworkIDs lists all live networks in sorted order.
func (w *World) NetworkIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Sorted(maps.Keys(w.networks))
}

// SubnetPublicIP reports whether a subnet maps public IPs on launch.
func (w *World) SubnetPublicIP(subnetID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.subnets[subnetID]; ok {
		return s.publicIP
	}
	return false
}

// SubnetTable returns the route table a subnet is associated with.
func (w *World) SubnetTable(subnetID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.subnets[subnetID]; ok {
		return s.tableID
	}
	return ""
}

// ActivePeerings counts links that are not deleted, failed or rejected.
func (w *World) ActivePeerings() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, p := range w.peerings {
		if !p.status.Terminal() {
			n++
		}
	}
	return n
}
