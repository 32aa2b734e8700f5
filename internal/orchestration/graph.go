package orchestration

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/imamik/vpcmesh/internal/topology"
)

// EdgeKind names why one unit depends on another.
type EdgeKind string

const (
	// EdgePeerNetwork: a peering unit needs the accepter unit's network.
	EdgePeerNetwork EdgeKind = "peer-network"
	// EdgePeeringLink: a routes unit needs the link a peering unit published.
	EdgePeeringLink EdgeKind = "peering-link"
	// EdgeRouteTable: a routes unit writes into another unit's route table.
	EdgeRouteTable EdgeKind = "route-table"
)

// Edge says that From cannot be applied before To is applied.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s (%s)", e.From, e.To, e.Kind)
}

// Graph is the dependency graph of a topology's units.
type Graph struct {
	units      map[string]topology.UnitSpec
	edges      []Edge
	deps       map[string][]string
	dependents map[string][]string
	levels     [][]string
}

// BuildGraph validates the unit declarations, derives their dependency
// edges and sorts them into levels. Every problem is reported; each wraps
// topology.ErrInvalidConfig.
func BuildGraph(specs []topology.UnitSpec) (*Graph, error) {
	g := &Graph{
		units:      make(map[string]topology.UnitSpec, len(specs)),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}

	var errs []error
	for _, spec := range specs {
		if spec.Name == "" {
			errs = append(errs, invalid("unit without a name"))
			continue
		}
		if _, dup := g.units[spec.Name]; dup {
			errs = append(errs, invalid("duplicate unit %q", spec.Name))
			continue
		}
		g.units[spec.Name] = spec
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, name := range g.names() {
		errs = append(errs, g.link(g.units[name])...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	levels, err := g.sort()
	if err != nil {
		return nil, err
	}
	g.levels = levels
	return g, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", topology.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// link validates one unit against the others and records its edges.
func (g *Graph) link(u topology.UnitSpec) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, invalid("unit %s: %s", u.Name, fmt.Sprintf(format, args...)))
	}

	if u.Region == "" {
		fail("region is required")
	}
	if u.Network == nil && u.Peering == nil && u.Routes == nil {
		fail("declares no network, peering or routes section")
	}

	if p := u.Peering; p != nil {
		if u.Network == nil {
			fail("peering needs the unit's own network section")
		}
		switch p.Routes {
		case topology.RoutesLocal, topology.RoutesBoth, topology.RoutesNone:
		default:
			fail("unknown peering routes scope %q", p.Routes)
		}

		if p.Peer.IsUnit() {
			peer, ok := g.units[p.Peer.Unit]
			switch {
			case !ok:
				fail("peer unit %q does not exist", p.Peer.Unit)
			case peer.Name == u.Name:
				fail("cannot peer with itself")
			case peer.Network == nil:
				fail("peer unit %q has no network section", p.Peer.Unit)
			default:
				if p.Routes == topology.RoutesBoth && peer.Region != u.Region {
					fail("routes: both needs the peer in %s, but %q is in %s; route the remote side from a unit in its region",
						u.Region, peer.Name, peer.Region)
				}
				g.addEdge(u.Name, peer.Name, EdgePeerNetwork)
			}
		} else {
			if p.Peer.NetworkID == "" || p.Peer.Region == "" {
				fail("literal peer needs networkId and region")
			}
			if p.Routes != topology.RoutesNone && p.Peer.Block.IsZero() {
				fail("literal peer needs cidr to be routed")
			}
			if p.Routes == topology.RoutesBoth {
				if p.Peer.Region != u.Region {
					fail("routes: both needs the peer in %s, but it is in %s", u.Region, p.Peer.Region)
				}
				if p.Peer.RouteTableID == "" {
					fail("routes: both with a literal peer needs its routeTableId")
				}
			}
		}
	}

	if r := u.Routes; r != nil {
		errs = append(errs, g.linkRoutes(u, r)...)
	}
	return errs
}

func (g *Graph) linkRoutes(u topology.UnitSpec, r *topology.RoutesSection) []error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, invalid("unit %s: routes: %s", u.Name, fmt.Sprintf(format, args...)))
	}

	owner, ok := g.units[r.Peering]
	switch {
	case r.Peering == "":
		fail("peering unit is required")
		return errs
	case !ok:
		fail("peering unit %q does not exist", r.Peering)
		return errs
	case owner.Peering == nil:
		fail("unit %q declares no peering", r.Peering)
		return errs
	}

	netName := r.Network
	if netName == "" {
		netName = u.Name
	}
	target, ok := g.units[netName]
	switch {
	case !ok:
		fail("network unit %q does not exist", netName)
		return errs
	case target.Network == nil:
		fail("unit %q has no network section", netName)
		return errs
	case target.Region != u.Region:
		fail("table of %q is in %s, not in this unit's region %s", netName, target.Region, u.Region)
		return errs
	}

	requester := netName == owner.Name
	accepter := owner.Peering.Peer.IsUnit() && netName == owner.Peering.Peer.Unit
	switch {
	case !requester && !accepter:
		fail("network %q is not an endpoint of the link of %q", netName, owner.Name)
		return errs
	case requester && owner.Peering.Routes != topology.RoutesNone:
		fail("%q already routes its own side", owner.Name)
		return errs
	case accepter && owner.Peering.Routes == topology.RoutesBoth:
		fail("%q already routes both sides", owner.Name)
		return errs
	}

	if owner.Name != u.Name {
		g.addEdge(u.Name, owner.Name, EdgePeeringLink)
	}
	if netName != u.Name {
		g.addEdge(u.Name, netName, EdgeRouteTable)
	}
	return errs
}

func (g *Graph) addEdge(from, to string, kind EdgeKind) {
	e := Edge{From: from, To: to, Kind: kind}
	if slices.Contains(g.edges, e) {
		return
	}
	g.edges = append(g.edges, e)
	if !slices.Contains(g.deps[from], to) {
		g.deps[from] = append(g.deps[from], to)
		g.dependents[to] = append(g.dependents[to], from)
	}
}

// sort runs Kahn's algorithm level by level. Units within a level are
// sorted by name so that the order is deterministic.
func (g *Graph) sort() ([][]string, error) {
	indegree := make(map[string]int, len(g.units))
	for name := range g.units {
		indegree[name] = len(g.deps[name])
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}

	var levels [][]string
	placed := 0
	for len(ready) > 0 {
		slices.Sort(ready)
		levels = append(levels, ready)
		placed += len(ready)

		var next []string
		for _, name := range ready {
			for _, dependent := range g.dependents[name] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		ready = next
	}

	if placed < len(g.units) {
		var cyclic []string
		for name, n := range indegree {
			if n > 0 {
				cyclic = append(cyclic, name)
			}
		}
		slices.Sort(cyclic)
		return nil, invalid("dependency cycle between units %s", strings.Join(cyclic, ", "))
	}
	return levels, nil
}

func (g *Graph) names() []string {
	names := make([]string, 0, len(g.units))
	for name := range g.units {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Unit returns the declaration of a unit.
func (g *Graph) Unit(name string) (topology.UnitSpec, bool) {
	u, ok := g.units[name]
	return u, ok
}

// Levels returns the units grouped by depth. Units of one level do not
// depend on each other.
func (g *Graph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		out[i] = slices.Clone(level)
	}
	return out
}

// Order returns every unit in apply order.
func (g *Graph) Order() []string {
	var order []string
	for _, level := range g.levels {
		order = append(order, level...)
	}
	return order
}

// Edges returns all edges sorted by source, target and kind.
func (g *Graph) Edges() []Edge {
	edges := slices.Clone(g.edges)
	slices.SortFunc(edges, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.To, b.To), cmp.Compare(a.Kind, b.Kind))
	})
	return edges
}

// Dependencies returns the units name directly depends on, sorted.
func (g *Graph) Dependencies(name string) []string {
	deps := slices.Clone(g.deps[name])
	slices.Sort(deps)
	return deps
}

// Dependents returns every unit that directly or transitively depends on
// name, sorted.
func (g *Graph) Dependents(name string) []string {
	seen := map[string]bool{}
	queue := slices.Clone(g.dependents[name])
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n] {
			continue
		}
		seen[n] = true
		queue = append(queue, g.dependents[n]...)
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Closure returns names plus everything they transitively depend on, in
// apply order.
func (g *Graph) Closure(names ...string) []string {
	want := map[string]bool{}
	var visit func(string)
	visit = func(n string) {
		if want[n] {
			return
		}
		want[n] = true
		for _, d := range g.deps[n] {
			visit(d)
		}
	}
	for _, n := range names {
		visit(n)
	}
	var out []string
	for _, n := range g.Order() {
		if want[n] {
			out = append(out, n)
		}
	}
	return out
}
