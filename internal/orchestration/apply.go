package orchestration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/state"
	"github.com/imamik/vpcmesh/internal/topology"
	"github.com/imamik/vpcmesh/internal/util/async"
	"github.com/imamik/vpcmesh/internal/util/naming"
)

// ApplyOptions selects what Apply touches.
type ApplyOptions struct {
	// Units limits the run to the named units. Units they depend on are
	// not applied and must already be applied, unless WithDependencies is
	// set.
	Units []string
	// WithDependencies adds everything the named units transitively
	// depend on to the run.
	WithDependencies bool
}

// UnitResult is the outcome of one unit in a run.
type UnitResult struct {
	Unit     string
	Status   topology.UnitStatus
	Changed  bool
	Err      error
	Duration time.Duration
}

// Report collects the unit results of a run in apply order.
type Report struct {
	Results []UnitResult
}

// Result returns the result of a unit.
func (r *Report) Result(unit string) (UnitResult, bool) {
	for _, res := range r.Results {
		if res.Unit == unit {
			return res, true
		}
	}
	return UnitResult{}, false
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []UnitResult {
	var out []UnitResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Err joins the errors of all failed units.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

// Apply brings the selected units to Applied, level by level. Units of one
// level run concurrently. A failed unit halts every unit that depends on
// it; independent units continue. The returned error joins the
// *topology.UnitError of each failed or halted unit, and the report is
// returned with it.
func (c *Composer) Apply(ctx *provisioning.Context, specs []topology.UnitSpec, opts ApplyOptions) (*Report, error) {
	plan, err := c.Plan(ctx, specs)
	if err != nil {
		return nil, err
	}
	g := plan.graph

	selected, err := selectUnits(g, opts.Units, opts.WithDependencies)
	if err != nil {
		return nil, err
	}

	records, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	l := &ledger{records: records}

	var mu sync.Mutex
	results := make(map[string]UnitResult)

	levels := g.Levels()
	for i, level := range levels {
		var tasks []async.Task
		for _, name := range level {
			if !selected[name] {
				continue
			}
			spec, _ := g.Unit(name)
			tasks = append(tasks, async.Task{
				Name: name,
				Func: func(context.Context) error {
					res := c.applyUnit(ctx, g, spec, l)
					mu.Lock()
					results[name] = res
					mu.Unlock()
					return res.Err
				},
			})
		}
		if len(tasks) == 0 {
			continue
		}
		ctx.Observer.Progress("apply", i+1, len(levels))
		_ = async.RunParallel(ctx, tasks, c.parallelism)
	}

	report := &Report{}
	for _, name := range g.Order() {
		if res, ok := results[name]; ok {
			report.Results = append(report.Results, res)
		}
	}
	return report, report.Err()
}

func selectUnits(g *Graph, names []string, withDeps bool) (map[string]bool, error) {
	selected := make(map[string]bool)
	if len(names) == 0 {
		for _, n := range g.Order() {
			selected[n] = true
		}
		return selected, nil
	}
	for _, n := range names {
		if _, ok := g.Unit(n); !ok {
			return nil, invalid("unit %q is not declared", n)
		}
	}
	if withDeps {
		names = g.Closure(names...)
	}
	for _, n := range names {
		selected[n] = true
	}
	return selected, nil
}

// applyUnit runs one unit and records its outcome.
func (c *Composer) applyUnit(ctx *provisioning.Context, g *Graph, spec topology.UnitSpec, l *ledger) UnitResult {
	uctx := ctx.ForUnit(spec.Name, spec.Tags)
	start := c.now()
	res := UnitResult{Unit: spec.Name, Status: topology.StatusPlanned}

	prev := l.get(spec.Name)
	if prev != nil {
		res.Status = prev.Status
	}

	if err := dependenciesApplied(g, spec.Name, l); err != nil {
		res.Err = topology.NewUnitError(spec.Name, err)
		uctx.Observer.Event(provisioning.Event{Type: provisioning.EventUnitSkipped, Message: err.Error()})
		ctx.Metrics.RecordUnitApply(spec.Name, "skipped", 0)
		return res
	}

	inputs := unitInputs(g, spec, l.get)
	if prev != nil && prev.Status == topology.StatusApplied && prev.InputsHash == inputs {
		uctx.Observer.Event(provisioning.Event{Type: provisioning.EventUnitApplied, Message: "unchanged"})
		ctx.Metrics.RecordUnitApply(spec.Name, "unchanged", 0)
		return res
	}

	if err := checkNetworkUnchanged(spec, prev); err != nil {
		res.Err = topology.NewUnitError(spec.Name, err)
		uctx.Observer.Event(provisioning.Event{Type: provisioning.EventUnitFailed, Message: err.Error()})
		ctx.Metrics.RecordUnitApply(spec.Name, "failed", 0)
		return res
	}

	rec := &state.Record{Unit: spec.Name, Status: topology.StatusPlanned}
	if prev != nil {
		rec = prev
	}
	if rec.Status == topology.StatusApplying {
		// Left behind by an interrupted run.
		uctx.Observer.Printf("unit %s was interrupted while applying; resuming", spec.Name)
		rec.Status = topology.StatusFailed
	}
	if !rec.Status.CanTransitionTo(topology.StatusApplying) {
		err := fmt.Errorf("%w: unit %s cannot be applied from status %s", topology.ErrInvalidConfig, spec.Name, rec.Status)
		res.Err = topology.NewUnitError(spec.Name, err)
		return res
	}

	rec.Status = topology.StatusApplying
	rec.InputsHash = inputs
	if err := c.save(ctx, rec); err != nil {
		res.Err = topology.NewUnitError(spec.Name, err)
		return res
	}
	l.put(rec)
	uctx.Observer.Event(provisioning.Event{Type: provisioning.EventUnitApplying, Message: fmt.Sprintf("applying in %s", spec.Region)})

	err := c.converge(uctx, spec, rec, l)
	res.Changed = true
	if err != nil {
		rec.Status = topology.StatusFailed
		rec.Error = err.Error()
		rec.ErrorKind = topology.KindOf(err)
	} else {
		rec.Status = topology.StatusApplied
		rec.Error = ""
		rec.ErrorKind = ""
		rec.AppliedAt = c.now().UTC()
	}
	if serr := c.save(ctx, rec); serr != nil {
		err = errors.Join(err, serr)
		rec.Status = topology.StatusFailed
	}
	l.put(rec)

	res.Status = rec.Status
	res.Duration = c.now().Sub(start)
	if err != nil {
		res.Err = topology.NewUnitError(spec.Name, err)
		uctx.Observer.Event(provisioning.Event{
			Type:    provisioning.EventUnitFailed,
			Message: err.Error(),
			Fields:  map[string]string{"kind": string(topology.KindOf(err))},
		})
		ctx.Metrics.RecordUnitApply(spec.Name, "failed", res.Duration)
		return res
	}
	uctx.Observer.Event(provisioning.Event{
		Type:    provisioning.EventUnitApplied,
		Message: fmt.Sprintf("applied in %v", res.Duration.Round(time.Millisecond)),
	})
	ctx.Metrics.RecordUnitApply(spec.Name, "applied", res.Duration)
	return res
}

// dependenciesApplied checks that every unit name depends on is Applied.
func dependenciesApplied(g *Graph, name string, l *ledger) error {
	for _, dep := range g.Dependencies(name) {
		rec := l.get(dep)
		switch {
		case rec == nil:
			return fmt.Errorf("%w: %s has not been applied", topology.ErrDependencyNotApplied, dep)
		case rec.Status != topology.StatusApplied:
			return fmt.Errorf("%w: %s is %s", topology.ErrDependencyNotApplied, dep, rec.Status)
		}
	}
	return nil
}

// converge creates whatever the unit's sections need and rec does not
// already hold. rec is updated as resources appear, also on failure.
func (c *Composer) converge(ctx *provisioning.Context, spec topology.UnitSpec, rec *state.Record, l *ledger) error {
	if spec.Network != nil {
		if err := c.convergeNetwork(ctx, spec, rec); err != nil {
			return err
		}
	}
	if spec.Peering != nil {
		if err := c.convergePeering(ctx, spec, rec, l); err != nil {
			return err
		}
	}
	if spec.Routes != nil {
		if err := c.convergeRoutes(ctx, spec, rec, l); err != nil {
			return err
		}
	}
	return nil
}

// convergeNetwork reuses a complete recorded network. A network left
// incomplete by a failed apply is torn down and provisioned again.
func (c *Composer) convergeNetwork(ctx *provisioning.Context, spec topology.UnitSpec, rec *state.Record) error {
	out := &rec.Outputs
	if out.NetworkID != "" {
		if rec.NetworkHash != "" {
			exists, err := c.networks.Exists(ctx, *out)
			if err != nil {
				return fmt.Errorf("failed to check network %s: %w", out.NetworkID, err)
			}
			if exists {
				provisioning.LogResourceExists(ctx.Observer, "network", "network", naming.Network(ctx.Topology, spec.Name), out.NetworkID)
				return nil
			}
			ctx.Observer.Printf("network %s of unit %s no longer exists; provisioning a new one", out.NetworkID, spec.Name)
		} else {
			ctx.Observer.Printf("removing incomplete network %s of unit %s", out.NetworkID, spec.Name)
			if err := c.networks.Teardown(ctx, *out); err != nil {
				return err
			}
		}
		rec.Outputs = topology.Outputs{}
		rec.NetworkHash = ""
	}

	unit, err := c.networks.Provision(ctx, networkSpec(spec))
	if unit != nil {
		rec.Outputs = unit.Outputs()
	}
	if err != nil {
		return err
	}
	rec.NetworkHash = spec.Network.Hash()
	return nil
}

// peerEndpoint is the accepter side of a unit's link as far as it is known.
type peerEndpoint struct {
	ref     topology.NetworkRef
	tableID string
}

func resolvePeer(p *topology.PeeringSection, l *ledger) (peerEndpoint, error) {
	if !p.Peer.IsUnit() {
		return peerEndpoint{
			ref:     topology.NetworkRef{ID: p.Peer.NetworkID, Region: p.Peer.Region, Block: p.Peer.Block},
			tableID: p.Peer.RouteTableID,
		}, nil
	}
	rec := l.get(p.Peer.Unit)
	if rec == nil || rec.Outputs.NetworkID == "" {
		return peerEndpoint{}, fmt.Errorf("%w: peer %s has no network", topology.ErrDependencyNotApplied, p.Peer.Unit)
	}
	out := rec.Outputs
	return peerEndpoint{
		ref:     topology.NetworkRef{ID: out.NetworkID, Region: out.Region, Block: out.NetworkBlock},
		tableID: out.RouteTableFor(p.Visibility),
	}, nil
}

func (c *Composer) convergePeering(ctx *provisioning.Context, spec topology.UnitSpec, rec *state.Record, l *ledger) error {
	p := spec.Peering
	peer, err := resolvePeer(p, l)
	if err != nil {
		return err
	}
	own := topology.NetworkRef{ID: rec.Outputs.NetworkID, Region: rec.Outputs.Region, Block: rec.Outputs.NetworkBlock}
	if !peer.ref.Block.IsZero() && own.Block.Overlaps(peer.ref.Block) {
		return fmt.Errorf("%w: %s overlaps peer %s (%s)", topology.ErrPeeringRejected, own.Block, peer.ref.ID, peer.ref.Block)
	}

	link, err := c.ensureLink(ctx, spec, rec, own, peer.ref)
	if err != nil {
		return err
	}

	var sides []*topology.RouteSide
	switch p.Routes {
	case topology.RoutesLocal:
		sides = append(sides, link.RequesterSide(rec.Outputs.RouteTableFor(p.Visibility)))
	case topology.RoutesBoth:
		sides = append(sides, link.RequesterSide(rec.Outputs.RouteTableFor(p.Visibility)), link.AccepterSide(peer.tableID))
	}
	return c.installRoutes(ctx, rec, link, sides...)
}

// ensureLink returns the unit's active link to peer. A recorded active link
// is reused; a recorded link that can no longer become active, or whose
// peer network was provisioned again, is removed with its routes and
// replaced.
func (c *Composer) ensureLink(ctx *provisioning.Context, spec topology.UnitSpec, rec *state.Record, own, peer topology.NetworkRef) (topology.PeeringLink, error) {
	out := &rec.Outputs
	if existing, ok := out.Link(); ok {
		stale, err := c.linkStale(ctx, spec, out, existing, peer)
		if err != nil {
			return topology.PeeringLink{}, err
		}
		if !stale {
			provisioning.LogResourceExists(ctx.Observer, "peering", "peering link", naming.Peering(ctx.Topology, spec.Name), existing.ID)
			return existing, nil
		}
		if err := c.removeRoutes(ctx, rec, existing.ID); err != nil {
			return topology.PeeringLink{}, err
		}
		if err := c.connector.Disconnect(ctx, existing); err != nil {
			return topology.PeeringLink{}, err
		}
		c.clearLink(rec)
	}

	link, err := c.connector.Connect(ctx, own, peer.ID, peer.Region)
	if link != nil && link.ID != "" {
		link.AccepterBlock = peer.Block
		out.PeeringLinkID = link.ID
		out.PeerNetworkID = peer.ID
		out.PeerRegion = peer.Region
		out.PeerBlock = peer.Block
	}
	if err != nil {
		return topology.PeeringLink{}, err
	}
	return *link, nil
}

// linkStale reports whether the recorded link must be replaced. A link to a
// different network that still exists is a changed declaration and is
// rejected.
func (c *Composer) linkStale(ctx *provisioning.Context, spec topology.UnitSpec, out *topology.Outputs, link topology.PeeringLink, peer topology.NetworkRef) (bool, error) {
	if out.PeerNetworkID != peer.ID {
		exists, err := c.networks.Exists(ctx, topology.Outputs{NetworkID: out.PeerNetworkID, Region: out.PeerRegion})
		if err != nil {
			return false, fmt.Errorf("failed to check peer network %s: %w", out.PeerNetworkID, err)
		}
		if exists {
			return false, fmt.Errorf("%w: unit %s is peered with %s; destroy it before peering with %s",
				topology.ErrInvalidConfig, spec.Name, out.PeerNetworkID, peer.ID)
		}
		ctx.Observer.Printf("peer network %s of link %s is gone; peering with %s instead", out.PeerNetworkID, link.ID, peer.ID)
		return true, nil
	}

	status, err := c.connector.Status(ctx, link)
	if err != nil {
		return false, err
	}
	if status == topology.PeeringActive {
		return false, nil
	}
	ctx.Observer.Printf("peering link %s is %s; replacing it", link.ID, status)
	return true, nil
}

func (c *Composer) clearLink(rec *state.Record) {
	rec.Outputs.PeeringLinkID = ""
	rec.Outputs.PeerNetworkID = ""
	rec.Outputs.PeerRegion = ""
	rec.Outputs.PeerBlock = topology.AddressBlock{}
}

func (c *Composer) convergeRoutes(ctx *provisioning.Context, spec topology.UnitSpec, rec *state.Record, l *ledger) error {
	rs := spec.Routes

	owner := &rec.Outputs
	if rs.Peering != spec.Name {
		other := l.get(rs.Peering)
		if other == nil {
			return fmt.Errorf("%w: %s has not been applied", topology.ErrDependencyNotApplied, rs.Peering)
		}
		owner = &other.Outputs
	}
	link, ok := owner.Link()
	if !ok {
		return fmt.Errorf("%w: %s has not published a peering link", topology.ErrDependencyNotApplied, rs.Peering)
	}

	target := &rec.Outputs
	if rs.Network != "" && rs.Network != spec.Name {
		other := l.get(rs.Network)
		if other == nil {
			return fmt.Errorf("%w: %s has not been applied", topology.ErrDependencyNotApplied, rs.Network)
		}
		target = &other.Outputs
	}

	table := target.RouteTableFor(rs.Visibility)
	var side *topology.RouteSide
	switch target.NetworkID {
	case link.RequesterNetworkID:
		side = link.RequesterSide(table)
	case link.AccepterNetworkID:
		side = link.AccepterSide(table)
	default:
		return fmt.Errorf("%w: network %s is not an endpoint of link %s", topology.ErrInvalidConfig, target.NetworkID, link.ID)
	}
	if side.Region != spec.Region {
		return fmt.Errorf("%w: unit %s in %s cannot route the %s side of link %s",
			topology.ErrInvalidConfig, spec.Name, spec.Region, side.Region, link.ID)
	}
	return c.installRoutes(ctx, rec, link, side)
}

// installRoutes installs the sides rec does not already hold a live route
// for, and records every route created, also when the call fails halfway.
func (c *Composer) installRoutes(ctx *provisioning.Context, rec *state.Record, link topology.PeeringLink, sides ...*topology.RouteSide) error {
	if err := c.dropStaleRoutes(ctx, rec, link, sides); err != nil {
		return err
	}

	var pending []*topology.RouteSide
	for _, side := range sides {
		idx := slices.IndexFunc(rec.Outputs.Routes, func(r topology.InstalledRoute) bool {
			return r.LinkID == link.ID && r.TableID == side.RouteTableID && r.Destination == side.PeerBlock
		})
		if idx < 0 {
			pending = append(pending, side)
			continue
		}
		routed, err := c.routes.Routed(ctx, link, side)
		if err != nil {
			return err
		}
		if routed {
			provisioning.LogResourceExists(ctx.Observer, "routes", "route", side.RouteTableID, rec.Outputs.Routes[idx].ID)
			continue
		}
		rec.Outputs.Routes = slices.Delete(rec.Outputs.Routes, idx, idx+1)
		pending = append(pending, side)
	}
	if len(pending) == 0 {
		return nil
	}

	sideA := pending[0]
	var sideB *topology.RouteSide
	if len(pending) > 1 {
		sideB = pending[1]
	}
	result, err := c.routes.Install(ctx, link, sideA, sideB)
	for _, installed := range []struct {
		id   string
		side *topology.RouteSide
	}{{result.RouteIDA, sideA}, {result.RouteIDB, sideB}} {
		if installed.id == "" {
			continue
		}
		rec.Outputs.Routes = append(rec.Outputs.Routes, topology.InstalledRoute{
			ID:          installed.id,
			Region:      installed.side.Region,
			TableID:     installed.side.RouteTableID,
			Destination: installed.side.PeerBlock,
			LinkID:      link.ID,
		})
	}
	return err
}

// dropStaleRoutes removes recorded routes that send a side's destination
// through another link or table. They are left behind when a link or
// network this unit routes through was replaced after its last apply, and
// would make the new install a RouteConflict.
func (c *Composer) dropStaleRoutes(ctx *provisioning.Context, rec *state.Record, link topology.PeeringLink, sides []*topology.RouteSide) error {
	stale := func(r topology.InstalledRoute) bool {
		return slices.ContainsFunc(sides, func(side *topology.RouteSide) bool {
			return r.Region == side.Region && r.Destination == side.PeerBlock &&
				(r.LinkID != link.ID || r.TableID != side.RouteTableID)
		})
	}

	kept := rec.Outputs.Routes[:0:0]
	var errs []error
	for _, r := range rec.Outputs.Routes {
		if !stale(r) {
			kept = append(kept, r)
			continue
		}
		ctx.Observer.Printf("route %s to %s via %s is stale; removing it", r.TableID, r.Destination, r.LinkID)
		if err := c.removeRoute(ctx, r); err != nil {
			errs = append(errs, err)
			kept = append(kept, r)
		}
	}
	rec.Outputs.Routes = kept
	return errors.Join(errs...)
}

// removeRoutes deletes the recorded routes through linkID and forgets them.
func (c *Composer) removeRoutes(ctx *provisioning.Context, rec *state.Record, linkID string) error {
	kept := rec.Outputs.Routes[:0:0]
	var errs []error
	for _, r := range rec.Outputs.Routes {
		if linkID != "" && r.LinkID != linkID {
			kept = append(kept, r)
			continue
		}
		if err := c.removeRoute(ctx, r); err != nil {
			errs = append(errs, err)
			kept = append(kept, r)
		}
	}
	rec.Outputs.Routes = kept
	return errors.Join(errs...)
}

func (c *Composer) removeRoute(ctx *provisioning.Context, r topology.InstalledRoute) error {
	side := &topology.RouteSide{Region: r.Region, RouteTableID: r.TableID, PeerBlock: r.Destination}
	return c.routes.Remove(ctx, topology.PeeringLink{ID: r.LinkID}, side)
}
