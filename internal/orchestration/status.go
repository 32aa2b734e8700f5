package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/state"
	"github.com/imamik/vpcmesh/internal/topology"
	"github.com/imamik/vpcmesh/internal/util/async"
)

// UnitView is the recorded status of one unit.
type UnitView struct {
	Unit          string                `json:"unit"`
	Region        string                `json:"region,omitempty"`
	Declared      bool                  `json:"declared"`
	Status        topology.UnitStatus   `json:"status"`
	NetworkID     string                `json:"networkId,omitempty"`
	NetworkBlock  topology.AddressBlock `json:"networkBlock,omitzero"`
	PeeringLinkID string                `json:"peeringLinkId,omitempty"`
	PeerRegion    string                `json:"peerRegion,omitempty"`
	Reachability  topology.Reachability `json:"reachability,omitempty"`
	Routes        []string              `json:"routes,omitempty"`
	Error         string                `json:"error,omitempty"`
	ErrorKind     topology.Kind         `json:"errorKind,omitempty"`
	AppliedAt     time.Time             `json:"appliedAt,omitzero"`
	Revision      string                `json:"revision,omitempty"`
}

// Status reports every declared and every recorded unit from state alone.
// Declared units come first in apply order; units only found in state
// follow by name. Reachability is derived from the routes recorded for
// each unit's link, so run Refresh first to see live drift.
func (c *Composer) Status(ctx context.Context, specs []topology.UnitSpec) ([]UnitView, error) {
	records, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	var declared []string
	regions := make(map[string]string)
	if g, err := BuildGraph(specs); err == nil {
		declared = g.Order()
	} else {
		for _, s := range specs {
			declared = append(declared, s.Name)
		}
	}
	for _, s := range specs {
		regions[s.Name] = s.Region
	}

	var views []UnitView
	seen := make(map[string]bool)
	for _, name := range declared {
		seen[name] = true
		views = append(views, view(name, regions[name], true, records[name], records))
	}
	l := &ledger{records: records}
	for _, rec := range l.all() {
		if !seen[rec.Unit] {
			views = append(views, view(rec.Unit, rec.Outputs.Region, false, rec, records))
		}
	}
	return views, nil
}

func view(name, region string, declared bool, rec *state.Record, all map[string]*state.Record) UnitView {
	v := UnitView{Unit: name, Region: region, Declared: declared, Status: topology.StatusPlanned}
	if rec == nil {
		return v
	}
	out := rec.Outputs
	v.Status = rec.Status
	if v.Region == "" {
		v.Region = out.Region
	}
	v.NetworkID = out.NetworkID
	v.NetworkBlock = out.NetworkBlock
	v.PeeringLinkID = out.PeeringLinkID
	v.PeerRegion = out.PeerRegion
	v.Routes = out.RouteIDs()
	v.Error = rec.Error
	v.ErrorKind = rec.ErrorKind
	v.AppliedAt = rec.AppliedAt
	v.Revision = rec.Revision

	if link, ok := out.Link(); ok {
		v.Reachability = reachability(link, all)
	}
	return v
}

// reachability checks the recorded routes of every applied unit for the
// two directions of link. The requester is side A.
func reachability(link topology.PeeringLink, all map[string]*state.Record) topology.Reachability {
	var routedA, routedB bool
	for _, rec := range all {
		if rec.Status != topology.StatusApplied {
			continue
		}
		for _, r := range rec.Outputs.Routes {
			if r.LinkID != link.ID {
				continue
			}
			switch r.Destination {
			case link.AccepterBlock:
				routedA = true
			case link.RequesterBlock:
				routedB = true
			}
		}
	}
	return topology.ReachabilityOf(routedA, routedB)
}

// LiveStatus is Status with reachability read from the provider: the
// route tables recorded for each link are checked for a route through it.
// The first failed check stops the others.
func (c *Composer) LiveStatus(ctx *provisioning.Context, specs []topology.UnitSpec) ([]UnitView, error) {
	views, err := c.Status(ctx, specs)
	if err != nil {
		return nil, err
	}
	records, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	var tasks []async.Task
	for i := range views {
		rec := records[views[i].Unit]
		if rec == nil || rec.Status == topology.StatusDestroyed {
			continue
		}
		link, ok := rec.Outputs.Link()
		if !ok {
			continue
		}
		sideA, sideB := routeSides(link, records)
		tasks = append(tasks, async.Task{
			Name: rec.Unit,
			Func: func(gctx context.Context) error {
				reach, err := c.routes.Verify(ctx.WithContext(gctx).ForUnit(rec.Unit, nil), link, sideA, sideB)
				if err != nil {
					return err
				}
				views[i].Reachability = reach
				return nil
			},
		})
	}
	if err := async.RunFailFast(ctx, tasks, c.parallelism); err != nil {
		return nil, fmt.Errorf("failed to verify routes: %w", err)
	}
	return views, nil
}

// routeSides finds the recorded tables that carry each direction of link.
// Side A routes the accepter block from the requester; a direction no live
// unit recorded is nil.
func routeSides(link topology.PeeringLink, all map[string]*state.Record) (sideA, sideB *topology.RouteSide) {
	for _, rec := range all {
		if rec.Status == topology.StatusDestroyed {
			continue
		}
		for _, r := range rec.Outputs.Routes {
			if r.LinkID != link.ID {
				continue
			}
			switch {
			case r.Destination == link.AccepterBlock && sideA == nil:
				sideA = &topology.RouteSide{Region: r.Region, RouteTableID: r.TableID, OwnBlock: link.RequesterBlock, PeerBlock: r.Destination}
			case r.Destination == link.RequesterBlock && sideB == nil:
				sideB = &topology.RouteSide{Region: r.Region, RouteTableID: r.TableID, OwnBlock: link.AccepterBlock, PeerBlock: r.Destination}
			}
		}
	}
	return sideA, sideB
}
