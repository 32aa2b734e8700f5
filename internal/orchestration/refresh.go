package orchestration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/state"
	"github.com/imamik/vpcmesh/internal/topology"
	"github.com/imamik/vpcmesh/internal/util/async"
)

// Drift describes how the live resources of a unit differ from its record.
type Drift struct {
	Unit    string              `json:"unit"`
	Status  topology.UnitStatus `json:"status"`
	Reasons []string            `json:"reasons,omitempty"`
}

// Refresh compares the live network, link and routes of every applied or
// drifted unit with its record. Units with differences become Drifted;
// drifted units whose resources are back in place become Applied again.
// The returned drifts cover every unit checked, in unit order.
func (c *Composer) Refresh(ctx *provisioning.Context) ([]Drift, error) {
	records, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	l := &ledger{records: records}
	links := publishedLinks(l.all())

	var mu sync.Mutex
	var drifts []Drift
	var tasks []async.Task
	for _, rec := range l.all() {
		if rec.Status != topology.StatusApplied && rec.Status != topology.StatusDrifted {
			continue
		}
		tasks = append(tasks, async.Task{
			Name: rec.Unit,
			Func: func(context.Context) error {
				d, err := c.refreshUnit(ctx, rec, links)
				if err != nil {
					return err
				}
				mu.Lock()
				drifts = append(drifts, d)
				mu.Unlock()
				return nil
			},
		})
	}
	err = async.RunParallel(ctx, tasks, c.parallelism)

	slices.SortFunc(drifts, func(a, b Drift) int {
		return cmp.Compare(a.Unit, b.Unit)
	})
	return drifts, err
}

// publishedLinks maps the id of every link a live unit publishes to the
// link.
func publishedLinks(records []*state.Record) map[string]topology.PeeringLink {
	links := make(map[string]topology.PeeringLink)
	for _, rec := range records {
		if rec.Status == topology.StatusDestroyed {
			continue
		}
		if link, ok := rec.Outputs.Link(); ok {
			links[link.ID] = link
		}
	}
	return links
}

func (c *Composer) refreshUnit(ctx *provisioning.Context, rec *state.Record, links map[string]topology.PeeringLink) (Drift, error) {
	uctx := ctx.ForUnit(rec.Unit, nil)
	reasons, err := c.inspect(uctx, rec, links)
	if err != nil {
		return Drift{}, topology.NewUnitError(rec.Unit, err)
	}

	next := topology.StatusApplied
	if len(reasons) > 0 {
		next = topology.StatusDrifted
	}
	d := Drift{Unit: rec.Unit, Status: next, Reasons: reasons}
	if next == rec.Status {
		return d, nil
	}
	if !rec.Status.CanTransitionTo(next) {
		return d, fmt.Errorf("unit %s cannot move from %s to %s", rec.Unit, rec.Status, next)
	}

	rec.Status = next
	rec.Error = ""
	if next == topology.StatusDrifted {
		rec.Error = joinReasons(reasons)
		uctx.Observer.Event(provisioning.Event{Type: provisioning.EventUnitDrifted, Message: rec.Error})
	}
	if err := c.save(ctx, rec); err != nil {
		return d, err
	}
	return d, nil
}

// inspect lists the differences between rec and the provider. links holds
// the links currently published by all units; a route through a link no
// unit publishes, or through one that is not active, is drift too.
func (c *Composer) inspect(ctx *provisioning.Context, rec *state.Record, links map[string]topology.PeeringLink) ([]string, error) {
	out := rec.Outputs
	var reasons []string

	if out.NetworkID != "" {
		exists, err := c.networks.Exists(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("failed to check network %s: %w", out.NetworkID, err)
		}
		if !exists {
			// Nothing else can be live without the network.
			return []string{fmt.Sprintf("network %s is gone", out.NetworkID)}, nil
		}
	}

	if link, ok := out.Link(); ok {
		status, err := c.connector.Status(ctx, link)
		if err != nil {
			return nil, err
		}
		if status != topology.PeeringActive {
			reasons = append(reasons, fmt.Sprintf("peering link %s is %s", link.ID, status))
		}
	}

	checked := map[string]bool{out.PeeringLinkID: true}
	for _, r := range out.Routes {
		side := &topology.RouteSide{Region: r.Region, RouteTableID: r.TableID, PeerBlock: r.Destination}
		routed, err := c.routes.Routed(ctx, topology.PeeringLink{ID: r.LinkID}, side)
		if err != nil {
			return nil, err
		}
		if !routed {
			reasons = append(reasons, fmt.Sprintf("route %s to %s via %s is missing", r.TableID, r.Destination, r.LinkID))
			continue
		}

		if checked[r.LinkID] {
			continue
		}
		checked[r.LinkID] = true
		link, ok := links[r.LinkID]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("route %s to %s goes through link %s, which no unit publishes any more", r.TableID, r.Destination, r.LinkID))
			continue
		}
		status, err := c.connector.Status(ctx, link)
		if err != nil {
			return nil, err
		}
		if status != topology.PeeringActive {
			reasons = append(reasons, fmt.Sprintf("route %s to %s goes through link %s, which is %s", r.TableID, r.Destination, r.LinkID, status))
		}
	}
	return reasons, nil
}

func joinReasons(reasons []string) string {
	errs := make([]error, len(reasons))
	for i, r := range reasons {
		errs[i] = errors.New(r)
	}
	return errors.Join(errs...).Error()
}

