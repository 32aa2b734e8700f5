package orchestration

import (
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

// DestroyOptions selects what Destroy removes.
type DestroyOptions struct {
	// Units limits the run to the named units. A unit that another live
	// unit still depends on cannot be destroyed alone.
	Units []string
}

// Destroy removes units in reverse dependency order. Within a unit its
// routes go first, then its peering link, then its network. Recorded units
// no longer declared in specs are destroyed before the declared ones.
func (c *Composer) Destroy(ctx *provisioning.Context, specs []topology.UnitSpec, opts DestroyOptions) (*Report, error) {
	g, err := BuildGraph(specs)
	if err != nil {
		return nil, err
	}
	records, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	l := &ledger{records: records}

	live := func(name string) bool {
		rec := l.get(name)
		return rec != nil && rec.Status != topology.StatusDestroyed
	}

	selected := make(map[string]bool)
	for _, n := range opts.Units {
		if _, declared := g.Unit(n); !declared && l.get(n) == nil {
			return nil, invalid("unit %q is neither declared nor recorded", n)
		}
		selected[n] = true
	}
	if len(opts.Units) > 0 {
		for n := range selected {
			for _, dep := range g.Dependents(n) {
				if live(dep) && !selected[dep] {
					return nil, invalid("unit %s is still used by %s; destroy it too", n, dep)
				}
			}
		}
	}
	wanted := func(name string) bool {
		return live(name) && (len(opts.Units) == 0 || selected[name])
	}

	var orphans []string
	for _, rec := range l.all() {
		if _, declared := g.Unit(rec.Unit); !declared && wanted(rec.Unit) {
			orphans = append(orphans, rec.Unit)
		}
	}
	waves := [][]string{orphans}
	levels := g.Levels()
	slices.Reverse(levels)
	waves = append(waves, levels...)

	var mu sync.Mutex
	results := make(map[string]UnitResult)
	var order []string
	for _, wave := range waves {
		var tasks []async.Task
		for _, name := range wave {
			if !wanted(name) {
				continue
			}
			order = append(order, name)
			tasks = append(tasks, async.Task{
				Name: name,
				Func: func(context.Context) error {
					res := c.destroyUnit(ctx, g, name, l)
					mu.Lock()
					results[name] = res
					mu.Unlock()
					return res.Err
				},
			})
		}
		_ = async.RunParallel(ctx, tasks, c.parallelism)
	}

	report := &Report{}
	for _, name := range order {
		report.Results = append(report.Results, results[name])
	}
	return report, report.Err()
}

func (c *Composer) destroyUnit(ctx *provisioning.Context, g *Graph, name string, l *ledger) UnitResult {
	uctx := ctx.ForUnit(name, nil)
	start := c.now()
	rec := l.get(name)
	res := UnitResult{Unit: name, Status: rec.Status}

	for _, dep := range g.Dependents(name) {
		if other := l.get(dep); other != nil && other.Status != topology.StatusDestroyed {
			err := fmt.Errorf("%w: %s still depends on it and is %s", topology.ErrDependencyNotApplied, dep, other.Status)
			res.Err = topology.NewUnitError(name, err)
			uctx.Observer.Event(provisioning.Event{Type: provisioning.EventUnitSkipped, Message: err.Error()})
			return res
		}
	}

	err := c.teardown(uctx, rec)
	res.Changed = true
	res.Duration = c.now().Sub(start)
	if err == nil {
		rec.Status = topology.StatusDestroyed
		rec.Outputs = topology.Outputs{}
		rec.NetworkHash = ""
		rec.Error = ""
		rec.ErrorKind = ""
	} else {
		rec.Error = err.Error()
		rec.ErrorKind = topology.KindOf(err)
	}
	if serr := c.save(ctx, rec); serr != nil {
		err = errors.Join(err, serr)
	}
	l.put(rec)
	res.Status = rec.Status

	if err != nil {
		res.Err = topology.NewUnitError(name, err)
		uctx.Observer.Event(provisioning.Event{Type: provisioning.EventUnitFailed, Message: err.Error()})
		return res
	}
	uctx.Observer.Event(provisioning.Event{Type: provisioning.EventUnitDestroyed, Message: "destroyed"})
	return res
}

// teardown removes what rec holds and clears each part from rec once it is
// gone, so that a retry after a failure resumes where this one stopped.
func (c *Composer) teardown(ctx *provisioning.Context, rec *state.Record) error {
	if err := c.removeRoutes(ctx, rec, ""); err != nil {
		return err
	}
	if link, ok := rec.Outputs.Link(); ok {
		if err := c.connector.Disconnect(ctx, link); err != nil {
			return err
		}
		c.clearLink(rec)
	}
	if err := c.networks.Teardown(ctx, rec.Outputs); err != nil {
		return err
	}
	return nil
}
