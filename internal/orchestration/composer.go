package orchestration

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/imamik/vpcmesh/internal/allocator"
	"github.com/imamik/vpcmesh/internal/provisioning/network"
	"github.com/imamik/vpcmesh/internal/provisioning/peering"
	"github.com/imamik/vpcmesh/internal/provisioning/routes"
	"github.com/imamik/vpcmesh/internal/state"
	"github.com/imamik/vpcmesh/internal/topology"
)

// DefaultParallelism bounds how many units of one level are applied at once.
const DefaultParallelism = 4

// Composer applies deployment units in dependency order and keeps their
// state records.
type Composer struct {
	store       state.Store
	networks    *network.Provisioner
	connector   *peering.Connector
	routes      *routes.Synthesizer
	parallelism int
	now         func() time.Time
}

// Option configures a Composer.
type Option func(*Composer)

// WithParallelism sets how many independent units are applied at once.
func WithParallelism(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithNetworkProvisioner replaces the network provisioner, e.g. to add an
// egress hook.
func WithNetworkProvisioner(p *network.Provisioner) Option {
	return func(c *Composer) {
		c.networks = p
	}
}

// WithConnector replaces the peering connector.
func WithConnector(conn *peering.Connector) Option {
	return func(c *Composer) {
		c.connector = conn
	}
}

// WithClock sets the time source of applied-at stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) {
		c.now = now
	}
}

// NewComposer creates a composer allocating from registry and recording
// unit state in store.
func NewComposer(registry *allocator.Registry, store state.Store, opts ...Option) *Composer {
	c := &Composer{
		store:       store,
		networks:    network.NewProvisioner(registry),
		connector:   peering.NewConnector(),
		routes:      routes.NewSynthesizer(),
		parallelism: DefaultParallelism,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Change classifies what applying a unit would do.
type Change string

const (
	ChangeCreate  Change = "create"
	ChangeUpdate  Change = "update"
	ChangeNone    Change = "none"
	ChangeBlocked Change = "blocked"
)

// PlannedUnit is one unit of a Plan.
type PlannedUnit struct {
	Name       string
	Region     string
	Level      int
	DependsOn  []string
	Allocation *network.Allocation
	Status     topology.UnitStatus
	Change     Change
	Reason     string
}

// Plan is the dry-run view of a topology: apply order, address plan and
// the change each unit would see.
type Plan struct {
	Levels [][]string
	Edges  []Edge
	Units  []PlannedUnit

	graph  *Graph
	blocks map[string]topology.AddressBlock
}

// Unit returns the planned unit by name.
func (p *Plan) Unit(name string) (*PlannedUnit, bool) {
	for i := range p.Units {
		if p.Units[i].Name == name {
			return &p.Units[i], true
		}
	}
	return nil, false
}

// Plan validates specs, allocates every network and compares the result
// with the recorded state. It makes no provider calls.
func (c *Composer) Plan(ctx context.Context, specs []topology.UnitSpec) (*Plan, error) {
	g, err := BuildGraph(specs)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Levels: g.Levels(),
		Edges:  g.Edges(),
		graph:  g,
		blocks: make(map[string]topology.AddressBlock),
	}

	var errs []error
	allocs := make(map[string]*network.Allocation)
	for _, name := range g.Order() {
		u, _ := g.Unit(name)
		if u.Network == nil {
			continue
		}
		alloc, err := c.networks.Allocate(networkSpec(u))
		if err != nil {
			errs = append(errs, topology.NewUnitError(name, err))
			continue
		}
		allocs[name] = alloc
		plan.blocks[name] = alloc.Block
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, name := range g.Order() {
		u, _ := g.Unit(name)
		if u.Peering == nil {
			continue
		}
		if err := checkPeerBlocks(u, plan.blocks); err != nil {
			errs = append(errs, topology.NewUnitError(name, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	records, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	for level, names := range plan.Levels {
		for _, name := range names {
			u, _ := g.Unit(name)
			pu := PlannedUnit{
				Name:       name,
				Region:     u.Region,
				Level:      level,
				DependsOn:  g.Dependencies(name),
				Allocation: allocs[name],
			}
			inputs := unitInputs(g, u, func(n string) *state.Record { return records[n] })
			pu.Status, pu.Change, pu.Reason = classify(u, records[name], inputs)
			plan.Units = append(plan.Units, pu)
		}
	}
	return plan, nil
}

// checkPeerBlocks rejects a link between overlapping networks before any
// provider sees it.
func checkPeerBlocks(u topology.UnitSpec, blocks map[string]topology.AddressBlock) error {
	own := blocks[u.Name]
	peer := u.Peering.Peer.Block
	peerName := u.Peering.Peer.NetworkID
	if u.Peering.Peer.IsUnit() {
		peer = blocks[u.Peering.Peer.Unit]
		peerName = u.Peering.Peer.Unit
	}
	if own.IsZero() || peer.IsZero() {
		return nil
	}
	if a, b, overlap := allocator.Overlapping(own, peer); overlap {
		return fmt.Errorf("%w: %s (%s) overlaps %s (%s)", topology.ErrPeeringRejected, u.Name, a, peerName, b)
	}
	return nil
}

func classify(u topology.UnitSpec, rec *state.Record, inputs string) (topology.UnitStatus, Change, string) {
	if rec == nil {
		return topology.StatusPlanned, ChangeCreate, ""
	}
	if rec.Status == topology.StatusDestroyed {
		return rec.Status, ChangeCreate, ""
	}
	if err := checkNetworkUnchanged(u, rec); err != nil {
		return rec.Status, ChangeBlocked, "network section changed; destroy the unit first"
	}
	switch {
	case rec.Status == topology.StatusApplied && rec.InputsHash == inputs:
		return rec.Status, ChangeNone, ""
	case rec.Status == topology.StatusApplied:
		return rec.Status, ChangeUpdate, "inputs changed"
	default:
		return rec.Status, ChangeUpdate, fmt.Sprintf("unit is %s", rec.Status)
	}
}

// checkNetworkUnchanged rejects a new network section for a unit whose
// network exists. Address blocks cannot change in place.
func checkNetworkUnchanged(u topology.UnitSpec, rec *state.Record) error {
	if rec == nil || rec.NetworkHash == "" {
		return nil
	}
	if u.Network != nil && u.Network.Hash() == rec.NetworkHash {
		return nil
	}
	return fmt.Errorf("%w: network section of applied unit %s changed; destroy it before changing subnets or policy",
		topology.ErrInvalidConfig, u.Name)
}

// consumedOutputs are the outputs of a dependency that a unit reads.
type consumedOutputs struct {
	Unit          string `json:"unit"`
	NetworkID     string `json:"networkId,omitempty"`
	PublicTable   string `json:"publicTable,omitempty"`
	PrivateTable  string `json:"privateTable,omitempty"`
	LinkID        string `json:"linkId,omitempty"`
	PeerNetworkID string `json:"peerNetworkId,omitempty"`
}

// unitInputs fingerprints a unit's declaration together with the outputs
// it reads from its dependencies. A dependency that publishes a new
// network, table or link leaves the unit out of date even though its own
// declaration is unchanged.
func unitInputs(g *Graph, u topology.UnitSpec, get func(string) *state.Record) string {
	deps := g.Dependencies(u.Name)
	if len(deps) == 0 {
		return u.InputsHash()
	}
	consumed := make([]consumedOutputs, 0, len(deps))
	for _, dep := range deps {
		c := consumedOutputs{Unit: dep}
		if rec := get(dep); rec != nil {
			c.NetworkID = rec.Outputs.NetworkID
			c.PublicTable = rec.Outputs.PublicRouteTableID
			c.PrivateTable = rec.Outputs.PrivateRouteTableID
			c.LinkID = rec.Outputs.PeeringLinkID
			c.PeerNetworkID = rec.Outputs.PeerNetworkID
		}
		consumed = append(consumed, c)
	}
	data, err := json.Marshal(struct {
		Inputs   string            `json:"inputs"`
		Upstream []consumedOutputs `json:"upstream"`
	}{u.InputsHash(), consumed})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func networkSpec(u topology.UnitSpec) topology.NetworkSpec {
	return topology.NetworkSpec{
		Name:           u.Name,
		Region:         u.Region,
		Selector:       u.Network.Selector,
		Subnets:        slices.Clone(u.Network.Subnets),
		SecurityPolicy: u.Network.PolicySource(),
		PrivateEgress:  u.Network.PrivateEgress,
		Tags:           u.Tags,
	}
}

// load reads every record of the topology, keyed by unit.
func (c *Composer) load(ctx context.Context) (map[string]*state.Record, error) {
	records := make(map[string]*state.Record)
	if c.store == nil {
		return records, nil
	}
	list, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	for _, rec := range list {
		records[rec.Unit] = rec
	}
	return records, nil
}

func (c *Composer) save(ctx context.Context, rec *state.Record) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to save state of %s: %w", rec.Unit, err)
	}
	return nil
}

// ledger is the in-memory view of the records during one run. Units of
// one level write it concurrently.
type ledger struct {
	mu      sync.Mutex
	records map[string]*state.Record
}

func (l *ledger) get(unit string) *state.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[unit]
	if !ok {
		return nil
	}
	return cloneRecord(rec)
}

func (l *ledger) put(rec *state.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.Unit] = cloneRecord(rec)
}

// cloneRecord copies rec without sharing any slice with it.
func cloneRecord(rec *state.Record) *state.Record {
	cp := *rec
	cp.Outputs.SubnetIDs = slices.Clone(rec.Outputs.SubnetIDs)
	cp.Outputs.RouteTableIDs = slices.Clone(rec.Outputs.RouteTableIDs)
	cp.Outputs.Routes = slices.Clone(rec.Outputs.Routes)
	return &cp
}

func (l *ledger) all() []*state.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*state.Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, cloneRecord(rec))
	}
	slices.SortFunc(out, func(a, b *state.Record) int {
		return cmp.Compare(a.Unit, b.Unit)
	})
	return out
}
