package topology

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
)

// UnitStatus is the lifecycle state of a deployment unit.
type UnitStatus string

const (
	StatusPlanned   UnitStatus = "planned"
	StatusApplying  UnitStatus = "applying"
	StatusApplied   UnitStatus = "applied"
	StatusFailed    UnitStatus = "failed"
	StatusDrifted   UnitStatus = "drifted"
	StatusDestroyed UnitStatus = "destroyed"
)

var transitions = map[UnitStatus][]UnitStatus{
	StatusPlanned:   {StatusApplying},
	StatusApplying:  {StatusApplied, StatusFailed},
	StatusApplied:   {StatusApplying, StatusDrifted, StatusDestroyed},
	StatusFailed:    {StatusApplying, StatusDestroyed},
	StatusDrifted:   {StatusApplying, StatusApplied, StatusDestroyed},
	StatusDestroyed: {StatusApplying},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s UnitStatus) CanTransitionTo(next UnitStatus) bool {
	return slices.Contains(transitions[s], next)
}

// RouteScope selects which sides of a link a peering unit routes.
type RouteScope string

const (
	RoutesLocal RouteScope = "local"
	RoutesBoth  RouteScope = "both"
	RoutesNone  RouteScope = "none"
)

// UnitSpec declares one independently applicable deployment unit.
type UnitSpec struct {
	Name    string            `json:"name"`
	Region  string            `json:"region"`
	Network *NetworkSection   `json:"network,omitempty"`
	Peering *PeeringSection   `json:"peering,omitempty"`
	Routes  *RoutesSection    `json:"routes,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// NetworkSection provisions a network in the unit's region. Selector
// picks the registered block and defaults to the region, so two networks
// in one region need distinct selectors.
type NetworkSection struct {
	Selector         string        `json:"selector,omitempty"`
	Subnets          []SubnetSpec  `json:"subnets"`
	Ingress          []IngressRule `json:"ingress,omitempty"`
	SecurityPolicyID string        `json:"securityPolicyId,omitempty"`
	PrivateEgress    bool          `json:"privateEgress,omitempty"`
}

// PolicySource maps the section onto a SecurityPolicySource.
func (s *NetworkSection) PolicySource() SecurityPolicySource {
	if s.SecurityPolicyID != "" {
		return ExistingPolicy(s.SecurityPolicyID)
	}
	if len(s.Ingress) == 0 {
		return DefaultPolicy(DefaultIngressRules()...)
	}
	return DefaultPolicy(s.Ingress...)
}

// Hash fingerprints the section. Blocks are immutable once applied, so a
// changed hash on an applied unit is rejected.
func (s *NetworkSection) Hash() string {
	return hashJSON(s)
}

// PeerRef points at the accepter of a peering link: either another unit or
// a literal network that is not managed here.
type PeerRef struct {
	Unit         string       `json:"unit,omitempty"`
	NetworkID    string       `json:"networkId,omitempty"`
	Region       string       `json:"region,omitempty"`
	Block        AddressBlock `json:"cidr,omitzero"`
	RouteTableID string       `json:"routeTableId,omitempty"`
}

// IsUnit reports whether the peer is another deployment unit.
func (p PeerRef) IsUnit() bool {
	return p.Unit != ""
}

// PeeringSection creates a link from the unit's own network to Peer.
type PeeringSection struct {
	Peer       PeerRef    `json:"peer"`
	Routes     RouteScope `json:"routes"`
	Visibility Visibility `json:"visibility,omitempty"`
}

// RoutesSection installs one side's route for a link owned by another
// unit. Network names the unit whose table is written; empty means this
// unit's own network.
type RoutesSection struct {
	Peering    string     `json:"peering"`
	Network    string     `json:"network,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`
}

// InputsHash fingerprints the whole unit declaration.
func (u *UnitSpec) InputsHash() string {
	return hashJSON(u)
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// InstalledRoute records a peering route a unit installed, so teardown and
// drift detection can find it again.
type InstalledRoute struct {
	ID          string       `json:"id"`
	Region      string       `json:"region"`
	TableID     string       `json:"tableId"`
	Destination AddressBlock `json:"destination"`
	LinkID      string       `json:"linkId"`
}

// Outputs is the published output contract of a unit. Other units read it
// only after the unit is applied.
type Outputs struct {
	NetworkID           string           `json:"networkId,omitempty"`
	NetworkBlock        AddressBlock     `json:"networkBlock,omitzero"`
	Region              string           `json:"region,omitempty"`
	SubnetIDs           []string         `json:"subnetIds,omitempty"`
	RouteTableIDs       []string         `json:"routeTableIds,omitempty"`
	PublicRouteTableID  string           `json:"publicRouteTableId,omitempty"`
	PrivateRouteTableID string           `json:"privateRouteTableId,omitempty"`
	SecurityPolicyID    string           `json:"securityPolicyId,omitempty"`
	SecurityPolicyOwned bool             `json:"securityPolicyOwned,omitempty"`
	InternetGatewayID   string           `json:"internetGatewayId,omitempty"`
	PeeringLinkID       string           `json:"peeringLinkId,omitempty"`
	PeerRegion          string           `json:"peerRegion,omitempty"`
	PeerNetworkID       string           `json:"peerNetworkId,omitempty"`
	PeerBlock           AddressBlock     `json:"peerBlock,omitzero"`
	Routes              []InstalledRoute `json:"routes,omitempty"`
}

// RouteTableFor returns the table id for a visibility class. Private falls
// back to public when the network has no private subnets.
func (o *Outputs) RouteTableFor(v Visibility) string {
	if v == Public {
		return o.PublicRouteTableID
	}
	if o.PrivateRouteTableID != "" {
		return o.PrivateRouteTableID
	}
	return o.PublicRouteTableID
}

// RouteIDs lists the ids of installed routes in installation order.
func (o *Outputs) RouteIDs() []string {
	ids := make([]string, 0, len(o.Routes))
	for _, r := range o.Routes {
		ids = append(ids, r.ID)
	}
	return ids
}

// Link rebuilds the peering link a unit published. The unit's own network
// is the requester.
func (o *Outputs) Link() (PeeringLink, bool) {
	if o.PeeringLinkID == "" {
		return PeeringLink{}, false
	}
	return PeeringLink{
		ID:                 o.PeeringLinkID,
		RequesterNetworkID: o.NetworkID,
		RequesterRegion:    o.Region,
		RequesterBlock:     o.NetworkBlock,
		AccepterNetworkID:  o.PeerNetworkID,
		AccepterRegion:     o.PeerRegion,
		AccepterBlock:      o.PeerBlock,
		CrossRegion:        o.Region != o.PeerRegion,
		Status:             PeeringActive,
	}, true
}
