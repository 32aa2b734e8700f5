package topology

import "fmt"

// TargetKind is the kind of a route's next hop.
type TargetKind string

const (
	TargetGateway TargetKind = "gateway"
	TargetPeering TargetKind = "peering"
	TargetNAT     TargetKind = "nat"
	TargetLocal   TargetKind = "local"
)

// Route sends traffic for Destination to Target.
type Route struct {
	ID          string
	TableID     string
	Destination AddressBlock
	Target      string
	TargetKind  TargetKind
}

// RouteSide is one side of a peering link as seen by route installation:
// the table to write and the blocks on either end. A route installed for
// this side has destination PeerBlock.
type RouteSide struct {
	Region       string
	RouteTableID string
	OwnBlock     AddressBlock
	PeerBlock    AddressBlock
}

// Validate checks that the side is complete and that the blocks do not
// overlap.
func (s *RouteSide) Validate() error {
	switch {
	case s.RouteTableID == "":
		return fmt.Errorf("%w: route side in %s has no route table", ErrInvalidConfig, s.Region)
	case s.OwnBlock.IsZero() || s.PeerBlock.IsZero():
		return fmt.Errorf("%w: route side %s has an unset block", ErrInvalidConfig, s.RouteTableID)
	case s.OwnBlock.Overlaps(s.PeerBlock):
		return fmt.Errorf("%w: blocks %s and %s overlap", ErrRouteConflict, s.OwnBlock, s.PeerBlock)
	}
	return nil
}

// Mirrors reports whether a and b describe the two ends of the same link.
func (s *RouteSide) Mirrors(other *RouteSide) bool {
	return s.PeerBlock == other.OwnBlock && other.PeerBlock == s.OwnBlock
}

// RouteInstallResult holds the route ids created per side. An id is empty
// when that side was not installed by the call.
type RouteInstallResult struct {
	RouteIDA string
	RouteIDB string
}

// Reachability names the routing state of a peering link.
type Reachability string

const (
	Bidirectional Reachability = "bidirectional"
	OneWayAToB    Reachability = "one-way-a-to-b"
	OneWayBToA    Reachability = "one-way-b-to-a"
	Unrouted      Reachability = "unrouted"
)

// ReachabilityOf derives the state from which sides hold a peering route.
// Traffic from A to B needs a route on A towards B.
func ReachabilityOf(routedA, routedB bool) Reachability {
	switch {
	case routedA && routedB:
		return Bidirectional
	case routedA:
		return OneWayAToB
	case routedB:
		return OneWayBToA
	default:
		return Unrouted
	}
}
