package topology

// PeeringStatus is the provider-side state of a peering link.
type PeeringStatus string

const (
	PeeringPendingAcceptance PeeringStatus = "pending-acceptance"
	PeeringActive            PeeringStatus = "active"
	PeeringRejected          PeeringStatus = "rejected"
	PeeringFailed            PeeringStatus = "failed"
	PeeringDeleted           PeeringStatus = "deleted"
)

// Terminal reports whether the link can no longer become active.
func (s PeeringStatus) Terminal() bool {
	return s == PeeringRejected || s == PeeringFailed || s == PeeringDeleted
}

// PeeringLink connects a requester and an accepter network.
type PeeringLink struct {
	ID                 string
	RequesterNetworkID string
	RequesterRegion    string
	RequesterBlock     AddressBlock
	AccepterNetworkID  string
	AccepterRegion     string
	AccepterBlock      AddressBlock
	CrossRegion        bool
	Status             PeeringStatus
}

// RequesterSide returns the route side of the requester for the given table.
func (l *PeeringLink) RequesterSide(tableID string) *RouteSide {
	return &RouteSide{
		Region:       l.RequesterRegion,
		RouteTableID: tableID,
		OwnBlock:     l.RequesterBlock,
		PeerBlock:    l.AccepterBlock,
	}
}

// AccepterSide returns the route side of the accepter for the given table.
func (l *PeeringLink) AccepterSide(tableID string) *RouteSide {
	return &RouteSide{
		Region:       l.AccepterRegion,
		RouteTableID: tableID,
		OwnBlock:     l.AccepterBlock,
		PeerBlock:    l.RequesterBlock,
	}
}
