package cloud

import (
	"fmt"
	"strings"

	"github.com/imamik/vpcmesh/internal/topology"
)

// RouteID builds the identifier of a route for providers whose routes have
// no id of their own: the table and the destination are the key.
func RouteID(tableID string, destination topology.AddressBlock) string {
	return tableID + "|" + destination.String()
}

// ParseRouteID splits an id built by RouteID.
func ParseRouteID(id string) (string, topology.AddressBlock, error) {
	tableID, cidr, ok := strings.Cut(id, "|")
	if !ok || tableID == "" {
		return "", topology.AddressBlock{}, fmt.Errorf("malformed route id %q", id)
	}
	dest, err := topology.ParseBlock(cidr)
	if err != nil {
		return "", topology.AddressBlock{}, fmt.Errorf("malformed route id %q: %w", id, err)
	}
	return tableID, dest, nil
}
