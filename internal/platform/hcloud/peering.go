package hcloud

import (
	"context"
	"fmt"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
)

// Hetzner networks cannot be peered. Networks in different zones are
// joined through servers attached to both, which is outside this client.

// CreatePeering implements cloud.PeeringManager.
func (c *Client) CreatePeering(_ context.Context, req cloud.PeeringRequest) (string, error) {
	return "", fmt.Errorf("%w: peering %s with %s on hcloud", cloud.ErrUnsupported, req.RequesterNetworkID, req.AccepterNetworkID)
}

// AcceptPeering implements cloud.PeeringManager.
func (c *Client) AcceptPeering(_ context.Context, linkID string) error {
	return fmt.Errorf("%w: accepting %s on hcloud", cloud.ErrUnsupported, linkID)
}

// DescribePeering reports every link as deleted.
func (c *Client) DescribePeering(_ context.Context, _ string) (topology.PeeringStatus, error) {
	return topology.PeeringDeleted, nil
}

// DeletePeering has nothing to delete.
func (c *Client) DeletePeering(_ context.Context, _ string) error {
	return nil
}
