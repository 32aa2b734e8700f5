package network

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/topology"
)

// Teardown removes a network recorded in out. Security policies the
// network adopted are left in place.
func (p *Provisioner) Teardown(ctx *provisioning.Context, out topology.Outputs) error {
	if out.NetworkID == "" {
		return nil
	}

	client, err := ctx.Provider.Client(ctx, out.Region)
	if err != nil {
		return fmt.Errorf("failed to get client for %s: %w", out.Region, err)
	}

	td := cloud.NetworkTeardown{
		NetworkID:         out.NetworkID,
		SubnetIDs:         out.SubnetIDs,
		InternetGatewayID: out.InternetGatewayID,
	}
	for _, id := range []string{out.PublicRouteTableID, out.PrivateRouteTableID} {
		if id != "" {
			td.RouteTableIDs = append(td.RouteTableIDs, id)
		}
	}
	if out.SecurityPolicyOwned {
		td.SecurityPolicyID = out.SecurityPolicyID
	}

	provisioning.LogResourceDeleting(ctx.Observer, phase, "network", out.NetworkID)

	timeout := 5 * time.Minute
	if ctx.Timeouts != nil && ctx.Timeouts.Delete > 0 {
		timeout = ctx.Timeouts.Delete
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.DeleteNetwork(dctx, td); err != nil {
		return fmt.Errorf("failed to delete network %s: %w", out.NetworkID, err)
	}
	provisioning.LogResourceDeleted(ctx.Observer, phase, "network", out.NetworkID)
	return nil
}

// Exists reports whether the network recorded in out still exists.
func (p *Provisioner) Exists(ctx *provisioning.Context, out topology.Outputs) (bool, error) {
	client, err := ctx.Provider.Client(ctx, out.Region)
	if err != nil {
		return false, fmt.Errorf("failed to get client for %s: %w", out.Region, err)
	}
	return provisioning.Call(ctx, func(c context.Context) (bool, error) {
		return client.NetworkExists(c, out.NetworkID)
	})
}
