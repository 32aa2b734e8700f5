package hcloud

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
)

// CreateRouteTable returns the network's own route table. Both visibility
// classes share it.
func (c *Client) CreateRouteTable(ctx context.Context, req cloud.RouteTableRequest) (string, error) {
	if _, err := c.getNetwork(ctx, req.NetworkID); err != nil {
		return "", err
	}
	return req.NetworkID, nil
}

// AssociateRouteTable is implicit: every subnet uses the network's table.
func (c *Client) AssociateRouteTable(_ context.Context, _, _ string) error {
	return nil
}

// CreateInternetGateway implements cloud.RouteManager. Hetzner servers get
// public addresses directly, so there is no gateway to create.
func (c *Client) CreateInternetGateway(_ context.Context, _ string, _ map[string]string) (string, error) {
	return "", fmt.Errorf("%w: internet gateways on hcloud", cloud.ErrUnsupported)
}

// CreateRoute adds a network route. Hetzner routes point at a gateway IP
// inside the network, so only gateway targets holding an IP are accepted.
func (c *Client) CreateRoute(ctx context.Context, req cloud.RouteRequest) (string, error) {
	if req.TargetKind == topology.TargetPeering {
		return "", fmt.Errorf("%w: peering routes on hcloud", cloud.ErrUnsupported)
	}
	gateway := net.ParseIP(req.Target)
	if gateway == nil || gateway.To4() == nil {
		return "", fmt.Errorf("%w: hcloud route target %q is not an IPv4 address", topology.ErrInvalidConfig, req.Target)
	}

	network, err := c.getNetwork(ctx, req.TableID)
	if err != nil {
		return "", err
	}
	for _, r := range network.Routes {
		if r.Destination.String() == req.Destination.String() {
			return "", &topology.RouteConflictError{
				TableID:         req.TableID,
				Destination:     req.Destination,
				ExistingTarget:  r.Gateway.String(),
				RequestedTarget: req.Target,
			}
		}
	}

	var action *hcloud.Action
	err = c.withRetry(ctx, func() error {
		var err error
		action, _, err = c.client.Network.AddRoute(ctx, network, hcloud.NetworkAddRouteOpts{
			Route: hcloud.NetworkRoute{Destination: req.Destination.IPNet(), Gateway: gateway},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to add route %s to %s: %w", req.Destination, req.TableID, err)
	}
	if err := c.waitForActions(ctx, action); err != nil {
		return "", fmt.Errorf("failed to wait for route %s: %w", req.Destination, err)
	}
	return cloud.RouteID(req.TableID, req.Destination), nil
}

// DeleteRoute implements cloud.RouteManager.
func (c *Client) DeleteRoute(ctx context.Context, tableID string, destination topology.AddressBlock) error {
	network, err := c.getNetwork(ctx, tableID)
	if errors.Is(err, cloud.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, r := range network.Routes {
		if r.Destination.String() != destination.String() {
			continue
		}
		var action *hcloud.Action
		err := c.withRetry(ctx, func() error {
			var err error
			action, _, err = c.client.Network.DeleteRoute(ctx, network, hcloud.NetworkDeleteRouteOpts{Route: r})
			return err
		})
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to delete route %s from %s: %w", destination, tableID, err)
		}
		return c.waitForActions(ctx, action)
	}
	return nil
}

// ListRoutes returns the local route of the network range followed by its
// custom routes.
func (c *Client) ListRoutes(ctx context.Context, tableID string) ([]topology.Route, error) {
	network, err := c.getNetwork(ctx, tableID)
	if err != nil {
		return nil, err
	}

	var routes []topology.Route
	if local, err := topology.ParseBlock(network.IPRange.String()); err == nil {
		routes = append(routes, topology.Route{
			ID:          cloud.RouteID(tableID, local),
			TableID:     tableID,
			Destination: local,
			Target:      "local",
			TargetKind:  topology.TargetLocal,
		})
	}
	for _, r := range network.Routes {
		dest, err := topology.ParseBlock(r.Destination.String())
		if err != nil {
			continue
		}
		routes = append(routes, topology.Route{
			ID:          cloud.RouteID(tableID, dest),
			TableID:     tableID,
			Destination: dest,
			Target:      r.Gateway.String(),
			TargetKind:  topology.TargetGateway,
		})
	}
	return routes, nil
}
