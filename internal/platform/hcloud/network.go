package hcloud

import (
	"context"
	"fmt"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
)

// CreateNetwork ensures a network named req.Name exists with req.Block. A
// same-named network with another range is a resource conflict.
func (c *Client) CreateNetwork(ctx context.Context, req cloud.NetworkRequest) (string, error) {
	network, err := (&EnsureOperation[*hcloud.Network, hcloud.NetworkCreateOpts]{
		Name:         req.Name,
		ResourceType: "network",
		Get:          c.client.Network.Get,
		Create:       simpleCreate(c.client.Network.Create),
		Validate: func(network *hcloud.Network) error {
			if network.IPRange.String() != req.Block.String() {
				return fmt.Errorf("%w: network %s exists with IP range %s (expected %s)",
					topology.ErrResourceConflict, req.Name, network.IPRange, req.Block)
			}
			return nil
		},
		CreateOptsMapper: func() hcloud.NetworkCreateOpts {
			return hcloud.NetworkCreateOpts{
				Name:    req.Name,
				IPRange: req.Block.IPNet(),
				Labels:  hcloudLabels(req.Tags),
			}
		},
	}).Execute(ctx, c)
	if err != nil {
		if isOverlap(err) {
			return "", fmt.Errorf("%w: %w", topology.ErrResourceConflict, err)
		}
		return "", err
	}
	return formatID(network.ID), nil
}

// subnetID names a subnet; Hetzner subnets have no id of their own.
func subnetID(networkID string, block topology.AddressBlock) string {
	return networkID + "|" + block.String()
}

func (c *Client) getNetwork(ctx context.Context, networkID string) (*hcloud.Network, error) {
	network, _, err := c.client.Network.Get(ctx, networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to get network %s: %w", networkID, err)
	}
	if network == nil {
		return nil, fmt.Errorf("%w: network %s", cloud.ErrNotFound, networkID)
	}
	return network, nil
}

// CreateSubnet adds a cloud subnet in the client's network zone. Zones
// (locations) do not scope Hetzner subnets, so req.Zone is informational.
func (c *Client) CreateSubnet(ctx context.Context, req cloud.SubnetRequest) (string, error) {
	network, err := c.getNetwork(ctx, req.NetworkID)
	if err != nil {
		return "", err
	}
	for _, s := range network.Subnets {
		if s.IPRange.String() == req.Block.String() {
			return subnetID(req.NetworkID, req.Block), nil
		}
	}

	var action *hcloud.Action
	err = c.withRetry(ctx, func() error {
		var err error
		action, _, err = c.client.Network.AddSubnet(ctx, network, hcloud.NetworkAddSubnetOpts{
			Subnet: hcloud.NetworkSubnet{
				Type:        hcloud.NetworkSubnetTypeCloud,
				IPRange:     req.Block.IPNet(),
				NetworkZone: c.zone,
			},
		})
		return err
	})
	if err != nil {
		if isOverlap(err) {
			return "", fmt.Errorf("%w: subnet %s in %s: %w", topology.ErrResourceConflict, req.Block, req.NetworkID, err)
		}
		return "", fmt.Errorf("failed to add subnet %s: %w", req.Block, err)
	}
	if err := c.waitForActions(ctx, action); err != nil {
		return "", fmt.Errorf("failed to wait for subnet %s: %w", req.Block, err)
	}
	return subnetID(req.NetworkID, req.Block), nil
}

// NetworkExists implements cloud.NetworkManager.
func (c *Client) NetworkExists(ctx context.Context, networkID string) (bool, error) {
	network, _, err := c.client.Network.Get(ctx, networkID)
	if err != nil {
		return false, fmt.Errorf("failed to get network %s: %w", networkID, err)
	}
	return network != nil, nil
}

// DeleteNetwork removes the owned firewall and the network; subnets and
// routes go with the network.
func (c *Client) DeleteNetwork(ctx context.Context, td cloud.NetworkTeardown) error {
	if td.SecurityPolicyID != "" {
		err := (&DeleteOperation[*hcloud.Firewall]{
			Key:          td.SecurityPolicyID,
			ResourceType: "firewall",
			Get:          c.client.Firewall.Get,
			Delete:       c.client.Firewall.Delete,
		}).Execute(ctx, c)
		if err != nil {
			return err
		}
	}
	return (&DeleteOperation[*hcloud.Network]{
		Key:          td.NetworkID,
		ResourceType: "network",
		Get:          c.client.Network.Get,
		Delete:       c.client.Network.Delete,
	}).Execute(ctx, c)
}
