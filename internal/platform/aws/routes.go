package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
)

// CreateRouteTable implements cloud.RouteManager.
func (c *Client) CreateRouteTable(ctx context.Context, req cloud.RouteTableRequest) (string, error) {
	out, err := call(ctx, c, "CreateRouteTable", isRetryableOrMissing, func(ctx context.Context) (*ec2.CreateRouteTableOutput, error) {
		return c.ec2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
			VpcId:             aws.String(req.NetworkID),
			TagSpecifications: tagSpec(ec2types.ResourceTypeRouteTable, req.Tags),
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to create route table in %s: %w", req.NetworkID, err)
	}
	return aws.ToString(out.RouteTable.RouteTableId), nil
}

// AssociateRouteTable implements cloud.RouteManager.
func (c *Client) AssociateRouteTable(ctx context.Context, tableID, subnetID string) error {
	_, err := call(ctx, c, "AssociateRouteTable", isRetryableOrMissing, func(ctx context.Context) (*ec2.AssociateRouteTableOutput, error) {
		return c.ec2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: aws.String(tableID),
			SubnetId:     aws.String(subnetID),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to associate %s with %s: %w", tableID, subnetID, err)
	}
	return nil
}

// CreateInternetGateway creates a gateway and attaches it to the VPC.
func (c *Client) CreateInternetGateway(ctx context.Context, networkID string, tags map[string]string) (string, error) {
	out, err := call(ctx, c, "CreateInternetGateway", isRetryable, func(ctx context.Context) (*ec2.CreateInternetGatewayOutput, error) {
		return c.ec2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
			TagSpecifications: tagSpec(ec2types.ResourceTypeInternetGateway, tags),
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to create internet gateway: %w", err)
	}
	igwID := aws.ToString(out.InternetGateway.InternetGatewayId)

	_, err = call(ctx, c, "AttachInternetGateway", isRetryableOrMissing, func(ctx context.Context) (*ec2.AttachInternetGatewayOutput, error) {
		return c.ec2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: aws.String(igwID),
			VpcId:             aws.String(networkID),
		})
	})
	if err != nil {
		return igwID, fmt.Errorf("failed to attach %s to %s: %w", igwID, networkID, err)
	}
	return igwID, nil
}

// CreateRoute installs one route. EC2 rejects a destination that is
// already routed with RouteAlreadyExists; that is reported as a
// RouteConflictError naming the existing target.
func (c *Client) CreateRoute(ctx context.Context, req cloud.RouteRequest) (string, error) {
	in := &ec2.CreateRouteInput{
		RouteTableId:         aws.String(req.TableID),
		DestinationCidrBlock: aws.String(req.Destination.String()),
	}
	switch req.TargetKind {
	case topology.TargetPeering:
		in.VpcPeeringConnectionId = aws.String(req.Target)
	case topology.TargetNAT:
		in.NatGatewayId = aws.String(req.Target)
	case topology.TargetGateway:
		in.GatewayId = aws.String(req.Target)
	default:
		return "", fmt.Errorf("%w: cannot create a route with target kind %q", topology.ErrInvalidConfig, req.TargetKind)
	}

	_, err := call(ctx, c, "CreateRoute", isRetryable, func(ctx context.Context) (*ec2.CreateRouteOutput, error) {
		return c.ec2.CreateRoute(ctx, in)
	})
	if err != nil {
		if errorCode(err) == "RouteAlreadyExists" {
			return "", c.routeConflict(ctx, req)
		}
		return "", fmt.Errorf("failed to create route %s in %s: %w", req.Destination, req.TableID, err)
	}
	return cloud.RouteID(req.TableID, req.Destination), nil
}

func (c *Client) routeConflict(ctx context.Context, req cloud.RouteRequest) error {
	conflict := &topology.RouteConflictError{
		TableID:         req.TableID,
		Destination:     req.Destination,
		ExistingTarget:  "unknown",
		RequestedTarget: req.Target,
	}
	routes, err := c.ListRoutes(ctx, req.TableID)
	if err != nil {
		return conflict
	}
	for _, r := range routes {
		if r.Destination == req.Destination {
			conflict.ExistingTarget = r.Target
			break
		}
	}
	return conflict
}

// DeleteRoute implements cloud.RouteManager.
func (c *Client) DeleteRoute(ctx context.Context, tableID string, destination topology.AddressBlock) error {
	_, err := call(ctx, c, "DeleteRoute", isRetryable, func(ctx context.Context) (*ec2.DeleteRouteOutput, error) {
		return c.ec2.DeleteRoute(ctx, &ec2.DeleteRouteInput{
			RouteTableId:         aws.String(tableID),
			DestinationCidrBlock: aws.String(destination.String()),
		})
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete route %s from %s: %w", destination, tableID, err)
	}
	return nil
}

// ListRoutes returns the IPv4 routes of a table.
func (c *Client) ListRoutes(ctx context.Context, tableID string) ([]topology.Route, error) {
	out, err := call(ctx, c, "DescribeRouteTables", isRetryable, func(ctx context.Context) (*ec2.DescribeRouteTablesOutput, error) {
		return c.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{tableID}})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: route table %s: %w", cloud.ErrNotFound, tableID, err)
		}
		return nil, fmt.Errorf("failed to describe route table %s: %w", tableID, err)
	}
	if len(out.RouteTables) == 0 {
		return nil, fmt.Errorf("%w: route table %s", cloud.ErrNotFound, tableID)
	}

	var routes []topology.Route
	for _, r := range out.RouteTables[0].Routes {
		cidr := aws.ToString(r.DestinationCidrBlock)
		if cidr == "" {
			continue
		}
		dest, err := topology.ParseBlock(cidr)
		if err != nil {
			continue
		}
		target, kind := routeTarget(r)
		routes = append(routes, topology.Route{
			ID:          cloud.RouteID(tableID, dest),
			TableID:     tableID,
			Destination: dest,
			Target:      target,
			TargetKind:  kind,
		})
	}
	return routes, nil
}

func routeTarget(r ec2types.Route) (string, topology.TargetKind) {
	switch {
	case aws.ToString(r.VpcPeeringConnectionId) != "":
		return aws.ToString(r.VpcPeeringConnectionId), topology.TargetPeering
	case aws.ToString(r.NatGatewayId) != "":
		return aws.ToString(r.NatGatewayId), topology.TargetNAT
	case aws.ToString(r.GatewayId) == "local":
		return "local", topology.TargetLocal
	case aws.ToString(r.GatewayId) != "":
		return aws.ToString(r.GatewayId), topology.TargetGateway
	case aws.ToString(r.TransitGatewayId) != "":
		return aws.ToString(r.TransitGatewayId), topology.TargetGateway
	default:
		return aws.ToString(r.InstanceId), topology.TargetGateway
	}
}
