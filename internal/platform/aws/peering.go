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

// CreatePeering requests a VPC peering connection. Requests EC2 refuses
// outright are reported as PeeringRejected.
func (c *Client) CreatePeering(ctx context.Context, req cloud.PeeringRequest) (string, error) {
	in := &ec2.CreateVpcPeeringConnectionInput{
		VpcId:             aws.String(req.RequesterNetworkID),
		PeerVpcId:         aws.String(req.AccepterNetworkID),
		TagSpecifications: tagSpec(ec2types.ResourceTypeVpcPeeringConnection, req.Tags),
	}
	if req.AccepterRegion != "" && req.AccepterRegion != c.region {
		in.PeerRegion = aws.String(req.AccepterRegion)
	}

	out, err := call(ctx, c, "CreateVpcPeeringConnection", isRetryable, func(ctx context.Context) (*ec2.CreateVpcPeeringConnectionOutput, error) {
		return c.ec2.CreateVpcPeeringConnection(ctx, in)
	})
	if err != nil {
		if isPeeringRejection(err) {
			return "", fmt.Errorf("%w: %s to %s in %s: %w",
				topology.ErrPeeringRejected, req.RequesterNetworkID, req.AccepterNetworkID, req.AccepterRegion, err)
		}
		return "", fmt.Errorf("failed to create peering connection: %w", err)
	}
	return aws.ToString(out.VpcPeeringConnection.VpcPeeringConnectionId), nil
}

// AcceptPeering accepts a connection from the accepter region. A
// cross-region request takes a moment to appear there, so not-found is
// retried.
func (c *Client) AcceptPeering(ctx context.Context, linkID string) error {
	_, err := call(ctx, c, "AcceptVpcPeeringConnection", isRetryableOrMissing, func(ctx context.Context) (*ec2.AcceptVpcPeeringConnectionOutput, error) {
		return c.ec2.AcceptVpcPeeringConnection(ctx, &ec2.AcceptVpcPeeringConnectionInput{
			VpcPeeringConnectionId: aws.String(linkID),
		})
	})
	if err != nil {
		if isPeeringRejection(err) {
			return fmt.Errorf("%w: accepting %s: %w", topology.ErrPeeringRejected, linkID, err)
		}
		return fmt.Errorf("failed to accept peering connection %s: %w", linkID, err)
	}
	return nil
}

// DescribePeering implements cloud.PeeringManager.
func (c *Client) DescribePeering(ctx context.Context, linkID string) (topology.PeeringStatus, error) {
	out, err := call(ctx, c, "DescribeVpcPeeringConnections", isRetryable, func(ctx context.Context) (*ec2.DescribeVpcPeeringConnectionsOutput, error) {
		return c.ec2.DescribeVpcPeeringConnections(ctx, &ec2.DescribeVpcPeeringConnectionsInput{
			VpcPeeringConnectionIds: []string{linkID},
		})
	})
	if isNotFound(err) {
		return topology.PeeringDeleted, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to describe peering connection %s: %w", linkID, err)
	}
	if len(out.VpcPeeringConnections) == 0 || out.VpcPeeringConnections[0].Status == nil {
		return topology.PeeringDeleted, nil
	}
	return peeringStatus(out.VpcPeeringConnections[0].Status.Code), nil
}

func peeringStatus(code ec2types.VpcPeeringConnectionStateReasonCode) topology.PeeringStatus {
	switch code {
	case ec2types.VpcPeeringConnectionStateReasonCodeActive:
		return topology.PeeringActive
	case ec2types.VpcPeeringConnectionStateReasonCodeRejected:
		return topology.PeeringRejected
	case ec2types.VpcPeeringConnectionStateReasonCodeFailed,
		ec2types.VpcPeeringConnectionStateReasonCodeExpired:
		return topology.PeeringFailed
	case ec2types.VpcPeeringConnectionStateReasonCodeDeleted,
		ec2types.VpcPeeringConnectionStateReasonCodeDeleting:
		return topology.PeeringDeleted
	default:
		// initiating-request, pending-acceptance, provisioning
		return topology.PeeringPendingAcceptance
	}
}

// DeletePeering implements cloud.PeeringManager.
func (c *Client) DeletePeering(ctx context.Context, linkID string) error {
	_, err := call(ctx, c, "DeleteVpcPeeringConnection", isRetryable, func(ctx context.Context) (*ec2.DeleteVpcPeeringConnectionOutput, error) {
		return c.ec2.DeleteVpcPeeringConnection(ctx, &ec2.DeleteVpcPeeringConnectionInput{
			VpcPeeringConnectionId: aws.String(linkID),
		})
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete peering connection %s: %w", linkID, err)
	}
	return nil
}
