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

// CreateSecurityPolicy creates a security group with the ingress rules. The
// default egress rule of a new group already allows all traffic.
func (c *Client) CreateSecurityPolicy(ctx context.Context, req cloud.SecurityPolicyRequest) (string, error) {
	out, err := call(ctx, c, "CreateSecurityGroup", isRetryableOrMissing, func(ctx context.Context) (*ec2.CreateSecurityGroupOutput, error) {
		return c.ec2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
			GroupName:         aws.String(req.Name),
			Description:       aws.String("Managed by vpcmesh: " + req.Name),
			VpcId:             aws.String(req.NetworkID),
			TagSpecifications: tagSpec(ec2types.ResourceTypeSecurityGroup, req.Tags),
		})
	})
	if err != nil {
		if errorCode(err) == "InvalidGroup.Duplicate" {
			return "", fmt.Errorf("%w: security group %s: %w", topology.ErrResourceConflict, req.Name, err)
		}
		return "", fmt.Errorf("failed to create security group %s: %w", req.Name, err)
	}
	groupID := aws.ToString(out.GroupId)

	if len(req.Rules) == 0 {
		return groupID, nil
	}
	_, err = call(ctx, c, "AuthorizeSecurityGroupIngress", isRetryableOrMissing, func(ctx context.Context) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
		return c.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: ipPermissions(req.Rules),
		})
	})
	if err != nil {
		return groupID, fmt.Errorf("failed to authorize ingress on %s: %w", groupID, err)
	}
	return groupID, nil
}

func ipPermissions(rules []topology.IngressRule) []ec2types.IpPermission {
	perms := make([]ec2types.IpPermission, 0, len(rules))
	for _, r := range rules {
		perm := ec2types.IpPermission{
			IpRanges: []ec2types.IpRange{{
				CidrIp:      aws.String(r.Source.String()),
				Description: descriptionOrNil(r.Description),
			}},
		}
		switch r.Protocol {
		case topology.ProtocolAll:
			perm.IpProtocol = aws.String("-1")
		case topology.ProtocolICMP:
			perm.IpProtocol = aws.String("icmp")
			perm.FromPort = aws.Int32(-1)
			perm.ToPort = aws.Int32(-1)
		default:
			from, to := r.PortRange()
			perm.IpProtocol = aws.String(string(r.Protocol))
			perm.FromPort = aws.Int32(int32(from))
			perm.ToPort = aws.Int32(int32(to))
		}
		perms = append(perms, perm)
	}
	return perms
}

func descriptionOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// SecurityPolicyExists implements cloud.SecurityManager.
func (c *Client) SecurityPolicyExists(ctx context.Context, policyID string) (bool, error) {
	out, err := call(ctx, c, "DescribeSecurityGroups", isRetryable, func(ctx context.Context) (*ec2.DescribeSecurityGroupsOutput, error) {
		return c.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{GroupIds: []string{policyID}})
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to describe security group %s: %w", policyID, err)
	}
	return len(out.SecurityGroups) > 0, nil
}
