package aws

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/imamik/vpcmesh/internal/config"
	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
	"github.com/imamik/vpcmesh/internal/util/retry"
)

// EC2API is the subset of the EC2 API the client uses.
type EC2API interface {
	DescribeAvailabilityZones(ctx context.Context, in *ec2.DescribeAvailabilityZonesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error)
	CreateVpc(ctx context.Context, in *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error)
	ModifyVpcAttribute(ctx context.Context, in *ec2.ModifyVpcAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error)
	DescribeVpcs(ctx context.Context, in *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DeleteVpc(ctx context.Context, in *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error)
	CreateSubnet(ctx context.Context, in *ec2.CreateSubnetInput, optFns ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error)
	ModifySubnetAttribute(ctx context.Context, in *ec2.ModifySubnetAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifySubnetAttributeOutput, error)
	DeleteSubnet(ctx context.Context, in *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error)
	CreateRouteTable(ctx context.Context, in *ec2.CreateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error)
	AssociateRouteTable(ctx context.Context, in *ec2.AssociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error)
	DescribeRouteTables(ctx context.Context, in *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
	DeleteRouteTable(ctx context.Context, in *ec2.DeleteRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error)
	CreateRoute(ctx context.Context, in *ec2.CreateRouteInput, optFns ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error)
	DeleteRoute(ctx context.Context, in *ec2.DeleteRouteInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteOutput, error)
	CreateInternetGateway(ctx context.Context, in *ec2.CreateInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error)
	AttachInternetGateway(ctx context.Context, in *ec2.AttachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error)
	DetachInternetGateway(ctx context.Context, in *ec2.DetachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error)
	DeleteInternetGateway(ctx context.Context, in *ec2.DeleteInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error)
	CreateSecurityGroup(ctx context.Context, in *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	DescribeSecurityGroups(ctx context.Context, in *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DeleteSecurityGroup(ctx context.Context, in *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
	CreateVpcPeeringConnection(ctx context.Context, in *ec2.CreateVpcPeeringConnectionInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcPeeringConnectionOutput, error)
	AcceptVpcPeeringConnection(ctx context.Context, in *ec2.AcceptVpcPeeringConnectionInput, optFns ...func(*ec2.Options)) (*ec2.AcceptVpcPeeringConnectionOutput, error)
	DescribeVpcPeeringConnections(ctx context.Context, in *ec2.DescribeVpcPeeringConnectionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcPeeringConnectionsOutput, error)
	DeleteVpcPeeringConnection(ctx context.Context, in *ec2.DeleteVpcPeeringConnectionInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcPeeringConnectionOutput, error)
}

var _ EC2API = (*ec2.Client)(nil)

// Client is an EC2 client bound to one region.
type Client struct {
	ec2      EC2API
	region   string
	limiter  *apiLimiter
	metrics  MetricsAPI
	timeouts *config.Timeouts
}

var _ cloud.Client = (*Client)(nil)

func newClient(api EC2API, region string, opts Options) *Client {
	return &Client{
		ec2:      api,
		region:   region,
		limiter:  newAPILimiter(opts.Metrics, opts.RateLimit, opts.Burst),
		metrics:  opts.Metrics,
		timeouts: opts.Timeouts,
	}
}

// Region implements cloud.Client.
func (c *Client) Region() string {
	return c.region
}

// call runs one API operation behind the rate limiter, records it and
// retries errors accepted by retryIf.
func call[T any](ctx context.Context, c *Client, operation string, retryIf func(error) bool, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := retry.WithExponentialBackoff(ctx, func() error {
		c.limiter.Limit(ctx, operation)
		start := time.Now()
		res, err := fn(ctx)
		c.metrics.ObserveAPICall(operation, deriveStatus(err), time.Since(start).Seconds())
		if err != nil {
			if retryIf(err) {
				return err
			}
			return retry.Fatal(err)
		}
		out = res
		return nil
	},
		retry.WithMaxRetries(c.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay),
	)
	var fatal *retry.FatalError
	if errors.As(err, &fatal) {
		err = fatal.Err
	}
	return out, err
}

func tagSpec(resource ec2types.ResourceType, tags map[string]string) []ec2types.TagSpecification {
	if len(tags) == 0 {
		return nil
	}
	return []ec2types.TagSpecification{{ResourceType: resource, Tags: createAWSTagSlice(tags)}}
}

func createAWSTagSlice(tags map[string]string) []ec2types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	awsTags := make([]ec2types.Tag, 0, len(tags))
	for _, k := range keys {
		awsTags = append(awsTags, ec2types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return awsTags
}

// AvailabilityZones implements cloud.NetworkManager.
func (c *Client) AvailabilityZones(ctx context.Context) ([]string, error) {
	out, err := call(ctx, c, "DescribeAvailabilityZones", isRetryable, func(ctx context.Context) (*ec2.DescribeAvailabilityZonesOutput, error) {
		return c.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
			Filters: []ec2types.Filter{{Name: aws.String("state"), Values: []string{"available"}}},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe availability zones in %s: %w", c.region, err)
	}
	zones := make([]string, 0, len(out.AvailabilityZones))
	for _, z := range out.AvailabilityZones {
		if name := aws.ToString(z.ZoneName); name != "" {
			zones = append(zones, name)
		}
	}
	slices.Sort(zones)
	return zones, nil
}

// CreateNetwork creates a VPC with DNS hostnames enabled.
func (c *Client) CreateNetwork(ctx context.Context, req cloud.NetworkRequest) (string, error) {
	out, err := call(ctx, c, "CreateVpc", isRetryable, func(ctx context.Context) (*ec2.CreateVpcOutput, error) {
		return c.ec2.CreateVpc(ctx, &ec2.CreateVpcInput{
			CidrBlock:         aws.String(req.Block.String()),
			TagSpecifications: tagSpec(ec2types.ResourceTypeVpc, req.Tags),
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to create VPC %s: %w", req.Name, err)
	}
	vpcID := aws.ToString(out.Vpc.VpcId)

	_, err = call(ctx, c, "ModifyVpcAttribute", isRetryableOrMissing, func(ctx context.Context) (*ec2.ModifyVpcAttributeOutput, error) {
		return c.ec2.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              aws.String(vpcID),
			EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
	})
	if err != nil {
		return vpcID, fmt.Errorf("failed to enable DNS hostnames on %s: %w", vpcID, err)
	}
	return vpcID, nil
}

// CreateSubnet creates a subnet. Public subnets map public IPs on launch.
func (c *Client) CreateSubnet(ctx context.Context, req cloud.SubnetRequest) (string, error) {
	in := &ec2.CreateSubnetInput{
		VpcId:             aws.String(req.NetworkID),
		CidrBlock:         aws.String(req.Block.String()),
		TagSpecifications: tagSpec(ec2types.ResourceTypeSubnet, req.Tags),
	}
	if req.Zone != "" {
		in.AvailabilityZone = aws.String(req.Zone)
	}
	out, err := call(ctx, c, "CreateSubnet", isRetryableOrMissing, func(ctx context.Context) (*ec2.CreateSubnetOutput, error) {
		return c.ec2.CreateSubnet(ctx, in)
	})
	if err != nil {
		switch errorCode(err) {
		case "InvalidSubnet.Conflict", "InvalidSubnet.Range":
			return "", fmt.Errorf("%w: subnet %s in %s: %w", topology.ErrResourceConflict, req.Block, req.NetworkID, err)
		}
		return "", fmt.Errorf("failed to create subnet %s: %w", req.Block, err)
	}
	subnetID := aws.ToString(out.Subnet.SubnetId)

	if req.Visibility == topology.Public {
		_, err := call(ctx, c, "ModifySubnetAttribute", isRetryableOrMissing, func(ctx context.Context) (*ec2.ModifySubnetAttributeOutput, error) {
			return c.ec2.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
				SubnetId:            aws.String(subnetID),
				MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: aws.Bool(true)},
			})
		})
		if err != nil {
			return subnetID, fmt.Errorf("failed to enable public IPs on %s: %w", subnetID, err)
		}
	}
	return subnetID, nil
}

// NetworkExists implements cloud.NetworkManager.
func (c *Client) NetworkExists(ctx context.Context, networkID string) (bool, error) {
	out, err := call(ctx, c, "DescribeVpcs", isRetryable, func(ctx context.Context) (*ec2.DescribeVpcsOutput, error) {
		return c.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{networkID}})
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to describe VPC %s: %w", networkID, err)
	}
	return len(out.Vpcs) > 0, nil
}

// DeleteNetwork removes the gateway, subnets, route tables, owned security
// group and finally the VPC. Missing resources are skipped; dependency
// violations are retried while EC2 releases attachments.
func (c *Client) DeleteNetwork(ctx context.Context, td cloud.NetworkTeardown) error {
	ignoreMissing := func(err error) error {
		if err == nil || isNotFound(err) {
			return nil
		}
		return err
	}

	if id := td.InternetGatewayID; id != "" {
		_, err := call(ctx, c, "DetachInternetGateway", isRetryable, func(ctx context.Context) (*ec2.DetachInternetGatewayOutput, error) {
			return c.ec2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
				InternetGatewayId: aws.String(id),
				VpcId:             aws.String(td.NetworkID),
			})
		})
		if err := ignoreMissing(err); err != nil && errorCode(err) != "Gateway.NotAttached" {
			return fmt.Errorf("failed to detach internet gateway %s: %w", id, err)
		}
		_, err = call(ctx, c, "DeleteInternetGateway", isRetryable, func(ctx context.Context) (*ec2.DeleteInternetGatewayOutput, error) {
			return c.ec2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: aws.String(id)})
		})
		if err := ignoreMissing(err); err != nil {
			return fmt.Errorf("failed to delete internet gateway %s: %w", id, err)
		}
	}

	for _, id := range td.SubnetIDs {
		_, err := call(ctx, c, "DeleteSubnet", isRetryable, func(ctx context.Context) (*ec2.DeleteSubnetOutput, error) {
			return c.ec2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)})
		})
		if err := ignoreMissing(err); err != nil {
			return fmt.Errorf("failed to delete subnet %s: %w", id, err)
		}
	}

	for _, id := range td.RouteTableIDs {
		_, err := call(ctx, c, "DeleteRouteTable", isRetryable, func(ctx context.Context) (*ec2.DeleteRouteTableOutput, error) {
			return c.ec2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: aws.String(id)})
		})
		if err := ignoreMissing(err); err != nil {
			return fmt.Errorf("failed to delete route table %s: %w", id, err)
		}
	}

	if id := td.SecurityPolicyID; id != "" {
		_, err := call(ctx, c, "DeleteSecurityGroup", isRetryable, func(ctx context.Context) (*ec2.DeleteSecurityGroupOutput, error) {
			return c.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)})
		})
		if err := ignoreMissing(err); err != nil {
			return fmt.Errorf("failed to delete security group %s: %w", id, err)
		}
	}

	_, err := call(ctx, c, "DeleteVpc", isRetryable, func(ctx context.Context) (*ec2.DeleteVpcOutput, error) {
		return c.ec2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(td.NetworkID)})
	})
	if err := ignoreMissing(err); err != nil {
		return fmt.Errorf("failed to delete VPC %s: %w", td.NetworkID, err)
	}
	return nil
}
