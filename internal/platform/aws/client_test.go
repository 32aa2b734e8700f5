package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
)

func TestCreateNetwork_EnablesDNSHostnames(t *testing.T) {
	t.Parallel()
	var tags []ec2types.Tag
	api := &fakeEC2{
		createVpc: func(in *ec2.CreateVpcInput) (*ec2.CreateVpcOutput, error) {
			assert.Equal(t, "10.0.0.0/16", aws.ToString(in.CidrBlock))
			tags = in.TagSpecifications[0].Tags
			return &ec2.CreateVpcOutput{Vpc: &ec2types.Vpc{VpcId: aws.String("vpc-1")}}, nil
		},
		modifyVpc: func(in *ec2.ModifyVpcAttributeInput) (*ec2.ModifyVpcAttributeOutput, error) {
			assert.True(t, aws.ToBool(in.EnableDnsHostnames.Value))
			return &ec2.ModifyVpcAttributeOutput{}, nil
		},
	}
	c, metrics := testClient(api)

	id, err := c.CreateNetwork(context.Background(), cloud.NetworkRequest{
		Name:  "edge",
		Block: topology.MustParseBlock("10.0.0.0/16"),
		Tags:  map[string]string{"vpcmesh/unit": "edge", "Name": "edge"},
	})
	require.NoError(t, err)
	assert.Equal(t, "vpc-1", id)
	require.Len(t, tags, 2)
	assert.Equal(t, "Name", aws.ToString(tags[0].Key))
	assert.Equal(t, 1, metrics.calls["CreateVpc"])
	assert.Equal(t, 1, metrics.calls["ModifyVpcAttribute"])
}

func TestCall_RetriesThrottling(t *testing.T) {
	t.Parallel()
	attempts := 0
	api := &fakeEC2{
		describeVpcs: func(*ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error) {
			attempts++
			if attempts < 2 {
				return nil, apiErr("RequestLimitExceeded")
			}
			return &ec2.DescribeVpcsOutput{Vpcs: []ec2types.Vpc{{VpcId: aws.String("vpc-1")}}}, nil
		},
	}
	c, _ := testClient(api)

	exists, err := c.NetworkExists(context.Background(), "vpc-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 2, attempts)
}

func TestCall_FatalErrorNotRetried(t *testing.T) {
	t.Parallel()
	api := &fakeEC2{
		describeVpcs: func(*ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error) {
			return nil, apiErr("UnauthorizedOperation")
		},
	}
	c, _ := testClient(api)

	_, err := c.NetworkExists(context.Background(), "vpc-1")
	require.Error(t, err)
	assert.Equal(t, "UnauthorizedOperation", errorCode(err))
	assert.Equal(t, 1, api.count("DescribeVpcs"))
}

func TestNetworkExists_NotFound(t *testing.T) {
	t.Parallel()
	api := &fakeEC2{
		describeVpcs: func(*ec2.DescribeVpcsInput) (*ec2.DescribeVpcsOutput, error) {
			return nil, apiErr("InvalidVpcID.NotFound")
		},
	}
	c, _ := testClient(api)

	exists, err := c.NetworkExists(context.Background(), "vpc-gone")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateSubnet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		visibility    topology.Visibility
		err           error
		wantKind      topology.Kind
		wantPublicIPs int
	}{
		{name: "public maps public IPs", visibility: topology.Public, wantPublicIPs: 1},
		{name: "private", visibility: topology.Private},
		{name: "overlapping block", visibility: topology.Private, err: apiErr("InvalidSubnet.Conflict"), wantKind: topology.KindResourceConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := &fakeEC2{
				createSubnet: func(in *ec2.CreateSubnetInput) (*ec2.CreateSubnetOutput, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					assert.Equal(t, "us-east-1b", aws.ToString(in.AvailabilityZone))
					return &ec2.CreateSubnetOutput{Subnet: &ec2types.Subnet{SubnetId: aws.String("subnet-1")}}, nil
				},
			}
			c, _ := testClient(api)

			id, err := c.CreateSubnet(context.Background(), cloud.SubnetRequest{
				NetworkID:  "vpc-1",
				Block:      topology.MustParseBlock("10.0.1.0/24"),
				Zone:       "us-east-1b",
				Visibility: tt.visibility,
			})
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, topology.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "subnet-1", id)
			assert.Equal(t, tt.wantPublicIPs, api.count("ModifySubnetAttribute"))
		})
	}
}

func TestCreateRoute_Targets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind  topology.TargetKind
		check func(t *testing.T, in *ec2.CreateRouteInput)
	}{
		{topology.TargetPeering, func(t *testing.T, in *ec2.CreateRouteInput) {
			assert.Equal(t, "pcx-1", aws.ToString(in.VpcPeeringConnectionId))
		}},
		{topology.TargetGateway, func(t *testing.T, in *ec2.CreateRouteInput) {
			assert.Equal(t, "pcx-1", aws.ToString(in.GatewayId))
		}},
		{topology.TargetNAT, func(t *testing.T, in *ec2.CreateRouteInput) {
			assert.Equal(t, "pcx-1", aws.ToString(in.NatGatewayId))
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			t.Parallel()
			api := &fakeEC2{
				createRoute: func(in *ec2.CreateRouteInput) (*ec2.CreateRouteOutput, error) {
					tt.check(t, in)
					return &ec2.CreateRouteOutput{Return: aws.Bool(true)}, nil
				},
			}
			c, _ := testClient(api)
			dest := topology.MustParseBlock("10.1.0.0/16")

			id, err := c.CreateRoute(context.Background(), cloud.RouteRequest{
				TableID: "rtb-1", Destination: dest, Target: "pcx-1", TargetKind: tt.kind,
			})
			require.NoError(t, err)
			assert.Equal(t, cloud.RouteID("rtb-1", dest), id)
		})
	}
}

func TestCreateRoute_LocalTargetInvalid(t *testing.T) {
	t.Parallel()
	c, _ := testClient(&fakeEC2{})

	_, err := c.CreateRoute(context.Background(), cloud.RouteRequest{
		TableID: "rtb-1", Destination: topology.MustParseBlock("10.1.0.0/16"), TargetKind: topology.TargetLocal,
	})
	assert.ErrorIs(t, err, topology.ErrInvalidConfig)
}

func TestCreateRoute_AlreadyExists(t *testing.T) {
	t.Parallel()
	api := &fakeEC2{
		createRoute: func(*ec2.CreateRouteInput) (*ec2.CreateRouteOutput, error) {
			return nil, apiErr("RouteAlreadyExists")
		},
		describeTables: func(*ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error) {
			return &ec2.DescribeRouteTablesOutput{RouteTables: []ec2types.RouteTable{{
				RouteTableId: aws.String("rtb-1"),
				Routes: []ec2types.Route{
					{DestinationCidrBlock: aws.String("10.1.0.0/16"), VpcPeeringConnectionId: aws.String("pcx-old")},
				},
			}}}, nil
		},
	}
	c, _ := testClient(api)

	_, err := c.CreateRoute(context.Background(), cloud.RouteRequest{
		TableID:     "rtb-1",
		Destination: topology.MustParseBlock("10.1.0.0/16"),
		Target:      "pcx-new",
		TargetKind:  topology.TargetPeering,
	})
	require.ErrorIs(t, err, topology.ErrRouteConflict)
	var conflict *topology.RouteConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "pcx-old", conflict.ExistingTarget)
	assert.Equal(t, "pcx-new", conflict.RequestedTarget)
	assert.Equal(t, 1, api.count("CreateRoute"))
}

func TestListRoutes(t *testing.T) {
	t.Parallel()
	api := &fakeEC2{
		describeTables: func(*ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error) {
			return &ec2.DescribeRouteTablesOutput{RouteTables: []ec2types.RouteTable{{
				Routes: []ec2types.Route{
					{DestinationCidrBlock: aws.String("10.0.0.0/16"), GatewayId: aws.String("local")},
					{DestinationCidrBlock: aws.String("0.0.0.0/0"), GatewayId: aws.String("igw-1")},
					{DestinationCidrBlock: aws.String("10.1.0.0/16"), VpcPeeringConnectionId: aws.String("pcx-1")},
					{DestinationCidrBlock: aws.String("10.9.0.0/16"), NatGatewayId: aws.String("nat-1")},
					{DestinationIpv6CidrBlock: aws.String("::/0"), GatewayId: aws.String("igw-1")},
				},
			}}}, nil
		},
	}
	c, _ := testClient(api)

	routes, err := c.ListRoutes(context.Background(), "rtb-1")
	require.NoError(t, err)
	require.Len(t, routes, 4)

	kinds := map[string]topology.TargetKind{}
	for _, r := range routes {
		kinds[r.Target] = r.TargetKind
		assert.Equal(t, "rtb-1", r.TableID)
	}
	assert.Equal(t, map[string]topology.TargetKind{
		"local": topology.TargetLocal,
		"igw-1": topology.TargetGateway,
		"pcx-1": topology.TargetPeering,
		"nat-1": topology.TargetNAT,
	}, kinds)
}

func TestListRoutes_MissingTable(t *testing.T) {
	t.Parallel()
	api := &fakeEC2{
		describeTables: func(*ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error) {
			return nil, apiErr("InvalidRouteTableID.NotFound")
		},
	}
	c, _ := testClient(api)

	_, err := c.ListRoutes(context.Background(), "rtb-gone")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestCreateSecurityPolicy_Permissions(t *testing.T) {
	t.Parallel()
	var perms []ec2types.IpPermission
	api := &fakeEC2{
		createGroup: func(*ec2.CreateSecurityGroupInput) (*ec2.CreateSecurityGroupOutput, error) {
			return &ec2.CreateSecurityGroupOutput{GroupId: aws.String("sg-1")}, nil
		},
		authorizeIngress: func(in *ec2.AuthorizeSecurityGroupIngressInput) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
			perms = in.IpPermissions
			return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
		},
	}
	c, _ := testClient(api)

	id, err := c.CreateSecurityPolicy(context.Background(), cloud.SecurityPolicyRequest{
		NetworkID: "vpc-1",
		Name:      "edge-sg",
		Rules: []topology.IngressRule{
			{Protocol: topology.ProtocolTCP, FromPort: 8000, ToPort: 8100, Source: topology.AnyIPv4},
			{Protocol: topology.ProtocolICMP, Source: topology.AnyIPv4},
			{Protocol: topology.ProtocolAll, Source: topology.MustParseBlock("10.0.0.0/8")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "sg-1", id)
	require.Len(t, perms, 3)

	assert.Equal(t, "tcp", aws.ToString(perms[0].IpProtocol))
	assert.Equal(t, int32(8000), aws.ToInt32(perms[0].FromPort))
	assert.Equal(t, int32(8100), aws.ToInt32(perms[0].ToPort))
	assert.Equal(t, int32(-1), aws.ToInt32(perms[1].FromPort))
	assert.Equal(t, "-1", aws.ToString(perms[2].IpProtocol))
	assert.Nil(t, perms[2].FromPort)
	assert.Equal(t, "10.0.0.0/8", aws.ToString(perms[2].IpRanges[0].CidrIp))
}

func TestCreatePeering(t *testing.T) {
	t.Parallel()

	t.Run("cross region sets peer region", func(t *testing.T) {
		t.Parallel()
		api := &fakeEC2{
			createPeering: func(in *ec2.CreateVpcPeeringConnectionInput) (*ec2.CreateVpcPeeringConnectionOutput, error) {
				assert.Equal(t, "us-east-2", aws.ToString(in.PeerRegion))
				return &ec2.CreateVpcPeeringConnectionOutput{
					VpcPeeringConnection: &ec2types.VpcPeeringConnection{VpcPeeringConnectionId: aws.String("pcx-1")},
				}, nil
			},
		}
		c, _ := testClient(api)

		id, err := c.CreatePeering(context.Background(), cloud.PeeringRequest{
			RequesterNetworkID: "vpc-a", AccepterNetworkID: "vpc-b", AccepterRegion: "us-east-2",
		})
		require.NoError(t, err)
		assert.Equal(t, "pcx-1", id)
	})

	t.Run("same region omits peer region", func(t *testing.T) {
		t.Parallel()
		api := &fakeEC2{
			createPeering: func(in *ec2.CreateVpcPeeringConnectionInput) (*ec2.CreateVpcPeeringConnectionOutput, error) {
				assert.Nil(t, in.PeerRegion)
				return &ec2.CreateVpcPeeringConnectionOutput{
					VpcPeeringConnection: &ec2types.VpcPeeringConnection{VpcPeeringConnectionId: aws.String("pcx-2")},
				}, nil
			},
		}
		c, _ := testClient(api)

		_, err := c.CreatePeering(context.Background(), cloud.PeeringRequest{
			RequesterNetworkID: "vpc-a", AccepterNetworkID: "vpc-b", AccepterRegion: "us-east-1",
		})
		require.NoError(t, err)
	})

	t.Run("refused request is a rejection", func(t *testing.T) {
		t.Parallel()
		api := &fakeEC2{
			createPeering: func(*ec2.CreateVpcPeeringConnectionInput) (*ec2.CreateVpcPeeringConnectionOutput, error) {
				return nil, apiErr("InvalidVpcID.NotFound")
			},
		}
		c, _ := testClient(api)

		_, err := c.CreatePeering(context.Background(), cloud.PeeringRequest{
			RequesterNetworkID: "vpc-a", AccepterNetworkID: "vpc-missing", AccepterRegion: "us-east-2",
		})
		assert.Equal(t, topology.KindPeeringRejected, topology.KindOf(err))
	})
}

func TestAcceptPeering_RetriesUntilVisible(t *testing.T) {
	t.Parallel()
	attempts := 0
	api := &fakeEC2{
		acceptPeering: func(*ec2.AcceptVpcPeeringConnectionInput) (*ec2.AcceptVpcPeeringConnectionOutput, error) {
			attempts++
			if attempts == 1 {
				return nil, apiErr("InvalidVpcPeeringConnectionID.NotFound")
			}
			return &ec2.AcceptVpcPeeringConnectionOutput{}, nil
		},
	}
	c, _ := testClient(api)

	require.NoError(t, c.AcceptPeering(context.Background(), "pcx-1"))
	assert.Equal(t, 2, attempts)
}

func TestDescribePeering_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ec2types.VpcPeeringConnectionStateReasonCode
		want topology.PeeringStatus
	}{
		{ec2types.VpcPeeringConnectionStateReasonCodeInitiatingRequest, topology.PeeringPendingAcceptance},
		{ec2types.VpcPeeringConnectionStateReasonCodeProvisioning, topology.PeeringPendingAcceptance},
		{ec2types.VpcPeeringConnectionStateReasonCodePendingAcceptance, topology.PeeringPendingAcceptance},
		{ec2types.VpcPeeringConnectionStateReasonCodeActive, topology.PeeringActive},
		{ec2types.VpcPeeringConnectionStateReasonCodeRejected, topology.PeeringRejected},
		{ec2types.VpcPeeringConnectionStateReasonCodeFailed, topology.PeeringFailed},
		{ec2types.VpcPeeringConnectionStateReasonCodeExpired, topology.PeeringFailed},
		{ec2types.VpcPeeringConnectionStateReasonCodeDeleting, topology.PeeringDeleted},
		{ec2types.VpcPeeringConnectionStateReasonCodeDeleted, topology.PeeringDeleted},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			t.Parallel()
			api := &fakeEC2{
				describePeering: func(*ec2.DescribeVpcPeeringConnectionsInput) (*ec2.DescribeVpcPeeringConnectionsOutput, error) {
					return &ec2.DescribeVpcPeeringConnectionsOutput{VpcPeeringConnections: []ec2types.VpcPeeringConnection{{
						Status: &ec2types.VpcPeeringConnectionStateReason{Code: tt.code},
					}}}, nil
				},
			}
			c, _ := testClient(api)

			status, err := c.DescribePeering(context.Background(), "pcx-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
		})
	}
}

func TestDescribePeering_UnknownIsDeleted(t *testing.T) {
	t.Parallel()
	api := &fakeEC2{
		describePeering: func(*ec2.DescribeVpcPeeringConnectionsInput) (*ec2.DescribeVpcPeeringConnectionsOutput, error) {
			return nil, apiErr("InvalidVpcPeeringConnectionID.NotFound")
		},
	}
	c, _ := testClient(api)

	status, err := c.DescribePeering(context.Background(), "pcx-gone")
	require.NoError(t, err)
	assert.Equal(t, topology.PeeringDeleted, status)
}

func TestDeleteNetwork(t *testing.T) {
	t.Parallel()

	t.Run("deletes in dependency order and skips missing", func(t *testing.T) {
		t.Parallel()
		api := &fakeEC2{
			deleteGeneric: func(op string) error {
				if op == "DeleteSubnet" {
					return apiErr("InvalidSubnetID.NotFound")
				}
				return nil
			},
		}
		c, _ := testClient(api)

		err := c.DeleteNetwork(context.Background(), cloud.NetworkTeardown{
			NetworkID:         "vpc-1",
			SubnetIDs:         []string{"subnet-1"},
			RouteTableIDs:     []string{"rtb-1", "rtb-2"},
			InternetGatewayID: "igw-1",
			SecurityPolicyID:  "sg-1",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"DetachInternetGateway", "DeleteInternetGateway", "DeleteSubnet",
			"DeleteRouteTable", "DeleteRouteTable", "DeleteSecurityGroup", "DeleteVpc",
		}, api.calls)
	})

	t.Run("adopted security group is kept", func(t *testing.T) {
		t.Parallel()
		api := &fakeEC2{}
		c, _ := testClient(api)

		require.NoError(t, c.DeleteNetwork(context.Background(), cloud.NetworkTeardown{NetworkID: "vpc-1"}))
		assert.Equal(t, 0, api.count("DeleteSecurityGroup"))
		assert.Equal(t, 1, api.count("DeleteVpc"))
	})

	t.Run("dependency violation is retried", func(t *testing.T) {
		t.Parallel()
		failures := 1
		api := &fakeEC2{
			deleteGeneric: func(op string) error {
				if op == "DeleteVpc" && failures > 0 {
					failures--
					return apiErr("DependencyViolation")
				}
				return nil
			},
		}
		c, _ := testClient(api)

		require.NoError(t, c.DeleteNetwork(context.Background(), cloud.NetworkTeardown{NetworkID: "vpc-1"}))
		assert.Equal(t, 2, api.count("DeleteVpc"))
	})
}

func TestDeletePeering_MissingIsNoop(t *testing.T) {
	t.Parallel()
	api := &fakeEC2{
		deleteGeneric: func(string) error { return apiErr("InvalidVpcPeeringConnectionID.NotFound") },
	}
	c, _ := testClient(api)

	assert.NoError(t, c.DeletePeering(context.Background(), "pcx-gone"))
}
