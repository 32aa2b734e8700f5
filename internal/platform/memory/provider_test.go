package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
)

func newNetwork(t *testing.T, c cloud.Client, cidr string) string {
	t.Helper()
	id, err := c.CreateNetwork(context.Background(), cloud.NetworkRequest{
		Name:  "net-" + cidr,
		Block: topology.MustParseBlock(cidr),
	})
	require.NoError(t, err)
	return id
}

func TestClient_NetworkLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewProvider()
	c, err := p.Client(ctx, "us-east-1")
	require.NoError(t, err)

	netID := newNetwork(t, c, "12.0.0.0/16")
	subnetID, err := c.CreateSubnet(ctx, cloud.SubnetRequest{
		NetworkID:  netID,
		Block:      topology.MustParseBlock("12.0.0.0/24"),
		Visibility: topology.Public,
	})
	require.NoError(t, err)
	assert.True(t, p.World().SubnetPublicIP(subnetID))

	_, err = c.CreateSubnet(ctx, cloud.SubnetRequest{NetworkID: netID, Block: topology.MustParseBlock("13.0.0.0/24")})
	assert.Error(t, err, "subnet outside the network")

	_, err = c.CreateSubnet(ctx, cloud.SubnetRequest{NetworkID: netID, Block: topology.MustParseBlock("12.0.0.0/24")})
	assert.ErrorIs(t, err, topology.ErrResourceConflict)

	tableID, err := c.CreateRouteTable(ctx, cloud.RouteTableRequest{NetworkID: netID})
	require.NoError(t, err)
	require.NoError(t, c.AssociateRouteTable(ctx, tableID, subnetID))
	assert.Equal(t, tableID, p.World().SubnetTable(subnetID))

	exists, err := c.NetworkExists(ctx, netID)
	require.NoError(t, err)
	assert.True(t, exists)

	other, err := p.Client(ctx, "us-east-2")
	require.NoError(t, err)
	exists, err = other.NetworkExists(ctx, netID)
	require.NoError(t, err)
	assert.False(t, exists, "networks are region scoped")

	require.NoError(t, c.DeleteNetwork(ctx, cloud.NetworkTeardown{NetworkID: netID}))
	assert.Empty(t, p.World().NetworkIDs())
	require.NoError(t, c.DeleteNetwork(ctx, cloud.NetworkTeardown{NetworkID: netID}), "delete is idempotent")
}

func TestClient_CreateRouteConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewProvider()
	c, _ := p.Client(ctx, "us-east-1")
	netID := newNetwork(t, c, "12.0.0.0/16")
	tableID, err := c.CreateRouteTable(ctx, cloud.RouteTableRequest{NetworkID: netID})
	require.NoError(t, err)

	dest := topology.MustParseBlock("13.0.0.0/16")
	req := cloud.RouteRequest{TableID: tableID, Destination: dest, Target: "pcx-1", TargetKind: topology.TargetPeering}
	id, err := c.CreateRoute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, cloud.RouteID(tableID, dest), id)

	_, err = c.CreateRoute(ctx, req)
	var conflict *topology.RouteConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "pcx-1", conflict.ExistingTarget)

	routes, err := c.ListRoutes(ctx, tableID)
	require.NoError(t, err)
	assert.Len(t, routes, 2, "local route plus the peering route")

	require.NoError(t, c.DeleteRoute(ctx, tableID, dest))
	require.NoError(t, c.DeleteRoute(ctx, tableID, dest))
	assert.Len(t, p.World().Routes(tableID), 1)
}

func TestClient_Peering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewProvider()
	east1, _ := p.Client(ctx, "us-east-1")
	east2, _ := p.Client(ctx, "us-east-2")

	a := newNetwork(t, east1, "12.0.0.0/16")
	b := newNetwork(t, east2, "13.0.0.0/16")
	overlapping := newNetwork(t, east2, "12.0.0.0/16")

	tests := []struct {
		name       string
		accepter   string
		region     string
		wantStatus topology.PeeringStatus
	}{
		{"cross region", b, "us-east-2", topology.PeeringPendingAcceptance},
		{"wrong region", b, "us-west-2", topology.PeeringFailed},
		{"missing accepter", "vpc-9999", "us-east-2", topology.PeeringFailed},
		{"overlapping blocks", overlapping, "us-east-2", topology.PeeringFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := east1.CreatePeering(ctx, cloud.PeeringRequest{
				RequesterNetworkID: a,
				AccepterNetworkID:  tt.accepter,
				AccepterRegion:     tt.region,
			})
			require.NoError(t, err)
			status, err := east1.DescribePeering(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}

	_, err := east1.CreatePeering(ctx, cloud.PeeringRequest{RequesterNetworkID: a, AccepterNetworkID: a, AccepterRegion: "us-east-1"})
	assert.ErrorIs(t, err, topology.ErrPeeringRejected)

	id, err := east1.CreatePeering(ctx, cloud.PeeringRequest{RequesterNetworkID: a, AccepterNetworkID: b, AccepterRegion: "us-east-2"})
	require.NoError(t, err)
	assert.Error(t, east1.AcceptPeering(ctx, id), "must accept from the accepter region")
	require.NoError(t, east2.AcceptPeering(ctx, id))
	status, _ := east1.DescribePeering(ctx, id)
	assert.Equal(t, topology.PeeringActive, status)

	require.NoError(t, east1.DeletePeering(ctx, id))
	status, _ = east1.DescribePeering(ctx, id)
	assert.Equal(t, topology.PeeringDeleted, status)

	status, _ = east1.DescribePeering(ctx, "pcx-unknown")
	assert.Equal(t, topology.PeeringDeleted, status)
}

func TestWorld_InjectFault(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewProvider()
	c, _ := p.Client(ctx, "us-east-1")

	boom := errors.New("throttled")
	p.World().InjectFault("CreateNetwork", boom)
	_, err := c.CreateNetwork(ctx, cloud.NetworkRequest{Block: topology.MustParseBlock("12.0.0.0/16")})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, p.World().Calls("CreateNetwork"))

	p.World().ClearFaults()
	_, err = c.CreateNetwork(ctx, cloud.NetworkRequest{Block: topology.MustParseBlock("12.0.0.0/16")})
	assert.NoError(t, err)
}

func TestClient_AvailabilityZones(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewProvider()
	c, _ := p.Client(ctx, "eu-west-1")

	zones, err := c.AvailabilityZones(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"eu-west-1a", "eu-west-1b", "eu-west-1c"}, zones)

	p.World().SetZones("eu-west-1", "z1")
	zones, _ = c.AvailabilityZones(ctx)
	assert.Equal(t, []string{"z1"}, zones)

	_, err = p.Client(ctx, "")
	assert.Error(t, err)
}
