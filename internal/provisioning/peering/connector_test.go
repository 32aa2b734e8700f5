package peering

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/vpcmesh/internal/config"
	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/platform/memory"
	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/topology"
)

func newTestContext(provider cloud.Provider) (*provisioning.Context, *provisioning.RecordingObserver) {
	obs := provisioning.NewRecordingObserver()
	ctx := provisioning.NewContext(context.Background(), "mesh", provider)
	ctx.Observer = obs
	ctx.Timeouts = config.TestTimeouts()
	return ctx.ForUnit("east2", nil), obs
}

func createNetwork(t *testing.T, p cloud.Provider, region, cidr string) topology.NetworkRef {
	t.Helper()
	c, err := p.Client(context.Background(), region)
	require.NoError(t, err)
	block := topology.MustParseBlock(cidr)
	id, err := c.CreateNetwork(context.Background(), cloud.NetworkRequest{Name: region, Block: block})
	require.NoError(t, err)
	return topology.NetworkRef{ID: id, Region: region, Block: block}
}

func TestConnect_CrossRegion(t *testing.T) {
	t.Parallel()
	provider := memory.NewProvider()
	ctx, obs := newTestContext(provider)
	a := createNetwork(t, provider, "us-east-2", "13.0.0.0/16")
	b := createNetwork(t, provider, "us-east-1", "12.0.0.0/16")

	c := NewConnector(WithPollInterval(time.Millisecond))
	link, err := c.Connect(ctx, a, b.ID, b.Region)
	require.NoError(t, err)

	assert.NotEmpty(t, link.ID)
	assert.True(t, link.CrossRegion)
	assert.Equal(t, topology.PeeringActive, link.Status)
	assert.Equal(t, a.Block, link.RequesterBlock)
	assert.Equal(t, "us-east-1", link.AccepterRegion)
	assert.Equal(t, 1, provider.World().Calls("CreatePeering"))
	assert.Len(t, obs.OfType(provisioning.EventResourceCreated), 1)

	status, err := c.Status(ctx, *link)
	require.NoError(t, err)
	assert.Equal(t, topology.PeeringActive, status)
}

func TestConnect_SameRegion(t *testing.T) {
	t.Parallel()
	provider := memory.NewProvider()
	ctx, _ := newTestContext(provider)
	a := createNetwork(t, provider, "us-east-1", "12.0.0.0/16")
	b := createNetwork(t, provider, "us-east-1", "10.9.0.0/16")

	link, err := NewConnector().Connect(ctx, a, b.ID, b.Region)
	require.NoError(t, err)
	assert.False(t, link.CrossRegion)
}

func TestConnect_Rejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T, p *memory.Provider) (topology.NetworkRef, string, string)
	}{
		{
			name: "same network",
			setup: func(t *testing.T, p *memory.Provider) (topology.NetworkRef, string, string) {
				a := createNetwork(t, p, "us-east-1", "12.0.0.0/16")
				return a, a.ID, a.Region
			},
		},
		{
			name: "accepter in another region than named",
			setup: func(t *testing.T, p *memory.Provider) (topology.NetworkRef, string, string) {
				a := createNetwork(t, p, "us-east-1", "12.0.0.0/16")
				b := createNetwork(t, p, "us-east-2", "13.0.0.0/16")
				return a, b.ID, "us-west-2"
			},
		},
		{
			name: "unknown accepter",
			setup: func(t *testing.T, p *memory.Provider) (topology.NetworkRef, string, string) {
				a := createNetwork(t, p, "us-east-1", "12.0.0.0/16")
				return a, "vpc-9999", "us-east-2"
			},
		},
		{
			name: "overlapping blocks",
			setup: func(t *testing.T, p *memory.Provider) (topology.NetworkRef, string, string) {
				a := createNetwork(t, p, "us-east-1", "12.0.0.0/16")
				b := createNetwork(t, p, "us-east-2", "12.0.0.0/16")
				return a, b.ID, b.Region
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			provider := memory.NewProvider()
			ctx, _ := newTestContext(provider)
			requester, accepterID, accepterRegion := tt.setup(t, provider)

			_, err := NewConnector(WithPollInterval(time.Millisecond)).Connect(ctx, requester, accepterID, accepterRegion)
			require.Error(t, err)
			assert.ErrorIs(t, err, topology.ErrPeeringRejected)
			assert.Equal(t, topology.KindPeeringRejected, topology.KindOf(err))
		})
	}
}

func TestConnect_UnsupportedProvider(t *testing.T) {
	t.Parallel()
	provider := &noPeering{Provider: memory.NewProvider()}
	ctx, _ := newTestContext(provider)
	a := createNetwork(t, provider, "eu-central", "10.0.0.0/16")
	b := createNetwork(t, provider, "us-east", "10.1.0.0/16")

	_, err := NewConnector().Connect(ctx, a, b.ID, b.Region)
	assert.ErrorIs(t, err, topology.ErrPeeringRejected)
	assert.ErrorIs(t, err, cloud.ErrUnsupported)
}

func TestConnect_TimesOutWhilePending(t *testing.T) {
	t.Parallel()
	provider := &neverAccept{Provider: memory.NewProvider()}
	ctx, _ := newTestContext(provider)
	ctx.Timeouts.PeeringActive = 20 * time.Millisecond
	a := createNetwork(t, provider, "us-east-1", "12.0.0.0/16")
	b := createNetwork(t, provider, "us-east-2", "13.0.0.0/16")

	link, err := NewConnector(WithPollInterval(time.Millisecond)).Connect(ctx, a, b.ID, b.Region)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, link)
	assert.Equal(t, topology.PeeringPendingAcceptance, link.Status)
}

func TestDisconnect(t *testing.T) {
	t.Parallel()
	provider := memory.NewProvider()
	ctx, _ := newTestContext(provider)
	a := createNetwork(t, provider, "us-east-1", "12.0.0.0/16")
	b := createNetwork(t, provider, "us-east-2", "13.0.0.0/16")

	c := NewConnector(WithPollInterval(time.Millisecond))
	link, err := c.Connect(ctx, a, b.ID, b.Region)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.World().ActivePeerings())

	require.NoError(t, c.Disconnect(ctx, *link))
	assert.Equal(t, 0, provider.World().ActivePeerings())

	status, err := c.Status(ctx, *link)
	require.NoError(t, err)
	assert.Equal(t, topology.PeeringDeleted, status)

	assert.NoError(t, c.Disconnect(ctx, topology.PeeringLink{}))
}

type noPeering struct {
	*memory.Provider
}

func (p *noPeering) Client(ctx context.Context, region string) (cloud.Client, error) {
	c, err := p.Provider.Client(ctx, region)
	if err != nil {
		return nil, err
	}
	return &noPeeringClient{Client: c}, nil
}

type noPeeringClient struct {
	cloud.Client
}

func (c *noPeeringClient) CreatePeering(context.Context, cloud.PeeringRequest) (string, error) {
	return "", fmt.Errorf("network peering: %w", cloud.ErrUnsupported)
}

type neverAccept struct {
	*memory.Provider
}

func (p *neverAccept) Client(ctx context.Context, region string) (cloud.Client, error) {
	c, err := p.Provider.Client(ctx, region)
	if err != nil {
		return nil, err
	}
	return &neverAcceptClient{Client: c}, nil
}

type neverAcceptClient struct {
	cloud.Client
}

func (c *neverAcceptClient) AcceptPeering(context.Context, string) error {
	return nil
}
