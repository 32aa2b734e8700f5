package cloud

import (
	"context"
	"errors"

	"github.com/imamik/vpcmesh/internal/topology"
)

var (
	// ErrUnsupported is returned for operations a provider cannot perform,
	// such as internet gateways or network peering on Hetzner Cloud.
	ErrUnsupported = errors.New("operation not supported by provider")
	// ErrNotFound is returned when a referenced resource does not exist.
	ErrNotFound = errors.New("resource not found")
)

// Provider creates region-scoped clients for one cloud.
type Provider interface {
	// Name identifies the provider in logs and metrics ("aws", "hcloud", "memory").
	Name() string
	// Client returns a client bound to region.
	Client(ctx context.Context, region string) (Client, error)
}

// Client is the full set of operations available in one region.
type Client interface {
	Region() string
	NetworkManager
	RouteManager
	SecurityManager
	PeeringManager
}

// NetworkRequest creates a network owning Block.
type NetworkRequest struct {
	Name  string
	Block topology.AddressBlock
	Tags  map[string]string
}

// SubnetRequest creates a subnet inside a network.
type SubnetRequest struct {
	NetworkID  string
	Name       string
	Block      topology.AddressBlock
	Zone       string
	Visibility topology.Visibility
	Tags       map[string]string
}

// NetworkTeardown lists everything a network owns so it can be removed in
// dependency order. SecurityPolicyID is set only for policies the network
// created itself.
type NetworkTeardown struct {
	NetworkID         string
	SubnetIDs         []string
	RouteTableIDs     []string
	InternetGatewayID string
	SecurityPolicyID  string
}

// NetworkManager manages networks and subnets.
type NetworkManager interface {
	AvailabilityZones(ctx context.Context) ([]string, error)
	CreateNetwork(ctx context.Context, req NetworkRequest) (string, error)
	CreateSubnet(ctx context.Context, req SubnetRequest) (string, error)
	NetworkExists(ctx context.Context, networkID string) (bool, error)
	// DeleteNetwork removes the network and everything listed in td.
	// Missing resources are skipped.
	DeleteNetwork(ctx context.Context, td NetworkTeardown) error
}

// RouteTableRequest creates a route table in a network.
type RouteTableRequest struct {
	NetworkID  string
	Name       string
	Visibility topology.Visibility
	Tags       map[string]string
}

// RouteRequest installs one route.
type RouteRequest struct {
	TableID     string
	Destination topology.AddressBlock
	Target      string
	TargetKind  topology.TargetKind
}

// RouteManager manages route tables, gateways and routes.
type RouteManager interface {
	CreateRouteTable(ctx context.Context, req RouteTableRequest) (string, error)
	AssociateRouteTable(ctx context.Context, tableID, subnetID string) error
	// CreateInternetGateway attaches a new internet gateway to the network.
	// Providers without gateways return ErrUnsupported.
	CreateInternetGateway(ctx context.Context, networkID string, tags map[string]string) (string, error)
	// CreateRoute installs req atomically. If the table already routes the
	// destination it returns a *topology.RouteConflictError and changes nothing.
	CreateRoute(ctx context.Context, req RouteRequest) (string, error)
	// DeleteRoute removes the route for destination. A missing route is not an error.
	DeleteRoute(ctx context.Context, tableID string, destination topology.AddressBlock) error
	ListRoutes(ctx context.Context, tableID string) ([]topology.Route, error)
}

// SecurityPolicyRequest creates a security policy for a network.
type SecurityPolicyRequest struct {
	NetworkID string
	Name      string
	Rules     []topology.IngressRule
	Tags      map[string]string
}

// SecurityManager manages security policies.
type SecurityManager interface {
	CreateSecurityPolicy(ctx context.Context, req SecurityPolicyRequest) (string, error)
	SecurityPolicyExists(ctx context.Context, policyID string) (bool, error)
}

// PeeringRequest creates a link from a network in the client's region to
// an accepter network in AccepterRegion.
type PeeringRequest struct {
	RequesterNetworkID string
	AccepterNetworkID  string
	AccepterRegion     string
	Tags               map[string]string
}

// PeeringManager manages peering links. AcceptPeering must be called on the
// accepter region's client.
type PeeringManager interface {
	CreatePeering(ctx context.Context, req PeeringRequest) (string, error)
	AcceptPeering(ctx context.Context, linkID string) error
	// DescribePeering returns the link status; unknown links report
	// topology.PeeringDeleted.
	DescribePeering(ctx context.Context, linkID string) (topology.PeeringStatus, error)
	DeletePeering(ctx context.Context, linkID string) error
}
