package hcloud

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/vpcmesh/internal/config"
	"github.com/imamik/vpcmesh/internal/platform/cloud"
)

// NetworkZones are the Hetzner network zones, which act as regions.
var NetworkZones = []string{"eu-central", "us-east", "us-west", "ap-southeast"}

// Provider creates zone-bound clients sharing one API client.
type Provider struct {
	client   *hcloud.Client
	timeouts *config.Timeouts
}

var _ cloud.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithTimeouts sets custom timeouts.
func WithTimeouts(t *config.Timeouts) Option {
	return func(p *Provider) {
		p.timeouts = t
	}
}

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) Option {
	return func(p *Provider) {
		p.client = hc
	}
}

// NewProvider creates a provider authenticated with token.
func NewProvider(token string, opts ...Option) *Provider {
	p := &Provider{
		client:   hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("vpcmesh", "")),
		timeouts: config.LoadTimeouts(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements cloud.Provider.
func (p *Provider) Name() string {
	return "hcloud"
}

// Client implements cloud.Provider. The region is a network zone.
func (p *Provider) Client(_ context.Context, region string) (cloud.Client, error) {
	if !slices.Contains(NetworkZones, region) {
		return nil, fmt.Errorf("unknown hcloud network zone %q: must be one of %v", region, NetworkZones)
	}
	return &Client{client: p.client, zone: hcloud.NetworkZone(region), timeouts: p.timeouts}, nil
}

// Client implements cloud.Client for one network zone. Hetzner networks
// carry a single route table, so the table id is the network id; peering
// and internet gateways do not exist and report cloud.ErrUnsupported.
type Client struct {
	client   *hcloud.Client
	zone     hcloud.NetworkZone
	timeouts *config.Timeouts
}

var _ cloud.Client = (*Client)(nil)

// Region implements cloud.Client.
func (c *Client) Region() string {
	return string(c.zone)
}

// AvailabilityZones returns the locations of the network zone.
func (c *Client) AvailabilityZones(ctx context.Context) ([]string, error) {
	locations, err := c.client.Location.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	var zones []string
	for _, l := range locations {
		if l.NetworkZone == c.zone {
			zones = append(zones, l.Name)
		}
	}
	slices.Sort(zones)
	return zones, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

var labelValue = regexp.MustCompile(`^([a-zA-Z0-9]([-_.a-zA-Z0-9]{0,61}[a-zA-Z0-9])?)?$`)

// hcloudLabels drops tags whose values the label API would reject.
func hcloudLabels(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if labelValue.MatchString(v) {
			out[k] = v
		}
	}
	return out
}
