package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/imamik/vpcmesh/internal/config"
	"github.com/imamik/vpcmesh/internal/platform/cloud"
)

// MetricsAPI represents the metrics maintained by the EC2 API client.
type MetricsAPI interface {
	ObserveAPICall(call, status string, seconds float64)
	ObserveRateLimit(call string, delay time.Duration)
}

// Options configures the provider.
type Options struct {
	// Profile selects a shared config profile; empty uses the default chain.
	Profile string
	// Endpoint overrides the EC2 endpoint, e.g. for LocalStack.
	Endpoint  string
	RateLimit float64
	Burst     int
	Metrics   MetricsAPI
	Timeouts  *config.Timeouts
}

// Provider creates region-bound EC2 clients sharing one AWS configuration.
type Provider struct {
	cfg  aws.Config
	opts Options

	mu      sync.Mutex
	clients map[string]*Client
}

var _ cloud.Provider = (*Provider)(nil)

// NewProvider loads the AWS configuration from the environment and shared
// config files.
func NewProvider(ctx context.Context, opts Options) (*Provider, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS configuration: %w", err)
	}
	return NewProviderFromConfig(cfg, opts), nil
}

// NewProviderFromConfig creates a provider from an existing configuration.
func NewProviderFromConfig(cfg aws.Config, opts Options) *Provider {
	if opts.RateLimit <= 0 {
		opts.RateLimit = config.DefaultRateLimit
	}
	if opts.Burst <= 0 {
		opts.Burst = config.DefaultBurst
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.Timeouts == nil {
		opts.Timeouts = config.LoadTimeouts()
	}
	return &Provider{cfg: cfg, opts: opts, clients: make(map[string]*Client)}
}

// Name implements cloud.Provider.
func (p *Provider) Name() string {
	return "aws"
}

// Client implements cloud.Provider. Clients are cached per region so that
// the rate limit applies across all callers of a region.
func (p *Provider) Client(_ context.Context, region string) (cloud.Client, error) {
	if region == "" {
		return nil, fmt.Errorf("region is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[region]; ok {
		return c, nil
	}

	ec2Client := ec2.NewFromConfig(p.cfg, func(o *ec2.Options) {
		o.Region = region
		// Retries are driven by this package so they can see error codes.
		o.RetryMaxAttempts = 1
		if p.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(p.opts.Endpoint)
		}
	})
	c := newClient(ec2Client, region, p.opts)
	p.clients[region] = c
	return c, nil
}

type noopMetrics struct{}

func (noopMetrics) ObserveAPICall(string, string, float64) {}

func (noopMetrics) ObserveRateLimit(string, time.Duration) {}
