package config

// ProviderType selects the cloud implementation.
type ProviderType string

const (
	ProviderAWS    ProviderType = "aws"
	ProviderHCloud ProviderType = "hcloud"
	ProviderMemory ProviderType = "memory"
)

// IsValid reports whether p is a known provider.
func (p ProviderType) IsValid() bool {
	return p == ProviderAWS || p == ProviderHCloud || p == ProviderMemory
}

// StateBackend selects where unit state records are kept.
type StateBackend string

const (
	BackendSQLite StateBackend = "sqlite"
	BackendS3     StateBackend = "s3"
)

// BucketSource says whether the state bucket is expected to exist or is
// created on first use.
type BucketSource string

const (
	BucketExisting BucketSource = "existing"
	BucketCreate   BucketSource = "create"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultProvider    = ProviderAWS
	DefaultStatePath   = ".vpcmesh/state.db"
	DefaultParallelism = 4
	DefaultRateLimit   = 10.0
	DefaultBurst       = 20
)

// Config is the root of vpcmesh.yaml.
type Config struct {
	Name        string            `yaml:"name"`
	Provider    ProviderConfig    `yaml:"provider"`
	State       StateConfig       `yaml:"state"`
	Regions     map[string]string `yaml:"regions,omitempty"`
	Parallelism int               `yaml:"parallelism,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty"`
	Units       []Unit            `yaml:"units"`
}

// ProviderConfig configures the cloud provider.
type ProviderConfig struct {
	Type ProviderType `yaml:"type"`
	// Profile names an AWS shared-config profile.
	Profile string `yaml:"profile,omitempty"`
	// Endpoint overrides the API endpoint (LocalStack, a Hetzner test server).
	Endpoint string `yaml:"endpoint,omitempty"`
	// RateLimit is the sustained provider API call rate per region (calls/s).
	RateLimit float64 `yaml:"rateLimit,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`
}

// StateConfig configures the state backend.
type StateConfig struct {
	Backend  StateBackend `yaml:"backend"`
	Path     string       `yaml:"path,omitempty"`
	Bucket   string       `yaml:"bucket,omitempty"`
	Endpoint string       `yaml:"endpoint,omitempty"`
	Region   string       `yaml:"region,omitempty"`
	Source   BucketSource `yaml:"source,omitempty"`
}

// Unit declares one deployment unit.
type Unit struct {
	Name    string            `yaml:"name"`
	Region  string            `yaml:"region"`
	Network *NetworkSection   `yaml:"network,omitempty"`
	Peering *PeeringSection   `yaml:"peering,omitempty"`
	Routes  *RoutesSection    `yaml:"routes,omitempty"`
	Tags    map[string]string `yaml:"tags,omitempty"`
}

// NetworkSection declares the unit's network. Selector names the
// registered block to allocate from and defaults to the unit's region.
type NetworkSection struct {
	Selector         string        `yaml:"selector,omitempty"`
	Subnets          []Subnet      `yaml:"subnets"`
	Ingress          []IngressRule `yaml:"ingress,omitempty"`
	SecurityPolicyID string        `yaml:"securityPolicyId,omitempty"`
	PrivateEgress    bool          `yaml:"privateEgress,omitempty"`
}

// Subnet declares one subnet by offset.
type Subnet struct {
	Visibility string `yaml:"visibility"`
	Offset     int    `yaml:"offset"`
	Zone       string `yaml:"zone,omitempty"`
}

// IngressRule declares one allowed inbound flow. Source defaults to
// 0.0.0.0/0.
type IngressRule struct {
	Protocol    string `yaml:"protocol"`
	Port        int    `yaml:"port,omitempty"`
	ToPort      int    `yaml:"toPort,omitempty"`
	Source      string `yaml:"source,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// PeeringSection declares a peering link from the unit's network.
type PeeringSection struct {
	Peer       Peer   `yaml:"peer"`
	Routes     string `yaml:"routes,omitempty"`
	Visibility string `yaml:"visibility,omitempty"`
}

// Peer is either another unit or a literal network.
type Peer struct {
	Unit         string `yaml:"unit,omitempty"`
	NetworkID    string `yaml:"networkId,omitempty"`
	Region       string `yaml:"region,omitempty"`
	CIDR         string `yaml:"cidr,omitempty"`
	RouteTableID string `yaml:"routeTableId,omitempty"`
}

// RoutesSection installs one side of a link owned by another unit.
type RoutesSection struct {
	Peering    string `yaml:"peering"`
	Network    string `yaml:"network,omitempty"`
	Visibility string `yaml:"visibility,omitempty"`
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Provider.Type == "" {
		c.Provider.Type = DefaultProvider
	}
	if c.Provider.RateLimit == 0 {
		c.Provider.RateLimit = DefaultRateLimit
	}
	if c.Provider.Burst == 0 {
		c.Provider.Burst = DefaultBurst
	}
	if c.State.Backend == "" {
		c.State.Backend = BackendSQLite
	}
	if c.State.Backend == BackendSQLite && c.State.Path == "" {
		c.State.Path = DefaultStatePath
	}
	if c.State.Backend == BackendS3 && c.State.Source == "" {
		c.State.Source = BucketExisting
	}
	if c.Parallelism == 0 {
		c.Parallelism = DefaultParallelism
	}
	for i := range c.Units {
		if p := c.Units[i].Peering; p != nil && p.Routes == "" {
			p.Routes = "local"
		}
	}
}

// Unit returns the unit with the given name.
func (c *Config) Unit(name string) (*Unit, bool) {
	for i := range c.Units {
		if c.Units[i].Name == name {
			return &c.Units[i], true
		}
	}
	return nil, false
}
