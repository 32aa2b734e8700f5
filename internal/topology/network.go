package topology

import "fmt"

// Visibility classifies a subnet and the route table it shares.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Valid reports whether v is a known visibility class.
func (v Visibility) Valid() bool {
	return v == Public || v == Private
}

// Protocol of an ingress rule.
type Protocol string

const (
	ProtocolTCP  Protocol = "tcp"
	ProtocolUDP  Protocol = "udp"
	ProtocolICMP Protocol = "icmp"
	ProtocolAll  Protocol = "all"
)

// IngressRule allows inbound traffic from Source on a port or port range.
// ToPort zero means a single port. Ports are ignored for icmp and all.
type IngressRule struct {
	Protocol    Protocol     `json:"protocol"`
	FromPort    int          `json:"fromPort,omitempty"`
	ToPort      int          `json:"toPort,omitempty"`
	Source      AddressBlock `json:"source"`
	Description string       `json:"description,omitempty"`
}

// PortRange returns the effective inclusive port range.
func (r IngressRule) PortRange() (int, int) {
	if r.ToPort == 0 {
		return r.FromPort, r.FromPort
	}
	return r.FromPort, r.ToPort
}

// Validate checks the protocol and port range.
func (r IngressRule) Validate() error {
	switch r.Protocol {
	case ProtocolTCP, ProtocolUDP:
		from, to := r.PortRange()
		if from < 1 || to > 65535 || from > to {
			return fmt.Errorf("%w: ingress %s port range %d-%d", ErrInvalidConfig, r.Protocol, from, to)
		}
	case ProtocolICMP, ProtocolAll:
	default:
		return fmt.Errorf("%w: unknown ingress protocol %q", ErrInvalidConfig, r.Protocol)
	}
	return nil
}

// DefaultIngressRules is the allow-list used when none is configured:
// SSH, HTTPS and the management port 10008, from anywhere.
func DefaultIngressRules() []IngressRule {
	return []IngressRule{
		{Protocol: ProtocolTCP, FromPort: 22, Source: AnyIPv4, Description: "ssh"},
		{Protocol: ProtocolTCP, FromPort: 443, Source: AnyIPv4, Description: "https"},
		{Protocol: ProtocolTCP, FromPort: 10008, Source: AnyIPv4, Description: "management"},
	}
}

// SecurityPolicySource selects where a network's security policy comes from:
// an existing policy the caller resolved, or a new one built from rules.
type SecurityPolicySource struct {
	existingID string
	rules      []IngressRule
}

// ExistingPolicy adopts a policy by id.
func ExistingPolicy(id string) SecurityPolicySource {
	return SecurityPolicySource{existingID: id}
}

// DefaultPolicy creates a policy with the given ingress rules and
// allow-all egress.
func DefaultPolicy(rules ...IngressRule) SecurityPolicySource {
	return SecurityPolicySource{rules: append([]IngressRule(nil), rules...)}
}

// IsExisting reports whether the source adopts an existing policy.
func (s SecurityPolicySource) IsExisting() bool {
	return s.existingID != ""
}

// ExistingID returns the adopted policy id, or "".
func (s SecurityPolicySource) ExistingID() string {
	return s.existingID
}

// Rules returns the ingress rules of a created policy.
func (s SecurityPolicySource) Rules() []IngressRule {
	return append([]IngressRule(nil), s.rules...)
}

// SubnetSpec requests one subnet. Zone is optional.
type SubnetSpec struct {
	Visibility Visibility `json:"visibility"`
	Offset     int        `json:"offset"`
	Zone       string     `json:"zone,omitempty"`
}

// NetworkSpec is the input of network provisioning. Selector picks the
// registered block; empty means Region.
type NetworkSpec struct {
	Name           string
	Region         string
	Selector       string
	Subnets        []SubnetSpec
	SecurityPolicy SecurityPolicySource
	PrivateEgress  bool
	Tags           map[string]string
}

// BlockSelector returns the allocator selector of the network.
func (s NetworkSpec) BlockSelector() string {
	if s.Selector != "" {
		return s.Selector
	}
	return s.Region
}

// SubnetUnit is a provisioned subnet.
type SubnetUnit struct {
	ID           string
	Block        AddressBlock
	Visibility   Visibility
	Zone         string
	RouteTableID string
}

// SecurityPolicy is the single policy of a network.
type SecurityPolicy struct {
	ID      string
	Adopted bool
	Rules   []IngressRule
}

// RouteTable is a provider route table shared by all subnets of one
// visibility class.
type RouteTable struct {
	ID         string
	Visibility Visibility
	Routes     []Route
}

// NetworkUnit is a provisioned network and everything it owns.
type NetworkUnit struct {
	ID                string
	Name              string
	Region            string
	Block             AddressBlock
	Subnets           []SubnetUnit
	RouteTables       map[Visibility]*RouteTable
	SecurityPolicy    SecurityPolicy
	InternetGatewayID string
}

// Ref returns the peering-relevant identity of the network.
func (n *NetworkUnit) Ref() NetworkRef {
	return NetworkRef{ID: n.ID, Region: n.Region, Block: n.Block}
}

// RouteTableID returns the table id for a visibility class, or "".
func (n *NetworkUnit) RouteTableID(v Visibility) string {
	if rt, ok := n.RouteTables[v]; ok && rt != nil {
		return rt.ID
	}
	return ""
}

// Outputs publishes the network's output contract.
func (n *NetworkUnit) Outputs() Outputs {
	out := Outputs{
		NetworkID:           n.ID,
		NetworkBlock:        n.Block,
		Region:              n.Region,
		SubnetIDs:           make([]string, 0, len(n.Subnets)),
		RouteTableIDs:       make([]string, 0, len(n.Subnets)),
		PublicRouteTableID:  n.RouteTableID(Public),
		PrivateRouteTableID: n.RouteTableID(Private),
		SecurityPolicyID:    n.SecurityPolicy.ID,
		SecurityPolicyOwned: n.SecurityPolicy.ID != "" && !n.SecurityPolicy.Adopted,
		InternetGatewayID:   n.InternetGatewayID,
	}
	for _, s := range n.Subnets {
		out.SubnetIDs = append(out.SubnetIDs, s.ID)
		out.RouteTableIDs = append(out.RouteTableIDs, s.RouteTableID)
	}
	return out
}

// NetworkRef identifies a network as a peering endpoint.
type NetworkRef struct {
	ID     string
	Region string
	Block  AddressBlock
}
