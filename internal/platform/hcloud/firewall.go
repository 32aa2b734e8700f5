package hcloud

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/topology"
)

// CreateSecurityPolicy ensures a firewall named req.Name with the ingress
// rules. Hetzner firewalls allow all egress unless outbound rules exist.
func (c *Client) CreateSecurityPolicy(ctx context.Context, req cloud.SecurityPolicyRequest) (string, error) {
	rules := firewallRules(req.Rules)
	fw, err := (&EnsureOperation[*hcloud.Firewall, hcloud.FirewallCreateOpts]{
		Name:         req.Name,
		ResourceType: "firewall",
		Get:          c.client.Firewall.Get,
		Create:       c.createFirewall,
		CreateOptsMapper: func() hcloud.FirewallCreateOpts {
			return hcloud.FirewallCreateOpts{
				Name:   req.Name,
				Rules:  rules,
				Labels: hcloudLabels(req.Tags),
			}
		},
	}).Execute(ctx, c)
	if err != nil {
		return "", err
	}
	return formatID(fw.ID), nil
}

func (c *Client) createFirewall(ctx context.Context, opts hcloud.FirewallCreateOpts) (*CreateResult[*hcloud.Firewall], *hcloud.Response, error) {
	res, resp, err := c.client.Firewall.Create(ctx, opts)
	if err != nil {
		return nil, resp, err
	}
	return &CreateResult[*hcloud.Firewall]{
		Resource: res.Firewall,
		Actions:  res.Actions,
	}, resp, nil
}

// firewallRules maps ingress rules to inbound firewall rules. "all" has no
// hcloud protocol and expands to tcp and udp on every port plus icmp.
func firewallRules(rules []topology.IngressRule) []hcloud.FirewallRule {
	var out []hcloud.FirewallRule
	for _, r := range rules {
		source := []net.IPNet{*r.Source.IPNet()}
		var desc *string
		if r.Description != "" {
			desc = hcloud.Ptr(r.Description)
		}
		rule := func(p hcloud.FirewallRuleProtocol, port *string) hcloud.FirewallRule {
			return hcloud.FirewallRule{
				Direction:   hcloud.FirewallRuleDirectionIn,
				SourceIPs:   source,
				Protocol:    p,
				Port:        port,
				Description: desc,
			}
		}

		switch r.Protocol {
		case topology.ProtocolICMP:
			out = append(out, rule(hcloud.FirewallRuleProtocolICMP, nil))
		case topology.ProtocolAll:
			out = append(out,
				rule(hcloud.FirewallRuleProtocolTCP, hcloud.Ptr("1-65535")),
				rule(hcloud.FirewallRuleProtocolUDP, hcloud.Ptr("1-65535")),
				rule(hcloud.FirewallRuleProtocolICMP, nil),
			)
		default:
			out = append(out, rule(hcloud.FirewallRuleProtocol(r.Protocol), hcloud.Ptr(portSpec(r))))
		}
	}
	return out
}

func portSpec(r topology.IngressRule) string {
	from, to := r.PortRange()
	if from == to {
		return strconv.Itoa(from)
	}
	return fmt.Sprintf("%d-%d", from, to)
}

// SecurityPolicyExists implements cloud.SecurityManager.
func (c *Client) SecurityPolicyExists(ctx context.Context, policyID string) (bool, error) {
	fw, _, err := c.client.Firewall.Get(ctx, policyID)
	if err != nil {
		return false, fmt.Errorf("failed to get firewall %s: %w", policyID, err)
	}
	return fw != nil, nil
}
