package allocator

import (
	"fmt"
	"maps"
	"slices"

	"github.com/imamik/vpcmesh/internal/topology"
)

const (
	// MinNetworkPrefix is the coarsest block a network may own.
	MinNetworkPrefix = 16
	// SubnetPrefix is the fixed prefix length of every subnet.
	SubnetPrefix = 24
)

// defaultBlocks maps the known region selectors to their network blocks.
// AWS regions use one public-range /16 each; Hetzner network zones use
// RFC1918 space.
var defaultBlocks = map[string]string{
	"us-east-1":    "12.0.0.0/16",
	"us-east-2":    "13.0.0.0/16",
	"us-west-1":    "14.0.0.0/16",
	"us-west-2":    "15.0.0.0/16",
	"eu-central-1": "16.0.0.0/16",
	"eu-west-1":    "17.0.0.0/16",
	"eu-central":   "10.0.0.0/16",
	"us-east":      "10.1.0.0/16",
	"us-west":      "10.2.0.0/16",
	"ap-southeast": "10.3.0.0/16",
}

// Registry maps region selectors to network blocks. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	blocks map[string]topology.AddressBlock
}

// NewRegistry builds a registry from selector to CIDR. Every block must be
// an IPv4 CIDR between /16 and /24 and no two blocks may overlap.
func NewRegistry(entries map[string]string) (*Registry, error) {
	blocks := make(map[string]topology.AddressBlock, len(entries))
	for selector, cidr := range entries {
		if selector == "" {
			return nil, fmt.Errorf("%w: empty region selector", topology.ErrInvalidConfig)
		}
		block, err := topology.ParseBlock(cidr)
		if err != nil {
			return nil, fmt.Errorf("%w: region %s: %w", topology.ErrInvalidConfig, selector, err)
		}
		if block.Prefix() < MinNetworkPrefix || block.Prefix() > SubnetPrefix {
			return nil, fmt.Errorf("%w: region %s block %s must be between /%d and /%d",
				topology.ErrInvalidConfig, selector, block, MinNetworkPrefix, SubnetPrefix)
		}
		blocks[selector] = block
	}

	r := &Registry{blocks: blocks}
	if a, b, ok := r.overlappingSelectors(); ok {
		return nil, fmt.Errorf("%w: region %s block %s overlaps region %s block %s",
			topology.ErrInvalidConfig, a, blocks[a], b, blocks[b])
	}
	return r, nil
}

// DefaultRegistry returns a fresh registry with the built-in table.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultBlocks)
	if err != nil {
		panic(fmt.Sprintf("default region registry is invalid: %v", err))
	}
	return r
}

// With returns a new registry with overrides applied on top of r. An
// override may replace an existing selector's block or add a new one. A
// selector of r whose block an override overlaps is dropped, so moving
// one region onto another's block needs no second override. Overrides
// that overlap each other are rejected.
func (r *Registry) With(overrides map[string]string) (*Registry, error) {
	var claimed []topology.AddressBlock
	for _, cidr := range overrides {
		if block, err := topology.ParseBlock(cidr); err == nil {
			claimed = append(claimed, block)
		}
	}

	merged := make(map[string]string, len(r.blocks)+len(overrides))
	for selector, block := range r.blocks {
		if _, overridden := overrides[selector]; overridden {
			continue
		}
		if slices.ContainsFunc(claimed, block.Overlaps) {
			continue
		}
		merged[selector] = block.String()
	}
	maps.Copy(merged, overrides)
	return NewRegistry(merged)
}

// NetworkBlock returns the block registered for selector.
func (r *Registry) NetworkBlock(selector string) (topology.AddressBlock, error) {
	block, ok := r.blocks[selector]
	if !ok {
		return topology.AddressBlock{}, fmt.Errorf("%w: %q", topology.ErrUnknownRegionSelector, selector)
	}
	return block, nil
}

// Selectors returns the registered selectors in sorted order.
func (r *Registry) Selectors() []string {
	return slices.Sorted(maps.Keys(r.blocks))
}

func (r *Registry) overlappingSelectors() (string, string, bool) {
	selectors := r.Selectors()
	for i, a := range selectors {
		for _, b := range selectors[i+1:] {
			if r.blocks[a].Overlaps(r.blocks[b]) {
				return a, b, true
			}
		}
	}
	return "", "", false
}
