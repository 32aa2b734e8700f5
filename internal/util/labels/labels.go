package labels

import (
	"maps"
	"sort"
	"strings"
)

// Standard tag keys, namespaced under vpcmesh.io.
const (
	// KeyTopology identifies the topology a resource belongs to.
	KeyTopology = "vpcmesh.io/topology"

	// KeyUnit identifies the deployment unit that created the resource.
	KeyUnit = "vpcmesh.io/unit"

	// KeyRegion records the region selector of the unit.
	KeyRegion = "vpcmesh.io/region"

	// KeyVisibility marks subnets and route tables as public or private.
	KeyVisibility = "vpcmesh.io/visibility"

	// KeyManagedBy identifies the management system.
	KeyManagedBy = "vpcmesh.io/managed-by"

	// KeyName carries the human-readable name. EC2 shows the "Name" tag in
	// its console, so it is set in addition to the namespaced keys.
	KeyName = "Name"
)

// ManagedByVpcmesh is the value of KeyManagedBy.
const ManagedByVpcmesh = "vpcmesh"

// LabelBuilder provides a fluent interface for building resource tags.
type LabelBuilder struct {
	labels map[string]string
}

// NewLabelBuilder creates a builder with the topology and manager set.
func NewLabelBuilder(topologyName string) *LabelBuilder {
	return &LabelBuilder{
		labels: map[string]string{
			KeyTopology:  topologyName,
			KeyManagedBy: ManagedByVpcmesh,
		},
	}
}

// WithUnit adds the deployment unit tag.
func (lb *LabelBuilder) WithUnit(unit string) *LabelBuilder {
	lb.labels[KeyUnit] = unit
	return lb
}

// WithRegion adds the region tag.
func (lb *LabelBuilder) WithRegion(region string) *LabelBuilder {
	lb.labels[KeyRegion] = region
	return lb
}

// WithVisibility adds the visibility tag (public, private).
func (lb *LabelBuilder) WithVisibility(visibility string) *LabelBuilder {
	if visibility != "" {
		lb.labels[KeyVisibility] = visibility
	}
	return lb
}

// WithName sets the Name tag.
func (lb *LabelBuilder) WithName(name string) *LabelBuilder {
	if name != "" {
		lb.labels[KeyName] = name
	}
	return lb
}

// Merge adds all labels from the provided map. Reserved keys are not
// overwritten.
func (lb *LabelBuilder) Merge(extra map[string]string) *LabelBuilder {
	for k, v := range extra {
		if k == KeyTopology || k == KeyManagedBy {
			continue
		}
		lb.labels[k] = v
	}
	return lb
}

// Build returns a copy of the labels map.
func (lb *LabelBuilder) Build() map[string]string {
	return maps.Clone(lb.labels)
}

// Selector renders tags as a sorted "k=v,k=v" label selector, the form
// Hetzner Cloud list endpoints accept.
func Selector(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, ",")
}

// SelectorForUnit returns a selector matching every resource of a unit.
func SelectorForUnit(topologyName, unit string) string {
	return Selector(map[string]string{KeyTopology: topologyName, KeyUnit: unit})
}
