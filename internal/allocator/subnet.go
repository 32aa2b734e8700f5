package allocator

import (
	"fmt"

	"github.com/imamik/vpcmesh/internal/topology"
)

// SubnetBlock returns the /24 at offset inside parent: the parent's third
// octet incremented by offset. The parent is canonicalised first.
//
// It fails with ErrInvalidParentBlock when the parent is unset or not
// between /16 and /24, and with ErrOffsetOutOfRange when the offset is
// negative, pushes the third octet past 255, or leaves the parent.
func SubnetBlock(parent topology.AddressBlock, offset int) (topology.AddressBlock, error) {
	if parent.IsZero() {
		return topology.AddressBlock{}, fmt.Errorf("%w: parent block is unset", topology.ErrInvalidParentBlock)
	}
	if parent.Prefix() < MinNetworkPrefix || parent.Prefix() > SubnetPrefix {
		return topology.AddressBlock{}, fmt.Errorf("%w: %s must be between /%d and /%d",
			topology.ErrInvalidParentBlock, parent, MinNetworkPrefix, SubnetPrefix)
	}
	if offset < 0 {
		return topology.AddressBlock{}, fmt.Errorf("%w: offset %d is negative", topology.ErrOffsetOutOfRange, offset)
	}

	octets := parent.Octets()
	third := int(octets[2]) + offset
	if third > 255 {
		return topology.AddressBlock{}, fmt.Errorf("%w: offset %d in %s exceeds the third octet",
			topology.ErrOffsetOutOfRange, offset, parent)
	}
	octets[2] = byte(third)
	octets[3] = 0

	subnet := topology.BlockFromOctets(octets, SubnetPrefix)
	if !parent.Contains(subnet) {
		return topology.AddressBlock{}, fmt.Errorf("%w: offset %d places %s outside %s",
			topology.ErrOffsetOutOfRange, offset, subnet, parent)
	}
	return subnet, nil
}

// MaxSubnetOffset returns the largest offset SubnetBlock accepts for parent,
// or -1 when the parent itself is invalid.
func MaxSubnetOffset(parent topology.AddressBlock) int {
	if parent.IsZero() || parent.Prefix() < MinNetworkPrefix || parent.Prefix() > SubnetPrefix {
		return -1
	}
	return (1 << (SubnetPrefix - parent.Prefix())) - 1
}

// Overlapping returns the first pair of blocks that share addresses.
func Overlapping(blocks ...topology.AddressBlock) (topology.AddressBlock, topology.AddressBlock, bool) {
	for i, a := range blocks {
		for _, b := range blocks[i+1:] {
			if a.Overlaps(b) {
				return a, b, true
			}
		}
	}
	return topology.AddressBlock{}, topology.AddressBlock{}, false
}
