package topology

import (
	"fmt"
	"net"
	"net/netip"
)

// AddressBlock is a canonical IPv4 CIDR range. The zero value is an unset
// block and is reported by IsZero.
type AddressBlock struct {
	prefix netip.Prefix
}

// ParseBlock parses an IPv4 CIDR and masks it to its network address, so
// "12.0.3.7/16" and "12.0.0.0/16" parse to the same block.
func ParseBlock(s string) (AddressBlock, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return AddressBlock{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
	}
	if !p.Addr().Is4() {
		return AddressBlock{}, fmt.Errorf("invalid CIDR %q: only IPv4 is supported", s)
	}
	return AddressBlock{prefix: p.Masked()}, nil
}

// MustParseBlock is like ParseBlock but panics on error. Intended for tests
// and static tables.
func MustParseBlock(s string) AddressBlock {
	b, err := ParseBlock(s)
	if err != nil {
		panic(err)
	}
	return b
}

// BlockFromOctets builds a block from four octets and a prefix length.
func BlockFromOctets(octets [4]byte, bits int) AddressBlock {
	return AddressBlock{prefix: netip.PrefixFrom(netip.AddrFrom4(octets), bits).Masked()}
}

func (b AddressBlock) String() string {
	if b.IsZero() {
		return ""
	}
	return b.prefix.String()
}

// Prefix returns the prefix length.
func (b AddressBlock) Prefix() int {
	return b.prefix.Bits()
}

// Octets returns the four octets of the network address.
func (b AddressBlock) Octets() [4]byte {
	return b.prefix.Addr().As4()
}

// IsZero reports whether the block is unset.
func (b AddressBlock) IsZero() bool {
	return !b.prefix.IsValid()
}

// Contains reports whether other lies wholly within b.
func (b AddressBlock) Contains(other AddressBlock) bool {
	if b.IsZero() || other.IsZero() {
		return false
	}
	return b.Prefix() <= other.Prefix() && b.prefix.Contains(other.prefix.Addr())
}

// Overlaps reports whether b and other share at least one address.
func (b AddressBlock) Overlaps(other AddressBlock) bool {
	if b.IsZero() || other.IsZero() {
		return false
	}
	return b.prefix.Overlaps(other.prefix)
}

// IPNet converts the block for APIs that still take *net.IPNet.
func (b AddressBlock) IPNet() *net.IPNet {
	o := b.Octets()
	return &net.IPNet{
		IP:   net.IPv4(o[0], o[1], o[2], o[3]).To4(),
		Mask: net.CIDRMask(b.Prefix(), 32),
	}
}

// MarshalText implements encoding.TextMarshaler.
func (b AddressBlock) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input yields
// the zero block.
func (b *AddressBlock) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*b = AddressBlock{}
		return nil
	}
	parsed, err := ParseBlock(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// AnyIPv4 is the default route destination.
var AnyIPv4 = MustParseBlock("0.0.0.0/0")
