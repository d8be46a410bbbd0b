package blacklist

import "net/netip"

// NormalizePrefix converts an IPv4-mapped-IPv6 prefix (::ffff:a.b.c.d/N,
// N ≥ 96) into its IPv4 form so that containment checks are representation
// independent.
func NormalizePrefix(p netip.Prefix) netip.Prefix {
	addr := p.Addr()
	if addr.Is4In6() && p.Bits() >= 96 {
		return netip.PrefixFrom(addr.Unmap(), p.Bits()-96)
	}
	return p
}

// IPInCIDR reports whether ip is inside prefix. The check is symmetric
// under the IPv4-mapped-IPv6 representation of either side.
func IPInCIDR(ip netip.Addr, prefix netip.Prefix) bool {
	return NormalizePrefix(prefix).Contains(ip.Unmap())
}

// ParsePrefix parses a CIDR string, accepting a bare address as a host
// prefix (/32 or /128).
func ParsePrefix(s string) (netip.Prefix, error) {
	if p, err := netip.ParsePrefix(s); err == nil {
		return NormalizePrefix(p), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
