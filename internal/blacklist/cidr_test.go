package blacklist

import (
	"net/netip"
	"testing"
)

func TestIPInCIDR(t *testing.T) {
	tests := []struct {
		name   string
		ip     string
		prefix string
		want   bool
	}{
		{name: "v4_inside", ip: "10.1.2.3", prefix: "10.0.0.0/8", want: true},
		{name: "v4_outside", ip: "11.1.2.3", prefix: "10.0.0.0/8", want: false},
		{name: "v6_inside", ip: "2001:db8::1", prefix: "2001:db8::/32", want: true},
		{name: "v6_outside", ip: "2001:db9::1", prefix: "2001:db8::/32", want: false},
		{name: "mapped_ip_v4_prefix", ip: "::ffff:10.1.2.3", prefix: "10.0.0.0/8", want: true},
		{name: "v4_ip_mapped_prefix", ip: "10.1.2.3", prefix: "::ffff:10.0.0.0/104", want: true},
		{name: "mapped_both_sides", ip: "::ffff:192.168.0.9", prefix: "::ffff:192.168.0.0/120", want: true},
		{name: "host_prefix_exact", ip: "203.0.113.7", prefix: "203.0.113.7/32", want: true},
		{name: "host_prefix_miss", ip: "203.0.113.8", prefix: "203.0.113.7/32", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := netip.MustParseAddr(tt.ip)
			prefix, err := ParsePrefix(tt.prefix)
			if err != nil {
				t.Fatalf("ParsePrefix(%q) error: %v", tt.prefix, err)
			}
			if got := IPInCIDR(ip, prefix); got != tt.want {
				t.Fatalf("IPInCIDR(%s, %s) = %v, want %v", tt.ip, tt.prefix, got, tt.want)
			}
		})
	}
}

func TestParsePrefixBareAddress(t *testing.T) {
	p, err := ParsePrefix("198.51.100.4")
	if err != nil {
		t.Fatalf("ParsePrefix error: %v", err)
	}
	if p.Bits() != 32 {
		t.Fatalf("bare IPv4 should become /32, got /%d", p.Bits())
	}
	if !p.Contains(netip.MustParseAddr("198.51.100.4")) {
		t.Fatal("host prefix should contain its own address")
	}
}

func TestParsePrefixInvalid(t *testing.T) {
	if _, err := ParsePrefix("not-a-cidr"); err == nil {
		t.Fatal("expected error for garbage input")
	}
}
