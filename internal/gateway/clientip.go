package gateway

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP extracts the visitor address. Header precedence is fixed:
// CF-Connecting-IP, then the first X-Forwarded-For token, then X-Real-IP,
// then the transport peer. No other headers are trusted.
func ClientIP(r *http.Request) (netip.Addr, string) {
	candidates := []string{
		r.Header.Get("CF-Connecting-IP"),
		firstForwarded(r.Header.Get("X-Forwarded-For")),
		r.Header.Get("X-Real-IP"),
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if addr, err := netip.ParseAddr(c); err == nil {
			return addr.Unmap(), c
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), host
	}
	return netip.Addr{}, host
}

func firstForwarded(xff string) string {
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}
