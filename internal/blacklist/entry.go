// Package blacklist implements membership tests over per-tenant and global
// IP/CIDR/UA/ASN/ISP/geo sets backed by the shared cache, and the atomic
// rebuild of those sets from the primary store.
package blacklist

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"
)

// Kind discriminates the blacklist entry variants.
type Kind string

const (
	KindIP   Kind = "ip"
	KindCIDR Kind = "cidr"
	KindUA   Kind = "ua"
	KindASN  Kind = "asn"
	KindISP  Kind = "isp"
	KindGeo  Kind = "geo"
)

// GeoBlockType distinguishes outright geo blocks from high-risk markers.
// Only "block" denies in L1; "high_risk" feeds the geography layer score.
type GeoBlockType string

const (
	GeoBlock    GeoBlockType = "block"
	GeoHighRisk GeoBlockType = "high_risk"
)

// UAMatchType selects how a UA pattern is applied.
type UAMatchType string

const (
	UAExact    UAMatchType = "exact"
	UAContains UAMatchType = "contains"
	UARegex    UAMatchType = "regex"
)

// UAPattern is one user-agent pattern entry. The shared-cache encoding is
// either the JSON object below or a bare string, which is treated as a
// case-insensitive contains match.
type UAPattern struct {
	Pattern string      `json:"pattern"`
	Type    UAMatchType `json:"type"`
}

// DecodeUAPattern parses the shared-cache encoding of a UA pattern.
func DecodeUAPattern(raw string) UAPattern {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var p UAPattern
		if err := json.Unmarshal([]byte(trimmed), &p); err == nil && p.Pattern != "" {
			switch p.Type {
			case UAExact, UAContains, UARegex:
			default:
				p.Type = UAContains
			}
			return p
		}
	}
	return UAPattern{Pattern: raw, Type: UAContains}
}

// Encode returns the shared-cache encoding of the pattern.
func (p UAPattern) Encode() string {
	raw, err := json.Marshal(p)
	if err != nil {
		return p.Pattern
	}
	return string(raw)
}

// regexCache memoizes compiled UA regexes. A nil value records a pattern
// that failed to compile, so the compile error is paid once.
var regexCache = xsync.NewMap[string, *regexp.Regexp]()

// Matches reports whether the pattern matches the user agent.
// Regex compilation errors yield non-match, never an error.
func (p UAPattern) Matches(ua string) bool {
	switch p.Type {
	case UAExact:
		return ua == p.Pattern
	case UARegex:
		re, ok := regexCache.Load(p.Pattern)
		if !ok {
			compiled, err := regexp.Compile(p.Pattern)
			if err != nil {
				compiled = nil
			}
			re, _ = regexCache.LoadOrStore(p.Pattern, compiled)
		}
		if re == nil {
			return false
		}
		return re.MatchString(ua)
	default: // contains, case-insensitive
		return strings.Contains(strings.ToLower(ua), strings.ToLower(p.Pattern))
	}
}

// GeoField encodes a geo entry value as the hash field used in the shared
// cache: "US" for a country block, "US:CA" for country+region.
func GeoField(country, region string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		return country
	}
	return country + ":" + region
}
