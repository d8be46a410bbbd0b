package blacklist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/netip"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
)

// Match describes a blacklist hit: the entry kind, the scope that matched
// (global wins over tenant when both would), and the matched value.
type Match struct {
	Kind  Kind        `json:"kind"`
	Scope cache.Scope `json:"scope"`
	Value string      `json:"value"`
}

// Store evaluates membership tests against the shared cache. Every test
// checks global scope first, then the tenant scope; a hit in either blocks.
// Tenant scope never overrides a global denial.
type Store struct {
	rdb *redis.Client
}

// NewStore creates a Store over the given shared-cache client.
func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func scopes(tenantID int64) []cache.Scope {
	return []cache.Scope{cache.GlobalScope, cache.TenantScope(tenantID)}
}

// IsIPBlocked tests the exact-IP sets. Returns nil when there is no hit.
func (s *Store) IsIPBlocked(ctx context.Context, ip netip.Addr, tenantID int64) (*Match, error) {
	value := ip.Unmap().String()
	for _, scope := range scopes(tenantID) {
		hit, err := s.rdb.SIsMember(ctx, cache.BlacklistIPKey(scope), value).Result()
		if err != nil {
			return nil, fmt.Errorf("blacklist: ip membership %s: %w", scope, err)
		}
		if hit {
			return &Match{Kind: KindIP, Scope: scope, Value: value}, nil
		}
	}
	return nil, nil
}

// IsCIDRHit tests the CIDR range lists. IPv4, IPv6 and IPv4-mapped-IPv6
// representations all match their covering ranges.
func (s *Store) IsCIDRHit(ctx context.Context, ip netip.Addr, tenantID int64) (*Match, error) {
	for _, scope := range scopes(tenantID) {
		raw, err := s.rdb.Get(ctx, cache.BlacklistCIDRKey(scope)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("blacklist: cidr ranges %s: %w", scope, err)
		}
		var ranges []string
		if err := json.Unmarshal([]byte(raw), &ranges); err != nil {
			log.Printf("[blacklist] warning: malformed cidr ranges for scope %s: %v", scope, err)
			continue
		}
		for _, r := range ranges {
			prefix, err := ParsePrefix(r)
			if err != nil {
				log.Printf("[blacklist] warning: skip invalid cidr %q in scope %s: %v", r, scope, err)
				continue
			}
			if IPInCIDR(ip, prefix) {
				return &Match{Kind: KindCIDR, Scope: scope, Value: r}, nil
			}
		}
	}
	return nil, nil
}

// IsUABlocked tests the UA pattern lists.
func (s *Store) IsUABlocked(ctx context.Context, ua string, tenantID int64) (*Match, error) {
	for _, scope := range scopes(tenantID) {
		entries, err := s.rdb.LRange(ctx, cache.BlacklistUAKey(scope), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("blacklist: ua patterns %s: %w", scope, err)
		}
		for _, raw := range entries {
			if p := DecodeUAPattern(raw); p.Matches(ua) {
				return &Match{Kind: KindUA, Scope: scope, Value: p.Pattern}, nil
			}
		}
	}
	return nil, nil
}

// IsISPBlocked tests the ASN set and the companion ISP-name hash. The name
// check is a case-insensitive contains over the organization string.
func (s *Store) IsISPBlocked(ctx context.Context, asn uint, orgName string, tenantID int64) (*Match, error) {
	orgLower := strings.ToLower(orgName)
	for _, scope := range scopes(tenantID) {
		if asn != 0 {
			hit, err := s.rdb.SIsMember(ctx, cache.BlacklistISPKey(scope), strconv.FormatUint(uint64(asn), 10)).Result()
			if err != nil {
				return nil, fmt.Errorf("blacklist: asn membership %s: %w", scope, err)
			}
			if hit {
				return &Match{Kind: KindASN, Scope: scope, Value: "AS" + strconv.FormatUint(uint64(asn), 10)}, nil
			}
		}
		if orgLower == "" {
			continue
		}
		names, err := s.rdb.HGetAll(ctx, cache.BlacklistISPNamesKey(scope)).Result()
		if err != nil {
			return nil, fmt.Errorf("blacklist: isp names %s: %w", scope, err)
		}
		for nameLower, original := range names {
			if strings.Contains(orgLower, nameLower) {
				return &Match{Kind: KindISP, Scope: scope, Value: original}, nil
			}
		}
	}
	return nil, nil
}

// IsGeoBlocked tests the geo hash for an outright block of the country or
// country+region. High-risk markers do not block here; see GeoRisk.
func (s *Store) IsGeoBlocked(ctx context.Context, country, region string, tenantID int64) (*Match, error) {
	bt, scope, field, err := s.geoLookup(ctx, country, region, tenantID)
	if err != nil {
		return nil, err
	}
	if bt == GeoBlock {
		return &Match{Kind: KindGeo, Scope: scope, Value: field}, nil
	}
	return nil, nil
}

// GeoRisk reports whether the country (or country+region) carries a
// high-risk marker in either scope.
func (s *Store) GeoRisk(ctx context.Context, country, region string, tenantID int64) (bool, error) {
	bt, _, _, err := s.geoLookup(ctx, country, region, tenantID)
	if err != nil {
		return false, err
	}
	return bt == GeoHighRisk, nil
}

func (s *Store) geoLookup(ctx context.Context, country, region string, tenantID int64) (GeoBlockType, cache.Scope, string, error) {
	if country == "" {
		return "", "", "", nil
	}
	fields := []string{GeoField(country, region), GeoField(country, "")}
	if fields[0] == fields[1] {
		fields = fields[:1]
	}
	for _, scope := range scopes(tenantID) {
		values, err := s.rdb.HMGet(ctx, cache.BlacklistGeoKey(scope), fields...).Result()
		if err != nil {
			return "", "", "", fmt.Errorf("blacklist: geo hash %s: %w", scope, err)
		}
		// An outright block wins over a high-risk marker within a scope.
		var riskField string
		for i, v := range values {
			raw, ok := v.(string)
			if !ok || raw == "" {
				continue
			}
			if GeoBlockType(raw) == GeoBlock {
				return GeoBlock, scope, fields[i], nil
			}
			if riskField == "" {
				riskField = fields[i]
			}
		}
		if riskField != "" {
			return GeoHighRisk, scope, riskField, nil
		}
	}
	return "", "", "", nil
}
