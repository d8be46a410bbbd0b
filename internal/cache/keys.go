package cache

import (
	"fmt"
	"time"
)

// Prefix namespaces every shared-cache key owned by this system.
const Prefix = "autoguard:"

// OfferTTL is the offer cache lifetime; GeoIPTTL the IP intelligence cache
// lifetime. Both are part of the cross-process contract.
const (
	OfferTTL = 5 * time.Minute
	GeoIPTTL = 5 * time.Minute
)

// Offer cache keys (string, JSON value).
func OfferIDKey(id int64) string          { return fmt.Sprintf("%soffer:id:%d", Prefix, id) }
func OfferSubdomainKey(s string) string   { return Prefix + "offer:subdomain:" + s }
func OfferDomainKey(domain string) string { return Prefix + "offer:domain:" + domain }

// GeoIPKey is the IP intelligence cache key (string, JSON value).
func GeoIPKey(ip string) string { return Prefix + "geoip:" + ip }

// Scope identifies a blacklist scope segment: "global" or "user:{tenant}".
type Scope string

// GlobalScope is the scope shared by all tenants.
const GlobalScope Scope = "global"

// TenantScope returns the scope segment for one tenant.
func TenantScope(tenantID int64) Scope {
	return Scope(fmt.Sprintf("user:%d", tenantID))
}

// Blacklist keys. Types per the cross-process contract:
// ip → set, ip_ranges → JSON array string, uas → list,
// isps → set with a companion ":names" hash, geos → hash.
func BlacklistIPKey(s Scope) string       { return fmt.Sprintf("%sblacklist:ip:%s", Prefix, s) }
func BlacklistCIDRKey(s Scope) string     { return fmt.Sprintf("%sblacklist:ip_ranges:%s", Prefix, s) }
func BlacklistUAKey(s Scope) string       { return fmt.Sprintf("%sblacklist:uas:%s", Prefix, s) }
func BlacklistISPKey(s Scope) string      { return fmt.Sprintf("%sblacklist:isps:%s", Prefix, s) }
func BlacklistISPNamesKey(s Scope) string { return BlacklistISPKey(s) + ":names" }
func BlacklistGeoKey(s Scope) string      { return fmt.Sprintf("%sblacklist:geos:%s", Prefix, s) }

// Queue keys. The processing list of each pending list implements the
// two-list at-least-once protocol; the delayed zset holds unix-ms unlock
// times; the dead list is the DLQ.
const (
	LogQueue           = "queue:cloak_logs"
	LogProcessingQueue = LogQueue + ":processing"

	JobQueue           = "queue:page_generation"
	JobProcessingQueue = JobQueue + ":processing"
	JobDelayedQueue    = JobQueue + ":delayed"
	JobDeadQueue       = JobQueue + ":dead"
)
