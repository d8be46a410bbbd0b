package blacklist

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autoguard/autoguard/internal/cache"
	"github.com/autoguard/autoguard/internal/store"
)

// Rebuilder rereads the primary store and repopulates the shared-cache
// blacklist keys. Writes to the blacklist itself are out-of-band (dashboard
// APIs); only the rebuild moves them into the live sets.
type Rebuilder struct {
	rdb  *redis.Client
	repo *store.BlacklistRepo
}

// NewRebuilder creates a Rebuilder.
func NewRebuilder(rdb *redis.Client, repo *store.BlacklistRepo) *Rebuilder {
	return &Rebuilder{rdb: rdb, repo: repo}
}

// scopeSets is the staged content of one scope.
type scopeSets struct {
	ips   []string
	cidrs []string
	uas   []string
	asns  []string
	isps  map[string]string // lowercased name → original value
	geos  map[string]string // field → block type
}

func newScopeSets() *scopeSets {
	return &scopeSets{isps: map[string]string{}, geos: map[string]string{}}
}

// Rebuild reads all active entries and swaps the live keys atomically from
// the reader's perspective: each staging key is built under a ":rebuild"
// suffix and RENAMEd into place, so a reader observes either the old set or
// the new set, never a partial one.
func (b *Rebuilder) Rebuild(ctx context.Context) error {
	rows, err := b.repo.ListActive(ctx, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("blacklist: rebuild read: %w", err)
	}

	byScope := map[cache.Scope]*scopeSets{cache.GlobalScope: newScopeSets()}
	for _, row := range rows {
		scope := cache.GlobalScope
		if row.TenantID != nil {
			scope = cache.TenantScope(*row.TenantID)
		}
		sets, ok := byScope[scope]
		if !ok {
			sets = newScopeSets()
			byScope[scope] = sets
		}
		if err := stageRow(sets, row); err != nil {
			log.Printf("[blacklist] warning: skip entry %d: %v", row.ID, err)
		}
	}

	pipe := b.rdb.TxPipeline()
	for scope, sets := range byScope {
		stageScope(ctx, pipe, scope, sets)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("blacklist: rebuild swap: %w", err)
	}
	log.Printf("[blacklist] cache rebuilt: %d entries across %d scopes", len(rows), len(byScope))
	return nil
}

func stageRow(sets *scopeSets, row store.BlacklistRow) error {
	switch Kind(row.Kind) {
	case KindIP:
		sets.ips = append(sets.ips, row.Value)
	case KindCIDR:
		if _, err := ParsePrefix(row.Value); err != nil {
			return fmt.Errorf("invalid cidr %q: %w", row.Value, err)
		}
		sets.cidrs = append(sets.cidrs, row.Value)
	case KindUA:
		match := UAMatchType(row.UAMatch)
		if match == "" {
			match = UAContains
		}
		sets.uas = append(sets.uas, UAPattern{Pattern: row.Value, Type: match}.Encode())
	case KindASN:
		asn := strings.TrimPrefix(strings.ToUpper(row.Value), "AS")
		if _, err := strconv.ParseUint(asn, 10, 64); err != nil {
			return fmt.Errorf("invalid asn %q", row.Value)
		}
		sets.asns = append(sets.asns, asn)
	case KindISP:
		sets.isps[strings.ToLower(row.Value)] = row.Value
	case KindGeo:
		bt := GeoBlockType(row.BlockType)
		if bt != GeoBlock && bt != GeoHighRisk {
			bt = GeoBlock
		}
		country, region, _ := strings.Cut(row.Value, ":")
		sets.geos[GeoField(country, region)] = string(bt)
	default:
		return fmt.Errorf("unknown kind %q", row.Kind)
	}
	return nil
}

// stageScope queues the staging writes and renames for one scope. An empty
// set has no staging key to rename, so the live key is deleted instead.
func stageScope(ctx context.Context, pipe redis.Pipeliner, scope cache.Scope, sets *scopeSets) {
	swap := func(liveKey string, stage func(stagingKey string) bool) {
		stagingKey := liveKey + ":rebuild"
		pipe.Del(ctx, stagingKey)
		if stage(stagingKey) {
			pipe.Rename(ctx, stagingKey, liveKey)
		} else {
			pipe.Del(ctx, liveKey)
		}
	}

	swap(cache.BlacklistIPKey(scope), func(k string) bool {
		if len(sets.ips) == 0 {
			return false
		}
		pipe.SAdd(ctx, k, toAny(sets.ips)...)
		return true
	})
	swap(cache.BlacklistCIDRKey(scope), func(k string) bool {
		if len(sets.cidrs) == 0 {
			return false
		}
		raw, err := json.Marshal(sets.cidrs)
		if err != nil {
			return false
		}
		pipe.Set(ctx, k, raw, 0)
		return true
	})
	swap(cache.BlacklistUAKey(scope), func(k string) bool {
		if len(sets.uas) == 0 {
			return false
		}
		pipe.RPush(ctx, k, toAny(sets.uas)...)
		return true
	})
	swap(cache.BlacklistISPKey(scope), func(k string) bool {
		if len(sets.asns) == 0 {
			return false
		}
		pipe.SAdd(ctx, k, toAny(sets.asns)...)
		return true
	})
	swap(cache.BlacklistISPNamesKey(scope), func(k string) bool {
		if len(sets.isps) == 0 {
			return false
		}
		pipe.HSet(ctx, k, toFlat(sets.isps)...)
		return true
	})
	swap(cache.BlacklistGeoKey(scope), func(k string) bool {
		if len(sets.geos) == 0 {
			return false
		}
		pipe.HSet(ctx, k, toFlat(sets.geos)...)
		return true
	})
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toFlat(m map[string]string) []any {
	out := make([]any, 0, len(m)*2)
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}
