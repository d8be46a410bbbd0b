package detect

import (
	"context"
	"fmt"
	"log"

	"github.com/autoguard/autoguard/internal/blacklist"
	"github.com/autoguard/autoguard/internal/model"
)

// staticBlacklist is L1: exact IP, CIDR range, UA pattern, ISP and geo
// blacklists, in that order. Any hit is a hard block. A store read error
// degrades to no-hit so a cache outage never blocks traffic by itself.
type staticBlacklist struct {
	store BlacklistChecker
}

// NewStaticBlacklist creates the L1 detector over a blacklist store.
func NewStaticBlacklist(store BlacklistChecker) Detector {
	return &staticBlacklist{store: store}
}

func (d *staticBlacklist) Name() model.Layer { return model.LayerL1 }

func (d *staticBlacklist) Detect(ctx context.Context, req *Request, dc *Context) Result {
	type check struct {
		name string
		run  func() (*blacklist.Match, error)
	}
	checks := []check{
		{"ip", func() (*blacklist.Match, error) { return d.store.IsIPBlocked(ctx, req.IP, dc.TenantID) }},
		{"cidr", func() (*blacklist.Match, error) { return d.store.IsCIDRHit(ctx, req.IP, dc.TenantID) }},
		{"ua", func() (*blacklist.Match, error) { return d.store.IsUABlocked(ctx, req.UserAgent, dc.TenantID) }},
		{"isp", func() (*blacklist.Match, error) {
			var asn uint
			var org string
			if dc.Intel.ASN != nil {
				asn = *dc.Intel.ASN
			}
			if dc.Intel.Organization != nil {
				org = *dc.Intel.Organization
			}
			if asn == 0 && org == "" {
				return nil, nil
			}
			return d.store.IsISPBlocked(ctx, asn, org, dc.TenantID)
		}},
		{"geo", func() (*blacklist.Match, error) {
			if dc.Intel.Country == nil {
				return nil, nil
			}
			region := ""
			if dc.Intel.Region != nil {
				region = *dc.Intel.Region
			}
			return d.store.IsGeoBlocked(ctx, *dc.Intel.Country, region, dc.TenantID)
		}},
	}

	for _, c := range checks {
		match, err := c.run()
		if err != nil {
			log.Printf("[detect] warning: L1 %s check degraded: %v", c.name, err)
			continue
		}
		if match != nil {
			return hardFail(
				fmt.Sprintf("blacklist %s match", match.Kind),
				map[string]any{
					"check": c.name,
					"kind":  string(match.Kind),
					"scope": string(match.Scope),
					"value": match.Value,
				},
			)
		}
	}
	return Result{Passed: true, Score: 100, Evidence: map[string]any{"checks": len(checks)}}
}
