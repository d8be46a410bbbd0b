// Package detect implements the layered bot-detection pipeline and the
// decision engine that folds layer scores into a money/safe verdict.
package detect

import (
	"context"
	"net/netip"

	"github.com/autoguard/autoguard/internal/blacklist"
	"github.com/autoguard/autoguard/internal/model"
)

// Request is the immutable view of one inbound request that detectors see.
type Request struct {
	IP        netip.Addr
	RawIP     string
	UserAgent string
	Referer   string
	URL       string // full request URI including query
	Host      string
}

// Context carries per-decision state shared by all layers. Intel is resolved
// once by the engine before the first layer runs.
type Context struct {
	OfferID         int64
	TenantID        int64
	TargetCountries []string
	Intel           model.IPIntelligence
	Policy          *Policy
}

// Result is the outcome of one detection layer. Scores run 0..100 with
// higher meaning more trusted; Passed==false with Score==0 is a hard fail.
type Result struct {
	Passed   bool
	Score    int
	Reason   string
	Evidence map[string]any
}

func hardFail(reason string, evidence map[string]any) Result {
	return Result{Passed: false, Score: 0, Reason: reason, Evidence: evidence}
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// Detector is one layer of the pipeline. Detectors are side-effect free:
// they may read shared state but never write it.
type Detector interface {
	Name() model.Layer
	Detect(ctx context.Context, req *Request, dc *Context) Result
}

// IntelligenceSource resolves an IP to intelligence. Satisfied by
// *geoip.Service.
type IntelligenceSource interface {
	Lookup(ctx context.Context, ip netip.Addr) model.IPIntelligence
}

// BlacklistChecker is the subset of the blacklist store the static layer
// needs. Satisfied by *blacklist.Store.
type BlacklistChecker interface {
	IsIPBlocked(ctx context.Context, ip netip.Addr, tenantID int64) (*blacklist.Match, error)
	IsCIDRHit(ctx context.Context, ip netip.Addr, tenantID int64) (*blacklist.Match, error)
	IsUABlocked(ctx context.Context, ua string, tenantID int64) (*blacklist.Match, error)
	IsISPBlocked(ctx context.Context, asn uint, orgName string, tenantID int64) (*blacklist.Match, error)
	IsGeoBlocked(ctx context.Context, country, region string, tenantID int64) (*blacklist.Match, error)
	GeoRisk(ctx context.Context, country, region string, tenantID int64) (bool, error)
}
