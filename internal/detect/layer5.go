package detect

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/autoguard/autoguard/internal/model"
)

// refererTracking is L5: referer plausibility and ad-click attribution.
// It never hard-blocks; its score is purely advisory weight in the blend.
type refererTracking struct{}

// NewRefererTracking creates the L5 detector.
func NewRefererTracking() Detector { return refererTracking{} }

func (refererTracking) Name() model.Layer { return model.LayerL5 }

func (refererTracking) Detect(_ context.Context, req *Request, dc *Context) Result {
	params := ExtractTrackingParams(req.URL)
	evidence := map[string]any{
		"tracking_params": params,
		"referer":         req.Referer,
	}

	score := 100
	var reasons []string

	if req.Referer == "" {
		if dc.Policy.RequireReferer {
			score -= 20
			reasons = append(reasons, "missing referer")
		}
	} else if domain := registrableDomain(req.Referer); domain != "" {
		evidence["referer_domain"] = domain
		if dc.Policy.Lists.IsSuspiciousRefererDomain(domain) {
			score -= 40
			reasons = append(reasons, "suspicious referer domain")
		}
	}

	if _, ok := params["gclid"]; ok {
		score += 15
	}
	if _, ok := params["fbclid"]; ok {
		score += 10
	} else if _, ok := params["msclkid"]; ok {
		score += 10
	}
	if _, ok := params["utm_source"]; ok {
		score += 5
	}

	score = clampScore(score)
	reason := ""
	if len(reasons) > 0 {
		reason = reasons[0]
		evidence["deductions"] = reasons
	}
	return Result{Passed: true, Score: score, Reason: reason, Evidence: evidence}
}

// registrableDomain reduces a referer URL to its eTLD+1. Hosts without a
// public suffix (IPs, single labels) fall back to the bare host.
func registrableDomain(referer string) string {
	u, err := url.Parse(referer)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
