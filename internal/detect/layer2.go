package detect

import (
	"context"

	"github.com/autoguard/autoguard/internal/model"
)

// ipIntelligence is L2: network reputation scoring from the resolved IP
// intelligence. It deducts for anonymity and hosting signals and rewards a
// residential connection.
type ipIntelligence struct{}

// NewIPIntelligence creates the L2 detector.
func NewIPIntelligence() Detector { return ipIntelligence{} }

func (ipIntelligence) Name() model.Layer { return model.LayerL2 }

func (ipIntelligence) Detect(_ context.Context, _ *Request, dc *Context) Result {
	p := dc.Policy
	intel := dc.Intel

	score := 100
	var reasons []string
	deduct := func(amount int, reason string) {
		score -= amount
		reasons = append(reasons, reason)
	}

	if intel.IsDatacenter || intel.IsHosting {
		deduct(p.DatacenterDeduct, "datacenter")
	}
	if intel.IsVPN {
		deduct(p.VPNDeduct, "vpn")
	}
	if intel.IsProxy {
		deduct(p.ProxyDeduct, "proxy")
	}
	if intel.IsTor {
		deduct(p.TorDeduct, "tor")
	}
	if intel.ASN != nil && p.Lists.IsDatacenterASN(*intel.ASN) {
		deduct(p.KnownASNDeduct, "known datacenter asn")
	}
	if intel.IsResidential {
		score += p.ResidentialBonus
	}
	score = clampScore(score)

	evidence := map[string]any{
		"connection_type": string(intel.ConnectionType),
		"is_datacenter":   intel.IsDatacenter,
		"is_vpn":          intel.IsVPN,
		"is_proxy":        intel.IsProxy,
		"is_tor":          intel.IsTor,
		"is_residential":  intel.IsResidential,
		"threat_level":    threatLevel(score),
	}
	if intel.ASN != nil {
		evidence["asn"] = *intel.ASN
	}
	if intel.Organization != nil {
		evidence["organization"] = *intel.Organization
	}

	reason := ""
	if len(reasons) > 0 {
		reason = reasons[0]
		evidence["deductions"] = reasons
	}
	return Result{Passed: score > 0, Score: score, Reason: reason, Evidence: evidence}
}

func threatLevel(score int) string {
	switch {
	case score >= 70:
		return "low"
	case score >= 40:
		return "medium"
	default:
		return "high"
	}
}
