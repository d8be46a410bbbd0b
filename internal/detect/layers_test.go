package detect

import (
	"context"
	"testing"

	"github.com/autoguard/autoguard/internal/model"
)

func strp(s string) *string { return &s }

func testContext(intel model.IPIntelligence) *Context {
	return &Context{
		OfferID:  1,
		TenantID: 1,
		Intel:    intel,
		Policy:   DefaultPolicy(),
	}
}

func TestIPIntelligenceLayerDeductions(t *testing.T) {
	asn := uint(16509)
	tests := []struct {
		name      string
		intel     model.IPIntelligence
		wantScore int
		wantLevel string
	}{
		{name: "clean", intel: model.IPIntelligence{}, wantScore: 100, wantLevel: "low"},
		{name: "residential_bonus_capped", intel: model.IPIntelligence{IsResidential: true}, wantScore: 100, wantLevel: "low"},
		{name: "datacenter", intel: model.IPIntelligence{IsDatacenter: true}, wantScore: 60, wantLevel: "medium"},
		{name: "vpn", intel: model.IPIntelligence{IsVPN: true}, wantScore: 70, wantLevel: "low"},
		{name: "tor_and_proxy", intel: model.IPIntelligence{IsTor: true, IsProxy: true}, wantScore: 20, wantLevel: "high"},
		{name: "known_asn", intel: model.IPIntelligence{ASN: &asn}, wantScore: 80, wantLevel: "low"},
		{name: "floor_zero", intel: model.IPIntelligence{IsDatacenter: true, IsVPN: true, IsProxy: true, IsTor: true}, wantScore: 0, wantLevel: "high"},
	}
	det := NewIPIntelligence()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := det.Detect(context.Background(), &Request{}, testContext(tt.intel))
			if r.Score != tt.wantScore {
				t.Fatalf("score = %d, want %d", r.Score, tt.wantScore)
			}
			if got := r.Evidence["threat_level"]; got != tt.wantLevel {
				t.Fatalf("threat_level = %v, want %s", got, tt.wantLevel)
			}
			if (r.Score > 0) != r.Passed {
				t.Fatalf("passed = %v inconsistent with score %d", r.Passed, r.Score)
			}
		})
	}
}

func TestGeographyDecisionTree(t *testing.T) {
	det := NewGeography(nil)
	run := func(intel model.IPIntelligence, targets []string) Result {
		dc := testContext(intel)
		dc.TargetCountries = targets
		return det.Detect(context.Background(), &Request{}, dc)
	}

	// Unknown location with targeting configured is a hard fail.
	r := run(model.IPIntelligence{}, []string{"US"})
	if r.Passed || r.Score != 0 {
		t.Fatalf("unknown+targets = %+v, want hard fail", r)
	}

	// Unknown location without targeting passes at 80.
	r = run(model.IPIntelligence{}, nil)
	if !r.Passed || r.Score != 80 {
		t.Fatalf("unknown+no targets = %+v, want pass 80", r)
	}

	// Country outside the target list is a hard fail.
	r = run(model.IPIntelligence{Country: strp("FR")}, []string{"US", "CA"})
	if r.Passed || r.Score != 0 {
		t.Fatalf("outside targets = %+v, want hard fail", r)
	}

	// Case-insensitive target match.
	r = run(model.IPIntelligence{Country: strp("us")}, []string{"US"})
	if !r.Passed || r.Score != 100 {
		t.Fatalf("target match = %+v, want pass 100", r)
	}

	// Built-in high-risk country loses 30.
	r = run(model.IPIntelligence{Country: strp("NG")}, nil)
	if !r.Passed || r.Score != 70 {
		t.Fatalf("high risk = %+v, want pass 70", r)
	}
}

func TestUserAgentLayer(t *testing.T) {
	det := NewUserAgent()
	run := func(ua string) Result {
		return det.Detect(context.Background(), &Request{UserAgent: ua}, testContext(model.IPIntelligence{}))
	}

	if r := run(""); r.Passed || r.Score != 0 {
		t.Fatalf("empty UA = %+v, want hard fail", r)
	}
	if r := run("short ua"); r.Passed || r.Score != 0 {
		t.Fatalf("short UA = %+v, want hard fail", r)
	}
	if r := run("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"); r.Passed {
		t.Fatalf("known bot with BlockKnownBots = %+v, want hard fail", r)
	}
	if r := run("python-requests/2.31.0"); r.Passed != true || r.Score != 50 {
		t.Fatalf("crawler term = %+v, want score 50", r)
	}
	if r := run("Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/119.0.6045.105 Safari/537.36"); r.Score != 50 {
		t.Fatalf("automation term = %+v, want score 50", r)
	}
	if r := run(uaChrome); !r.Passed || r.Score != 100 {
		t.Fatalf("normal browser = %+v, want pass 100", r)
	}

	// Outdated major version loses 20.
	outdated := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/72.0.3626.121 Safari/537.36"
	if r := run(outdated); r.Score != 80 {
		t.Fatalf("outdated browser = %+v, want score 80", r)
	}
}

func TestUserAgentLayerBotsAllowedWhenPolicyOff(t *testing.T) {
	dc := testContext(model.IPIntelligence{})
	policy := *DefaultPolicy()
	policy.BlockKnownBots = false
	dc.Policy = &policy

	det := NewUserAgent()
	r := det.Detect(context.Background(), &Request{
		UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
	}, dc)
	if !r.Passed {
		t.Fatalf("bot keyword must not hard-fail with BlockKnownBots off, got %+v", r)
	}
	if r.Evidence["bot_keyword"] == nil {
		t.Fatal("bot keyword should still be recorded in evidence")
	}
}

func TestRefererTrackingLayer(t *testing.T) {
	det := NewRefererTracking()
	run := func(rawURL, referer string, requireReferer bool) Result {
		dc := testContext(model.IPIntelligence{})
		policy := *DefaultPolicy()
		policy.RequireReferer = requireReferer
		dc.Policy = &policy
		return det.Detect(context.Background(), &Request{URL: rawURL, Referer: referer}, dc)
	}

	// Ad-click IDs add up, capped at 100.
	if r := run("/c/abc123?gclid=x", "", false); r.Score != 100 {
		t.Fatalf("gclid bonus capped = %+v, want 100", r)
	}

	// Missing referer only deducts when the policy requires one.
	if r := run("/", "", false); r.Score != 100 {
		t.Fatalf("missing referer without policy = %+v, want 100", r)
	}
	if r := run("/", "", true); r.Score != 80 {
		t.Fatalf("missing referer with policy = %+v, want 80", r)
	}

	// Suspicious referer domain, matched at eTLD+1.
	if r := run("/", "https://app.semrush.com/analytics", false); r.Score != 60 {
		t.Fatalf("suspicious referer = %+v, want 60", r)
	}

	// L5 never hard-blocks.
	if r := run("/", "https://app.semrush.com/x", true); !r.Passed {
		t.Fatalf("L5 must always pass, got %+v", r)
	}
}
