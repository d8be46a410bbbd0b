package detect

import (
	"context"
	"log"
	"strings"

	"github.com/autoguard/autoguard/internal/model"
)

// geography is L3: country targeting and risk scoring. It also consults the
// blacklist store for a tenant high-risk marker, folding it in the same way
// as the built-in high-risk set.
type geography struct {
	store BlacklistChecker
}

// NewGeography creates the L3 detector.
func NewGeography(store BlacklistChecker) Detector { return &geography{store: store} }

func (d *geography) Name() model.Layer { return model.LayerL3 }

func (d *geography) Detect(ctx context.Context, _ *Request, dc *Context) Result {
	targets := dc.TargetCountries
	evidence := map[string]any{"target_countries": targets}

	if dc.Intel.Country == nil {
		if len(targets) > 0 {
			evidence["country"] = nil
			return hardFail("unknown location, targeting configured", evidence)
		}
		evidence["country"] = nil
		return Result{Passed: true, Score: 80, Evidence: evidence}
	}

	country := strings.ToUpper(*dc.Intel.Country)
	evidence["country"] = country

	if len(targets) > 0 && !containsFold(targets, country) {
		return hardFail("country outside targeting", evidence)
	}

	score := 100
	if dc.Policy.Lists.IsHighRiskCountry(country) {
		score -= 30
		evidence["high_risk"] = "builtin"
	} else if d.store != nil {
		region := ""
		if dc.Intel.Region != nil {
			region = *dc.Intel.Region
		}
		risky, err := d.store.GeoRisk(ctx, country, region, dc.TenantID)
		if err != nil {
			log.Printf("[detect] warning: L3 geo risk degraded: %v", err)
		} else if risky {
			score -= 30
			evidence["high_risk"] = "blacklist"
		}
	}
	return Result{Passed: true, Score: clampScore(score), Evidence: evidence}
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}
