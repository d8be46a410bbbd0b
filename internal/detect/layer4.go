package detect

import (
	"context"
	"strings"

	"github.com/autoguard/autoguard/internal/model"
)

// userAgent is L4: user-agent heuristics. Known bots hard-fail when the
// policy says so; everything else is cumulative deductions.
type userAgent struct{}

// NewUserAgent creates the L4 detector.
func NewUserAgent() Detector { return userAgent{} }

func (userAgent) Name() model.Layer { return model.LayerL4 }

func (userAgent) Detect(_ context.Context, req *Request, dc *Context) Result {
	ua := strings.TrimSpace(req.UserAgent)
	if len(ua) <= 10 {
		return hardFail("missing or truncated user agent", map[string]any{"length": len(ua)})
	}

	lists := dc.Policy.Lists
	lower := strings.ToLower(ua)
	info := ParseUserAgent(ua)
	evidence := map[string]any{
		"browser": info.Browser,
		"version": info.Version,
		"os":      info.OS,
		"mobile":  info.Mobile,
	}

	for _, kw := range lists.KnownBotKeywords {
		if strings.Contains(lower, kw) {
			evidence["bot_keyword"] = kw
			if dc.Policy.BlockKnownBots {
				return hardFail("known bot", evidence)
			}
			break
		}
	}

	score := 100
	var reasons []string
	for _, term := range lists.CrawlerTerms {
		if strings.Contains(lower, term) {
			score -= 50
			reasons = append(reasons, "crawler term: "+term)
			break
		}
	}
	for _, term := range lists.AutomationTerms {
		if strings.Contains(lower, term) {
			score -= 50
			reasons = append(reasons, "automation term: "+term)
			break
		}
	}
	for _, re := range lists.suspiciousRe {
		if re.MatchString(lower) {
			score -= 15
			reasons = append(reasons, "suspicious pattern: "+re.String())
		}
	}
	if min, ok := lists.OutdatedBrowsers[info.Browser]; ok && info.Version > 0 && info.Version < min {
		score -= 20
		reasons = append(reasons, "outdated browser")
	}

	score = clampScore(score)
	reason := ""
	if len(reasons) > 0 {
		reason = reasons[0]
		evidence["deductions"] = reasons
	}
	return Result{Passed: score > 0, Score: score, Reason: reason, Evidence: evidence}
}
