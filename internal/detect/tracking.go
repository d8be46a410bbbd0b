package detect

import (
	"net/url"
	"strings"
)

// trackingAllowList is the fixed set of tracking parameters extracted from
// the landing URL. utm_* is matched by prefix.
var trackingAllowList = map[string]struct{}{
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"ttclid":       {},
	"twclid":       {},
	"ref":          {},
	"affiliate_id": {},
	"click_id":     {},
}

// ExtractTrackingParams pulls the allow-listed tracking parameters out of a
// request URI. Unparseable URLs yield an empty map.
func ExtractTrackingParams(rawURL string) map[string]string {
	out := map[string]string{}
	u, err := url.Parse(rawURL)
	if err != nil {
		return out
	}
	for key, values := range u.Query() {
		if len(values) == 0 || values[0] == "" {
			continue
		}
		lower := strings.ToLower(key)
		if _, ok := trackingAllowList[lower]; ok || strings.HasPrefix(lower, "utm_") {
			out[lower] = values[0]
		}
	}
	return out
}
