package detect

import (
	"regexp"
	"strconv"
	"strings"
)

// BrowserInfo is the parsed shape of a user-agent string. Version is the
// major version only, 0 when unparseable.
type BrowserInfo struct {
	Browser string
	Version int
	OS      string
	Mobile  bool
}

var uaVersionRe = map[string]*regexp.Regexp{
	"edge":    regexp.MustCompile(`edg(?:e|a|ios)?/(\d+)`),
	"opera":   regexp.MustCompile(`(?:opr|opera)/(\d+)`),
	"chrome":  regexp.MustCompile(`chrome/(\d+)`),
	"firefox": regexp.MustCompile(`firefox/(\d+)`),
	"safari":  regexp.MustCompile(`version/(\d+)`),
}

// ParseUserAgent extracts browser family, major version, OS and mobile flag.
// Detection order matters: Chrome-derived browsers carry "chrome/" too, so
// Edge and Opera are checked first.
func ParseUserAgent(ua string) BrowserInfo {
	lower := strings.ToLower(ua)
	info := BrowserInfo{Browser: "unknown", OS: osOf(lower)}
	info.Mobile = strings.Contains(lower, "mobile") ||
		strings.Contains(lower, "android") ||
		strings.Contains(lower, "iphone")

	switch {
	case strings.Contains(lower, "edg"):
		info.Browser = "edge"
	case strings.Contains(lower, "opr/") || strings.Contains(lower, "opera"):
		info.Browser = "opera"
	case strings.Contains(lower, "chrome/"):
		info.Browser = "chrome"
	case strings.Contains(lower, "firefox/"):
		info.Browser = "firefox"
	case strings.Contains(lower, "safari/"):
		info.Browser = "safari"
	}

	if re, ok := uaVersionRe[info.Browser]; ok {
		if m := re.FindStringSubmatch(lower); m != nil {
			info.Version, _ = strconv.Atoi(m[1])
		}
	}
	return info
}

func osOf(lower string) string {
	switch {
	case strings.Contains(lower, "windows"):
		return "windows"
	case strings.Contains(lower, "android"):
		return "android"
	case strings.Contains(lower, "iphone"), strings.Contains(lower, "ipad"), strings.Contains(lower, "ios"):
		return "ios"
	case strings.Contains(lower, "mac os x"), strings.Contains(lower, "macintosh"):
		return "macos"
	case strings.Contains(lower, "linux"):
		return "linux"
	default:
		return "unknown"
	}
}
