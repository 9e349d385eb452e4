// Package useragent classifies raw User-Agent strings into device,
// browser and OS facts by heuristic pattern matching. It is
// deliberately not a full UA database: unusual agents degrade to
// Unknown fields instead of failing.
package useragent

import (
	"regexp"
	"strings"
)

// Unknown is the sentinel for any facet the heuristics cannot resolve.
const Unknown = "Unknown"

// Device categories.
const (
	CategoryPhone   = "phone"
	CategoryTablet  = "tablet"
	CategoryDesktop = "desktop"
)

// Info is the classification of one User-Agent string.
type Info struct {
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Device         string
	Category       string
	Manufacturer   string
}

// Parser is the capability interface handlers depend on. It never
// returns an error: unresolvable agents yield Unknown facets.
type Parser interface {
	Parse(userAgent string) Info
}

// HeuristicParser classifies agents with substring checks and a few
// version-extraction regexes.
type HeuristicParser struct{}

// NewHeuristicParser creates a new heuristic parser.
func NewHeuristicParser() *HeuristicParser {
	return &HeuristicParser{}
}

var (
	chromeVersionRe  = regexp.MustCompile(`(?:Chrome|CriOS)/(\d+(?:\.\d+)*)`)
	firefoxVersionRe = regexp.MustCompile(`(?:Firefox|FxiOS)/(\d+(?:\.\d+)*)`)
	safariVersionRe  = regexp.MustCompile(`Version/(\d+(?:\.\d+)*)`)
	edgeVersionRe    = regexp.MustCompile(`Edg[A-Za-z]*/(\d+(?:\.\d+)*)`)
	operaVersionRe   = regexp.MustCompile(`(?:OPR|Opera)/(\d+(?:\.\d+)*)`)

	windowsVersionRe = regexp.MustCompile(`Windows NT (\d+(?:\.\d+)*)`)
	macVersionRe     = regexp.MustCompile(`Mac OS X (\d+(?:[._]\d+)*)`)
	iosVersionRe     = regexp.MustCompile(`(?:iPhone|CPU) OS (\d+(?:[._]\d+)*)`)
	androidVersionRe = regexp.MustCompile(`Android (\d+(?:\.\d+)*)`)
)

// Parse classifies a User-Agent string. An empty agent yields all
// Unknown facets with a desktop category, the least wrong default.
func (p *HeuristicParser) Parse(userAgent string) Info {
	info := Info{
		Browser:        Unknown,
		BrowserVersion: Unknown,
		OS:             Unknown,
		OSVersion:      Unknown,
		Device:         Unknown,
		Category:       CategoryDesktop,
		Manufacturer:   Unknown,
	}
	if userAgent == "" {
		return info
	}

	ua := strings.ToLower(userAgent)

	// Category first; browser/OS checks reuse it.
	switch {
	case strings.Contains(ua, "ipad") ||
		(strings.Contains(ua, "tablet") && !strings.Contains(ua, "mobile")) ||
		(strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")):
		info.Category = CategoryTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "android"):
		info.Category = CategoryPhone
	}

	info.Browser, info.BrowserVersion = detectBrowser(userAgent, ua)
	info.OS, info.OSVersion = detectOS(userAgent, ua)
	info.Device, info.Manufacturer = detectDevice(ua, info.Category)

	return info
}

func detectBrowser(raw, ua string) (string, string) {
	switch {
	case strings.Contains(ua, "edg"):
		return "Edge", firstMatch(edgeVersionRe, raw)
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "Opera", firstMatch(operaVersionRe, raw)
	case strings.Contains(ua, "firefox") || strings.Contains(ua, "fxios"):
		return "Firefox", firstMatch(firefoxVersionRe, raw)
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios"):
		return "Chrome", firstMatch(chromeVersionRe, raw)
	case strings.Contains(ua, "safari"):
		return "Safari", firstMatch(safariVersionRe, raw)
	}
	return Unknown, Unknown
}

func detectOS(raw, ua string) (string, string) {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows", firstMatch(windowsVersionRe, raw)
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		return "iOS", normalizeVersion(firstMatch(iosVersionRe, raw))
	case strings.Contains(ua, "android"):
		return "Android", firstMatch(androidVersionRe, raw)
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macOS", normalizeVersion(firstMatch(macVersionRe, raw))
	case strings.Contains(ua, "cros"):
		return "ChromeOS", Unknown
	case strings.Contains(ua, "linux"):
		return "Linux", Unknown
	}
	return Unknown, Unknown
}

func detectDevice(ua, category string) (device, manufacturer string) {
	switch {
	case strings.Contains(ua, "iphone"):
		return "iPhone", "Apple"
	case strings.Contains(ua, "ipad"):
		return "iPad", "Apple"
	case strings.Contains(ua, "macintosh") || strings.Contains(ua, "mac os"):
		return "Mac", "Apple"
	case strings.Contains(ua, "samsung") || strings.Contains(ua, "sm-"):
		return "Samsung Galaxy", "Samsung"
	case strings.Contains(ua, "pixel"):
		return "Pixel", "Google"
	case strings.Contains(ua, "huawei"):
		return "Huawei", "Huawei"
	case strings.Contains(ua, "xiaomi") || strings.Contains(ua, "redmi"):
		return "Xiaomi", "Xiaomi"
	case strings.Contains(ua, "oneplus"):
		return "OnePlus", "OnePlus"
	case strings.Contains(ua, "android"):
		if category == CategoryTablet {
			return "Android Tablet", Unknown
		}
		return "Android Phone", Unknown
	case strings.Contains(ua, "windows"):
		return "Windows PC", Unknown
	case strings.Contains(ua, "linux"):
		return "Linux PC", Unknown
	}
	return Unknown, Unknown
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return Unknown
}

// normalizeVersion converts underscore-delimited Apple versions
// (10_15_7) to dotted form.
func normalizeVersion(v string) string {
	if v == Unknown {
		return v
	}
	return strings.ReplaceAll(v, "_", ".")
}
