package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/hostreel/viewlens/internal/geo"
	"github.com/hostreel/viewlens/internal/models"
	"github.com/hostreel/viewlens/internal/useragent"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
)

func detail(ua, ip string) *models.SessionDetail {
	return &models.SessionDetail{
		Session: models.ViewerSession{
			VideoID:   "vid-1",
			SessionID: "s-" + ip + ua[:10],
			UserAgent: ua,
			IP:        ip,
		},
	}
}

func testResolver() geo.Resolver {
	provider := geo.NewStaticProvider()
	provider.AddEntry("203.0.113.7", geo.Location{Country: "Germany", CountryCode: "DE", City: "Berlin"})
	return geo.NewCachingResolver(provider, 100, time.Minute, nil)
}

func TestBuildViewerAnalyticsGrouping(t *testing.T) {
	details := []*models.SessionDetail{
		detail(uaChromeWindows, "203.0.113.7"),
		detail(uaChromeWindows, "203.0.113.7"),
		detail(uaSafariIPhone, "10.0.0.1"), // private, resolves Unknown
	}

	va := BuildViewerAnalytics(details, useragent.NewHeuristicParser(), testResolver())

	if va.TotalViews != 3 {
		t.Fatalf("TotalViews = %d, want 3", va.TotalViews)
	}

	if len(va.Browsers) != 2 {
		t.Fatalf("expected 2 browser groups, got %d", len(va.Browsers))
	}
	// Largest group first.
	if va.Browsers[0].Browser != "Chrome" || va.Browsers[0].Views != 2 {
		t.Errorf("top browser = %+v, want Chrome with 2 views", va.Browsers[0])
	}
	if va.Browsers[1].Browser != "Safari" {
		t.Errorf("second browser = %+v, want Safari", va.Browsers[1])
	}

	if len(va.Locations) != 2 {
		t.Fatalf("expected 2 location groups, got %d", len(va.Locations))
	}
	if va.Locations[0].Country != "Germany" || va.Locations[0].Views != 2 {
		t.Errorf("top location = %+v, want Germany with 2 views", va.Locations[0])
	}
	if va.Locations[1].CountryCode != "ZZ" {
		t.Errorf("private IP should group as Unknown, got %+v", va.Locations[1])
	}

	// Connection type has no signal yet, so one "unknown" group covers
	// every session.
	if len(va.Connections) != 1 || va.Connections[0].ConnectionType != "unknown" || va.Connections[0].Views != 3 {
		t.Errorf("connections = %+v, want single unknown group of 3", va.Connections)
	}
}

func TestBuildViewerAnalyticsPercentagesSum(t *testing.T) {
	details := []*models.SessionDetail{
		detail(uaChromeWindows, "203.0.113.7"),
		detail(uaSafariIPhone, "203.0.113.7"),
		detail(uaChromeWindows, "10.0.0.1"),
	}

	va := BuildViewerAnalytics(details, useragent.NewHeuristicParser(), testResolver())

	sum := func(pcts []float64) float64 {
		var s float64
		for _, p := range pcts {
			s += p
		}
		return s
	}

	var browserPcts, osPcts, devicePcts []float64
	for _, b := range va.Browsers {
		browserPcts = append(browserPcts, b.Percentage)
	}
	for _, o := range va.OS {
		osPcts = append(osPcts, o.Percentage)
	}
	for _, d := range va.Devices {
		devicePcts = append(devicePcts, d.Percentage)
	}

	for name, pcts := range map[string][]float64{
		"browsers": browserPcts,
		"os":       osPcts,
		"devices":  devicePcts,
	} {
		if got := sum(pcts); math.Abs(got-100) > 0.001 {
			t.Errorf("%s percentages sum to %v, want ~100", name, got)
		}
	}
}

func TestBuildViewerAnalyticsEmpty(t *testing.T) {
	va := BuildViewerAnalytics(nil, useragent.NewHeuristicParser(), testResolver())

	if va.TotalViews != 0 {
		t.Errorf("TotalViews = %d, want 0", va.TotalViews)
	}
	// Empty but non-nil slices keep the JSON shape stable.
	if va.Devices == nil || va.Browsers == nil || va.OS == nil || va.Locations == nil || va.Connections == nil {
		t.Error("breakdown slices must be non-nil when empty")
	}
}

func TestBuildViewerAnalyticsUnknownAgent(t *testing.T) {
	details := []*models.SessionDetail{
		detail("weird-bot/1.0", "203.0.113.7"),
	}

	va := BuildViewerAnalytics(details, useragent.NewHeuristicParser(), testResolver())
	if len(va.Browsers) != 1 || va.Browsers[0].Browser != useragent.Unknown {
		t.Errorf("unparseable agent should group as Unknown, got %+v", va.Browsers)
	}
	if va.Browsers[0].Views != va.TotalViews {
		t.Error("unknown group must still count toward totals")
	}
}
