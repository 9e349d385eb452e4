package analytics

import (
	"sort"

	"github.com/hostreel/viewlens/internal/geo"
	"github.com/hostreel/viewlens/internal/models"
	"github.com/hostreel/viewlens/internal/useragent"
)

// BuildViewerAnalytics classifies sessions into device, browser, OS,
// location and connection breakdowns. Classification is best-effort:
// unparseable agents and unresolvable IPs land in Unknown groups
// rather than being dropped, so group views always sum to TotalViews
// and percentages to ~100 per dimension.
func BuildViewerAnalytics(details []*models.SessionDetail, parser useragent.Parser, resolver geo.Resolver) *models.ViewerAnalytics {
	total := int64(len(details))
	out := &models.ViewerAnalytics{
		TotalViews:  total,
		Devices:     []models.DeviceBreakdown{},
		Browsers:    []models.BrowserBreakdown{},
		OS:          []models.OSBreakdown{},
		Locations:   []models.LocationBreakdown{},
		Connections: []models.ConnectionBreakdown{},
	}
	if total == 0 {
		return out
	}

	type deviceKey struct{ device, category, manufacturer string }
	type versionKey struct{ name, version string }
	type locationKey struct{ country, code, region, city string }

	devices := make(map[deviceKey]int64)
	browsers := make(map[versionKey]int64)
	oses := make(map[versionKey]int64)
	locations := make(map[locationKey]int64)
	connections := make(map[string]int64)

	for _, d := range details {
		info := parser.Parse(d.Session.UserAgent)
		devices[deviceKey{info.Device, info.Category, info.Manufacturer}]++
		browsers[versionKey{info.Browser, info.BrowserVersion}]++
		oses[versionKey{info.OS, info.OSVersion}]++

		loc := geo.Unknown
		if resolver != nil {
			loc = resolver.Resolve(d.Session.IP)
		}
		locations[locationKey{loc.Country, loc.CountryCode, loc.Region, loc.City}]++

		// No connection-type signal is collected today; every session
		// classifies as unknown until the player starts reporting one.
		connections["unknown"]++
	}

	pct := func(views int64) float64 {
		return float64(views) / float64(total) * 100
	}

	for k, v := range devices {
		out.Devices = append(out.Devices, models.DeviceBreakdown{
			Device:       k.device,
			Category:     k.category,
			Manufacturer: k.manufacturer,
			Views:        v,
			Percentage:   pct(v),
		})
	}
	for k, v := range browsers {
		out.Browsers = append(out.Browsers, models.BrowserBreakdown{
			Browser:    k.name,
			Version:    k.version,
			Views:      v,
			Percentage: pct(v),
		})
	}
	for k, v := range oses {
		out.OS = append(out.OS, models.OSBreakdown{
			OS:         k.name,
			Version:    k.version,
			Views:      v,
			Percentage: pct(v),
		})
	}
	for k, v := range locations {
		out.Locations = append(out.Locations, models.LocationBreakdown{
			Country:     k.country,
			CountryCode: k.code,
			Region:      k.region,
			City:        k.city,
			Views:       v,
			Percentage:  pct(v),
		})
	}
	for k, v := range connections {
		out.Connections = append(out.Connections, models.ConnectionBreakdown{
			ConnectionType: k,
			Views:          v,
			Percentage:     pct(v),
		})
	}

	// Largest groups first, names as tiebreakers for stable output.
	sort.Slice(out.Devices, func(i, j int) bool {
		if out.Devices[i].Views != out.Devices[j].Views {
			return out.Devices[i].Views > out.Devices[j].Views
		}
		return out.Devices[i].Device < out.Devices[j].Device
	})
	sort.Slice(out.Browsers, func(i, j int) bool {
		if out.Browsers[i].Views != out.Browsers[j].Views {
			return out.Browsers[i].Views > out.Browsers[j].Views
		}
		return out.Browsers[i].Browser < out.Browsers[j].Browser
	})
	sort.Slice(out.OS, func(i, j int) bool {
		if out.OS[i].Views != out.OS[j].Views {
			return out.OS[i].Views > out.OS[j].Views
		}
		return out.OS[i].OS < out.OS[j].OS
	})
	sort.Slice(out.Locations, func(i, j int) bool {
		if out.Locations[i].Views != out.Locations[j].Views {
			return out.Locations[i].Views > out.Locations[j].Views
		}
		return out.Locations[i].Country < out.Locations[j].Country
	})
	sort.Slice(out.Connections, func(i, j int) bool {
		if out.Connections[i].Views != out.Connections[j].Views {
			return out.Connections[i].Views > out.Connections[j].Views
		}
		return out.Connections[i].ConnectionType < out.Connections[j].ConnectionType
	})

	return out
}
