package models

// Retention curve sources. Measured curves come from collected
// playback events; default curves are synthetic display placeholders
// for videos with no analytics yet.
const (
	RetentionSourceMeasured = "measured"
	RetentionSourceDefault  = "default"
)

// RetentionPoint is one sample of a retention curve: the percentage
// of sessions still watching at a given playback offset.
type RetentionPoint struct {
	Time      int     `json:"time"`
	Retention float64 `json:"retention"`
}

// DropOff marks a bucket transition where retention decreased.
// Delta is the (negative) change versus the previous bucket.
type DropOff struct {
	Time      int     `json:"time"`
	Retention float64 `json:"retention"`
	Delta     float64 `json:"delta"`
}

// VideoSummary is the payload of the events summary endpoint.
type VideoSummary struct {
	Views              int64            `json:"views"`
	WatchTime          int64            `json:"watchTime"`
	Duration           int              `json:"duration"`
	Retention          []RetentionPoint `json:"retention"`
	RetentionPerSecond []RetentionPoint `json:"retentionPerSecond,omitempty"`
	BucketSize         int              `json:"bucketSize"`
}

// VideoInsights is the payload of the insights endpoint.
type VideoInsights struct {
	UniqueViews      int64            `json:"uniqueViews"`
	WatchTimeSeconds int64            `json:"watchTimeSeconds"`
	Duration         int              `json:"duration"`
	BucketSize       int              `json:"bucketSize"`
	Retention        []RetentionPoint `json:"retention"`
	DropOffs         []DropOff        `json:"dropOffs"`
}

// ViewStats is the payload of the views endpoint.
type ViewStats struct {
	UniqueViews      int64 `json:"uniqueViews"`
	WatchTimeSeconds int64 `json:"watchTimeSeconds"`
	AverageWatchTime int64 `json:"averageWatchTime"`
}

// VideoRetention is a per-video retention curve tagged with its source.
type VideoRetention struct {
	VideoID  string           `json:"videoId"`
	Title    string           `json:"title,omitempty"`
	Duration int              `json:"duration"`
	Source   string           `json:"source"`
	Points   []RetentionPoint `json:"points"`
}

// ===========================================
// VIEWER BREAKDOWNS
// ===========================================

// DeviceBreakdown groups sessions by device.
type DeviceBreakdown struct {
	Device       string  `json:"device"`
	Category     string  `json:"category"`
	Manufacturer string  `json:"manufacturer"`
	Views        int64   `json:"views"`
	Percentage   float64 `json:"percentage"`
}

// BrowserBreakdown groups sessions by browser.
type BrowserBreakdown struct {
	Browser    string  `json:"browser"`
	Version    string  `json:"version"`
	Views      int64   `json:"views"`
	Percentage float64 `json:"percentage"`
}

// OSBreakdown groups sessions by operating system.
type OSBreakdown struct {
	OS         string  `json:"os"`
	Version    string  `json:"version"`
	Views      int64   `json:"views"`
	Percentage float64 `json:"percentage"`
}

// LocationBreakdown groups sessions by geolocated origin.
type LocationBreakdown struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Region      string  `json:"region,omitempty"`
	City        string  `json:"city,omitempty"`
	Views       int64   `json:"views"`
	Percentage  float64 `json:"percentage"`
}

// ConnectionBreakdown groups sessions by connection type. Connection
// type is best-effort; with no signal every session lands in "unknown".
type ConnectionBreakdown struct {
	ConnectionType string  `json:"connectionType"`
	Views          int64   `json:"views"`
	Percentage     float64 `json:"percentage"`
}

// ViewerAnalytics is the payload of the viewer-analytics endpoint.
type ViewerAnalytics struct {
	TotalViews  int64                 `json:"totalViews"`
	Devices     []DeviceBreakdown     `json:"devices"`
	Browsers    []BrowserBreakdown    `json:"browsers"`
	OS          []OSBreakdown         `json:"os"`
	Locations   []LocationBreakdown   `json:"locations"`
	Connections []ConnectionBreakdown `json:"connections"`
}
