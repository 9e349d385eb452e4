package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ===========================================
// PLAYBACK EVENT
// ===========================================

// Well-known playback event types. Unrecognized types are stored
// verbatim rather than rejected.
const (
	EventPlay       = "play"
	EventPause      = "pause"
	EventTimeUpdate = "timeupdate"
	EventEnded      = "ended"
)

// PlaybackEvent is a single append-only playback event. Events are
// never updated or deleted; all analytics are computed by re-scanning.
type PlaybackEvent struct {
	ID             string `json:"id"`
	VideoID        string `json:"video_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	EventType      string `json:"event_type"`

	// CurrentTime is the playhead position in whole seconds at the
	// moment the event fired. Duration is the video's duration in
	// whole seconds as reported by the player, not an event duration.
	CurrentTime int `json:"current_time"`
	Duration    int `json:"duration"`

	// Request metadata captured at ingest time.
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// SessionKey returns the identity used for distinct-view counting:
// session ID when present, client ID or user ID as fallbacks.
// Returns "" when the event carries no viewer identity at all.
func (e *PlaybackEvent) SessionKey() string {
	switch {
	case e.SessionID != "":
		return e.SessionID
	case e.ClientID != "":
		return e.ClientID
	case e.UserID != "":
		return e.UserID
	}
	return ""
}

// ===========================================
// DEVICE CONTEXT
// ===========================================

// DeviceContext is a fingerprint of screen/viewport/locale/hardware
// attributes reported by the player on play events. Rows are
// deduplicated by content hash; identical contexts share one row.
type DeviceContext struct {
	Hash string `json:"hash"`

	ScreenWidth         int     `json:"screen_width"`
	ScreenHeight        int     `json:"screen_height"`
	ViewportWidth       int     `json:"viewport_width"`
	ViewportHeight      int     `json:"viewport_height"`
	DevicePixelRatio    float64 `json:"device_pixel_ratio"`
	Orientation         string  `json:"orientation,omitempty"`
	Language            string  `json:"language,omitempty"`
	Timezone            string  `json:"timezone,omitempty"`
	HardwareConcurrency int     `json:"hardware_concurrency"`
	DeviceMemory        float64 `json:"device_memory"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fingerprint computes the content hash used as the upsert key.
// The hash covers the normalized attribute tuple only, so two devices
// reporting identical contexts collapse into a single row.
func (d *DeviceContext) Fingerprint() string {
	payload := fmt.Sprintf("%d|%d|%d|%d|%.3f|%s|%s|%s|%d|%.2f",
		d.ScreenWidth, d.ScreenHeight,
		d.ViewportWidth, d.ViewportHeight,
		d.DevicePixelRatio,
		strings.ToLower(strings.TrimSpace(d.Orientation)),
		strings.ToLower(strings.TrimSpace(d.Language)),
		strings.TrimSpace(d.Timezone),
		d.HardwareConcurrency, d.DeviceMemory,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ===========================================
// VIEWER SESSION
// ===========================================

// ViewerSession links a playback session to its device context.
// Exactly one row exists per (video_id, session_id); repeated play
// events refresh the device-context link and UpdatedAt.
type ViewerSession struct {
	VideoID           string `json:"video_id"`
	SessionID         string `json:"session_id"`
	DeviceContextHash string `json:"device_context_hash,omitempty"`
	OrganizationID    string `json:"organization_id,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	ClientID          string `json:"client_id,omitempty"`

	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionDetail is a viewer session joined to its device context for
// breakdown aggregation. Context is nil when the session never
// reported one.
type SessionDetail struct {
	Session ViewerSession  `json:"session"`
	Context *DeviceContext `json:"context,omitempty"`
}

// ===========================================
// VIDEO
// ===========================================

// Video is the minimal read-only view of a video record the analytics
// core needs: its owning organization and its duration in seconds.
// Video lifecycle (upload, transcode, delete) belongs elsewhere.
type Video struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title,omitempty"`
	Duration       int       `json:"duration"`
	CreatedAt      time.Time `json:"created_at"`
}

// ===========================================
// REQUEST CONTEXT
// ===========================================

// RequestContext carries the authenticated caller's identity into
// aggregator calls. It replaces untyped request augmentation: handlers
// build it once from auth middleware and pass it explicitly.
type RequestContext struct {
	OrganizationID string
	UserID         string
}
