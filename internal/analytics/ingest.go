package analytics

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hostreel/viewlens/internal/metrics"
	"github.com/hostreel/viewlens/internal/models"
	"github.com/hostreel/viewlens/internal/storage"
)

// ErrInvalidEvent rejects ingestion payloads missing the mandatory
// videoId or eventType fields. Everything else is coerced, not rejected.
var ErrInvalidEvent = errors.New("videoId and eventType are required")

// EventInput is a raw ingestion payload plus request metadata the
// handler extracted (client IP, user agent).
type EventInput struct {
	VideoID        string        `json:"videoId"`
	EventType      string        `json:"eventType"`
	CurrentTime    float64       `json:"currentTime"`
	Duration       float64       `json:"duration"`
	UserID         string        `json:"userId"`
	SessionID      string        `json:"sessionId"`
	ClientID       string        `json:"clientId"`
	OrganizationID string        `json:"organizationId"`
	Context        *ContextInput `json:"context"`

	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// ContextInput is the device-context payload a player may attach to
// play events.
type ContextInput struct {
	ScreenWidth         int     `json:"screenWidth"`
	ScreenHeight        int     `json:"screenHeight"`
	ViewportWidth       int     `json:"viewportWidth"`
	ViewportHeight      int     `json:"viewportHeight"`
	DevicePixelRatio    float64 `json:"devicePixelRatio"`
	Orientation         string  `json:"orientation"`
	Language            string  `json:"language"`
	Timezone            string  `json:"timezone"`
	HardwareConcurrency int     `json:"hardwareConcurrency"`
	DeviceMemory        float64 `json:"deviceMemory"`
}

// IngestService validates, coerces and stores playback events, and
// maintains the device-context/session bookkeeping for play events.
type IngestService struct {
	events   storage.EventStore
	sessions storage.SessionRepo
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewIngestService constructs an IngestService.
func NewIngestService(events storage.EventStore, sessions storage.SessionRepo, logger *zap.Logger, m *metrics.Metrics) *IngestService {
	return &IngestService{
		events:   events,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
	}
}

// Record stores one playback event. Numeric fields are floor-rounded
// and clamped to zero; missing optional fields stay empty. On play
// events carrying a context, the device context and viewer session are
// upserted; those writes are best-effort and never fail the event.
func (s *IngestService) Record(ctx context.Context, in EventInput) error {
	if strings.TrimSpace(in.VideoID) == "" || strings.TrimSpace(in.EventType) == "" {
		if s.metrics != nil {
			s.metrics.RecordEventRejected("missing_required_field")
		}
		return ErrInvalidEvent
	}

	event := &models.PlaybackEvent{
		ID:             uuid.NewString(),
		VideoID:        strings.TrimSpace(in.VideoID),
		OrganizationID: in.OrganizationID,
		UserID:         in.UserID,
		SessionID:      in.SessionID,
		ClientID:       in.ClientID,
		EventType:      strings.ToLower(strings.TrimSpace(in.EventType)),
		CurrentTime:    clampSeconds(in.CurrentTime),
		Duration:       clampSeconds(in.Duration),
		IP:             in.IP,
		UserAgent:      in.UserAgent,
		Timestamp:      time.Now().UTC(),
	}

	if err := s.events.SaveEvent(ctx, event); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordEventIngested(event.EventType)
	}

	if event.EventType == models.EventPlay && in.Context != nil && event.SessionID != "" {
		s.recordSession(ctx, event, in.Context)
	}

	return nil
}

// recordSession upserts the device context and viewer session for a
// play event. Failures are logged and swallowed: session bookkeeping
// must never fail the primary event write.
func (s *IngestService) recordSession(ctx context.Context, event *models.PlaybackEvent, in *ContextInput) {
	dc := &models.DeviceContext{
		ScreenWidth:         in.ScreenWidth,
		ScreenHeight:        in.ScreenHeight,
		ViewportWidth:       in.ViewportWidth,
		ViewportHeight:      in.ViewportHeight,
		DevicePixelRatio:    in.DevicePixelRatio,
		Orientation:         in.Orientation,
		Language:            in.Language,
		Timezone:            in.Timezone,
		HardwareConcurrency: in.HardwareConcurrency,
		DeviceMemory:        in.DeviceMemory,
	}
	dc.Hash = dc.Fingerprint()

	if err := s.sessions.UpsertDeviceContext(ctx, dc); err != nil {
		s.logger.Warn("device context upsert failed",
			zap.String("video_id", event.VideoID),
			zap.String("session_id", event.SessionID),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordSessionUpsert("device_context", false)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSessionUpsert("device_context", true)
	}

	session := &models.ViewerSession{
		VideoID:           event.VideoID,
		SessionID:         event.SessionID,
		DeviceContextHash: dc.Hash,
		OrganizationID:    event.OrganizationID,
		UserID:            event.UserID,
		ClientID:          event.ClientID,
		IP:                event.IP,
		UserAgent:         event.UserAgent,
	}
	if err := s.sessions.UpsertSession(ctx, session); err != nil {
		s.logger.Warn("viewer session upsert failed",
			zap.String("video_id", event.VideoID),
			zap.String("session_id", event.SessionID),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordSessionUpsert("session", false)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSessionUpsert("session", true)
	}
}

// clampSeconds floor-rounds a reported second count and clamps
// negatives (and NaN/Inf garbage) to zero.
func clampSeconds(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return int(math.Floor(v))
}
