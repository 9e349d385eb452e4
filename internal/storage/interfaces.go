package storage

import (
	"context"
	"time"

	"github.com/hostreel/viewlens/internal/models"
)

// EventFilter narrows event queries. Nil time bounds mean unbounded
// on that side; the implementations must omit the bound entirely
// rather than substitute a sentinel date.
type EventFilter struct {
	VideoID    string
	EventTypes []string
	Start      *time.Time
	End        *time.Time
}

// Matches reports whether an event passes the filter. Shared by the
// in-memory store and tests.
func (f EventFilter) Matches(e *models.PlaybackEvent) bool {
	if f.VideoID != "" && e.VideoID != f.VideoID {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	if len(f.EventTypes) > 0 {
		ok := false
		for _, t := range f.EventTypes {
			if e.EventType == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// =============================================
// EVENT STORE
// =============================================

// EventStore defines operations for the append-only playback event log.
type EventStore interface {
	SaveEvent(ctx context.Context, e *models.PlaybackEvent) error
	ListEvents(ctx context.Context, filter EventFilter) ([]*models.PlaybackEvent, error)

	// HasEvents reports whether any events exist for a video at all,
	// regardless of range. Used to decide default-curve fallback.
	HasEvents(ctx context.Context, videoID string) (bool, error)
}

// =============================================
// SESSION REPOSITORY
// =============================================

// SessionRepo defines operations for viewer sessions and their
// deduplicated device contexts. Both upserts must be idempotent per
// key so concurrent play events for one session converge.
type SessionRepo interface {
	UpsertDeviceContext(ctx context.Context, dc *models.DeviceContext) error
	UpsertSession(ctx context.Context, s *models.ViewerSession) error

	// ListSessionDetails returns sessions for a video joined to their
	// device contexts, optionally restricted by last-activity range.
	ListSessionDetails(ctx context.Context, videoID string, start, end *time.Time) ([]*models.SessionDetail, error)

	GetSession(ctx context.Context, videoID, sessionID string) (*models.ViewerSession, error)
}

// =============================================
// VIDEO REPOSITORY
// =============================================

// VideoRepo defines read operations against video records. The
// analytics core only reads videos; lifecycle writes live elsewhere.
// GetByID returns (nil, nil) when the video does not exist.
type VideoRepo interface {
	GetByID(ctx context.Context, id string) (*models.Video, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]*models.Video, error)
	Upsert(ctx context.Context, v *models.Video) error
}
