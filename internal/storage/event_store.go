package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hostreel/viewlens/internal/models"
)

// InMemoryEventStore provides in-memory storage for playback events.
// Used in tests and when no database is configured.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []*models.PlaybackEvent

	// Index for HasEvents
	byVideo map[string]int
}

// NewInMemoryEventStore creates a new in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		byVideo: make(map[string]int),
	}
}

func (s *InMemoryEventStore) SaveEvent(ctx context.Context, e *models.PlaybackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.events = append(s.events, &cp)
	s.byVideo[e.VideoID]++
	return nil
}

func (s *InMemoryEventStore) ListEvents(ctx context.Context, filter EventFilter) ([]*models.PlaybackEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.PlaybackEvent, 0)
	for _, e := range s.events {
		if filter.Matches(e) {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (s *InMemoryEventStore) HasEvents(ctx context.Context, videoID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byVideo[videoID] > 0, nil
}

// =============================================
// InMemorySessionRepo
// =============================================

// InMemorySessionRepo provides in-memory storage for viewer sessions
// and device contexts with upsert-by-key semantics.
type InMemorySessionRepo struct {
	mu       sync.RWMutex
	contexts map[string]*models.DeviceContext  // hash -> context
	sessions map[string]*models.ViewerSession  // videoID + "\x00" + sessionID
}

// NewInMemorySessionRepo creates a new in-memory session repository.
func NewInMemorySessionRepo() *InMemorySessionRepo {
	return &InMemorySessionRepo{
		contexts: make(map[string]*models.DeviceContext),
		sessions: make(map[string]*models.ViewerSession),
	}
}

func sessionKey(videoID, sessionID string) string {
	return videoID + "\x00" + sessionID
}

func (r *InMemorySessionRepo) UpsertDeviceContext(ctx context.Context, dc *models.DeviceContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := r.contexts[dc.Hash]; ok {
		existing.UpdatedAt = now
		return nil
	}
	cp := *dc
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.contexts[dc.Hash] = &cp
	return nil
}

func (r *InMemorySessionRepo) UpsertSession(ctx context.Context, s *models.ViewerSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	key := sessionKey(s.VideoID, s.SessionID)
	if existing, ok := r.sessions[key]; ok {
		// Later play events win: refresh the context link and metadata.
		if s.DeviceContextHash != "" {
			existing.DeviceContextHash = s.DeviceContextHash
		}
		if s.UserID != "" {
			existing.UserID = s.UserID
		}
		if s.ClientID != "" {
			existing.ClientID = s.ClientID
		}
		if s.OrganizationID != "" {
			existing.OrganizationID = s.OrganizationID
		}
		if s.IP != "" {
			existing.IP = s.IP
		}
		if s.UserAgent != "" {
			existing.UserAgent = s.UserAgent
		}
		existing.UpdatedAt = now
		return nil
	}

	cp := *s
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.sessions[key] = &cp
	return nil
}

func (r *InMemorySessionRepo) ListSessionDetails(ctx context.Context, videoID string, start, end *time.Time) ([]*models.SessionDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.SessionDetail, 0)
	for _, s := range r.sessions {
		if s.VideoID != videoID {
			continue
		}
		if start != nil && s.UpdatedAt.Before(*start) {
			continue
		}
		if end != nil && s.CreatedAt.After(*end) {
			continue
		}
		detail := &models.SessionDetail{Session: *s}
		if s.DeviceContextHash != "" {
			if dc, ok := r.contexts[s.DeviceContextHash]; ok {
				cp := *dc
				detail.Context = &cp
			}
		}
		result = append(result, detail)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Session.SessionID < result[j].Session.SessionID
	})
	return result, nil
}

func (r *InMemorySessionRepo) GetSession(ctx context.Context, videoID, sessionID string) (*models.ViewerSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionKey(videoID, sessionID)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// =============================================
// InMemoryVideoRepo
// =============================================

// InMemoryVideoRepo provides in-memory storage for video records.
type InMemoryVideoRepo struct {
	mu     sync.RWMutex
	videos map[string]*models.Video
}

// NewInMemoryVideoRepo creates a new in-memory video repository.
func NewInMemoryVideoRepo() *InMemoryVideoRepo {
	return &InMemoryVideoRepo{videos: make(map[string]*models.Video)}
}

func (r *InMemoryVideoRepo) GetByID(ctx context.Context, id string) (*models.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.videos[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r *InMemoryVideoRepo) ListByOrganization(ctx context.Context, organizationID string) ([]*models.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Video, 0)
	for _, v := range r.videos {
		if v.OrganizationID == organizationID {
			cp := *v
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *InMemoryVideoRepo) Upsert(ctx context.Context, v *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *v
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.videos[v.ID] = &cp
	return nil
}
