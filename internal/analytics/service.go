package analytics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hostreel/viewlens/internal/geo"
	"github.com/hostreel/viewlens/internal/metrics"
	"github.com/hostreel/viewlens/internal/models"
	"github.com/hostreel/viewlens/internal/storage"
	"github.com/hostreel/viewlens/internal/timerange"
	"github.com/hostreel/viewlens/internal/useragent"
)

// Not-found taxonomy. Both map to 404 at the HTTP boundary; the
// distinct messages are kept for operator debuggability.
var (
	ErrVideoNotFound = errors.New("video not found")
	ErrVideoNotOwned = errors.New("video not owned by organization")
)

// SummaryQuery carries the parsed query parameters of the summary and
// insights endpoints.
type SummaryQuery struct {
	Range       timerange.Range
	BucketSize  int
	PerSecond   bool
	TopDropOffs int
}

// Service computes all read-side analytics. It is stateless across
// calls: every operation is a read-aggregate-respond cycle.
type Service struct {
	events   storage.EventStore
	sessions storage.SessionRepo
	videos   storage.VideoRepo
	ua       useragent.Parser
	geo      geo.Resolver
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewService constructs the analytics service.
func NewService(
	events storage.EventStore,
	sessions storage.SessionRepo,
	videos storage.VideoRepo,
	ua useragent.Parser,
	resolver geo.Resolver,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		events:   events,
		sessions: sessions,
		videos:   videos,
		ua:       ua,
		geo:      resolver,
		logger:   logger,
		metrics:  m,
	}
}

// getVideo loads a video or translates absence into ErrVideoNotFound.
func (s *Service) getVideo(ctx context.Context, videoID string) (*models.Video, error) {
	v, err := s.videos.GetByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVideoNotFound
	}
	return v, nil
}

// getOwnedVideo additionally checks organization ownership.
func (s *Service) getOwnedVideo(ctx context.Context, rc models.RequestContext, videoID string) (*models.Video, error) {
	v, err := s.getVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if v.OrganizationID != rc.OrganizationID {
		return nil, ErrVideoNotOwned
	}
	return v, nil
}

func (s *Service) listEvents(ctx context.Context, videoID string, r timerange.Range) ([]*models.PlaybackEvent, error) {
	return s.events.ListEvents(ctx, storage.EventFilter{
		VideoID: videoID,
		Start:   r.Start,
		End:     r.End,
	})
}

// Summary computes views, watch time and the bucketed retention curve
// for one video. Zero events yield zero-valued fields and an empty
// curve, never an error.
func (s *Service) Summary(ctx context.Context, videoID string, q SummaryQuery) (*models.VideoSummary, error) {
	start := time.Now()
	out, err := s.summary(ctx, videoID, q)
	if s.metrics != nil {
		s.metrics.RecordAggregation("summary", time.Since(start), err)
	}
	return out, err
}

func (s *Service) summary(ctx context.Context, videoID string, q SummaryQuery) (*models.VideoSummary, error) {
	video, err := s.getVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	events, err := s.listEvents(ctx, videoID, q.Range)
	if err != nil {
		return nil, err
	}

	stats := ViewStats(events)
	summary := &models.VideoSummary{
		Views:      stats.UniqueViews,
		WatchTime:  stats.WatchTimeSeconds,
		Duration:   video.Duration,
		Retention:  RetentionCurve(events, video.Duration, q.BucketSize),
		BucketSize: q.BucketSize,
	}

	// Per-second resolution is strictly more expensive and only
	// computed when asked for.
	if q.PerSecond {
		summary.RetentionPerSecond = RetentionCurve(events, video.Duration, 1)
	}

	return summary, nil
}

// Insights computes the drop-off analysis for one video.
func (s *Service) Insights(ctx context.Context, videoID string, q SummaryQuery) (*models.VideoInsights, error) {
	start := time.Now()
	out, err := s.insights(ctx, videoID, q)
	if s.metrics != nil {
		s.metrics.RecordAggregation("insights", time.Since(start), err)
	}
	return out, err
}

func (s *Service) insights(ctx context.Context, videoID string, q SummaryQuery) (*models.VideoInsights, error) {
	video, err := s.getVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	events, err := s.listEvents(ctx, videoID, q.Range)
	if err != nil {
		return nil, err
	}

	stats := ViewStats(events)
	curve := RetentionCurve(events, video.Duration, q.BucketSize)

	return &models.VideoInsights{
		UniqueViews:      stats.UniqueViews,
		WatchTimeSeconds: stats.WatchTimeSeconds,
		Duration:         video.Duration,
		BucketSize:       q.BucketSize,
		Retention:        curve,
		DropOffs:         TopDropOffs(curve, q.TopDropOffs),
	}, nil
}

// Views computes unique views and watch time for an owned video.
func (s *Service) Views(ctx context.Context, rc models.RequestContext, videoID string, r timerange.Range) (*models.ViewStats, error) {
	start := time.Now()
	out, err := s.views(ctx, rc, videoID, r)
	if s.metrics != nil {
		s.metrics.RecordAggregation("views", time.Since(start), err)
	}
	return out, err
}

func (s *Service) views(ctx context.Context, rc models.RequestContext, videoID string, r timerange.Range) (*models.ViewStats, error) {
	if _, err := s.getOwnedVideo(ctx, rc, videoID); err != nil {
		return nil, err
	}

	events, err := s.listEvents(ctx, videoID, r)
	if err != nil {
		return nil, err
	}

	stats := ViewStats(events)
	return &stats, nil
}

// Retention computes the measured retention curve for an owned video,
// falling back to the synthetic default curve when no analytics exist.
func (s *Service) Retention(ctx context.Context, rc models.RequestContext, videoID string, r timerange.Range, bucketSize int) (*models.VideoRetention, error) {
	start := time.Now()
	out, err := s.retention(ctx, rc, videoID, r, bucketSize)
	if s.metrics != nil {
		s.metrics.RecordAggregation("retention", time.Since(start), err)
	}
	return out, err
}

func (s *Service) retention(ctx context.Context, rc models.RequestContext, videoID string, r timerange.Range, bucketSize int) (*models.VideoRetention, error) {
	video, err := s.getOwnedVideo(ctx, rc, videoID)
	if err != nil {
		return nil, err
	}
	return s.videoRetention(ctx, video, r, bucketSize), nil
}

// videoRetention builds the per-video curve, deciding between measured
// and default sources. Store errors degrade to the default curve; the
// curve endpoints never fail on aggregation problems.
func (s *Service) videoRetention(ctx context.Context, video *models.Video, r timerange.Range, bucketSize int) *models.VideoRetention {
	out := &models.VideoRetention{
		VideoID:  video.ID,
		Title:    video.Title,
		Duration: video.Duration,
	}

	has, err := s.events.HasEvents(ctx, video.ID)
	if err != nil {
		s.logger.Warn("event existence check failed, using default curve",
			zap.String("video_id", video.ID), zap.Error(err))
		has = false
	}

	if has {
		events, err := s.listEvents(ctx, video.ID, r)
		if err == nil {
			curve := RetentionCurve(events, video.Duration, bucketSize)
			if len(curve) > 0 {
				out.Source = models.RetentionSourceMeasured
				out.Points = curve
				return out
			}
		} else {
			s.logger.Warn("event scan failed, using default curve",
				zap.String("video_id", video.ID), zap.Error(err))
		}
	}

	out.Source = models.RetentionSourceDefault
	out.Points = DefaultRetentionCurve(video.Duration)
	return out
}

// ViewerAnalytics computes the device/browser/OS/location/connection
// breakdowns for an owned video.
func (s *Service) ViewerAnalytics(ctx context.Context, rc models.RequestContext, videoID string, r timerange.Range) (*models.ViewerAnalytics, error) {
	start := time.Now()
	out, err := s.viewerAnalytics(ctx, rc, videoID, r)
	if s.metrics != nil {
		s.metrics.RecordAggregation("viewer_analytics", time.Since(start), err)
	}
	return out, err
}

func (s *Service) viewerAnalytics(ctx context.Context, rc models.RequestContext, videoID string, r timerange.Range) (*models.ViewerAnalytics, error) {
	if _, err := s.getOwnedVideo(ctx, rc, videoID); err != nil {
		return nil, err
	}

	details, err := s.sessions.ListSessionDetails(ctx, videoID, r.Start, r.End)
	if err != nil {
		return nil, err
	}

	return BuildViewerAnalytics(details, s.ua, s.geo), nil
}

// OrganizationRetention computes retention curves for every video in
// the caller's organization. The per-video aggregations are
// independent reads and run concurrently; a failing video substitutes
// its default curve instead of failing the whole response.
func (s *Service) OrganizationRetention(ctx context.Context, rc models.RequestContext, bucketSize int) ([]*models.VideoRetention, error) {
	start := time.Now()
	out, err := s.organizationRetention(ctx, rc, bucketSize)
	if s.metrics != nil {
		s.metrics.RecordAggregation("organization_retention", time.Since(start), err)
	}
	return out, err
}

func (s *Service) organizationRetention(ctx context.Context, rc models.RequestContext, bucketSize int) ([]*models.VideoRetention, error) {
	videos, err := s.videos.ListByOrganization(ctx, rc.OrganizationID)
	if err != nil {
		return nil, err
	}

	results := make([]*models.VideoRetention, len(videos))
	var wg sync.WaitGroup
	for i, video := range videos {
		wg.Add(1)
		go func(i int, video *models.Video) {
			defer wg.Done()
			results[i] = s.videoRetention(ctx, video, timerange.Range{}, bucketSize)
		}(i, video)
	}
	wg.Wait()

	return results, nil
}
