package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hostreel/viewlens/internal/geo"
	"github.com/hostreel/viewlens/internal/models"
	"github.com/hostreel/viewlens/internal/storage"
	"github.com/hostreel/viewlens/internal/timerange"
	"github.com/hostreel/viewlens/internal/useragent"
)

type serviceFixture struct {
	svc      *Service
	events   *storage.InMemoryEventStore
	sessions *storage.InMemorySessionRepo
	videos   *storage.InMemoryVideoRepo
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	events := storage.NewInMemoryEventStore()
	sessions := storage.NewInMemorySessionRepo()
	videos := storage.NewInMemoryVideoRepo()
	svc := NewService(
		events, sessions, videos,
		useragent.NewHeuristicParser(),
		geo.NewCachingResolver(nil, 100, time.Minute, nil),
		zap.NewNop(), nil,
	)
	return &serviceFixture{svc: svc, events: events, sessions: sessions, videos: videos}
}

func (f *serviceFixture) addVideo(t *testing.T, id, org string, duration int) {
	t.Helper()
	if err := f.videos.Upsert(context.Background(), &models.Video{
		ID:             id,
		OrganizationID: org,
		Title:          "Video " + id,
		Duration:       duration,
	}); err != nil {
		t.Fatalf("Upsert video: %v", err)
	}
}

func (f *serviceFixture) addEvents(t *testing.T, videoID string, events ...*models.PlaybackEvent) {
	t.Helper()
	for i, e := range events {
		e.VideoID = videoID
		e.Timestamp = time.Now().UTC()
		if err := f.events.SaveEvent(context.Background(), e); err != nil {
			t.Fatalf("SaveEvent #%d: %v", i, err)
		}
	}
}

func TestSummaryUnknownVideo(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Summary(context.Background(), "nope", SummaryQuery{BucketSize: 10})
	if !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("Summary = %v, want ErrVideoNotFound", err)
	}
}

func TestSummaryComputesViewsAndCurve(t *testing.T) {
	f := newServiceFixture(t)
	f.addVideo(t, "vid-1", "org-1", 60)
	f.addEvents(t, "vid-1",
		evt("a", models.EventPlay, 0, 60),
		evt("a", models.EventEnded, 60, 60),
		evt("b", models.EventPlay, 0, 60),
		evt("b", models.EventPause, 30, 60),
	)

	sum, err := f.svc.Summary(context.Background(), "vid-1", SummaryQuery{BucketSize: 10})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Views != 2 {
		t.Errorf("Views = %d, want 2", sum.Views)
	}
	if sum.WatchTime != 90 {
		t.Errorf("WatchTime = %d, want 90", sum.WatchTime)
	}
	if sum.Duration != 60 || sum.BucketSize != 10 {
		t.Errorf("duration/bucket = %d/%d, want 60/10", sum.Duration, sum.BucketSize)
	}
	if len(sum.Retention) != 7 {
		t.Errorf("curve has %d points, want 7", len(sum.Retention))
	}
	if sum.RetentionPerSecond != nil {
		t.Error("per-second curve must be omitted unless requested")
	}

	sum, err = f.svc.Summary(context.Background(), "vid-1", SummaryQuery{BucketSize: 10, PerSecond: true})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(sum.RetentionPerSecond) != 61 {
		t.Errorf("per-second curve has %d points, want 61", len(sum.RetentionPerSecond))
	}
}

func TestSummaryZeroEventsIsNotAnError(t *testing.T) {
	f := newServiceFixture(t)
	f.addVideo(t, "vid-1", "org-1", 60)

	sum, err := f.svc.Summary(context.Background(), "vid-1", SummaryQuery{BucketSize: 10})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Views != 0 || sum.WatchTime != 0 {
		t.Errorf("expected zero stats, got %+v", sum)
	}
	if len(sum.Retention) != 0 {
		t.Errorf("expected empty curve, got %d points", len(sum.Retention))
	}
}

func TestInsightsIncludesDropOffs(t *testing.T) {
	f := newServiceFixture(t)
	f.addVideo(t, "vid-1", "org-1", 30)
	f.addEvents(t, "vid-1",
		evt("a", models.EventPlay, 0, 30),
		evt("a", models.EventEnded, 30, 30),
		evt("b", models.EventPlay, 0, 30),
		evt("b", models.EventPause, 5, 30),
		evt("c", models.EventPlay, 0, 30),
		evt("c", models.EventPause, 5, 30),
	)

	ins, err := f.svc.Insights(context.Background(), "vid-1", SummaryQuery{BucketSize: 10, TopDropOffs: 5})
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if ins.UniqueViews != 3 {
		t.Errorf("UniqueViews = %d, want 3", ins.UniqueViews)
	}
	if len(ins.DropOffs) == 0 {
		t.Fatal("expected at least one drop-off")
	}
	// Two of three sessions stop before 10s.
	if ins.DropOffs[0].Time != 10 {
		t.Errorf("sharpest drop at t=%d, want 10", ins.DropOffs[0].Time)
	}
}

func TestViewsEnforcesOwnership(t *testing.T) {
	f := newServiceFixture(t)
	f.addVideo(t, "vid-1", "org-1", 60)

	rc := models.RequestContext{OrganizationID: "org-2"}
	_, err := f.svc.Views(context.Background(), rc, "vid-1", timerange.Range{})
	if !errors.Is(err, ErrVideoNotOwned) {
		t.Fatalf("Views = %v, want ErrVideoNotOwned", err)
	}

	_, err = f.svc.Views(context.Background(), rc, "ghost", timerange.Range{})
	if !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("Views = %v, want ErrVideoNotFound", err)
	}

	rc.OrganizationID = "org-1"
	if _, err := f.svc.Views(context.Background(), rc, "vid-1", timerange.Range{}); err != nil {
		t.Fatalf("owned video should succeed: %v", err)
	}
}

func TestRetentionSourceTagging(t *testing.T) {
	f := newServiceFixture(t)
	f.addVideo(t, "vid-measured", "org-1", 60)
	f.addVideo(t, "vid-silent", "org-1", 120)
	f.addEvents(t, "vid-measured",
		evt("a", models.EventPlay, 0, 60),
		evt("a", models.EventTimeUpdate, 45, 60),
	)

	rc := models.RequestContext{OrganizationID: "org-1"}

	measured, err := f.svc.Retention(context.Background(), rc, "vid-measured", timerange.Range{}, 10)
	if err != nil {
		t.Fatalf("Retention: %v", err)
	}
	if measured.Source != models.RetentionSourceMeasured {
		t.Errorf("source = %q, want measured", measured.Source)
	}
	if len(measured.Points) != 7 {
		t.Errorf("measured curve has %d points, want 7", len(measured.Points))
	}

	silent, err := f.svc.Retention(context.Background(), rc, "vid-silent", timerange.Range{}, 10)
	if err != nil {
		t.Fatalf("Retention: %v", err)
	}
	if silent.Source != models.RetentionSourceDefault {
		t.Errorf("source = %q, want default", silent.Source)
	}
	// Default curves are per-second over the full duration.
	if len(silent.Points) != 121 {
		t.Errorf("default curve has %d points, want 121", len(silent.Points))
	}
}

func TestViewerAnalyticsEnforcesOwnership(t *testing.T) {
	f := newServiceFixture(t)
	f.addVideo(t, "vid-1", "org-1", 60)

	_, err := f.svc.ViewerAnalytics(context.Background(),
		models.RequestContext{OrganizationID: "org-2"}, "vid-1", timerange.Range{})
	if !errors.Is(err, ErrVideoNotOwned) {
		t.Fatalf("ViewerAnalytics = %v, want ErrVideoNotOwned", err)
	}
}

func TestOrganizationRetentionMixedSources(t *testing.T) {
	f := newServiceFixture(t)
	f.addVideo(t, "vid-a", "org-1", 60)
	f.addVideo(t, "vid-b", "org-1", 60)
	f.addVideo(t, "vid-other", "org-2", 60)
	f.addEvents(t, "vid-a",
		evt("s", models.EventPlay, 0, 60),
		evt("s", models.EventTimeUpdate, 50, 60),
	)

	curves, err := f.svc.OrganizationRetention(context.Background(),
		models.RequestContext{OrganizationID: "org-1"}, 10)
	if err != nil {
		t.Fatalf("OrganizationRetention: %v", err)
	}
	if len(curves) != 2 {
		t.Fatalf("expected curves for 2 owned videos, got %d", len(curves))
	}

	bySource := make(map[string]string)
	for _, c := range curves {
		bySource[c.VideoID] = c.Source
		if len(c.Points) == 0 {
			t.Errorf("video %s has an empty curve", c.VideoID)
		}
	}
	if bySource["vid-a"] != models.RetentionSourceMeasured {
		t.Errorf("vid-a source = %q, want measured", bySource["vid-a"])
	}
	if bySource["vid-b"] != models.RetentionSourceDefault {
		t.Errorf("vid-b source = %q, want default", bySource["vid-b"])
	}
}
