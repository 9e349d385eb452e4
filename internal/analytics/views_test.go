package analytics

import (
	"testing"

	"github.com/hostreel/viewlens/internal/models"
)

func TestViewStatsNoDoubleCounting(t *testing.T) {
	// A storm of timeupdate ticks for one session must not inflate
	// watch time beyond the furthest position reached.
	events := []*models.PlaybackEvent{
		evt("a", models.EventPlay, 0, 300),
		evt("a", models.EventTimeUpdate, 10, 300),
		evt("a", models.EventTimeUpdate, 20, 300),
		evt("a", models.EventTimeUpdate, 30, 300),
		evt("a", models.EventTimeUpdate, 30, 300),
		evt("a", models.EventPause, 30, 300),
	}

	stats := ViewStats(events)
	if stats.UniqueViews != 1 {
		t.Errorf("UniqueViews = %d, want 1", stats.UniqueViews)
	}
	if stats.WatchTimeSeconds != 30 {
		t.Errorf("WatchTimeSeconds = %d, want 30", stats.WatchTimeSeconds)
	}
	if stats.AverageWatchTime != 30 {
		t.Errorf("AverageWatchTime = %d, want 30", stats.AverageWatchTime)
	}
}

func TestViewStatsMultipleSessions(t *testing.T) {
	events := []*models.PlaybackEvent{
		evt("a", models.EventPlay, 0, 100),
		evt("a", models.EventTimeUpdate, 90, 100),
		evt("b", models.EventPlay, 0, 100),
		evt("b", models.EventTimeUpdate, 20, 100),
		// Session c never played; it must not count as a view.
		evt("c", models.EventTimeUpdate, 50, 100),
	}

	stats := ViewStats(events)
	if stats.UniqueViews != 2 {
		t.Errorf("UniqueViews = %d, want 2", stats.UniqueViews)
	}
	if stats.WatchTimeSeconds != 110 {
		t.Errorf("WatchTimeSeconds = %d, want 110", stats.WatchTimeSeconds)
	}
	if stats.AverageWatchTime != 55 {
		t.Errorf("AverageWatchTime = %d, want 55", stats.AverageWatchTime)
	}
}

func TestViewStatsEmpty(t *testing.T) {
	stats := ViewStats(nil)
	if stats.UniqueViews != 0 || stats.WatchTimeSeconds != 0 || stats.AverageWatchTime != 0 {
		t.Errorf("empty stream should yield zeroes, got %+v", stats)
	}
}

func TestViewStatsEndedLiftsWatchTime(t *testing.T) {
	// ended with a lagging playhead still credits the full duration.
	events := []*models.PlaybackEvent{
		evt("a", models.EventPlay, 0, 60),
		evt("a", models.EventEnded, 58, 60),
	}

	stats := ViewStats(events)
	if stats.WatchTimeSeconds != 60 {
		t.Errorf("WatchTimeSeconds = %d, want 60", stats.WatchTimeSeconds)
	}
}
