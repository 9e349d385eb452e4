package analytics

import (
	"math"

	"github.com/hostreel/viewlens/internal/models"
)

// ViewStats computes distinct-session view counts and total watch time
// from an event stream. Watch time is the sum over sessions of the
// furthest playhead position reached, not a sum of timeupdate values,
// which would double-count every tick.
func ViewStats(events []*models.PlaybackEvent) models.ViewStats {
	stats := collectSessionStats(events)

	var views int64
	var watch int64
	for _, st := range stats {
		if !st.started {
			continue
		}
		views++
		watch += int64(st.maxTime)
	}

	var avg int64
	if views > 0 {
		avg = int64(math.Round(float64(watch) / float64(views)))
	}

	return models.ViewStats{
		UniqueViews:      views,
		WatchTimeSeconds: watch,
		AverageWatchTime: avg,
	}
}
