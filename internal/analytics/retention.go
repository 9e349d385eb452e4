package analytics

import (
	"math"

	"github.com/hostreel/viewlens/internal/models"
)

// Bucket size and drop-off clamps shared by handlers and services.
const (
	MinBucketSize  = 1
	MaxBucketSize  = 60
	MinTopDropOffs = 1
	MaxTopDropOffs = 20
)

// ClampBucketSize forces a bucket size into [1,60], substituting def
// for non-positive input.
func ClampBucketSize(n, def int) int {
	if n <= 0 {
		n = def
	}
	if n < MinBucketSize {
		return MinBucketSize
	}
	if n > MaxBucketSize {
		return MaxBucketSize
	}
	return n
}

// ClampTopDropOffs forces a drop-off count into [1,20], substituting
// def for non-positive input.
func ClampTopDropOffs(n, def int) int {
	if n <= 0 {
		n = def
	}
	if n < MinTopDropOffs {
		return MinTopDropOffs
	}
	if n > MaxTopDropOffs {
		return MaxTopDropOffs
	}
	return n
}

// sessionStat summarizes one viewer session's event stream.
type sessionStat struct {
	// started is true once the session has a play event; only started
	// sessions count toward retention denominators and unique views.
	started bool
	// maxTime is the furthest playhead position observed, across all
	// event types. Using the per-session maximum avoids double
	// counting repeated timeupdate ticks.
	maxTime int
}

// collectSessionStats folds an event stream into per-session stats.
// Events without any viewer identity are skipped; they cannot be
// attributed to a session.
func collectSessionStats(events []*models.PlaybackEvent) map[string]*sessionStat {
	stats := make(map[string]*sessionStat)
	for _, e := range events {
		key := e.SessionKey()
		if key == "" {
			continue
		}
		st, ok := stats[key]
		if !ok {
			st = &sessionStat{}
			stats[key] = st
		}
		if e.EventType == models.EventPlay {
			st.started = true
		}
		t := e.CurrentTime
		// An ended event means the viewer reached the end even when
		// the reported playhead lags the duration by a tick.
		if e.EventType == models.EventEnded && e.Duration > t {
			t = e.Duration
		}
		if t > st.maxTime {
			st.maxTime = t
		}
	}
	return stats
}

// RetentionCurve computes the measured retention curve for a video:
// at each sampled offset, the percentage of started sessions whose
// playback reached that offset. Samples run from 0 through duration
// inclusive in bucketSize steps. Returns an empty curve when the
// duration is zero or no session ever started; never NaN.
func RetentionCurve(events []*models.PlaybackEvent, duration, bucketSize int) []models.RetentionPoint {
	if duration <= 0 || bucketSize <= 0 {
		return []models.RetentionPoint{}
	}

	stats := collectSessionStats(events)

	var total int
	for _, st := range stats {
		if st.started {
			total++
		}
	}
	if total == 0 {
		return []models.RetentionPoint{}
	}

	points := make([]models.RetentionPoint, 0, duration/bucketSize+1)
	for t := 0; t <= duration; t += bucketSize {
		var active int
		for _, st := range stats {
			if st.started && st.maxTime >= t {
				active++
			}
		}
		retention := float64(active) / float64(total) * 100
		points = append(points, models.RetentionPoint{
			Time:      t,
			Retention: clampPercent(retention),
		})
	}
	return points
}

// DefaultRetentionCurve emits the synthetic per-second placeholder
// curve for videos with no collected analytics:
// retention(s) = 85 * e^(-1.2 * s/duration), clamped to [0,100].
// This is a presentation fallback, not a measurement, and callers must
// tag it with models.RetentionSourceDefault.
func DefaultRetentionCurve(duration int) []models.RetentionPoint {
	if duration <= 0 {
		return []models.RetentionPoint{}
	}

	points := make([]models.RetentionPoint, 0, duration+1)
	for s := 0; s <= duration; s++ {
		r := 85 * math.Exp(-1.2*float64(s)/float64(duration))
		points = append(points, models.RetentionPoint{
			Time:      s,
			Retention: clampPercent(r),
		})
	}
	return points
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
