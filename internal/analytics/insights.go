package analytics

import (
	"sort"

	"github.com/hostreel/viewlens/internal/models"
)

// TopDropOffs finds the n sharpest retention decreases between
// consecutive curve points. Only strictly negative deltas qualify: a
// flat or rising transition is never a drop, so fewer than n results
// may be returned. Ordering is most negative delta first, with ties
// broken by earlier time.
func TopDropOffs(curve []models.RetentionPoint, n int) []models.DropOff {
	if n <= 0 || len(curve) < 2 {
		return []models.DropOff{}
	}

	drops := make([]models.DropOff, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		delta := curve[i].Retention - curve[i-1].Retention
		if delta >= 0 {
			continue
		}
		drops = append(drops, models.DropOff{
			Time:      curve[i].Time,
			Retention: curve[i].Retention,
			Delta:     delta,
		})
	}

	sort.SliceStable(drops, func(i, j int) bool {
		if drops[i].Delta != drops[j].Delta {
			return drops[i].Delta < drops[j].Delta
		}
		return drops[i].Time < drops[j].Time
	})

	if len(drops) > n {
		drops = drops[:n]
	}
	return drops
}
