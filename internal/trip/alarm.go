package trip

import (
	"math"
	"time"

	"github.com/mradl/mradl/internal/geo"
	"github.com/mradl/mradl/internal/report"
)

// Evaluate computes the alarm for a session. The rider is in danger when
// the last update is older than the threshold and a zone lies within the
// planar danger radius. A session that never reported is not stale, and
// an ended one never alarms.
func Evaluate(now time.Time, s Session, zones []report.Report, p AlarmParams) AlarmState {
	state := AlarmState{EvaluatedAt: now}
	if s.LastUpdate.IsZero() || s.Status == StatusEnded {
		return state
	}

	state.StaleFor = now.Sub(s.LastUpdate)

	best := math.Inf(1)
	for _, z := range zones {
		zc := z.Coordinate()
		if !geo.WithinPlanar(zc, s.Location, p.DangerRadius) {
			continue
		}
		if d := geo.PlanarDistance(zc, s.Location); d < best {
			best = d
			state.NearestZoneID = z.ID
		}
	}

	state.IsDangerAlert = state.StaleFor > p.StaleThreshold && state.NearestZoneID != ""
	return state
}
