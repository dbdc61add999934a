// Package monitor computes the proximity warning grade for an active
// session. The grade is recomputed from scratch on every evaluation; there
// is deliberately no hysteresis or smoothing, matching the specified
// behaviour (a grade can flap near a threshold boundary).
package monitor

import (
	"context"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/internal/config"
	"github.com/landloop/territory-engine/internal/logging"
	"github.com/landloop/territory-engine/model"
)

// CandidateSource supplies territories near a point. Satisfied by the
// spatial index.
type CandidateSource interface {
	CandidatesNear(p geo.Point, radiusM float64) []*model.Territory
}

// Monitor grades the current tracking position against foreign territories.
type Monitor struct {
	cfg   config.Proximity
	index CandidateSource
	log   logging.Logger
}

// New constructs a monitor. A nil logger is replaced with a noop logger.
func New(cfg config.Proximity, index CandidateSource, log logging.Logger) *Monitor {
	if log == nil {
		log = logging.Noop()
	}
	return &Monitor{cfg: cfg, index: index, log: log}
}

// Evaluate computes a fresh CollisionResult for the owner's current position
// and recorded path. Territories owned by the claimant are never foreign and
// are skipped entirely.
//
// Violation triggers, in check order: current position inside a foreign
// territory, any path point inside one, or any path edge crossing a foreign
// boundary. Otherwise the grade follows the nearest boundary distance from
// the current position alone.
func (m *Monitor) Evaluate(ctx context.Context, ownerID string, current geo.Point, path []geo.Point) model.CollisionResult {
	candidates := m.index.CandidatesNear(current, m.cfg.QueryRadiusM)

	nearest := -1.0
	var nearestTerr *model.Territory

	for _, t := range candidates {
		if t.OwnerID == ownerID || !t.Occupies() {
			continue
		}

		if geo.PointInPolygon(current, t.Ring) {
			return m.violation(ctx, model.CollisionPointInTerritory, t)
		}
		for _, p := range path {
			if geo.PointInPolygon(p, t.Ring) {
				return m.violation(ctx, model.CollisionPointInTerritory, t)
			}
		}
		if pathCrossesRing(path, t.Ring) {
			return m.violation(ctx, model.CollisionPathCrosses, t)
		}

		d := geo.DistanceToRing(current, t.Ring)
		if nearest < 0 || d < nearest {
			nearest = d
			nearestTerr = t
		}
	}

	res := model.CollisionResult{
		Kind:             model.CollisionNone,
		NearestDistanceM: nearest,
		Grade:            m.GradeForDistance(nearest),
	}
	res.GradeName = res.Grade.String()
	if nearestTerr != nil {
		res.TerritoryID = nearestTerr.ID
		res.TerritoryName = nearestTerr.Name
	}
	return res
}

// GradeForDistance maps a nearest-boundary distance to a warning grade. A
// negative distance means nothing was within the query radius.
func (m *Monitor) GradeForDistance(d float64) model.Grade {
	switch {
	case d < 0 || d >= m.cfg.CautionM:
		return model.GradeSafe
	case d >= m.cfg.WarningM:
		return model.GradeCaution
	case d >= m.cfg.DangerM:
		return model.GradeWarning
	case d > 0:
		return model.GradeDanger
	default:
		return model.GradeViolation
	}
}

func (m *Monitor) violation(ctx context.Context, kind model.CollisionKind, t *model.Territory) model.CollisionResult {
	m.log.Warn(ctx, "territory violation",
		logging.String("territory_id", t.ID),
		logging.String("kind", string(kind)),
	)
	return model.CollisionResult{
		Collision:        true,
		Kind:             kind,
		NearestDistanceM: 0,
		Grade:            model.GradeViolation,
		GradeName:        model.GradeViolation.String(),
		TerritoryID:      t.ID,
		TerritoryName:    t.Name,
	}
}

// pathCrossesRing reports whether any consecutive path segment intersects
// any edge of the ring.
func pathCrossesRing(path, ring []geo.Point) bool {
	if len(path) < 2 || len(ring) < 3 {
		return false
	}
	n := len(ring)
	for i := 0; i+1 < len(path); i++ {
		for j := 0; j < n; j++ {
			if geo.SegmentsIntersect(path[i], path[i+1], ring[j], ring[(j+1)%n]) {
				return true
			}
		}
	}
	return false
}
