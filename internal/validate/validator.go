// Package validate runs the claim acceptance pipeline on a finished path.
package validate

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/internal/config"
	"github.com/landloop/territory-engine/internal/logging"
	"github.com/landloop/territory-engine/model"
)

const tracerName = "github.com/landloop/territory-engine/internal/validate"

// Path is the read-only view of a recorded path the validator consumes.
// Satisfied by the session recorder.
type Path interface {
	PointCount() int
	Points() []geo.Point
	MaxSegmentSpeedKmh() float64
	IsClosed(config.Closure) bool
}

// CandidateSource supplies territories overlapping a bounding box.
// Satisfied by the spatial index.
type CandidateSource interface {
	CandidatesIntersectingBBox(b geo.BBox) []*model.Territory
}

// Validator decides whether a closed path becomes an accepted territory
// draft. Validation is synchronous and idempotent: the same immutable path
// always yields the same verdict.
type Validator struct {
	closure config.Closure
	area    config.Area
	ingest  config.Ingest
	index   CandidateSource
	log     logging.Logger
	tracer  trace.Tracer
}

// New constructs a validator. A nil logger is replaced with a noop logger.
func New(cfg config.Config, index CandidateSource, log logging.Logger) *Validator {
	if log == nil {
		log = logging.Noop()
	}
	return &Validator{
		closure: cfg.Closure,
		area:    cfg.Area,
		ingest:  cfg.Ingest,
		index:   index,
		log:     log,
		tracer:  otel.Tracer(tracerName),
	}
}

// Validate runs the pipeline, short-circuiting on the first failure. Each
// failure carries a distinct reason code; an overlap failure also carries
// the conflicting territory's id.
func (v *Validator) Validate(ctx context.Context, ownerID string, path Path) model.ClaimVerdict {
	ctx, span := v.tracer.Start(ctx, "claim.validate",
		trace.WithAttributes(attribute.Int("path.points", path.PointCount())),
	)
	defer span.End()

	verdict := v.run(ctx, ownerID, path)
	span.SetAttributes(
		attribute.Bool("claim.accepted", verdict.Accepted),
		attribute.String("claim.reason", string(verdict.Reason)),
	)
	return verdict
}

func (v *Validator) run(ctx context.Context, ownerID string, path Path) model.ClaimVerdict {
	// 1. Closure: enough points, ends where it started.
	if !path.IsClosed(v.closure) {
		return reject(model.ReasonNotClosed, "")
	}

	ring := path.Points()

	// 2. The ring must be simple; the walked loop may not cross itself.
	if !geo.IsSimple(ring) {
		return reject(model.ReasonSelfIntersecting, "")
	}

	// 3. Area bounds.
	area := geo.Area(ring)
	if area < v.area.MinM2 {
		return reject(model.ReasonAreaTooSmall, "")
	}
	if area > v.area.MaxM2 {
		return reject(model.ReasonAreaTooLarge, "")
	}

	// 4. Speed re-validation across the whole path, beyond the per-fix
	// ingestion gate.
	if path.MaxSegmentSpeedKmh() > v.ingest.HardSpeedKmh {
		return reject(model.ReasonSpeedViolation, "")
	}

	// 5. Collision against the index. The claimant's own territories do
	// not block their new claim.
	for _, t := range v.index.CandidatesIntersectingBBox(geo.RingBBox(ring)) {
		if t.OwnerID == ownerID || !t.Occupies() {
			continue
		}
		if geo.PolygonsIntersect(ring, t.Ring) {
			v.log.Info(ctx, "claim overlaps existing territory",
				logging.String("owner_id", ownerID),
				logging.String("conflict_id", t.ID),
			)
			return reject(model.ReasonOverlap, t.ID)
		}
	}

	return model.ClaimVerdict{
		Accepted: true,
		Reason:   model.ReasonNone,
		Draft: &model.TerritoryDraft{
			OwnerID:          ownerID,
			Ring:             ring,
			AreaSquareMeters: area,
		},
	}
}

func reject(reason model.RejectReason, conflictID string) model.ClaimVerdict {
	return model.ClaimVerdict{Reason: reason, ConflictTerritoryID: conflictID}
}
