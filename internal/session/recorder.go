package session

import (
	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/internal/config"
	"github.com/landloop/territory-engine/model"
)

// DropReason classifies why an ingested fix was not appended. Dropped fixes
// are non-fatal: they are never stored and never abort the session.
type DropReason string

const (
	DropNone        DropReason = ""
	DropLowAccuracy DropReason = "low_accuracy"
	DropTooFrequent DropReason = "too_frequent"
	DropSpeed       DropReason = "speed"
)

// AppendResult reports what happened to one fix.
type AppendResult struct {
	Accepted bool
	Drop     DropReason
	// SoftSpeedExceeded is raised when the accepted fix implies a speed
	// over the soft cap. It drives a UI warning; it does not terminate
	// tracking on its own.
	SoftSpeedExceeded bool
}

// Recorder accumulates one session's fix stream into an ordered path,
// enforcing the ingestion policy at append time. Violating fixes are
// rejected before appending, never stored and retroactively removed, so the
// stored path always satisfies the policy. Not safe for concurrent use; the
// owning session serializes access.
type Recorder struct {
	cfg     config.Ingest
	fixes   []model.Fix
	totalM  float64
	maxKmh  float64
	dropped map[DropReason]int
}

// NewRecorder constructs an empty recorder with the given ingestion policy.
func NewRecorder(cfg config.Ingest) *Recorder {
	return &Recorder{cfg: cfg, dropped: make(map[DropReason]int)}
}

// Append applies the ingestion gates in order (accuracy, interval, speed)
// and appends the fix when all pass.
func (r *Recorder) Append(f model.Fix) AppendResult {
	if f.AccuracyM > r.cfg.MaxAccuracyM {
		r.dropped[DropLowAccuracy]++
		return AppendResult{Drop: DropLowAccuracy}
	}

	if last, ok := r.last(); ok {
		elapsed := f.Time.Sub(last.Time)
		if elapsed < r.cfg.MinInterval {
			r.dropped[DropTooFrequent]++
			return AppendResult{Drop: DropTooFrequent}
		}

		kmh := speedKmh(last, f)
		if kmh > r.cfg.HardSpeedKmh {
			r.dropped[DropSpeed]++
			return AppendResult{Drop: DropSpeed, SoftSpeedExceeded: true}
		}

		r.totalM += geo.Distance(last.Point(), f.Point())
		if kmh > r.maxKmh {
			r.maxKmh = kmh
		}
		r.fixes = append(r.fixes, f)
		return AppendResult{Accepted: true, SoftSpeedExceeded: kmh > r.cfg.SoftSpeedKmh}
	}

	r.fixes = append(r.fixes, f)
	return AppendResult{Accepted: true}
}

// PointCount returns the number of accepted fixes.
func (r *Recorder) PointCount() int { return len(r.fixes) }

// CumulativeDistanceM returns the summed segment length of the path.
func (r *Recorder) CumulativeDistanceM() float64 { return r.totalM }

// MaxSegmentSpeedKmh returns the fastest instantaneous speed observed across
// accepted consecutive fixes. The validator re-checks this as defence in
// depth beyond the per-fix gate.
func (r *Recorder) MaxSegmentSpeedKmh() float64 { return r.maxKmh }

// DroppedCount returns how many fixes were dropped for the given reason.
func (r *Recorder) DroppedCount(reason DropReason) int { return r.dropped[reason] }

// Points returns a copy of the recorded path as a ring-in-progress. The
// first point doubles as the closing vertex once the path closes; nothing is
// truncated.
func (r *Recorder) Points() []geo.Point {
	out := make([]geo.Point, len(r.fixes))
	for i, f := range r.fixes {
		out[i] = f.Point()
	}
	return out
}

// CurrentPosition returns the most recently accepted fix position.
func (r *Recorder) CurrentPosition() (geo.Point, bool) {
	if f, ok := r.last(); ok {
		return f.Point(), true
	}
	return geo.Point{}, false
}

// IsClosed reports whether the path is eligible for polygon validation: at
// least the configured minimum point count, with first and last point within
// the closure distance.
func (r *Recorder) IsClosed(cfg config.Closure) bool {
	if len(r.fixes) < cfg.MinPoints {
		return false
	}
	gap := geo.Distance(r.fixes[0].Point(), r.fixes[len(r.fixes)-1].Point())
	return gap <= cfg.MaxGapM
}

func (r *Recorder) last() (model.Fix, bool) {
	if len(r.fixes) == 0 {
		return model.Fix{}, false
	}
	return r.fixes[len(r.fixes)-1], true
}

func speedKmh(from, to model.Fix) float64 {
	elapsed := to.Time.Sub(from.Time).Seconds()
	if elapsed <= 0 {
		// Out-of-order or duplicate timestamps imply infinite speed;
		// the hard gate rejects them.
		return 1e9
	}
	return geo.Distance(from.Point(), to.Point()) / elapsed * 3.6
}
