package validate

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/internal/config"
	"github.com/landloop/territory-engine/internal/index"
	"github.com/landloop/territory-engine/internal/session"
	"github.com/landloop/territory-engine/model"
)

const (
	perLatDeg = 111320.0
	perLonDeg = 111320.0 * 0.6157 // cos(52°)
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Closure.MinPoints = 11
	cfg.Area.MinM2 = 1000 // the test square encloses ~1,600 m²
	return cfg
}

// walkSquare records an 11-point walk around a 40 m square starting at the
// south-west corner: ~160 m perimeter, ~1,600 m² enclosed, one fix every
// 10 s at walking speed.
func walkSquare(t *testing.T, cfg config.Config, lat, lon float64) *session.Recorder {
	t.Helper()
	rec := session.NewRecorder(cfg.Ingest)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	const side = 40.0
	perimeter := 4 * side
	for i := 0; i < 11; i++ {
		d := perimeter * float64(i) / 11.0
		x, y := perimeterOffset(d, side)
		res := rec.Append(model.Fix{
			Lat:       lat + y/perLatDeg,
			Lon:       lon + x/perLonDeg,
			AccuracyM: 10,
			Time:      start.Add(time.Duration(i*10) * time.Second),
		})
		if !res.Accepted {
			t.Fatalf("fix %d not accepted: %+v", i, res)
		}
	}
	return rec
}

// perimeterOffset maps a distance along the square's perimeter to planar
// metres from the south-west corner.
func perimeterOffset(d, side float64) (x, y float64) {
	d = math.Mod(d, 4*side)
	switch {
	case d < side:
		return d, 0
	case d < 2*side:
		return side, d - side
	case d < 3*side:
		return side - (d - 2*side), side
	default:
		return 0, side - (d - 3*side)
	}
}

func emptyIndex() *index.Grid { return index.New(250) }

func TestValidateAcceptsCleanSquare(t *testing.T) {
	cfg := testConfig()
	rec := walkSquare(t, cfg, 52.0, 13.0)
	v := New(cfg, emptyIndex(), nil)

	verdict := v.Validate(context.Background(), "alice", rec)
	if !verdict.Accepted || verdict.Reason != model.ReasonNone {
		t.Fatalf("verdict = %+v, want accept", verdict)
	}
	if verdict.Draft == nil {
		t.Fatalf("accepted verdict must carry a draft")
	}
	if verdict.Draft.OwnerID != "alice" {
		t.Errorf("draft owner = %q", verdict.Draft.OwnerID)
	}
	area := verdict.Draft.AreaSquareMeters
	if math.Abs(area-1600) > 1600*0.1 {
		t.Errorf("draft area = %f m², want ~1600", area)
	}
}

func TestValidateIdempotent(t *testing.T) {
	cfg := testConfig()
	rec := walkSquare(t, cfg, 52.0, 13.0)
	v := New(cfg, emptyIndex(), nil)

	first := v.Validate(context.Background(), "alice", rec)
	second := v.Validate(context.Background(), "alice", rec)
	if first.Accepted != second.Accepted || first.Reason != second.Reason {
		t.Fatalf("verdicts differ: %+v vs %+v", first, second)
	}
}

func TestValidateNotClosed(t *testing.T) {
	cfg := testConfig()
	rec := session.NewRecorder(cfg.Ingest)
	start := time.Now()
	for i := 0; i < 5; i++ { // too few points, and far from start
		rec.Append(model.Fix{
			Lat: 52.0, Lon: 13.0 + float64(i)*30/perLonDeg,
			AccuracyM: 10, Time: start.Add(time.Duration(i*10) * time.Second),
		})
	}
	v := New(cfg, emptyIndex(), nil)
	verdict := v.Validate(context.Background(), "alice", rec)
	if verdict.Accepted || verdict.Reason != model.ReasonNotClosed {
		t.Fatalf("verdict = %+v, want notClosed", verdict)
	}
}

func TestValidateSelfIntersecting(t *testing.T) {
	cfg := testConfig()
	cfg.Closure.MinPoints = 4

	// Figure eight: out, diagonal, back, diagonal. Ends near the start.
	rec := session.NewRecorder(cfg.Ingest)
	start := time.Now()
	pts := []struct{ x, y float64 }{
		{0, 0}, {40, 40}, {40, 0}, {0, 40}, {1, 1},
	}
	for i, p := range pts {
		rec.Append(model.Fix{
			Lat: 52.0 + p.y/perLatDeg, Lon: 13.0 + p.x/perLonDeg,
			AccuracyM: 10, Time: start.Add(time.Duration(i*20) * time.Second),
		})
	}
	v := New(cfg, emptyIndex(), nil)
	verdict := v.Validate(context.Background(), "alice", rec)
	if verdict.Accepted || verdict.Reason != model.ReasonSelfIntersecting {
		t.Fatalf("verdict = %+v, want selfIntersecting", verdict)
	}
}

func TestValidateAreaBounds(t *testing.T) {
	cfg := testConfig()
	cfg.Area.MinM2 = 2000 // above the ~1600 m² square
	rec := walkSquare(t, cfg, 52.0, 13.0)
	v := New(cfg, emptyIndex(), nil)
	verdict := v.Validate(context.Background(), "alice", rec)
	if verdict.Reason != model.ReasonAreaTooSmall {
		t.Fatalf("verdict = %+v, want areaTooSmall", verdict)
	}

	cfg = testConfig()
	cfg.Area.MaxM2 = 1000
	rec = walkSquare(t, cfg, 52.0, 13.0)
	v = New(cfg, emptyIndex(), nil)
	verdict = v.Validate(context.Background(), "alice", rec)
	if verdict.Reason != model.ReasonAreaTooLarge {
		t.Fatalf("verdict = %+v, want areaTooLarge", verdict)
	}
}

func TestValidateOverlapCarriesConflictID(t *testing.T) {
	cfg := testConfig()
	rec := walkSquare(t, cfg, 52.0, 13.0)

	// A foreign territory fully containing the walked square's centroid.
	blocker := &model.Territory{
		ID:      "terr-9",
		OwnerID: "bob",
		Ring:    bigSquare(52.0, 13.0, 200),
		Status:  model.StatusActive,
	}
	g := index.New(250)
	g.Load([]*model.Territory{blocker})

	v := New(cfg, g, nil)
	verdict := v.Validate(context.Background(), "alice", rec)
	if verdict.Accepted || verdict.Reason != model.ReasonOverlap {
		t.Fatalf("verdict = %+v, want overlap", verdict)
	}
	if verdict.ConflictTerritoryID != "terr-9" {
		t.Errorf("conflict id = %q, want terr-9", verdict.ConflictTerritoryID)
	}
}

func TestValidateOwnTerritoryDoesNotBlock(t *testing.T) {
	cfg := testConfig()
	rec := walkSquare(t, cfg, 52.0, 13.0)

	own := &model.Territory{
		ID:      "terr-own",
		OwnerID: "alice",
		Ring:    bigSquare(52.0, 13.0, 200),
		Status:  model.StatusActive,
	}
	g := index.New(250)
	g.Load([]*model.Territory{own})

	v := New(cfg, g, nil)
	verdict := v.Validate(context.Background(), "alice", rec)
	if !verdict.Accepted {
		t.Fatalf("verdict = %+v, own territory must not block", verdict)
	}
}

// fakePath lets tests feed the validator a path whose recorded max speed
// disagrees with the ingestion gate, which cannot happen through a Recorder.
type fakePath struct {
	ring   []geo.Point
	maxKmh float64
}

func (f *fakePath) PointCount() int              { return len(f.ring) }
func (f *fakePath) Points() []geo.Point          { return f.ring }
func (f *fakePath) MaxSegmentSpeedKmh() float64  { return f.maxKmh }
func (f *fakePath) IsClosed(config.Closure) bool { return true }

func TestValidateSpeedRecheck(t *testing.T) {
	cfg := testConfig()
	v := New(cfg, emptyIndex(), nil)

	path := &fakePath{ring: bigSquare(52.0, 13.0, 60), maxKmh: 45}
	verdict := v.Validate(context.Background(), "alice", path)
	if verdict.Accepted || verdict.Reason != model.ReasonSpeedViolation {
		t.Fatalf("verdict = %+v, want speedViolation", verdict)
	}
}

func bigSquare(lat, lon, sideM float64) []geo.Point {
	dLat := sideM / 2 / perLatDeg
	dLon := sideM / 2 / perLonDeg
	return []geo.Point{
		{Lat: lat - dLat, Lon: lon - dLon},
		{Lat: lat - dLat, Lon: lon + dLon},
		{Lat: lat + dLat, Lon: lon + dLon},
		{Lat: lat + dLat, Lon: lon - dLon},
	}
}
