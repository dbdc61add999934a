package geo

import (
	"math"
	"testing"
)

func TestRingBBox(t *testing.T) {
	ring := []Point{
		{Lat: 52.0, Lon: 13.0},
		{Lat: 52.1, Lon: 13.2},
		{Lat: 51.9, Lon: 13.1},
	}
	b := RingBBox(ring)
	want := BBox{MinLat: 51.9, MinLon: 13.0, MaxLat: 52.1, MaxLon: 13.2}
	if b != want {
		t.Fatalf("RingBBox = %#v, want %#v", b, want)
	}

	if got := RingBBox(nil); got != (BBox{}) {
		t.Fatalf("empty ring bbox = %#v, want zero box", got)
	}
}

func TestBBoxIntersectsAndContains(t *testing.T) {
	a := BBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}
	b := BBox{MinLat: 0.5, MinLon: 0.5, MaxLat: 2, MaxLon: 2}
	c := BBox{MinLat: 3, MinLon: 3, MaxLat: 4, MaxLon: 4}

	if !a.Intersects(b) || !b.Intersects(a) {
		t.Errorf("overlapping boxes should intersect")
	}
	if a.Intersects(c) {
		t.Errorf("disjoint boxes should not intersect")
	}
	if !a.Contains(Point{Lat: 0.5, Lon: 0.5}) {
		t.Errorf("box should contain interior point")
	}
	if a.Contains(Point{Lat: 1.5, Lon: 0.5}) {
		t.Errorf("box should not contain exterior point")
	}
}

func TestBBoxExpandAndDistance(t *testing.T) {
	ring := squareRing(52.0, 13.0, 40)
	b := RingBBox(ring)

	// Expanding by 100 m must cover a point 50 m outside the box.
	_, perLon := metersPerDegree(52.0)
	outside := Point{Lat: 52.0, Lon: 13.0 + 70.0/perLon}
	if b.Contains(outside) {
		t.Fatalf("point should start outside the box")
	}
	if !b.Expand(100).Contains(outside) {
		t.Errorf("expanded box should contain the nearby point")
	}

	if d := b.DistanceTo(Centroid(ring)); d != 0 {
		t.Errorf("distance from contained point = %f, want 0", d)
	}
	d := b.DistanceTo(outside)
	if math.Abs(d-50) > 2 {
		t.Errorf("distance to box = %f m, want ~50", d)
	}
}
