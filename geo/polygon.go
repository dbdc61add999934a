package geo

import "math"

// A ring is an ordered sequence of at least three points, implicitly closed:
// the last point connects back to the first. All ring functions below are
// total: rings with fewer than three points yield the documented defaults
// (outside, not simple, zero area, no intersection) rather than errors.

// PointInPolygon reports whether p lies strictly inside the ring, using a
// ray-casting test: a horizontal ray eastward from p at p.Lat toggles
// inclusion each time it crosses an edge. Points exactly on the boundary are
// treated as outside; the same convention is applied everywhere in the
// engine so closure and collision behave consistently near shared edges.
func PointInPolygon(p Point, ring []Point) bool {
	if len(ring) < 3 {
		return false
	}
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		vi, vj := ring[i], ring[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			// Longitude where the edge crosses the ray's latitude.
			cross := vi.Lon + (p.Lat-vi.Lat)/(vj.Lat-vi.Lat)*(vj.Lon-vi.Lon)
			if p.Lon < cross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// orientation returns the sign of the cross product (b-a) x (c-a) in the
// lat/lon plane: +1 counter-clockwise, -1 clockwise, 0 collinear.
func orientation(a, b, c Point) int {
	v := (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// onSegment reports whether c, known to be collinear with segment ab, lies
// within the segment's bounding box.
func onSegment(a, b, c Point) bool {
	return math.Min(a.Lat, b.Lat) <= c.Lat && c.Lat <= math.Max(a.Lat, b.Lat) &&
		math.Min(a.Lon, b.Lon) <= c.Lon && c.Lon <= math.Max(a.Lon, b.Lon)
}

// SegmentsIntersect reports whether segments a1a2 and b1b2 intersect,
// including touching endpoints and collinear overlap.
func SegmentsIntersect(a1, a2, b1, b2 Point) bool {
	o1 := orientation(a1, a2, b1)
	o2 := orientation(a1, a2, b2)
	o3 := orientation(b1, b2, a1)
	o4 := orientation(b1, b2, a2)

	if o1 != o2 && o3 != o4 {
		return true
	}

	// Collinear cases: intersect iff an endpoint of one segment lies on
	// the other.
	if o1 == 0 && onSegment(a1, a2, b1) {
		return true
	}
	if o2 == 0 && onSegment(a1, a2, b2) {
		return true
	}
	if o3 == 0 && onSegment(b1, b2, a1) {
		return true
	}
	if o4 == 0 && onSegment(b1, b2, a2) {
		return true
	}
	return false
}

// IsSimple reports whether the ring is simple: no two non-adjacent edges
// intersect. Pairwise edge testing is O(n²), which is fine for rings bounded
// by the sampling policy (typically well under a few hundred points).
func IsSimple(ring []Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		a1 := ring[i]
		a2 := ring[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip the edge itself and the two adjacent edges, which
			// legitimately share a vertex.
			if j == i || (j+1)%n == i || (i+1)%n == j {
				continue
			}
			b1 := ring[j]
			b2 := ring[(j+1)%n]
			if SegmentsIntersect(a1, a2, b1, b2) {
				return false
			}
		}
	}
	return true
}

// Area returns the enclosed area of the ring in square metres, computed with
// the shoelace formula on a local equirectangular projection centred on the
// ring's centroid. At claim scales (up to a few km across) the projection
// error stays within a few percent. Rings with fewer than three points have
// zero area.
func Area(ring []Point) float64 {
	if len(ring) < 3 {
		return 0
	}
	c := centroid(ring)
	sum := 0.0
	n := len(ring)
	for i := 0; i < n; i++ {
		x1, y1 := planar(ring[i], c)
		x2, y2 := planar(ring[(i+1)%n], c)
		sum += x1*y2 - x2*y1
	}
	return math.Abs(sum) / 2
}

// Centroid returns the arithmetic mean of the ring's vertices. It is the
// projection centre for Area and a convenient interior probe for convex
// rings; it is not the true area-weighted centroid.
func Centroid(ring []Point) Point {
	return centroid(ring)
}

func centroid(ring []Point) Point {
	if len(ring) == 0 {
		return Point{}
	}
	var lat, lon float64
	for _, p := range ring {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(ring))
	return Point{Lat: lat / n, Lon: lon / n}
}

// PolygonsIntersect reports whether two rings overlap: any vertex of one
// inside the other (covers full containment) or any pair of edges crossing
// (covers partial overlap with no contained vertices).
func PolygonsIntersect(a, b []Point) bool {
	if len(a) < 3 || len(b) < 3 {
		return false
	}
	for _, p := range a {
		if PointInPolygon(p, b) {
			return true
		}
	}
	for _, p := range b {
		if PointInPolygon(p, a) {
			return true
		}
	}
	na, nb := len(a), len(b)
	for i := 0; i < na; i++ {
		for j := 0; j < nb; j++ {
			if SegmentsIntersect(a[i], a[(i+1)%na], b[j], b[(j+1)%nb]) {
				return true
			}
		}
	}
	return false
}

// DistanceToSegment returns the distance in metres from p to the segment ab,
// computed on a local plane centred on p.
func DistanceToSegment(p, a, b Point) float64 {
	ax, ay := planar(a, p)
	bx, by := planar(b, p)
	// p projects to the local origin.
	vx, vy := bx-ax, by-ay
	lenSq := vx*vx + vy*vy
	if lenSq == 0 {
		return math.Hypot(ax, ay)
	}
	t := -(ax*vx + ay*vy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	cx, cy := ax+t*vx, ay+t*vy
	return math.Hypot(cx, cy)
}

// DistanceToRing returns the distance in metres from p to the ring's
// boundary, or 0 when p lies inside the ring. Rings with fewer than three
// points yield +Inf so callers can treat them as "nothing nearby".
func DistanceToRing(p Point, ring []Point) float64 {
	if len(ring) < 3 {
		return math.Inf(1)
	}
	if PointInPolygon(p, ring) {
		return 0
	}
	min := math.Inf(1)
	n := len(ring)
	for i := 0; i < n; i++ {
		if d := DistanceToSegment(p, ring[i], ring[(i+1)%n]); d < min {
			min = d
		}
	}
	return min
}
