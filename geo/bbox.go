package geo

import "math"

// BBox is an axis-aligned geographic bounding box in canonical-frame degrees.
// The zero value is an empty box.
type BBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// RingBBox computes the bounding box of a ring. An empty ring yields the
// zero box.
func RingBBox(ring []Point) BBox {
	if len(ring) == 0 {
		return BBox{}
	}
	b := BBox{
		MinLat: ring[0].Lat, MaxLat: ring[0].Lat,
		MinLon: ring[0].Lon, MaxLon: ring[0].Lon,
	}
	for _, p := range ring[1:] {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	return b
}

// Center returns the midpoint of the box.
func (b BBox) Center() Point {
	return Point{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// Contains reports whether p lies within the box (boundary inclusive).
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Intersects reports whether two boxes overlap (boundary touch counts).
func (b BBox) Intersects(o BBox) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat &&
		b.MinLon <= o.MaxLon && b.MaxLon >= o.MinLon
}

// Expand grows the box by the given number of metres on every side.
func (b BBox) Expand(meters float64) BBox {
	perLat, perLon := metersPerDegree(b.Center().Lat)
	dLat := meters / perLat
	dLon := meters / perLon
	return BBox{
		MinLat: b.MinLat - dLat,
		MaxLat: b.MaxLat + dLat,
		MinLon: b.MinLon - dLon,
		MaxLon: b.MaxLon + dLon,
	}
}

// DistanceTo returns the planar distance in metres from p to the nearest
// point of the box, or 0 when the box contains p. It is an approximation
// consistent with the engine's local-plane geometry.
func (b BBox) DistanceTo(p Point) float64 {
	lat := clamp(p.Lat, b.MinLat, b.MaxLat)
	lon := clamp(p.Lon, b.MinLon, b.MaxLon)
	if lat == p.Lat && lon == p.Lon {
		return 0
	}
	x, y := planar(Point{Lat: lat, Lon: lon}, p)
	return math.Hypot(x, y)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
