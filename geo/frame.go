package geo

import "math"

// Coordinate normalizer between the canonical WGS-84 frame and the GCJ-02
// display frame used by mainland-China map providers. Every stored ring,
// area computation, and collision test runs in the canonical frame;
// conversion to the display frame happens only at the presentation boundary
// and is never fed back into canonical computation, so conversion error
// cannot compound.
//
// ToDisplay applies the standard GCJ-02 obfuscation. ToCanonical inverts it
// iteratively; the residual after convergence is below 1e-6 degrees
// (≈0.1 m), far inside the engine's accuracy gates. Outside the GCJ-02
// region both conversions are the identity.

const (
	// Krasovsky 1940 ellipsoid parameters used by the GCJ-02 transform.
	gcjA  = 6378245.0
	gcjEE = 0.00669342162296594323

	// canonicalRoundTripTolDeg bounds the ToCanonical residual.
	canonicalRoundTripTolDeg = 1e-7
	canonicalMaxIterations   = 10
)

// ToDisplay converts a canonical (WGS-84) point to the GCJ-02 display frame.
func ToDisplay(p Point) Point {
	if outsideShiftRegion(p) {
		return p
	}
	dLat, dLon := gcjShift(p)
	return Point{Lat: p.Lat + dLat, Lon: p.Lon + dLon}
}

// ToCanonical converts a GCJ-02 display point back to the canonical frame by
// fixed-point iteration on the forward transform.
func ToCanonical(p Point) Point {
	if outsideShiftRegion(p) {
		return p
	}
	guess := p
	for i := 0; i < canonicalMaxIterations; i++ {
		fwd := ToDisplay(guess)
		dLat := fwd.Lat - p.Lat
		dLon := fwd.Lon - p.Lon
		guess.Lat -= dLat
		guess.Lon -= dLon
		if math.Abs(dLat) < canonicalRoundTripTolDeg && math.Abs(dLon) < canonicalRoundTripTolDeg {
			break
		}
	}
	return guess
}

// outsideShiftRegion reports whether the GCJ-02 shift does not apply at p.
func outsideShiftRegion(p Point) bool {
	return p.Lon < 72.004 || p.Lon > 137.8347 || p.Lat < 0.8293 || p.Lat > 55.8271
}

// gcjShift computes the GCJ-02 offsets in degrees for a WGS-84 point.
func gcjShift(p Point) (dLat, dLon float64) {
	x := p.Lon - 105.0
	y := p.Lat - 35.0

	dLat = transformLat(x, y)
	dLon = transformLon(x, y)

	radLat := p.Lat / 180.0 * math.Pi
	magic := math.Sin(radLat)
	magic = 1 - gcjEE*magic*magic
	sqrtMagic := math.Sqrt(magic)

	dLat = (dLat * 180.0) / ((gcjA * (1 - gcjEE)) / (magic * sqrtMagic) * math.Pi)
	dLon = (dLon * 180.0) / (gcjA / sqrtMagic * math.Cos(radLat) * math.Pi)
	return dLat, dLon
}

func transformLat(x, y float64) float64 {
	ret := -100.0 + 2.0*x + 3.0*y + 0.2*y*y + 0.1*x*y + 0.2*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(y*math.Pi) + 40.0*math.Sin(y/3.0*math.Pi)) * 2.0 / 3.0
	ret += (160.0*math.Sin(y/12.0*math.Pi) + 320*math.Sin(y*math.Pi/30.0)) * 2.0 / 3.0
	return ret
}

func transformLon(x, y float64) float64 {
	ret := 300.0 + x + 2.0*y + 0.1*x*x + 0.1*x*y + 0.1*math.Sqrt(math.Abs(x))
	ret += (20.0*math.Sin(6.0*x*math.Pi) + 20.0*math.Sin(2.0*x*math.Pi)) * 2.0 / 3.0
	ret += (20.0*math.Sin(x*math.Pi) + 40.0*math.Sin(x/3.0*math.Pi)) * 2.0 / 3.0
	ret += (150.0*math.Sin(x/12.0*math.Pi) + 300.0*math.Sin(x/30.0*math.Pi)) * 2.0 / 3.0
	return ret
}
