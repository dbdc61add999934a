package geo

import "math"

// EarthRadiusM is the mean Earth radius used for all spherical-earth
// geometry in the engine (metres).
const EarthRadiusM = 6371000.0

// Point is a geodetic position in the canonical WGS-84 frame, degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Distance returns the great-circle distance between two points in metres,
// using the haversine formula on a spherical Earth. The error against the
// ellipsoid is well under 1% at the scales the engine works with (tens of
// metres to a few kilometres).
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if s > 1 {
		s = 1
	}
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(s))
}

// metersPerDegree returns the local metre length of one degree of latitude
// and one degree of longitude at the given latitude.
func metersPerDegree(latDeg float64) (perLat, perLon float64) {
	perLat = EarthRadiusM * math.Pi / 180
	perLon = perLat * math.Cos(latDeg*math.Pi/180)
	return perLat, perLon
}

// planar projects p onto a local equirectangular plane centred on origin,
// returning x (east) and y (north) in metres. Only valid for points within a
// few kilometres of origin, which is all the engine ever needs.
func planar(p, origin Point) (x, y float64) {
	perLat, perLon := metersPerDegree(origin.Lat)
	return (p.Lon - origin.Lon) * perLon, (p.Lat - origin.Lat) * perLat
}
