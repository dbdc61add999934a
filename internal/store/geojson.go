package store

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/model"
)

// GeoJSON is the interchange format for territory rings: storage rows carry
// a Polygon geometry, snapshots travel as FeatureCollections, and diagnostic
// events carry the recorded path as a LineString.

// ringToOrb converts a canonical-frame ring to a closed orb ring
// (orb points are lon/lat ordered).
func ringToOrb(ring []geo.Point) orb.Ring {
	out := make(orb.Ring, 0, len(ring)+1)
	for _, p := range ring {
		out = append(out, orb.Point{p.Lon, p.Lat})
	}
	if len(out) > 0 && out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}

// orbToRing converts a closed orb ring back, dropping the duplicate closing
// vertex.
func orbToRing(r orb.Ring) []geo.Point {
	n := len(r)
	if n > 1 && r[0] == r[n-1] {
		n--
	}
	out := make([]geo.Point, n)
	for i := 0; i < n; i++ {
		out[i] = geo.Point{Lat: r[i][1], Lon: r[i][0]}
	}
	return out
}

// MarshalRing encodes a ring as a GeoJSON Polygon geometry.
func MarshalRing(ring []geo.Point) ([]byte, error) {
	return json.Marshal(geojson.NewGeometry(orb.Polygon{ringToOrb(ring)}))
}

// UnmarshalRing decodes a GeoJSON Polygon geometry's outer ring.
func UnmarshalRing(raw []byte) ([]geo.Point, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("decode ring geometry: %w", err)
	}
	poly, ok := g.Geometry().(orb.Polygon)
	if !ok || len(poly) == 0 {
		return nil, fmt.Errorf("ring geometry is %T, want Polygon", g.Geometry())
	}
	return orbToRing(poly[0]), nil
}

// MarshalPath encodes an open path as a GeoJSON LineString, used on
// diagnostic events for aborted sessions.
func MarshalPath(path []geo.Point) ([]byte, error) {
	ls := make(orb.LineString, len(path))
	for i, p := range path {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}
	return json.Marshal(geojson.NewGeometry(ls))
}

// MarshalTerritories encodes a snapshot as a GeoJSON FeatureCollection.
func MarshalTerritories(ts []*model.Territory) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, t := range ts {
		f := geojson.NewFeature(orb.Polygon{ringToOrb(t.Ring)})
		f.ID = t.ID
		f.Properties = geojson.Properties{
			"id":       t.ID,
			"owner_id": t.OwnerID,
			"name":     t.Name,
			"status":   string(t.Status),
		}
		fc.Append(f)
	}
	return json.Marshal(fc)
}

// UnmarshalTerritories decodes a snapshot FeatureCollection.
func UnmarshalTerritories(raw []byte) ([]*model.Territory, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode territory collection: %w", err)
	}
	out := make([]*model.Territory, 0, len(fc.Features))
	for _, f := range fc.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok || len(poly) == 0 {
			continue
		}
		out = append(out, &model.Territory{
			ID:      f.Properties.MustString("id", ""),
			OwnerID: f.Properties.MustString("owner_id", ""),
			Name:    f.Properties.MustString("name", ""),
			Status:  model.TerritoryStatus(f.Properties.MustString("status", string(model.StatusActive))),
			Ring:    orbToRing(poly[0]),
		})
	}
	return out, nil
}

// SimplifyRing reduces a validated ring with Douglas-Peucker before
// submission, bounding the vertex count the storage collaborator has to
// keep. Rings that would drop below three vertices are returned unchanged.
func SimplifyRing(ring []geo.Point, toleranceM float64) []geo.Point {
	if len(ring) < 4 || toleranceM <= 0 {
		return ring
	}
	tolDeg := toleranceM / 111320.0
	simplified := simplify.DouglasPeucker(tolDeg).Simplify(orb.Polygon{ringToOrb(ring)})
	poly, ok := simplified.(orb.Polygon)
	if !ok || len(poly) == 0 {
		return ring
	}
	out := orbToRing(poly[0])
	if len(out) < 3 {
		return ring
	}
	return out
}
