package store

import (
	"testing"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/model"
)

func ring40m() []geo.Point {
	return []geo.Point{
		{Lat: 51.9998, Lon: 12.9997},
		{Lat: 51.9998, Lon: 13.0003},
		{Lat: 52.0002, Lon: 13.0003},
		{Lat: 52.0002, Lon: 12.9997},
	}
}

func TestRingGeoJSONRoundTrip(t *testing.T) {
	raw, err := MarshalRing(ring40m())
	if err != nil {
		t.Fatalf("MarshalRing: %v", err)
	}
	got, err := UnmarshalRing(raw)
	if err != nil {
		t.Fatalf("UnmarshalRing: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("decoded ring has %d points, want 4 (closing vertex dropped)", len(got))
	}
	for i, p := range ring40m() {
		if got[i] != p {
			t.Errorf("point %d = %#v, want %#v", i, got[i], p)
		}
	}
}

func TestUnmarshalRingRejectsNonPolygon(t *testing.T) {
	raw, err := MarshalPath([]geo.Point{{Lat: 52, Lon: 13}, {Lat: 52.001, Lon: 13}})
	if err != nil {
		t.Fatalf("MarshalPath: %v", err)
	}
	if _, err := UnmarshalRing(raw); err == nil {
		t.Fatalf("LineString must not decode as a ring")
	}
}

func TestTerritorySnapshotRoundTrip(t *testing.T) {
	in := []*model.Territory{
		{ID: "t1", OwnerID: "alice", Name: "North field", Status: model.StatusActive, Ring: ring40m()},
		{ID: "t2", OwnerID: "bob", Status: model.StatusPending, Ring: ring40m()},
	}
	raw, err := MarshalTerritories(in)
	if err != nil {
		t.Fatalf("MarshalTerritories: %v", err)
	}
	out, err := UnmarshalTerritories(raw)
	if err != nil {
		t.Fatalf("UnmarshalTerritories: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("decoded %d territories, want 2", len(out))
	}
	if out[0].ID != "t1" || out[0].OwnerID != "alice" || out[0].Status != model.StatusActive {
		t.Errorf("territory 0 = %+v", out[0])
	}
	if len(out[1].Ring) != 4 {
		t.Errorf("territory 1 ring has %d points", len(out[1].Ring))
	}
}

func TestSimplifyRingReducesVertices(t *testing.T) {
	// A 40 m square walked with redundant midpoints on every side.
	dense := []geo.Point{
		{Lat: 51.9998, Lon: 12.9997},
		{Lat: 51.9998, Lon: 13.0000},
		{Lat: 51.9998, Lon: 13.0003},
		{Lat: 52.0000, Lon: 13.0003},
		{Lat: 52.0002, Lon: 13.0003},
		{Lat: 52.0002, Lon: 13.0000},
		{Lat: 52.0002, Lon: 12.9997},
		{Lat: 52.0000, Lon: 12.9997},
	}
	out := SimplifyRing(dense, 2)
	if len(out) >= len(dense) {
		t.Fatalf("simplified ring has %d points, want fewer than %d", len(out), len(dense))
	}
	if len(out) < 3 {
		t.Fatalf("simplified ring degenerated to %d points", len(out))
	}
	// The simplified ring must still enclose roughly the same area.
	before, after := geo.Area(dense), geo.Area(out)
	if after < before*0.9 || after > before*1.1 {
		t.Errorf("area changed too much: %f -> %f", before, after)
	}
}

func TestSimplifyRingKeepsDegenerate(t *testing.T) {
	tri := ring40m()[:3]
	out := SimplifyRing(tri, 1000)
	if len(out) != 3 {
		t.Fatalf("triangle must pass through unchanged, got %d points", len(out))
	}
}
