// Package index holds the read-mostly set of existing territories and
// answers proximity and overlap queries without scanning the full set.
//
// The structure is a uniform grid keyed on territory bounding boxes. A
// snapshot refresh builds a complete new grid and swaps it in atomically, so
// concurrent readers never observe a partially-built index. There is no
// incremental insert or delete: a session's own path never enters the index
// until it has been validated and persisted, at which point the next refresh
// picks it up.
package index

import (
	"math"
	"sync/atomic"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/model"
)

type cellKey struct {
	row int
	col int
}

// snapshot is one immutable generation of the grid.
type snapshot struct {
	territories []*model.Territory
	bboxes      []geo.BBox
	cells       map[cellKey][]int
	cellDeg     float64
}

// Grid is the engine's spatial index.
type Grid struct {
	cellDeg float64
	snap    atomic.Pointer[snapshot]
}

// New constructs an empty grid with the given cell edge length in metres.
// The cell size trades query fan-out against bucket density; the default of
// a few hundred metres suits claim-sized polygons.
func New(cellSizeM float64) *Grid {
	g := &Grid{
		// One degree of latitude is ~111.3 km. Longitude cells use the
		// same angular size, which narrows them toward the poles; that
		// only makes buckets finer, never misses candidates.
		cellDeg: cellSizeM / 111320.0,
	}
	g.snap.Store(&snapshot{cells: map[cellKey][]int{}, cellDeg: g.cellDeg})
	return g
}

// Load replaces the entire index with a fresh territory snapshot. Safe to
// call concurrently with queries.
func (g *Grid) Load(territories []*model.Territory) {
	s := &snapshot{
		territories: make([]*model.Territory, 0, len(territories)),
		bboxes:      make([]geo.BBox, 0, len(territories)),
		cells:       make(map[cellKey][]int),
		cellDeg:     g.cellDeg,
	}
	for _, t := range territories {
		if t == nil || len(t.Ring) < 3 || !t.Occupies() {
			continue
		}
		i := len(s.territories)
		b := t.BBox()
		s.territories = append(s.territories, t)
		s.bboxes = append(s.bboxes, b)
		for _, key := range s.coveredCells(b) {
			s.cells[key] = append(s.cells[key], i)
		}
	}
	g.snap.Store(s)
}

// Len returns the number of indexed territories.
func (g *Grid) Len() int {
	return len(g.snap.Load().territories)
}

// CandidatesNear returns every territory whose bounding extent lies within
// radiusM of p. Sublinear in the total territory count: only grid cells
// covered by the query disc are visited.
func (g *Grid) CandidatesNear(p geo.Point, radiusM float64) []*model.Territory {
	s := g.snap.Load()
	query := geo.BBox{MinLat: p.Lat, MaxLat: p.Lat, MinLon: p.Lon, MaxLon: p.Lon}.Expand(radiusM)
	var out []*model.Territory
	s.visit(query, func(i int) {
		if s.bboxes[i].DistanceTo(p) <= radiusM {
			out = append(out, s.territories[i])
		}
	})
	return out
}

// CandidatesIntersectingBBox returns every territory whose bounding box
// overlaps b.
func (g *Grid) CandidatesIntersectingBBox(b geo.BBox) []*model.Territory {
	s := g.snap.Load()
	var out []*model.Territory
	s.visit(b, func(i int) {
		if s.bboxes[i].Intersects(b) {
			out = append(out, s.territories[i])
		}
	})
	return out
}

// visit calls fn once per territory index whose cells overlap the query box.
func (s *snapshot) visit(query geo.BBox, fn func(i int)) {
	if len(s.territories) == 0 {
		return
	}
	seen := make(map[int]struct{})
	for _, key := range s.coveredCells(query) {
		for _, i := range s.cells[key] {
			if _, dup := seen[i]; dup {
				continue
			}
			seen[i] = struct{}{}
			fn(i)
		}
	}
}

// coveredCells enumerates the grid cells a bounding box touches.
func (s *snapshot) coveredCells(b geo.BBox) []cellKey {
	minRow := int(math.Floor(b.MinLat / s.cellDeg))
	maxRow := int(math.Floor(b.MaxLat / s.cellDeg))
	minCol := int(math.Floor(b.MinLon / s.cellDeg))
	maxCol := int(math.Floor(b.MaxLon / s.cellDeg))
	keys := make([]cellKey, 0, (maxRow-minRow+1)*(maxCol-minCol+1))
	for r := minRow; r <= maxRow; r++ {
		for c := minCol; c <= maxCol; c++ {
			keys = append(keys, cellKey{row: r, col: c})
		}
	}
	return keys
}
