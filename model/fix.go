package model

import (
	"time"

	"github.com/landloop/territory-engine/geo"
)

// Fix is a single timestamped position reading in the canonical frame, with
// the receiver's horizontal accuracy estimate. Immutable value.
type Fix struct {
	Lat       float64
	Lon       float64
	AccuracyM float64
	Time      time.Time
}

// Point returns the fix position as a geometry-kernel point.
func (f Fix) Point() geo.Point {
	return geo.Point{Lat: f.Lat, Lon: f.Lon}
}
