package model

import "github.com/landloop/territory-engine/geo"

// TerritoryStatus is the lifecycle status assigned by the storage
// collaborator. The engine never transitions statuses itself; it only cares
// whether a territory occupies space for collision purposes.
type TerritoryStatus string

const (
	StatusPending    TerritoryStatus = "pending"
	StatusDeveloping TerritoryStatus = "developing"
	StatusActive     TerritoryStatus = "active"
	StatusRejected   TerritoryStatus = "rejected"
)

// Territory is an accepted, persisted claim: a simple ring with an owner.
type Territory struct {
	ID      string
	OwnerID string
	Name    string
	Ring    []geo.Point
	Status  TerritoryStatus
}

// Occupies reports whether the territory blocks other claims. Every
// non-rejected status occupies space.
func (t *Territory) Occupies() bool {
	return t != nil && t.Status != StatusRejected
}

// BBox returns the territory ring's bounding box.
func (t *Territory) BBox() geo.BBox {
	return geo.RingBBox(t.Ring)
}

// TerritoryDraft is a validated claim the engine hands to the storage
// collaborator. The collaborator assigns the identity and persists it; the
// engine never writes storage or invents IDs for territories.
type TerritoryDraft struct {
	OwnerID          string
	Ring             []geo.Point
	AreaSquareMeters float64
}
