// Package store talks to the territory storage collaborator. The engine
// consumes snapshots and submits validated drafts; it never retries on
// failure and never invents fallback data, surfacing collaborator errors
// verbatim to the caller.
package store

import (
	"context"
	"errors"

	"github.com/landloop/territory-engine/geo"
	"github.com/landloop/territory-engine/model"
)

// ErrNotFound indicates a requested territory does not exist.
var ErrNotFound = errors.New("territory not found")

// TerritoryStore is the storage collaborator surface the engine depends on.
type TerritoryStore interface {
	// TerritoriesInRegion returns every territory whose bounding box
	// overlaps the region.
	TerritoriesInRegion(ctx context.Context, region geo.BBox) ([]*model.Territory, error)
	// SubmitClaim persists a validated draft. The store assigns the
	// identity and initial status, returning the new territory id.
	SubmitClaim(ctx context.Context, draft *model.TerritoryDraft) (string, error)
}
