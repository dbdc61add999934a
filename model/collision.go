package model

// Grade is a proximity warning level, ordered from safest to worst.
type Grade int

const (
	GradeSafe Grade = iota
	GradeCaution
	GradeWarning
	GradeDanger
	GradeViolation
)

// String returns the wire name of the grade.
func (g Grade) String() string {
	switch g {
	case GradeSafe:
		return "safe"
	case GradeCaution:
		return "caution"
	case GradeWarning:
		return "warning"
	case GradeDanger:
		return "danger"
	case GradeViolation:
		return "violation"
	default:
		return "unknown"
	}
}

// CollisionKind describes what triggered a collision, when one occurred.
type CollisionKind string

const (
	CollisionNone             CollisionKind = "none"
	CollisionPointInTerritory CollisionKind = "point_in_territory"
	CollisionPathCrosses      CollisionKind = "path_crosses_boundary"
	CollisionSelfIntersection CollisionKind = "self_intersection"
)

// CollisionResult is the outcome of one proximity evaluation. Produced fresh
// on every check, never mutated.
type CollisionResult struct {
	Collision bool          `json:"collision"`
	Kind      CollisionKind `json:"kind"`
	// NearestDistanceM is the distance to the closest foreign territory
	// boundary in metres; negative when no territory was within the query
	// radius.
	NearestDistanceM float64 `json:"nearest_distance_m"`
	Grade            Grade   `json:"-"`
	GradeName        string  `json:"grade"`
	// TerritoryID and TerritoryName identify the conflicting or nearest
	// territory, when there is one.
	TerritoryID   string `json:"territory_id,omitempty"`
	TerritoryName string `json:"territory_name,omitempty"`
}
