package model

// RejectReason is the typed outcome of claim validation. ReasonNone means
// the claim was accepted.
type RejectReason string

const (
	ReasonNone             RejectReason = "none"
	ReasonNotClosed        RejectReason = "notClosed"
	ReasonSelfIntersecting RejectReason = "selfIntersecting"
	ReasonAreaTooSmall     RejectReason = "areaTooSmall"
	ReasonAreaTooLarge     RejectReason = "areaTooLarge"
	ReasonSpeedViolation   RejectReason = "speedViolation"
	ReasonOverlap          RejectReason = "overlapsExistingTerritory"
)

// ClaimVerdict is the result of running a closed path through the validation
// pipeline. Validation is idempotent: the same immutable path always yields
// the same verdict.
type ClaimVerdict struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason"`
	// Draft is the validated territory, set only on acceptance.
	Draft *TerritoryDraft `json:"draft,omitempty"`
	// ConflictTerritoryID identifies the overlapping territory when the
	// reason is ReasonOverlap.
	ConflictTerritoryID string `json:"conflict_territory_id,omitempty"`
}
