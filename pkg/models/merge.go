package models

import "time"

// MergeCandidate is a proposed duplicate pair
type MergeCandidate struct {
	SurvivorVendorID string `json:"survivor_vendor_id" validate:"required"`
	SourceVendorID   string `json:"source_vendor_id" validate:"required"`
}

// ChosenSource says where a merged field value comes from
type ChosenSource string

const (
	ChosenSourceSurvivor    ChosenSource = "survivor"
	ChosenSourceSource      ChosenSource = "source"
	ChosenSourceManualValue ChosenSource = "manual_value"
)

// Valid reports whether s is one of the known choices
func (s ChosenSource) Valid() bool {
	switch s {
	case ChosenSourceSurvivor, ChosenSourceSource, ChosenSourceManualValue:
		return true
	}
	return false
}

// FieldMergeDecision is the human's choice for one differing field
type FieldMergeDecision struct {
	FieldName    FieldName    `json:"field_name"`
	ChosenValue  Value        `json:"chosen_value"`
	ChosenSource ChosenSource `json:"chosen_source"`
}

// CollisionAction is how a colliding source offering is handled
type CollisionAction string

const (
	// CollisionMergeIntoTarget folds the source offering into a survivor offering
	CollisionMergeIntoTarget CollisionAction = "merge_into_target"
	// CollisionKeepWithRename moves the offering and disambiguates its name
	CollisionKeepWithRename CollisionAction = "keep_with_rename"
	// CollisionKeepAsNew moves the offering unchanged
	CollisionKeepAsNew CollisionAction = "keep_as_new"
)

// Valid reports whether a is one of the known actions
func (a CollisionAction) Valid() bool {
	switch a {
	case CollisionMergeIntoTarget, CollisionKeepWithRename, CollisionKeepAsNew:
		return true
	}
	return false
}

// OfferingCollisionDecision is the human's choice for one colliding source offering
type OfferingCollisionDecision struct {
	SourceOfferingID string          `json:"source_offering_id"`
	Action           CollisionAction `json:"action"`
	TargetOfferingID *string         `json:"target_offering_id,omitempty"`
}

// FieldDifference is a field whose survivor and source values differ, with the suggested default
type FieldDifference struct {
	FieldName      FieldName          `json:"field_name"`
	SurvivorValue  Value              `json:"survivor_value"`
	SourceValue    Value              `json:"source_value"`
	SurvivorSource string             `json:"survivor_source,omitempty"`
	SourceSource   string             `json:"source_source,omitempty"`
	Suggested      FieldMergeDecision `json:"suggested"`
}

// OfferingCollision is a source offering whose normalized name matches survivor offerings
type OfferingCollision struct {
	SourceOfferingID    string   `json:"source_offering_id"`
	SourceOfferingName  string   `json:"source_offering_name"`
	NormalizedName      string   `json:"normalized_name"`
	SurvivorOfferingIDs []string `json:"survivor_offering_ids"`
}

// OfferingRemap records what happened to one source offering
type OfferingRemap struct {
	SourceOfferingID string          `json:"source_offering_id"`
	Action           CollisionAction `json:"action"`
	TargetOfferingID *string         `json:"target_offering_id,omitempty"`
	NewName          string          `json:"new_name,omitempty"`
	Implicit         bool            `json:"implicit"`
}

// MergeExecutionRecord is the immutable audit row written once per committed merge
type MergeExecutionRecord struct {
	ID                 string                      `json:"id"`
	SessionID          string                      `json:"session_id"`
	SurvivorVendorID   string                      `json:"survivor_vendor_id"`
	SourceVendorID     string                      `json:"source_vendor_id"`
	FieldDecisions     []FieldMergeDecision        `json:"field_decisions"`
	OfferingDecisions  []OfferingCollisionDecision `json:"offering_decisions"`
	OfferingRemap      []OfferingRemap             `json:"offering_remap"`
	ReassignedEntities map[EntityKind]int          `json:"reassigned_entities"`
	ReassignedKeys     int                         `json:"reassigned_keys"`
	Actor              string                      `json:"actor"`
	ExecutedAt         time.Time                   `json:"executed_at"`
}
