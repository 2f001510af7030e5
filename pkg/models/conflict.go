package models

// ConflictResolution classifies how a differing incoming value was handled
type ConflictResolution string

const (
	// ResolutionIngestionWins means the incoming value overwrote the current one
	ResolutionIngestionWins ConflictResolution = "auto_merge_ingestion_wins"
	// ResolutionOverrideActive means a human override protected the current value
	ResolutionOverrideActive ConflictResolution = "skip_user_override_active"
	// ResolutionPriorityTieBreak means source priority decided the field
	ResolutionPriorityTieBreak ConflictResolution = "source_priority_tie_break"
)

// MergeConflict is one field where the incoming value differed from the canonical one
type MergeConflict struct {
	FieldName      FieldName          `json:"field_name"`
	CurrentValue   Value              `json:"current_value"`
	IncomingValue  Value              `json:"incoming_value"`
	Resolution     ConflictResolution `json:"resolution"`
	Applied        bool               `json:"applied"`
	CurrentSource  string             `json:"current_source,omitempty"`
	IncomingSource string             `json:"incoming_source"`
}

// ResolveResult is the output of one resolver pass
type ResolveResult struct {
	Merged    VendorRecord    `json:"merged"`
	Conflicts []MergeConflict `json:"conflicts"`
	Changed   bool            `json:"changed"`
}
