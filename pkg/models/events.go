package models

import "time"

// VendorUpsert describes an ingestion write to a canonical vendor
type VendorUpsert struct {
	VendorID       string          `json:"vendor_id"`
	SourceSystem   string          `json:"source_system"`
	SourceRecordID string          `json:"source_record_id"`
	Created        bool            `json:"created"`
	Version        int             `json:"version"`
	ChangedFields  []FieldName     `json:"changed_fields"`
	Conflicts      []MergeConflict `json:"conflicts"`
	At             time.Time       `json:"at"`
}

// OverrideChange describes a human setting or clearing a field override
type OverrideChange struct {
	VendorID  string    `json:"vendor_id"`
	FieldName FieldName `json:"field_name"`
	Value     Value     `json:"value"`
	Set       bool      `json:"set"`
	Actor     string    `json:"actor"`
	Version   int       `json:"version"`
	At        time.Time `json:"at"`
}
