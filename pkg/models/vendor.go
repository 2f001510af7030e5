package models

import (
	"maps"
	"time"
)

// VendorStatus is the lifecycle state of a canonical vendor
type VendorStatus string

const (
	// VendorStatusActive is a live vendor
	VendorStatusActive VendorStatus = "active"
	// VendorStatusArchived is terminal. Archived vendors are kept for historical reporting.
	VendorStatusArchived VendorStatus = "archived"
)

// SourceAppUserEdit is the source system recorded for human edits
const SourceAppUserEdit = "app-user-edit"

// FieldOverride marks a field as locked by a human edit
type FieldOverride struct {
	SetBy string    `json:"set_by"`
	SetAt time.Time `json:"set_at"`
}

// VendorRecord is the canonical vendor row
type VendorRecord struct {
	VendorID       string                      `json:"vendor_id"`
	Fields         map[FieldName]Value         `json:"fields"`
	FieldSources   map[FieldName]string        `json:"field_sources"`
	Overrides      map[FieldName]FieldOverride `json:"overrides"`
	SourceSystem   string                      `json:"source_system"`
	SourceRecordID string                      `json:"source_record_id"`
	Status         VendorStatus                `json:"status"`
	MergedInto     *string                     `json:"merged_into,omitempty"`
	Version        int                         `json:"version"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// NewVendorRecord returns an empty active vendor
func NewVendorRecord(vendorID string) VendorRecord {
	return VendorRecord{
		VendorID:     vendorID,
		Fields:       map[FieldName]Value{},
		FieldSources: map[FieldName]string{},
		Overrides:    map[FieldName]FieldOverride{},
		Status:       VendorStatusActive,
	}
}

// Value returns the current value of a field (empty if unset)
func (v VendorRecord) Value(field FieldName) Value {
	return v.Fields[field]
}

// IsOverridden reports the override flag of a field
func (v VendorRecord) IsOverridden(field FieldName) bool {
	_, ok := v.Overrides[field]
	return ok
}

// IsArchived reports whether the vendor reached its terminal state
func (v VendorRecord) IsArchived() bool {
	return v.Status == VendorStatusArchived
}

// Clone returns a deep copy so callers can mutate without aliasing maps
func (v VendorRecord) Clone() VendorRecord {
	out := v
	out.Fields = maps.Clone(v.Fields)
	out.FieldSources = maps.Clone(v.FieldSources)
	out.Overrides = maps.Clone(v.Overrides)
	if out.Fields == nil {
		out.Fields = map[FieldName]Value{}
	}
	if out.FieldSources == nil {
		out.FieldSources = map[FieldName]string{}
	}
	if out.Overrides == nil {
		out.Overrides = map[FieldName]FieldOverride{}
	}
	if v.MergedInto != nil {
		mergedInto := *v.MergedInto
		out.MergedInto = &mergedInto
	}
	return out
}

// SetField writes a value and its provenance. An empty value removes the field.
func (v *VendorRecord) SetField(field FieldName, value Value, source string) {
	if value.IsEmpty() {
		delete(v.Fields, field)
		delete(v.FieldSources, field)
		return
	}
	v.Fields[field] = value
	v.FieldSources[field] = source
}

// SourceKey is a natural key link from a source system record to a canonical vendor
type SourceKey struct {
	SourceSystem   string    `json:"source_system" db:"source_system"`
	SourceRecordID string    `json:"source_record_id" db:"source_record_id"`
	VendorID       string    `json:"vendor_id" db:"vendor_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
