package models

import "sort"

// FieldName identifies a canonical vendor field
type FieldName string

const (
	FieldERPVendorID        FieldName = "erp_vendor_id"
	FieldLegalName          FieldName = "legal_name"
	FieldDBAName            FieldName = "dba_name"
	FieldTaxID              FieldName = "tax_id"
	FieldWebsite            FieldName = "website"
	FieldPhone              FieldName = "phone"
	FieldPrimaryEmail       FieldName = "primary_email"
	FieldAddressLine1       FieldName = "address_line1"
	FieldCity               FieldName = "city"
	FieldState              FieldName = "state"
	FieldPostalCode         FieldName = "postal_code"
	FieldCountry            FieldName = "country"
	FieldPaymentTerms       FieldName = "payment_terms"
	FieldDiversityCertified FieldName = "diversity_certified"
	FieldAnnualSpend        FieldName = "annual_spend"
	FieldDescription        FieldName = "description"
	FieldCategory           FieldName = "category"
	FieldRiskTier           FieldName = "risk_tier"
)

// NaturalKeyField is the raw payload key carrying the source record id
const NaturalKeyField = "vendor_natural_key"

// KnownFields maps every canonical field to its value kind
var KnownFields = map[FieldName]ValueKind{
	FieldERPVendorID:        ValueKindText,
	FieldLegalName:          ValueKindText,
	FieldDBAName:            ValueKindText,
	FieldTaxID:              ValueKindText,
	FieldWebsite:            ValueKindText,
	FieldPhone:              ValueKindText,
	FieldPrimaryEmail:       ValueKindText,
	FieldAddressLine1:       ValueKindText,
	FieldCity:               ValueKindText,
	FieldState:              ValueKindText,
	FieldPostalCode:         ValueKindText,
	FieldCountry:            ValueKindText,
	FieldPaymentTerms:       ValueKindText,
	FieldDiversityCertified: ValueKindFlag,
	FieldAnnualSpend:        ValueKindNumber,
	FieldDescription:        ValueKindText,
	FieldCategory:           ValueKindText,
	FieldRiskTier:           ValueKindText,
}

// IsKnownField reports whether name is a canonical field
func IsKnownField(name FieldName) bool {
	_, ok := KnownFields[name]
	return ok
}

// SortedFieldNames returns the keys of m in lexical order
func SortedFieldNames[V any](m map[FieldName]V) []FieldName {
	names := make([]FieldName, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// AllFieldNames returns every canonical field in lexical order
func AllFieldNames() []FieldName {
	return SortedFieldNames(KnownFields)
}
