package models

import (
	"fmt"
	"sort"
	"strings"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
)

// PartialRecord is one validated source row: a natural key plus typed values for known fields only
type PartialRecord struct {
	SourceSystem   string              `json:"source_system"`
	SourceRecordID string              `json:"source_record_id"`
	Values         map[FieldName]Value `json:"values"`
}

// ParsePartialRecord validates a loosely typed source payload. Unknown fields, values that
// cannot be coerced to the field's kind and a missing natural key are all MalformedSourceRecord.
// Null and blank values are dropped: ingestion never blanks a canonical field.
func ParsePartialRecord(sourceSystem string, raw map[string]any) (PartialRecord, error) {
	sourceSystem = strings.TrimSpace(sourceSystem)
	if sourceSystem == "" {
		return PartialRecord{}, ferrors.New(ferrors.KindMalformedSourceRecord, "source system is required")
	}

	record := PartialRecord{
		SourceSystem: sourceSystem,
		Values:       map[FieldName]Value{},
	}

	var details []ferrors.ValidationError
	for key, rawValue := range raw {
		if key == NaturalKeyField {
			continue
		}

		field := FieldName(key)
		kind, ok := KnownFields[field]
		if !ok {
			details = append(details, ferrors.ValidationError{
				Kind:    ferrors.KindUnknownField,
				Key:     "field:" + key,
				Field:   key,
				Message: "unknown field",
			})
			continue
		}

		value, err := ValueOf(rawValue)
		if err == nil {
			value, err = value.Coerce(kind)
		}
		if err != nil {
			details = append(details, ferrors.ValidationError{
				Kind:    ferrors.KindMalformedSourceRecord,
				Key:     "field:" + key,
				Field:   key,
				Message: err.Error(),
			})
			continue
		}
		if value.IsEmpty() {
			continue
		}
		record.Values[field] = value
	}

	naturalKey, err := ValueOf(raw[NaturalKeyField])
	if err != nil || naturalKey.IsEmpty() {
		details = append(details, ferrors.ValidationError{
			Kind:    ferrors.KindMalformedSourceRecord,
			Key:     "field:" + NaturalKeyField,
			Field:   NaturalKeyField,
			Message: "natural key is required",
		})
	} else {
		record.SourceRecordID = naturalKey.String()
	}

	if len(details) > 0 {
		sortDetails(details)
		return PartialRecord{}, ferrors.Newf(ferrors.KindMalformedSourceRecord, "invalid record from %s", sourceSystem).WithDetails(details...)
	}
	return record, nil
}

// Raw renders the record back into the loose payload shape
func (p PartialRecord) Raw() map[string]any {
	raw := make(map[string]any, len(p.Values)+1)
	raw[NaturalKeyField] = p.SourceRecordID
	for field, value := range p.Values {
		switch value.Kind {
		case ValueKindFlag:
			raw[string(field)] = value.Flag
		case ValueKindNumber:
			raw[string(field)] = value.Number
		default:
			raw[string(field)] = value.Text
		}
	}
	return raw
}

func (p PartialRecord) String() string {
	return fmt.Sprintf("%s/%s", p.SourceSystem, p.SourceRecordID)
}

func sortDetails(details []ferrors.ValidationError) {
	sort.Slice(details, func(i, j int) bool { return details[i].Key < details[j].Key })
}
