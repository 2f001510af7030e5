package ownership

import (
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Resolver applies the ownership matrix to incoming source records. It holds no state
// beyond the matrix and never mutates its inputs.
type Resolver struct {
	matrix *Matrix
}

func NewResolver(matrix *Matrix) *Resolver {
	return &Resolver{matrix: matrix}
}

func (r *Resolver) Matrix() *Matrix {
	return r.matrix
}

// Resolve decides per field whether the incoming value overwrites the current one.
// Fields are visited in name order so the conflict list is deterministic.
func (r *Resolver) Resolve(current models.VendorRecord, incoming models.PartialRecord, sourceSystem string) (models.ResolveResult, error) {
	if err := r.validate(incoming, sourceSystem); err != nil {
		return models.ResolveResult{}, err
	}

	merged := current.Clone()
	result := models.ResolveResult{Conflicts: []models.MergeConflict{}}

	for _, field := range models.SortedFieldNames(incoming.Values) {
		if r.matrix.IsAppOwned(field) {
			continue
		}

		incomingValue := incoming.Values[field]
		if incomingValue.IsEmpty() {
			continue
		}
		currentValue := merged.Value(field)
		currentSource := merged.FieldSources[field]

		conflict := models.MergeConflict{
			FieldName:      field,
			CurrentValue:   currentValue,
			IncomingValue:  incomingValue,
			CurrentSource:  currentSource,
			IncomingSource: sourceSystem,
		}

		if field == r.matrix.NaturalKeyField() {
			if currentValue.Equal(incomingValue) {
				continue
			}
			switch {
			case sourceSystem == r.matrix.AuthoritativeSource():
				merged.SetField(field, incomingValue, sourceSystem)
				result.Changed = true
				if currentValue.IsEmpty() {
					continue
				}
				conflict.Resolution = models.ResolutionIngestionWins
				conflict.Applied = true
			case currentValue.IsEmpty():
				merged.SetField(field, incomingValue, sourceSystem)
				result.Changed = true
				continue
			default:
				conflict.Resolution = models.ResolutionPriorityTieBreak
			}
			result.Conflicts = append(result.Conflicts, conflict)
			continue
		}

		if merged.IsOverridden(field) {
			if !currentValue.Equal(incomingValue) {
				conflict.Resolution = models.ResolutionOverrideActive
				result.Conflicts = append(result.Conflicts, conflict)
			}
			continue
		}

		if currentValue.Equal(incomingValue) {
			continue
		}

		if currentValue.IsEmpty() {
			merged.SetField(field, incomingValue, sourceSystem)
			result.Changed = true
			continue
		}

		incomingRank := r.matrix.Rank(field, sourceSystem)
		currentRank := r.matrix.Rank(field, currentSource)
		// a source outside the field's priority list only fills gaps and corrects its own values
		wins := incomingRank >= currentRank && (incomingRank > 0 || currentSource == sourceSystem)

		if wins {
			merged.SetField(field, incomingValue, sourceSystem)
			result.Changed = true
			conflict.Applied = true
			conflict.Resolution = models.ResolutionIngestionWins
			if currentRank == 0 && currentSource != sourceSystem {
				// current source has been removed from the field's priority list
				conflict.Resolution = models.ResolutionPriorityTieBreak
			}
		} else {
			conflict.Resolution = models.ResolutionPriorityTieBreak
		}
		result.Conflicts = append(result.Conflicts, conflict)
	}

	if result.Changed {
		merged.SourceSystem = sourceSystem
		merged.SourceRecordID = incoming.SourceRecordID
	}
	result.Merged = merged
	return result, nil
}

func (r *Resolver) validate(incoming models.PartialRecord, sourceSystem string) error {
	if err := r.matrix.ValidateIngestionSource(sourceSystem); err != nil {
		return err
	}
	if incoming.SourceSystem != "" && incoming.SourceSystem != sourceSystem {
		return ferrors.Newf(ferrors.KindMalformedSourceRecord, "record from %q resolved as %q", incoming.SourceSystem, sourceSystem)
	}
	if incoming.SourceRecordID == "" {
		return ferrors.New(ferrors.KindMalformedSourceRecord, "natural key is required")
	}

	var details []ferrors.ValidationError
	for _, field := range models.SortedFieldNames(incoming.Values) {
		kind, ok := models.KnownFields[field]
		if !ok {
			details = append(details, ferrors.ValidationError{
				Kind:    ferrors.KindUnknownField,
				Key:     "field:" + string(field),
				Field:   string(field),
				Message: "unknown field",
			})
			continue
		}
		value := incoming.Values[field]
		if !value.IsEmpty() && value.Kind != kind {
			details = append(details, ferrors.ValidationError{
				Kind:    ferrors.KindMalformedSourceRecord,
				Key:     "field:" + string(field),
				Field:   string(field),
				Message: "expected " + string(kind) + " value",
			})
		}
	}
	if len(details) > 0 {
		return ferrors.Newf(ferrors.KindMalformedSourceRecord, "invalid record %s", incoming).WithDetails(details...)
	}
	return nil
}
