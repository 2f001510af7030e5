package merging

import (
	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ownership"
)

// differingFields lists known fields whose survivor and source values are not equal
func differingFields(survivor, source models.VendorRecord) []models.FieldName {
	return ectolinq.Filter(models.AllFieldNames(), func(field models.FieldName) bool {
		return !survivor.Value(field).Equal(source.Value(field))
	})
}

// Differences lists the fields a reviewer must decide, each with a default suggestion.
// The suggestion is never applied without being confirmed.
func Differences(matrix *ownership.Matrix, survivor, source models.VendorRecord) []models.FieldDifference {
	fields := differingFields(survivor, source)
	diffs := make([]models.FieldDifference, 0, len(fields))
	for _, field := range fields {
		diff := models.FieldDifference{
			FieldName:      field,
			SurvivorValue:  survivor.Value(field),
			SourceValue:    source.Value(field),
			SurvivorSource: survivor.FieldSources[field],
			SourceSource:   source.FieldSources[field],
		}

		chosen := suggest(matrix, field, survivor, source)
		diff.Suggested = models.FieldMergeDecision{FieldName: field, ChosenSource: chosen}
		if chosen == models.ChosenSourceSource {
			diff.Suggested.ChosenValue = diff.SourceValue
		} else {
			diff.Suggested.ChosenValue = diff.SurvivorValue
		}
		diffs = append(diffs, diff)
	}
	return diffs
}

func suggest(matrix *ownership.Matrix, field models.FieldName, survivor, source models.VendorRecord) models.ChosenSource {
	switch {
	case survivor.Value(field).IsEmpty():
		return models.ChosenSourceSource
	case source.Value(field).IsEmpty():
		return models.ChosenSourceSurvivor
	case survivor.IsOverridden(field):
		return models.ChosenSourceSurvivor
	case source.IsOverridden(field):
		return models.ChosenSourceSource
	case matrix.IsAppOwned(field):
		return models.ChosenSourceSurvivor
	}

	if matrix.Rank(field, source.FieldSources[field]) > matrix.Rank(field, survivor.FieldSources[field]) {
		return models.ChosenSourceSource
	}
	return models.ChosenSourceSurvivor
}

// Collisions finds active source offerings whose normalized name matches an active survivor offering
func Collisions(survivor, source models.EntityGraph) []models.OfferingCollision {
	byName := map[string][]string{}
	for _, o := range survivor.ActiveOfferings() {
		byName[o.NormalizedName()] = append(byName[o.NormalizedName()], o.ID)
	}

	collisions := []models.OfferingCollision{}
	for _, o := range source.ActiveOfferings() {
		matches, ok := byName[o.NormalizedName()]
		if !ok {
			continue
		}
		collisions = append(collisions, models.OfferingCollision{
			SourceOfferingID:    o.ID,
			SourceOfferingName:  o.Name,
			NormalizedName:      o.NormalizedName(),
			SurvivorOfferingIDs: append([]string(nil), matches...),
		})
	}
	return collisions
}
