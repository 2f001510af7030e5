package merging

import (
	"fmt"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Validate checks a decision set against both vendors' entity graphs and returns every problem found.
// An empty result means the merge may execute.
func Validate(
	survivor, source models.EntityGraph,
	fieldDecisions []models.FieldMergeDecision,
	offeringDecisions []models.OfferingCollisionDecision,
) []ferrors.ValidationError {
	details := validateCandidate(survivor.Vendor, source.Vendor)
	if len(details) > 0 {
		return details
	}

	decided := map[models.FieldName]bool{}
	for _, d := range fieldDecisions {
		key := "field:" + string(d.FieldName)
		kind, known := models.KnownFields[d.FieldName]
		if !known {
			details = append(details, invalid(ferrors.KindUnknownField, key, string(d.FieldName), "", "unknown field"))
			continue
		}
		if decided[d.FieldName] {
			details = append(details, invalid(ferrors.KindInvalidFieldDecision, key, string(d.FieldName), "", "field decided more than once"))
			continue
		}
		decided[d.FieldName] = true

		switch {
		case !d.ChosenSource.Valid():
			details = append(details, invalid(ferrors.KindInvalidFieldDecision, key, string(d.FieldName), "", fmt.Sprintf("invalid chosen_source %q", d.ChosenSource)))
		case d.ChosenSource != models.ChosenSourceManualValue:
		case d.ChosenValue.IsEmpty():
			details = append(details, invalid(ferrors.KindInvalidFieldDecision, key, string(d.FieldName), "", "manual value is empty"))
		default:
			if _, err := d.ChosenValue.Coerce(kind); err != nil {
				details = append(details, invalid(ferrors.KindInvalidFieldDecision, key, string(d.FieldName), "", err.Error()))
			}
		}
	}

	for _, field := range differingFields(survivor.Vendor, source.Vendor) {
		if !decided[field] {
			details = append(details, invalid(ferrors.KindIncompleteMergeDecisions, "field:"+string(field), string(field), "", "decision required"))
		}
	}

	survivorOfferings := map[string]models.Offering{}
	for _, o := range survivor.ActiveOfferings() {
		survivorOfferings[o.ID] = o
	}
	sourceOfferings := map[string]models.Offering{}
	for _, o := range source.ActiveOfferings() {
		sourceOfferings[o.ID] = o
	}

	covered := map[string]bool{}
	for _, d := range offeringDecisions {
		key := "offering:" + d.SourceOfferingID
		if covered[d.SourceOfferingID] {
			details = append(details, invalid(ferrors.KindInvalidCollisionTarget, key, "", d.SourceOfferingID, "offering decided more than once"))
			continue
		}
		covered[d.SourceOfferingID] = true

		if msg := checkOfferingDecision(d, sourceOfferings, survivorOfferings); msg != "" {
			details = append(details, invalid(ferrors.KindInvalidCollisionTarget, key, "", d.SourceOfferingID, msg))
		}
	}

	for _, c := range Collisions(survivor, source) {
		if !covered[c.SourceOfferingID] {
			details = append(details, invalid(ferrors.KindIncompleteMergeDecisions, "offering:"+c.SourceOfferingID, "", c.SourceOfferingID,
				fmt.Sprintf("offering %q collides with a survivor offering", c.SourceOfferingName)))
		}
	}

	return details
}

func checkOfferingDecision(d models.OfferingCollisionDecision, source, survivor map[string]models.Offering) string {
	hasTarget := d.TargetOfferingID != nil && *d.TargetOfferingID != ""
	switch {
	case !d.Action.Valid():
		return fmt.Sprintf("invalid action %q", d.Action)
	case !mapHas(source, d.SourceOfferingID):
		return "not an active offering of the source vendor"
	case d.Action != models.CollisionMergeIntoTarget && hasTarget:
		return "target_offering_id is only allowed for merge_into_target"
	case d.Action != models.CollisionMergeIntoTarget:
		return ""
	case !hasTarget:
		return "target_offering_id is required for merge_into_target"
	case !mapHas(survivor, *d.TargetOfferingID):
		return fmt.Sprintf("target %s is not an active offering of the survivor", *d.TargetOfferingID)
	}
	return ""
}

func mapHas[V any](m map[string]V, key string) bool {
	_, ok := m[key]
	return ok
}

func validateCandidate(survivor, source models.VendorRecord) []ferrors.ValidationError {
	if survivor.VendorID == source.VendorID {
		return []ferrors.ValidationError{invalid(ferrors.KindIdenticalVendorIds, "candidate", "", "", "survivor and source must be different vendors")}
	}

	var details []ferrors.ValidationError
	for _, v := range []models.VendorRecord{survivor, source} {
		if v.IsArchived() {
			details = append(details, invalid(ferrors.KindArchivedVendor, "vendor:"+v.VendorID, "", "", "vendor is archived"))
		}
	}
	return details
}

var kindPrecedence = []ferrors.Kind{
	ferrors.KindIdenticalVendorIds,
	ferrors.KindArchivedVendor,
	ferrors.KindIncompleteMergeDecisions,
	ferrors.KindInvalidCollisionTarget,
	ferrors.KindInvalidFieldDecision,
	ferrors.KindUnknownField,
}

// ValidationFailure folds validation details into one error whose kind is the most fundamental problem found
func ValidationFailure(details []ferrors.ValidationError) error {
	if len(details) == 0 {
		return nil
	}
	kind := details[0].Kind
	for _, k := range kindPrecedence {
		if hasKind(details, k) {
			kind = k
			break
		}
	}
	return ferrors.New(kind, "merge cannot proceed").WithDetails(details...)
}

func hasKind(details []ferrors.ValidationError, kind ferrors.Kind) bool {
	for _, d := range details {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func invalid(kind ferrors.Kind, key, field, offeringID, msg string) ferrors.ValidationError {
	return ferrors.ValidationError{
		Kind:       kind,
		Key:        key,
		Field:      field,
		OfferingID: offeringID,
		Message:    msg,
	}
}
