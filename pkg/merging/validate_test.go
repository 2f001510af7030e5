package merging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func graphs() (models.EntityGraph, models.EntityGraph) {
	survivor := models.EntityGraph{
		Vendor: vendor("vnd-001",
			map[models.FieldName]string{models.FieldLegalName: "Acme Corporation", models.FieldCity: "Austin"},
			map[models.FieldName]string{models.FieldLegalName: "PeopleSoft", models.FieldCity: "PeopleSoft"}),
		Offerings: []models.Offering{
			{ID: "off-1", VendorID: "vnd-001", Name: "Support Plan", Status: models.OfferingStatusActive},
			{ID: "off-9", VendorID: "vnd-001", Name: "Legacy", Status: models.OfferingStatusArchived},
		},
	}
	source := models.EntityGraph{
		Vendor: vendor("vnd-003",
			map[models.FieldName]string{models.FieldLegalName: "Acme Corp", models.FieldCity: "Austin"},
			map[models.FieldName]string{models.FieldLegalName: "Zycus", models.FieldCity: "Zycus"}),
		Offerings: []models.Offering{
			{ID: "off-3", VendorID: "vnd-003", Name: " SUPPORT plan ", Status: models.OfferingStatusActive},
			{ID: "off-5", VendorID: "vnd-003", Name: "Legacy", Status: models.OfferingStatusActive},
		},
	}
	return survivor, source
}

func TestValidateCompleteness(t *testing.T) {
	decideName := models.FieldMergeDecision{FieldName: models.FieldLegalName, ChosenSource: models.ChosenSourceSurvivor}
	decideSupport := models.OfferingCollisionDecision{SourceOfferingID: "off-3", Action: models.CollisionKeepWithRename}

	tests := []struct {
		name      string
		fields    []models.FieldMergeDecision
		offerings []models.OfferingCollisionDecision
		wantKeys  []string
	}{
		{
			name:      "everything decided",
			fields:    []models.FieldMergeDecision{decideName},
			offerings: []models.OfferingCollisionDecision{decideSupport},
		},
		{
			name:     "nothing decided",
			wantKeys: []string{"field:legal_name", "offering:off-3"},
		},
		{
			name:      "missing field only",
			offerings: []models.OfferingCollisionDecision{decideSupport},
			wantKeys:  []string{"field:legal_name"},
		},
		{
			name:     "missing collision only",
			fields:   []models.FieldMergeDecision{decideName},
			wantKeys: []string{"offering:off-3"},
		},
		{
			name: "equal fields and archived offerings need nothing",
			fields: []models.FieldMergeDecision{
				decideName,
				{FieldName: models.FieldCity, ChosenSource: models.ChosenSourceSource},
			},
			offerings: []models.OfferingCollisionDecision{decideSupport},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			survivor, source := graphs()
			details := Validate(survivor, source, tt.fields, tt.offerings)

			var keys []string
			for _, d := range details {
				assert.Equal(t, ferrors.KindIncompleteMergeDecisions, d.Kind)
				keys = append(keys, d.Key)
			}
			assert.Equal(t, tt.wantKeys, keys)
		})
	}
}

func TestValidateRejectsBadDecisions(t *testing.T) {
	decideName := models.FieldMergeDecision{FieldName: models.FieldLegalName, ChosenSource: models.ChosenSourceSurvivor}

	tests := []struct {
		name     string
		fields   []models.FieldMergeDecision
		offering models.OfferingCollisionDecision
		kind     ferrors.Kind
	}{
		{
			name:     "merge target missing",
			fields:   []models.FieldMergeDecision{decideName},
			offering: models.OfferingCollisionDecision{SourceOfferingID: "off-3", Action: models.CollisionMergeIntoTarget},
			kind:     ferrors.KindInvalidCollisionTarget,
		},
		{
			name:     "merge target owned by source",
			fields:   []models.FieldMergeDecision{decideName},
			offering: models.OfferingCollisionDecision{SourceOfferingID: "off-3", Action: models.CollisionMergeIntoTarget, TargetOfferingID: ptr("off-5")},
			kind:     ferrors.KindInvalidCollisionTarget,
		},
		{
			name:     "merge target archived",
			fields:   []models.FieldMergeDecision{decideName},
			offering: models.OfferingCollisionDecision{SourceOfferingID: "off-3", Action: models.CollisionMergeIntoTarget, TargetOfferingID: ptr("off-9")},
			kind:     ferrors.KindInvalidCollisionTarget,
		},
		{
			name:     "target on keep action",
			fields:   []models.FieldMergeDecision{decideName},
			offering: models.OfferingCollisionDecision{SourceOfferingID: "off-3", Action: models.CollisionKeepAsNew, TargetOfferingID: ptr("off-1")},
			kind:     ferrors.KindInvalidCollisionTarget,
		},
		{
			name:     "unknown action",
			fields:   []models.FieldMergeDecision{decideName},
			offering: models.OfferingCollisionDecision{SourceOfferingID: "off-3", Action: "delete"},
			kind:     ferrors.KindInvalidCollisionTarget,
		},
		{
			name: "empty manual value",
			fields: []models.FieldMergeDecision{
				{FieldName: models.FieldLegalName, ChosenSource: models.ChosenSourceManualValue},
			},
			offering: models.OfferingCollisionDecision{SourceOfferingID: "off-3", Action: models.CollisionKeepAsNew},
			kind:     ferrors.KindInvalidFieldDecision,
		},
		{
			name: "unknown field",
			fields: []models.FieldMergeDecision{
				decideName,
				{FieldName: "shoe_size", ChosenSource: models.ChosenSourceSurvivor},
			},
			offering: models.OfferingCollisionDecision{SourceOfferingID: "off-3", Action: models.CollisionKeepAsNew},
			kind:     ferrors.KindUnknownField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			survivor, source := graphs()
			details := Validate(survivor, source, tt.fields, []models.OfferingCollisionDecision{tt.offering})
			assert.NotEmpty(t, details)
			assert.Equal(t, tt.kind, ferrors.KindOf(ValidationFailure(details)))
		})
	}
}

func TestValidateCandidate(t *testing.T) {
	survivor, source := graphs()

	details := Validate(survivor, survivor, nil, nil)
	assert.Equal(t, ferrors.KindIdenticalVendorIds, ferrors.KindOf(ValidationFailure(details)))

	source.Vendor.Status = models.VendorStatusArchived
	details = Validate(survivor, source, nil, nil)
	assert.Len(t, details, 1)
	assert.Equal(t, "vendor:vnd-003", details[0].Key)
	assert.Equal(t, ferrors.KindArchivedVendor, ferrors.KindOf(ValidationFailure(details)))

	assert.NoError(t, ValidationFailure(nil))
}

func TestDifferencesSuggestions(t *testing.T) {
	matrix := defaultMatrix(t)

	survivor := vendor("vnd-001",
		map[models.FieldName]string{
			models.FieldLegalName:    "Acme Corporation",
			models.FieldTaxID:        "11-111",
			models.FieldDescription:  "Hardware reseller",
			models.FieldPrimaryEmail: "ap@acme.com",
		},
		map[models.FieldName]string{
			models.FieldLegalName:    "Zycus",
			models.FieldTaxID:        "CSV-import",
			models.FieldDescription:  models.SourceAppUserEdit,
			models.FieldPrimaryEmail: "Zycus",
		})
	survivor.Overrides[models.FieldPrimaryEmail] = models.FieldOverride{SetBy: "steward"}

	source := vendor("vnd-003",
		map[models.FieldName]string{
			models.FieldLegalName:    "Acme Corp",
			models.FieldTaxID:        "22-222",
			models.FieldDescription:  "Reseller",
			models.FieldPrimaryEmail: "billing@acme.com",
			models.FieldCity:         "Austin",
		},
		map[models.FieldName]string{
			models.FieldLegalName:    "PeopleSoft",
			models.FieldTaxID:        "PeopleSoft",
			models.FieldDescription:  models.SourceAppUserEdit,
			models.FieldPrimaryEmail: models.SourceAppUserEdit,
			models.FieldCity:         "Zycus",
		})

	got := map[models.FieldName]models.ChosenSource{}
	for _, d := range Differences(matrix, survivor, source) {
		got[d.FieldName] = d.Suggested.ChosenSource
	}

	assert.Equal(t, map[models.FieldName]models.ChosenSource{
		models.FieldLegalName:    models.ChosenSourceSource,   // PeopleSoft outranks Zycus
		models.FieldTaxID:        models.ChosenSourceSource,   // PeopleSoft outranks CSV-import
		models.FieldDescription:  models.ChosenSourceSurvivor, // app owned
		models.FieldPrimaryEmail: models.ChosenSourceSurvivor, // override
		models.FieldCity:         models.ChosenSourceSource,   // only the source has it
	}, got)
}
