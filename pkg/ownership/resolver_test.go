package ownership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	m, err := DefaultMatrix()
	require.NoError(t, err)
	return NewResolver(m)
}

func vendorWith(fields map[models.FieldName]models.Value, source string) models.VendorRecord {
	v := models.NewVendorRecord("vnd-001")
	for field, value := range fields {
		v.SetField(field, value, source)
	}
	v.SourceSystem = source
	v.SourceRecordID = "seed"
	v.Version = 3
	return v
}

func partial(source, key string, values map[models.FieldName]models.Value) models.PartialRecord {
	return models.PartialRecord{SourceSystem: source, SourceRecordID: key, Values: values}
}

func TestResolveAcmeExample(t *testing.T) {
	r := newTestResolver(t)
	current := vendorWith(map[models.FieldName]models.Value{
		models.FieldLegalName: models.Text("Acme Corporation"),
	}, "PeopleSoft")

	raw := map[string]any{"vendor_natural_key": "ps-1001", "legal_name": "Acme Corp"}
	incoming, err := models.ParsePartialRecord("PeopleSoft", raw)
	require.NoError(t, err)

	first, err := r.Resolve(current, incoming, "PeopleSoft")
	require.NoError(t, err)
	assert.True(t, first.Changed)
	assert.Equal(t, models.Text("Acme Corp"), first.Merged.Value(models.FieldLegalName))
	require.Len(t, first.Conflicts, 1)
	assert.Equal(t, models.FieldLegalName, first.Conflicts[0].FieldName)
	assert.Equal(t, models.ResolutionIngestionWins, first.Conflicts[0].Resolution)
	assert.True(t, first.Conflicts[0].Applied)
	assert.Equal(t, "ps-1001", first.Merged.SourceRecordID)

	second, err := r.Resolve(first.Merged, incoming, "PeopleSoft")
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Empty(t, second.Conflicts)
	assert.Equal(t, first.Merged, second.Merged)
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	r := newTestResolver(t)
	current := vendorWith(map[models.FieldName]models.Value{
		models.FieldLegalName: models.Text("Acme Corporation"),
	}, "Zycus")
	snapshot := current.Clone()

	_, err := r.Resolve(current, partial("PeopleSoft", "ps-1", map[models.FieldName]models.Value{
		models.FieldLegalName: models.Text("Acme Corp"),
		models.FieldCity:      models.Text("Denver"),
	}), "PeopleSoft")
	require.NoError(t, err)
	assert.Equal(t, snapshot, current)
}

func TestResolveRules(t *testing.T) {
	tests := []struct {
		name               string
		currentValue       models.Value
		currentSource      string
		override           bool
		field              models.FieldName
		incomingValue      models.Value
		source             string
		expectedValue      models.Value
		expectedSource     string
		expectedResolution models.ConflictResolution
		expectedApplied    bool
		expectConflict     bool
	}{
		{
			name:          "fills empty field without conflict",
			field:         models.FieldCity,
			incomingValue: models.Text("Denver"),
			source:        "CSV-import",
			expectedValue: models.Text("Denver"), expectedSource: "CSV-import",
		},
		{
			name:         "equal value is a no-op",
			currentValue: models.Text("Denver"), currentSource: "Zycus",
			field:         models.FieldCity,
			incomingValue: models.Text("Denver"),
			source:        "PeopleSoft",
			expectedValue: models.Text("Denver"), expectedSource: "Zycus",
		},
		{
			name:         "higher ranked source wins",
			currentValue: models.Text("Denver"), currentSource: "Zycus",
			field:         models.FieldCity,
			incomingValue: models.Text("Boulder"),
			source:        "PeopleSoft",
			expectedValue: models.Text("Boulder"), expectedSource: "PeopleSoft",
			expectedResolution: models.ResolutionIngestionWins, expectedApplied: true, expectConflict: true,
		},
		{
			name:         "same source updates its own value",
			currentValue: models.Text("Denver"), currentSource: "Zycus",
			field:         models.FieldCity,
			incomingValue: models.Text("Boulder"),
			source:        "Zycus",
			expectedValue: models.Text("Boulder"), expectedSource: "Zycus",
			expectedResolution: models.ResolutionIngestionWins, expectedApplied: true, expectConflict: true,
		},
		{
			name:         "lower ranked source is skipped",
			currentValue: models.Text("Denver"), currentSource: "PeopleSoft",
			field:         models.FieldCity,
			incomingValue: models.Text("Boulder"),
			source:        "CSV-import",
			expectedValue: models.Text("Denver"), expectedSource: "PeopleSoft",
			expectedResolution: models.ResolutionPriorityTieBreak, expectConflict: true,
		},
		{
			name:         "field specific priority",
			currentValue: models.Text("https://ps.example"), currentSource: "PeopleSoft",
			field:         models.FieldWebsite,
			incomingValue: models.Text("https://zycus.example"),
			source:        "Zycus",
			expectedValue: models.Text("https://zycus.example"), expectedSource: "Zycus",
			expectedResolution: models.ResolutionIngestionWins, expectedApplied: true, expectConflict: true,
		},
		{
			name:         "current source demoted out of the list yields",
			currentValue: models.Text("Net 30"), currentSource: "Zycus",
			field:         models.FieldPaymentTerms,
			incomingValue: models.Text("Net 45"),
			source:        "PeopleSoft",
			expectedValue: models.Text("Net 45"), expectedSource: "PeopleSoft",
			expectedResolution: models.ResolutionPriorityTieBreak, expectedApplied: true, expectConflict: true,
		},
		{
			name:         "unranked incoming source does not beat ranked current",
			currentValue: models.Text("Net 30"), currentSource: "PeopleSoft",
			field:         models.FieldPaymentTerms,
			incomingValue: models.Text("Net 60"),
			source:        "Zycus",
			expectedValue: models.Text("Net 30"), expectedSource: "PeopleSoft",
			expectedResolution: models.ResolutionPriorityTieBreak, expectConflict: true,
		},
		{
			name:         "unranked source does not overwrite another unranked source",
			currentValue: models.Number(1200), currentSource: models.SourceAppUserEdit,
			field:         models.FieldAnnualSpend,
			incomingValue: models.Number(5000),
			source:        "CSV-import",
			expectedValue: models.Number(1200), expectedSource: models.SourceAppUserEdit,
			expectedResolution: models.ResolutionPriorityTieBreak, expectConflict: true,
		},
		{
			name:         "unranked source corrects its own value",
			currentValue: models.Number(1200), currentSource: "CSV-import",
			field:         models.FieldAnnualSpend,
			incomingValue: models.Number(5000),
			source:        "CSV-import",
			expectedValue: models.Number(5000), expectedSource: "CSV-import",
			expectedResolution: models.ResolutionIngestionWins, expectedApplied: true, expectConflict: true,
		},
		{
			name:         "ranked source replaces an unranked value",
			currentValue: models.Number(1200), currentSource: "CSV-import",
			field:         models.FieldAnnualSpend,
			incomingValue: models.Number(5000),
			source:        "Zycus",
			expectedValue: models.Number(5000), expectedSource: "Zycus",
			expectedResolution: models.ResolutionPriorityTieBreak, expectedApplied: true, expectConflict: true,
		},
		{
			name:         "override protects differing value",
			currentValue: models.Text("Acme Holdings"), currentSource: models.SourceAppUserEdit, override: true,
			field:         models.FieldLegalName,
			incomingValue: models.Text("Acme Corp"),
			source:        "PeopleSoft",
			expectedValue: models.Text("Acme Holdings"), expectedSource: models.SourceAppUserEdit,
			expectedResolution: models.ResolutionOverrideActive, expectConflict: true,
		},
		{
			name:         "override with equal value is silent",
			currentValue: models.Text("Acme Holdings"), currentSource: models.SourceAppUserEdit, override: true,
			field:         models.FieldLegalName,
			incomingValue: models.Text("Acme Holdings"),
			source:        "PeopleSoft",
			expectedValue: models.Text("Acme Holdings"), expectedSource: models.SourceAppUserEdit,
		},
		{
			name:         "natural key always wins from the authoritative source",
			currentValue: models.Text("ERP-1"), currentSource: "PeopleSoft", override: true,
			field:         models.FieldERPVendorID,
			incomingValue: models.Text("ERP-2"),
			source:        "PeopleSoft",
			expectedValue: models.Text("ERP-2"), expectedSource: "PeopleSoft",
			expectedResolution: models.ResolutionIngestionWins, expectedApplied: true, expectConflict: true,
		},
		{
			name:         "natural key from another source is not applied",
			currentValue: models.Text("ERP-1"), currentSource: "PeopleSoft",
			field:         models.FieldERPVendorID,
			incomingValue: models.Text("ERP-9"),
			source:        "Zycus",
			expectedValue: models.Text("ERP-1"), expectedSource: "PeopleSoft",
			expectedResolution: models.ResolutionPriorityTieBreak, expectConflict: true,
		},
		{
			name:          "natural key fills empty from any source",
			field:         models.FieldERPVendorID,
			incomingValue: models.Text("ERP-9"),
			source:        "Zycus",
			expectedValue: models.Text("ERP-9"), expectedSource: "Zycus",
		},
		{
			name:         "app owned field is ignored",
			currentValue: models.Text("high"), currentSource: models.SourceAppUserEdit,
			field:         models.FieldRiskTier,
			incomingValue: models.Text("low"),
			source:        "PeopleSoft",
			expectedValue: models.Text("high"), expectedSource: models.SourceAppUserEdit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t)
			current := models.NewVendorRecord("vnd-001")
			if !tt.currentValue.IsEmpty() {
				current.SetField(tt.field, tt.currentValue, tt.currentSource)
			}
			if tt.override {
				current.Overrides[tt.field] = models.FieldOverride{SetBy: "user-1", SetAt: time.Now()}
			}

			result, err := r.Resolve(current, partial(tt.source, "rec-1", map[models.FieldName]models.Value{
				tt.field: tt.incomingValue,
			}), tt.source)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedValue, result.Merged.Value(tt.field))
			assert.Equal(t, tt.expectedSource, result.Merged.FieldSources[tt.field])
			if !tt.expectConflict {
				assert.Empty(t, result.Conflicts)
				return
			}
			require.Len(t, result.Conflicts, 1)
			assert.Equal(t, tt.expectedResolution, result.Conflicts[0].Resolution)
			assert.Equal(t, tt.expectedApplied, result.Conflicts[0].Applied)
			assert.Equal(t, tt.currentValue, result.Conflicts[0].CurrentValue)
			assert.Equal(t, tt.incomingValue, result.Conflicts[0].IncomingValue)
		})
	}
}

func TestResolveIdempotence(t *testing.T) {
	r := newTestResolver(t)
	payload := map[models.FieldName]models.Value{
		models.FieldLegalName:          models.Text("Globex"),
		models.FieldCity:               models.Text("Springfield"),
		models.FieldWebsite:            models.Text("https://globex.example"),
		models.FieldAnnualSpend:        models.Number(900),
		models.FieldDiversityCertified: models.Flag(true),
		models.FieldRiskTier:           models.Text("low"),
		models.FieldERPVendorID:        models.Text("ERP-77"),
	}

	starts := []models.VendorRecord{
		models.NewVendorRecord("vnd-empty"),
		vendorWith(map[models.FieldName]models.Value{
			models.FieldLegalName:   models.Text("Globex Corporation"),
			models.FieldCity:        models.Text("Shelbyville"),
			models.FieldAnnualSpend: models.Number(100),
		}, "CSV-import"),
		vendorWith(map[models.FieldName]models.Value{
			models.FieldLegalName: models.Text("Globex Intl"),
			models.FieldWebsite:   models.Text("https://old.example"),
		}, "PeopleSoft"),
	}

	for _, source := range []string{"PeopleSoft", "Zycus", "CSV-import"} {
		for _, start := range starts {
			incoming := partial(source, "rec-1", payload)
			first, err := r.Resolve(start, incoming, source)
			require.NoError(t, err)

			second, err := r.Resolve(first.Merged, incoming, source)
			require.NoError(t, err)

			assert.Equal(t, first.Merged, second.Merged, "source %s", source)
			assert.False(t, second.Changed, "source %s", source)
			for _, c := range second.Conflicts {
				assert.NotEqual(t, models.ResolutionIngestionWins, c.Resolution, "source %s field %s", source, c.FieldName)
				assert.False(t, c.Applied)
			}
		}
	}
}

func TestResolveOverrideInviolability(t *testing.T) {
	r := newTestResolver(t)

	current := models.NewVendorRecord("vnd-001")
	for _, field := range models.AllFieldNames() {
		if r.Matrix().IsAppOwned(field) || field == r.Matrix().NaturalKeyField() {
			continue
		}
		var value models.Value
		switch models.KnownFields[field] {
		case models.ValueKindFlag:
			value = models.Flag(true)
		case models.ValueKindNumber:
			value = models.Number(1)
		default:
			value = models.Text("human " + string(field))
		}
		current.SetField(field, value, models.SourceAppUserEdit)
		current.Overrides[field] = models.FieldOverride{SetBy: "steward", SetAt: time.Now()}
	}
	protected := current.Clone()

	incoming := map[models.FieldName]models.Value{}
	for field := range protected.Overrides {
		switch models.KnownFields[field] {
		case models.ValueKindFlag:
			incoming[field] = models.Flag(false)
		case models.ValueKindNumber:
			incoming[field] = models.Number(99)
		default:
			incoming[field] = models.Text("ingested " + string(field))
		}
	}

	for i := 0; i < 3; i++ {
		for _, source := range []string{"PeopleSoft", "Zycus", "CSV-import"} {
			result, err := r.Resolve(current, partial(source, "rec", incoming), source)
			require.NoError(t, err)
			for field := range protected.Overrides {
				assert.Equal(t, protected.Value(field), result.Merged.Value(field), "field %s source %s", field, source)
			}
			for _, c := range result.Conflicts {
				assert.Equal(t, models.ResolutionOverrideActive, c.Resolution)
			}
			current = result.Merged
		}
	}
}

func TestResolveAppFieldIsolation(t *testing.T) {
	r := newTestResolver(t)
	current := vendorWith(map[models.FieldName]models.Value{
		models.FieldDescription: models.Text("Preferred supplier"),
		models.FieldCategory:    models.Text("IT"),
	}, models.SourceAppUserEdit)

	for _, source := range []string{"PeopleSoft", "Zycus", "CSV-import"} {
		result, err := r.Resolve(current, partial(source, "rec", map[models.FieldName]models.Value{
			models.FieldDescription: models.Text("overwritten"),
			models.FieldCategory:    models.Text("Facilities"),
			models.FieldRiskTier:    models.Text("critical"),
		}), source)
		require.NoError(t, err)

		assert.Equal(t, current, result.Merged)
		assert.Empty(t, result.Conflicts)
		assert.False(t, result.Changed)
	}
}

func TestResolveRejectsMalformedInput(t *testing.T) {
	r := newTestResolver(t)
	current := models.NewVendorRecord("vnd-001")

	tests := []struct {
		name     string
		incoming models.PartialRecord
		source   string
	}{
		{name: "unknown source", incoming: partial("SAP", "1", nil), source: "SAP"},
		{name: "reserved source", incoming: partial(models.SourceAppUserEdit, "1", nil), source: models.SourceAppUserEdit},
		{name: "source mismatch", incoming: partial("Zycus", "1", nil), source: "PeopleSoft"},
		{name: "missing natural key", incoming: partial("Zycus", "", nil), source: "Zycus"},
		{
			name:     "unknown field",
			incoming: partial("Zycus", "1", map[models.FieldName]models.Value{"shoe_size": models.Number(9)}),
			source:   "Zycus",
		},
		{
			name:     "wrong kind",
			incoming: partial("Zycus", "1", map[models.FieldName]models.Value{models.FieldAnnualSpend: models.Text("lots")}),
			source:   "Zycus",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Resolve(current, tt.incoming, tt.source)
			require.Error(t, err)
			assert.True(t, ferrors.Is(err, ferrors.KindMalformedSourceRecord))
			assert.Equal(t, models.ResolveResult{}, result)
		})
	}
}
