package ingestion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "\uFEFFvendor_natural_key, legal_name,annual_spend,phone\n" +
		"row-1,Acme Corporation,1200.50,\n" +
		"row-2,\"Globex, Inc.\",,555-0100\n"

	records, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"vendor_natural_key": "row-1", "legal_name": "Acme Corporation", "annual_spend": "1200.50"},
		{"vendor_natural_key": "row-2", "legal_name": "Globex, Inc.", "phone": "555-0100"},
	}, records)

	records, err = ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = ReadCSV(strings.NewReader("vendor_natural_key,legal_name\nrow-1\n"))
	assert.ErrorContains(t, err, "row 2")
}

func TestIngestCSVBatch(t *testing.T) {
	f := newFixture(t, nil, nil)

	records, err := ReadCSV(strings.NewReader("vendor_natural_key,legal_name,annual_spend\nrow-1,Acme Corporation,1200.50\nrow-2,Globex,not-a-number\n"))
	require.NoError(t, err)

	report := f.service.IngestBatch(context.Background(), SourceCSVImport, records)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Outcomes[OutcomeCreated])
	assert.Equal(t, 1, report.Outcomes[OutcomeFailed])
}
