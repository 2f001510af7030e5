package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SourceCSVImport is the source system recorded for spreadsheet uploads
const SourceCSVImport = "CSV-import"

// ReadCSV turns a header-row CSV into raw records. Blank cells are left out so they never
// blank a canonical field.
func ReadCSV(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
	}
	reader.FieldsPerRecord = len(header)

	var records []map[string]any
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", len(records)+2, err)
		}

		record := make(map[string]any, len(header))
		for i, cell := range row {
			if cell = strings.TrimSpace(cell); cell != "" {
				record[header[i]] = cell
			}
		}
		records = append(records, record)
	}
}
