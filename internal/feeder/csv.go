package feeder

import (
	"encoding/csv"
	"fmt"
	"os"
)

// CSVFeeder serves the rows of a CSV file whose first row names the fields.
// Rows are handed out in file order and wrap around.
type CSVFeeder struct {
	records
}

// NewCSVFeeder loads path fully into memory.
func NewCSVFeeder(path string) (*CSVFeeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file %s needs a header row and at least one data row", path)
	}

	header := rows[0]
	f := &CSVFeeder{records: records{cycle: true, rows: make([]Record, 0, len(rows)-1)}}
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(row), len(header))
		}
		rec := make(Record, len(header))
		for j, field := range header {
			rec[field] = row[j]
		}
		f.rows = append(f.rows, rec)
	}
	return f, nil
}
