package feeder

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONFeeder serves the objects of a JSON array. Non-string values are
// formatted with %v.
type JSONFeeder struct {
	records
}

// NewJSONFeeder loads path fully into memory.
func NewJSONFeeder(path string) (*JSONFeeder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("JSON file %s contains an empty array", path)
	}

	f := &JSONFeeder{records: records{cycle: true, rows: make([]Record, 0, len(raw))}}
	for i, obj := range raw {
		if len(obj) == 0 {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		rec := make(Record, len(obj))
		for key, value := range obj {
			rec[key] = fmt.Sprintf("%v", value)
		}
		f.rows = append(f.rows, rec)
	}
	return f, nil
}
