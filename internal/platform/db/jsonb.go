package db

import (
	"encoding/json"
	"fmt"
)

// JSONB encodes v for a JSONB column. Nil values, including nil slices and
// maps, are stored as SQL NULL.
func JSONB(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

// ScanJSONB decodes a JSONB column read as bytes into dst. NULL leaves dst
// untouched.
func ScanJSONB(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode jsonb: %w", err)
	}
	return nil
}
