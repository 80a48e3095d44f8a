package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opendatakr/npscache/internal/workplace"
)

// EncodeSnapshot renders one record as its ledger snapshot JSON.
func EncodeSnapshot(record workplace.Record) (string, error) {
	encoded, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode record snapshot: %w", err)
	}
	return string(encoded), nil
}

// DecodeSnapshot parses a ledger snapshot back into a record. An empty
// snapshot decodes to the zero record.
func DecodeSnapshot(snapshot string) (workplace.Record, error) {
	if strings.TrimSpace(snapshot) == "" {
		return workplace.Record{}, nil
	}
	var record workplace.Record
	if err := json.Unmarshal([]byte(snapshot), &record); err != nil {
		return workplace.Record{}, fmt.Errorf("decode record snapshot: %w", err)
	}
	return record, nil
}
