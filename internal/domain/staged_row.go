package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StagedRowStatus tracks a staged row through its lifecycle.
type StagedRowStatus string

const (
	StagedRowStatusPending  StagedRowStatus = "pending"
	StagedRowStatusImported StagedRowStatus = "imported"
)

// RawField is one header/value cell pair as it appeared in the uploaded file.
type RawField struct {
	Header string `json:"header"`
	Value  string `json:"value"`
}

// RawPayload preserves the uploaded columns in source order.
type RawPayload []RawField

// Get returns the value of the last column whose header matches exactly.
func (p RawPayload) Get(header string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, field := range p {
		if field.Header == header {
			value = field.Value
			found = true
		}
	}
	return value, found
}

// Map flattens the payload into a header keyed map. Later duplicates win.
func (p RawPayload) Map() map[string]string {
	out := make(map[string]string, len(p))
	for _, field := range p {
		out[field.Header] = field.Value
	}
	return out
}

// ToJSON encodes the payload for the raw_payload JSONB column.
func (p RawPayload) ToJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]RawField(p))
}

// RawPayloadFromJSON decodes a payload stored by ToJSON.
func RawPayloadFromJSON(data []byte) (RawPayload, error) {
	if len(data) == 0 {
		return RawPayload{}, nil
	}
	var fields []RawField
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode raw payload: %w", err)
	}
	return RawPayload(fields), nil
}

// StagedRow is one parsed spreadsheet line held for validation.
type StagedRow struct {
	ID         int64           `json:"id"`
	BatchID    uuid.UUID       `json:"batch_id"`
	RowNumber  int             `json:"row_number"`
	FileName   string          `json:"file_name"`
	RawPayload RawPayload      `json:"raw_payload"`
	Status     StagedRowStatus `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}
