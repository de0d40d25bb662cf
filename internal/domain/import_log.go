package domain

import (
	"time"

	"github.com/google/uuid"
)

// ImportLogEntry records a problem hit while importing a file: an upload that
// was rejected before staging, or a commit that was refused or failed.
type ImportLogEntry struct {
	ID           int64      `json:"id"`
	BatchID      *uuid.UUID `json:"batchId,omitempty"`
	FileName     string     `json:"fileName"`
	RowNumber    *int       `json:"rowNumber,omitempty"`
	ErrorMessage string     `json:"errorMessage"`
	CreatedAt    time.Time  `json:"createdAt"`
}
