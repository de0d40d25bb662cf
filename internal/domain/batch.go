package domain

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the coarse label shown for a batch in listings.
type BatchStatus string

const (
	BatchStatusImported BatchStatus = "Imported"
	BatchStatusPending  BatchStatus = "Pending"
	BatchStatusError    BatchStatus = "Error"
)

// BatchSummary aggregates the staged rows sharing a batch id.
type BatchSummary struct {
	BatchID   uuid.UUID   `json:"batchId"`
	FileName  string      `json:"fileName"`
	TotalRows int         `json:"totalRows"`
	Pending   int         `json:"pending"`
	Imported  int         `json:"imported"`
	CreatedAt time.Time   `json:"createdAt"`
	Status    BatchStatus `json:"status"`
}

// DeriveBatchStatus labels a batch from its counts. Any imported row makes the
// batch Imported even when other rows are still pending, so callers that need
// the full picture should read the counts as well.
func DeriveBatchStatus(pending, imported int) BatchStatus {
	switch {
	case imported > 0:
		return BatchStatusImported
	case pending > 0:
		return BatchStatusPending
	default:
		return BatchStatusError
	}
}

// WithDerivedStatus returns a copy of the summary with Status filled from its counts.
func (b BatchSummary) WithDerivedStatus() BatchSummary {
	b.Status = DeriveBatchStatus(b.Pending, b.Imported)
	return b
}
