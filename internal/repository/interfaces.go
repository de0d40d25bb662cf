package repository

import (
	"context"

	"github.com/rpattn/drillops/internal/domain"

	"github.com/google/uuid"
)

// StagingRepository stores uploaded rows until they are committed.
type StagingRepository interface {
	Stage(ctx context.Context, batchID uuid.UUID, fileName string, rows []domain.RawPayload) (int, error)
	ListPending(ctx context.Context, batchID uuid.UUID) ([]domain.StagedRow, error)
	CountRows(ctx context.Context, batchID uuid.UUID) (int, error)
	ListBatches(ctx context.Context) ([]domain.BatchSummary, error)
	DiscardPending(ctx context.Context, batchID uuid.UUID) (int, error)
}

// ReferenceRepository reads the reference-data directory. It is read only.
type ReferenceRepository interface {
	ListReferenceEntities(ctx context.Context, category domain.ReferenceCategory) ([]domain.ReferenceEntity, error)
}

// CommitStore runs a commit for one batch inside a single transaction that is
// exclusive per batch. fn's error rolls everything back.
type CommitStore interface {
	WithinCommit(ctx context.Context, batchID uuid.UUID, fn func(ctx context.Context, tx CommitTx) error) error
}

// CommitTx is the set of writes allowed inside a commit transaction.
type CommitTx interface {
	// LockPending returns the ids of the batch's rows that are still pending,
	// locking them until the transaction ends.
	LockPending(ctx context.Context) ([]int64, error)
	InsertRecords(ctx context.Context, records []domain.DrillingRecord) (int, error)
	MarkImported(ctx context.Context, ids []int64) error
}

// ImportLogRepository keeps the audit trail of rejected uploads and failed commits.
type ImportLogRepository interface {
	Record(ctx context.Context, entries ...domain.ImportLogEntry) error
	List(ctx context.Context, filter ImportLogFilter) ([]domain.ImportLogEntry, error)
}

// ImportLogFilter narrows List. Zero values match everything.
type ImportLogFilter struct {
	BatchID  *uuid.UUID
	FileName string
	Limit    int
	Offset   int
}
