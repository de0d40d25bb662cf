package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/drillops/internal/db"
	"github.com/rpattn/drillops/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// DefaultStageChunkSize bounds the rows written per staging transaction.
const DefaultStageChunkSize = 500

var stagedRowColumns = []string{"batch_id", "row_number", "file_name", "raw_payload", "status"}

type stagingRepository struct {
	pool      *pgxpool.Pool
	chunkSize int
	log       logrus.FieldLogger
}

// NewStagingRepository wires a staging repository backed by pgxpool.
func NewStagingRepository(pool *pgxpool.Pool, chunkSize int, log logrus.FieldLogger) StagingRepository {
	if chunkSize <= 0 {
		chunkSize = DefaultStageChunkSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &stagingRepository{pool: pool, chunkSize: chunkSize, log: log}
}

// Stage copies rows into staged_rows one chunk per transaction. Row numbers
// follow the slice order starting at 1. Chunks committed before a failure stay
// staged.
func (r *stagingRepository) Stage(ctx context.Context, batchID uuid.UUID, fileName string, rows []domain.RawPayload) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("staging repository not initialized")
	}

	staged := 0
	for _, chunk := range ChunkRows(rows, r.chunkSize) {
		values := make([][]any, 0, len(chunk.Rows))
		for i, payload := range chunk.Rows {
			raw, err := payload.ToJSON()
			if err != nil {
				return staged, fmt.Errorf("failed to encode row %d: %w", chunk.FirstRowNumber+i, err)
			}
			values = append(values, []any{
				batchID,
				int32(chunk.FirstRowNumber + i),
				fileName,
				raw,
				string(domain.StagedRowStatusPending),
			})
		}

		err := db.WithTx(ctx, r.pool, r.log, func(tx pgx.Tx) error {
			copied, err := tx.CopyFrom(ctx, pgx.Identifier{"staged_rows"}, stagedRowColumns, pgx.CopyFromRows(values))
			if err != nil {
				return err
			}
			if int(copied) != len(values) {
				return fmt.Errorf("copied %d of %d rows", copied, len(values))
			}
			return nil
		})
		if err != nil {
			return staged, fmt.Errorf("failed to stage rows %d-%d: %w", chunk.FirstRowNumber, chunk.FirstRowNumber+len(chunk.Rows)-1, err)
		}
		staged += len(values)
	}

	return staged, nil
}

func (r *stagingRepository) ListPending(ctx context.Context, batchID uuid.UUID) ([]domain.StagedRow, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("staging repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, batch_id, row_number, file_name, raw_payload, status, created_at
		 FROM staged_rows
		 WHERE batch_id = $1 AND status = $2
		 ORDER BY row_number`,
		batchID,
		string(domain.StagedRowStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rows: %w", err)
	}
	defer rows.Close()

	staged := []domain.StagedRow{}
	for rows.Next() {
		var (
			row       domain.StagedRow
			rowNumber int32
			raw       []byte
			status    string
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(&row.ID, &row.BatchID, &rowNumber, &row.FileName, &raw, &status, &createdAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan staged row: %w", scanErr)
		}

		payload, decodeErr := domain.RawPayloadFromJSON(raw)
		if decodeErr != nil {
			return nil, fmt.Errorf("staged row %d: %w", rowNumber, decodeErr)
		}
		row.RowNumber = int(rowNumber)
		row.RawPayload = payload
		row.Status = domain.StagedRowStatus(status)
		if createdAt.Valid {
			row.CreatedAt = createdAt.Time
		}
		staged = append(staged, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate staged rows: %w", rowsErr)
	}

	return staged, nil
}

func (r *stagingRepository) CountRows(ctx context.Context, batchID uuid.UUID) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("staging repository not initialized")
	}

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM staged_rows WHERE batch_id = $1`, batchID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count staged rows: %w", err)
	}
	return int(count), nil
}

func (r *stagingRepository) ListBatches(ctx context.Context) ([]domain.BatchSummary, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("staging repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT batch_id,
		        MIN(file_name),
		        COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'pending'),
		        COUNT(*) FILTER (WHERE status = 'imported'),
		        MAX(created_at)
		 FROM staged_rows
		 GROUP BY batch_id
		 ORDER BY MAX(created_at) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	batches := []domain.BatchSummary{}
	for rows.Next() {
		var (
			summary                  domain.BatchSummary
			total, pending, imported int64
			createdAt                pgtype.Timestamptz
		)
		if scanErr := rows.Scan(&summary.BatchID, &summary.FileName, &total, &pending, &imported, &createdAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan batch summary: %w", scanErr)
		}
		summary.TotalRows = int(total)
		summary.Pending = int(pending)
		summary.Imported = int(imported)
		if createdAt.Valid {
			summary.CreatedAt = createdAt.Time
		}
		batches = append(batches, summary.WithDerivedStatus())
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate batches: %w", rowsErr)
	}

	return batches, nil
}

func (r *stagingRepository) DiscardPending(ctx context.Context, batchID uuid.UUID) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("staging repository not initialized")
	}

	tag, err := r.pool.Exec(
		ctx,
		`DELETE FROM staged_rows WHERE batch_id = $1 AND status = $2`,
		batchID,
		string(domain.StagedRowStatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to discard pending rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RowChunk is a contiguous slice of rows with the row number of its first element.
type RowChunk struct {
	FirstRowNumber int
	Rows           []domain.RawPayload
}

// ChunkRows splits rows into chunks of at most size rows. Row numbers start at 1
// and run continuously across chunks.
func ChunkRows(rows []domain.RawPayload, size int) []RowChunk {
	if size <= 0 {
		size = DefaultStageChunkSize
	}
	chunks := make([]RowChunk, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, RowChunk{FirstRowNumber: start + 1, Rows: rows[start:end]})
	}
	return chunks
}
