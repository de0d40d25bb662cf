package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/drillops/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultImportLogLimit = 200

type importLogRepository struct {
	pool *pgxpool.Pool
}

// NewImportLogRepository wires a repository backed by pgxpool.
func NewImportLogRepository(pool *pgxpool.Pool) ImportLogRepository {
	return &importLogRepository{pool: pool}
}

func (r *importLogRepository) Record(ctx context.Context, entries ...domain.ImportLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("import log repository not initialized")
	}
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		var rowNumber any
		if entry.RowNumber != nil {
			rowNumber = *entry.RowNumber
		}
		batch.Queue(
			`INSERT INTO import_logs (batch_id, file_name, row_number, error_message)
			 VALUES ($1, $2, $3, $4)`,
			entry.BatchID,
			entry.FileName,
			rowNumber,
			entry.ErrorMessage,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to record import log: %w", err)
	}
	return nil
}

func (r *importLogRepository) List(ctx context.Context, filter ImportLogFilter) ([]domain.ImportLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("import log repository not initialized")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultImportLogLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var batchID pgtype.UUID
	if filter.BatchID != nil {
		batchID = pgtype.UUID{Bytes: *filter.BatchID, Valid: true}
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, batch_id, file_name, row_number, error_message, created_at
		 FROM import_logs
		 WHERE ($1::uuid IS NULL OR batch_id = $1)
		   AND ($2 = '' OR file_name = $2)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		batchID,
		filter.FileName,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.ImportLogEntry{}
	for rows.Next() {
		var (
			entry     domain.ImportLogEntry
			batch     pgtype.UUID
			rowNumber pgtype.Int4
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&batch,
			&entry.FileName,
			&rowNumber,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", scanErr)
		}

		if batch.Valid {
			id := uuid.UUID(batch.Bytes)
			entry.BatchID = &id
		}
		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import logs: %w", rowsErr)
	}

	return logs, nil
}
