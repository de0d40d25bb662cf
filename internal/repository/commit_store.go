package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/drillops/internal/db"
	"github.com/rpattn/drillops/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

var drillingRecordColumns = []string{
	"id", "staged_row_id", "batch_id", "record_date", "shift",
	"rig_id", "site_id", "project_id",
	"meters_drilled", "shift_hours", "depth_from", "depth_to",
	"mechanical_downtime", "electrical_downtime", "weather_downtime",
	"standby_hours", "other_downtime", "bits_used", "water_used",
	"fuel_consumed", "cost", "hole_id", "operator", "notes",
}

type commitStore struct {
	pool *pgxpool.Pool
	log  logrus.FieldLogger
}

// NewCommitStore wires the transactional commit path over pgxpool.
func NewCommitStore(pool *pgxpool.Pool, log logrus.FieldLogger) CommitStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &commitStore{pool: pool, log: log}
}

// WithinCommit serializes commits of the same batch with a transaction scoped
// advisory lock, then hands fn the transaction.
func (s *commitStore) WithinCommit(ctx context.Context, batchID uuid.UUID, fn func(ctx context.Context, tx CommitTx) error) error {
	if s.pool == nil {
		return fmt.Errorf("commit store not initialized")
	}

	return db.WithTx(ctx, s.pool, s.log, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, batchID.String()); err != nil {
			return fmt.Errorf("failed to lock batch %s: %w", batchID, err)
		}
		return fn(ctx, &pgCommitTx{tx: tx, batchID: batchID})
	})
}

type pgCommitTx struct {
	tx      pgx.Tx
	batchID uuid.UUID
}

func (c *pgCommitTx) LockPending(ctx context.Context) ([]int64, error) {
	rows, err := c.tx.Query(
		ctx,
		`SELECT id FROM staged_rows
		 WHERE batch_id = $1 AND status = $2
		 ORDER BY row_number
		 FOR UPDATE`,
		c.batchID,
		string(domain.StagedRowStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock pending rows: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to read pending row ids: %w", err)
	}
	return ids, nil
}

func (c *pgCommitTx) InsertRecords(ctx context.Context, records []domain.DrillingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	source := pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
		rec := records[i]
		id := rec.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		return []any{
			id, rec.StagedRowID, rec.BatchID, rec.Date, rec.Shift,
			rec.RigID, rec.SiteID, rec.ProjectID,
			rec.MetersDrilled, rec.ShiftHours, rec.DepthFrom, rec.DepthTo,
			rec.MechanicalDowntime, rec.ElectricalDowntime, rec.WeatherDowntime,
			rec.StandbyHours, rec.OtherDowntime, rec.BitsUsed, rec.WaterUsed,
			rec.FuelConsumed, rec.Cost, rec.HoleID, rec.Operator, rec.Notes,
		}, nil
	})

	copied, err := c.tx.CopyFrom(ctx, pgx.Identifier{"drilling_records"}, drillingRecordColumns, source)
	if err != nil {
		return 0, fmt.Errorf("failed to insert drilling records: %w", err)
	}
	return int(copied), nil
}

func (c *pgCommitTx) MarkImported(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tag, err := c.tx.Exec(
		ctx,
		`UPDATE staged_rows SET status = $1
		 WHERE batch_id = $2 AND id = ANY($3) AND status = $4`,
		string(domain.StagedRowStatusImported),
		c.batchID,
		ids,
		string(domain.StagedRowStatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark rows imported: %w", err)
	}
	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("%w: updated %d of %d", ErrStaleStagedRows, tag.RowsAffected(), len(ids))
	}
	return nil
}
