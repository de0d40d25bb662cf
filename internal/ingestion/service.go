package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpattn/drillops/internal/domain"
	"github.com/rpattn/drillops/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service stages uploaded drilling reports, validates them against the
// reference directory and commits the valid rows.
type Service struct {
	staging    repository.StagingRepository
	references repository.ReferenceRepository
	commits    repository.CommitStore
	opts       Options
	importLogs repository.ImportLogRepository
	log        logrus.FieldLogger
	metrics    *Metrics
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

func WithLogger(log logrus.FieldLogger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(metrics *Metrics) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// WithImportLog records rejected uploads and unsuccessful commits to logs.
func WithImportLog(logs repository.ImportLogRepository) ServiceOption {
	return func(s *Service) { s.importLogs = logs }
}

// NewService creates a new ingestion service.
func NewService(
	staging repository.StagingRepository,
	references repository.ReferenceRepository,
	commits repository.CommitStore,
	opts Options,
	options ...ServiceOption,
) *Service {
	s := &Service{
		staging:    staging,
		references: references,
		commits:    commits,
		opts:       opts.withDefaults(),
		log:        logrus.StandardLogger(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// UploadRequest describes an uploaded file.
type UploadRequest struct {
	FileName string
	Data     io.Reader
}

// UploadResult is returned once a file has been staged and validated once.
type UploadResult struct {
	BatchID    uuid.UUID        `json:"batchId"`
	FileName   string           `json:"fileName"`
	RowCount   int              `json:"rowCount"`
	Validation ValidationReport `json:"validation"`
}

// CommitResult reports a commit attempt. Success is false when the batch was
// refused; AdminActions or Errors then say why.
type CommitResult struct {
	BatchID             uuid.UUID     `json:"batchId"`
	Success             bool          `json:"success"`
	CommittedCount      int           `json:"committedCount"`
	RemainingErrorCount int           `json:"remainingErrorCount"`
	ValidCount          int           `json:"validCount"`
	ErrorCount          int           `json:"errorCount"`
	AdminActions        []AdminAction `json:"adminActions,omitempty"`
	Errors              []RowError    `json:"errors,omitempty"`
	Message             string        `json:"message"`
}

// Upload parses the file, stages every data row under a new batch id and runs
// a first validation pass. File level problems are returned before anything is
// staged.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	result := UploadResult{FileName: req.FileName}
	if req.Data == nil {
		return result, errors.New("data reader is required")
	}

	parsed, err := s.readUpload(req)
	if err != nil {
		s.metrics.rejected()
		s.log.WithError(err).WithField("file", req.FileName).Warn("upload rejected")
		s.audit(ctx, domain.ImportLogEntry{FileName: req.FileName, ErrorMessage: err.Error()})
		return result, err
	}

	result.BatchID = uuid.New()
	log := s.log.WithFields(logrus.Fields{"batch_id": result.BatchID, "file": req.FileName})

	staged, err := s.staging.Stage(ctx, result.BatchID, req.FileName, parsed.rows)
	s.metrics.staged(staged)
	if err != nil {
		log.WithError(err).WithField("staged", staged).Error("staging failed")
		s.audit(ctx, domain.ImportLogEntry{
			BatchID:      &result.BatchID,
			FileName:     req.FileName,
			ErrorMessage: fmt.Sprintf("staging stopped after %d rows: %v", staged, err),
		})
		return result, fmt.Errorf("failed to stage upload: %w", err)
	}
	result.RowCount = staged
	log.WithField("rows", staged).Info("upload staged")

	report, err := s.Validate(ctx, result.BatchID)
	if err != nil {
		return result, err
	}
	result.Validation = report
	return result, nil
}

func (s *Service) readUpload(req UploadRequest) (sheet, error) {
	payload, err := io.ReadAll(io.LimitReader(req.Data, s.opts.MaxFileBytes+1))
	if err != nil {
		return sheet{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(payload)) > s.opts.MaxFileBytes {
		return sheet{}, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.opts.MaxFileBytes)
	}
	if len(payload) == 0 {
		return sheet{}, ErrEmptyFile
	}

	parsed, err := parseUpload(req.FileName, payload)
	if err != nil {
		return sheet{}, err
	}

	if missing := MissingMandatory(parsed.headers); len(missing) > 0 {
		labels := make([]string, len(missing))
		for i, field := range missing {
			labels[i] = field.Label()
		}
		return sheet{}, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(labels, ", "))
	}
	if len(parsed.rows) == 0 {
		return sheet{}, fmt.Errorf("%w: no data rows below the header", ErrEmptyFile)
	}
	return parsed, nil
}

// Validate recomputes the report for the batch's pending rows against the
// current reference data. Nothing is written.
func (s *Service) Validate(ctx context.Context, batchID uuid.UUID) (ValidationReport, error) {
	rows, err := s.pendingRows(ctx, batchID)
	if err != nil {
		return ValidationReport{}, err
	}
	report, _, err := s.validateRows(ctx, batchID, rows)
	return report, err
}

func (s *Service) pendingRows(ctx context.Context, batchID uuid.UUID) ([]domain.StagedRow, error) {
	rows, err := s.staging.ListPending(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending rows: %w", err)
	}
	if len(rows) > 0 {
		return rows, nil
	}

	total, err := s.staging.CountRows(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up batch: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	return rows, nil
}

func (s *Service) validateRows(ctx context.Context, batchID uuid.UUID, rows []domain.StagedRow) (ValidationReport, []Outcome, error) {
	started := time.Now()
	defer s.metrics.observeValidation(started)

	dir, err := LoadDirectory(ctx, s.references)
	if err != nil {
		return ValidationReport{}, nil, err
	}

	missing := NewMissingReferences()
	outcomes := make([]Outcome, 0, len(rows))
	for _, row := range rows {
		outcomes = append(outcomes, ValidateRow(row, dir, missing))
	}

	report := BuildReport(batchID, outcomes, missing, dir, s.opts.ErrorSampleSize)
	s.log.WithFields(logrus.Fields{
		"batch_id":   batchID,
		"rows":       report.TotalRows,
		"valid":      report.ValidCount,
		"errors":     report.ErrorCount,
		"unresolved": report.UnresolvedCount,
	}).Debug("batch validated")
	return report, outcomes, nil
}

// Commit validates the batch afresh and, when nothing blocks it, inserts every
// valid row and marks it imported in one transaction. Committing a batch with
// no pending rows left is a successful no-op.
func (s *Service) Commit(ctx context.Context, batchID uuid.UUID) (CommitResult, error) {
	if s.opts.CommitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CommitTimeout)
		defer cancel()
	}

	log := s.log.WithField("batch_id", batchID)
	result := CommitResult{BatchID: batchID}

	rows, err := s.pendingRows(ctx, batchID)
	if err != nil {
		return result, err
	}
	if len(rows) == 0 {
		s.metrics.committed(commitOutcomeNoop, 0)
		result.Success = true
		result.Message = "no pending rows left to commit"
		return result, nil
	}

	report, outcomes, err := s.validateRows(ctx, batchID, rows)
	if err != nil {
		return result, err
	}
	result.ValidCount = report.ValidCount
	result.ErrorCount = report.ErrorCount

	if report.HasAdminActions() {
		s.metrics.committed(commitOutcomeRefused, 0)
		result.AdminActions = report.AdminActions
		result.Errors = report.Errors
		result.Message = "reference data is missing; resolve the admin actions and retry"
		log.WithField("admin_actions", len(report.AdminActions)).Info("commit refused")
		s.auditRefusal(ctx, batchID, rows[0].FileName, report)
		return result, nil
	}
	if report.ValidCount == 0 {
		s.metrics.committed(commitOutcomeRefused, 0)
		result.Errors = report.Errors
		result.Message = fmt.Sprintf("no valid rows to commit; %d rows have errors", report.ErrorCount)
		log.Info("commit refused: no valid rows")
		s.auditRefusal(ctx, batchID, rows[0].FileName, report)
		return result, nil
	}

	records := make(map[int64]domain.DrillingRecord, report.ValidCount)
	for _, outcome := range outcomes {
		if outcome.Valid() {
			records[outcome.StagedRowID] = *outcome.Record
		}
	}

	committed := 0
	err = s.commits.WithinCommit(ctx, batchID, func(ctx context.Context, tx repository.CommitTx) error {
		pending, err := tx.LockPending(ctx)
		if err != nil {
			return err
		}

		// Rows imported by a commit that finished while this one was waiting
		// for the batch lock are no longer pending and are skipped.
		batch := make([]domain.DrillingRecord, 0, len(records))
		ids := make([]int64, 0, len(records))
		for _, id := range pending {
			if record, ok := records[id]; ok {
				batch = append(batch, record)
				ids = append(ids, id)
			}
		}
		if len(batch) == 0 {
			return nil
		}

		inserted, err := tx.InsertRecords(ctx, batch)
		if err != nil {
			return err
		}
		if inserted != len(batch) {
			return fmt.Errorf("inserted %d of %d drilling records", inserted, len(batch))
		}
		if err := tx.MarkImported(ctx, ids); err != nil {
			return err
		}
		committed = inserted
		return nil
	})
	if err != nil {
		s.metrics.committed(commitOutcomeFailed, 0)
		log.WithError(err).Error("commit rolled back")
		s.audit(ctx, domain.ImportLogEntry{
			BatchID:      &batchID,
			FileName:     rows[0].FileName,
			ErrorMessage: fmt.Sprintf("commit rolled back: %v", err),
		})
		return CommitResult{BatchID: batchID}, fmt.Errorf("failed to commit batch %s: %w", batchID, err)
	}

	s.metrics.committed(commitOutcomeCommitted, committed)
	result.Success = true
	result.CommittedCount = committed
	result.RemainingErrorCount = report.ErrorCount
	result.Message = fmt.Sprintf("committed %d rows", committed)
	log.WithFields(logrus.Fields{"committed": committed, "remaining_errors": report.ErrorCount}).Info("batch committed")
	return result, nil
}

// ListBatches returns every known batch, newest first.
func (s *Service) ListBatches(ctx context.Context) ([]domain.BatchSummary, error) {
	batches, err := s.staging.ListBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	for i := range batches {
		batches[i] = batches[i].WithDerivedStatus()
	}
	return batches, nil
}

// Discard deletes the batch's pending rows. Imported rows are kept.
func (s *Service) Discard(ctx context.Context, batchID uuid.UUID) (int, error) {
	total, err := s.staging.CountRows(ctx, batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up batch: %w", err)
	}
	if total == 0 {
		return 0, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	removed, err := s.staging.DiscardPending(ctx, batchID)
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"batch_id": batchID, "removed": removed}).Info("pending rows discarded")
	return removed, nil
}

// ImportLogs lists the audit trail. It is empty when no import log is configured.
func (s *Service) ImportLogs(ctx context.Context, filter repository.ImportLogFilter) ([]domain.ImportLogEntry, error) {
	if s.importLogs == nil {
		return []domain.ImportLogEntry{}, nil
	}
	logs, err := s.importLogs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	return logs, nil
}

func (s *Service) auditRefusal(ctx context.Context, batchID uuid.UUID, fileName string, report ValidationReport) {
	entries := make([]domain.ImportLogEntry, 0, 1+len(report.AdminActions)+len(report.Errors))
	for _, action := range report.AdminActions {
		entries = append(entries, domain.ImportLogEntry{BatchID: &batchID, FileName: fileName, ErrorMessage: action.Message})
	}
	for _, rowErr := range report.Errors {
		rowNumber := rowErr.RowNumber
		entries = append(entries, domain.ImportLogEntry{
			BatchID:      &batchID,
			FileName:     fileName,
			RowNumber:    &rowNumber,
			ErrorMessage: strings.Join(rowErr.Reasons, "; "),
		})
	}
	if len(entries) == 0 {
		entries = append(entries, domain.ImportLogEntry{BatchID: &batchID, FileName: fileName, ErrorMessage: "commit refused"})
	}
	s.audit(ctx, entries...)
}

// audit never fails the calling operation.
func (s *Service) audit(ctx context.Context, entries ...domain.ImportLogEntry) {
	if s.importLogs == nil {
		return
	}
	if err := s.importLogs.Record(context.WithoutCancel(ctx), entries...); err != nil {
		s.log.WithError(err).Warn("failed to record import log")
	}
}
