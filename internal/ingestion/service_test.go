package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rpattn/drillops/internal/domain"
	"github.com/rpattn/drillops/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type serviceFixture struct {
	store   *memStore
	service *Service
	metrics *Metrics
	rigID   uuid.UUID
	siteID  uuid.UUID
}

func newServiceFixture(t *testing.T, opts Options) serviceFixture {
	t.Helper()
	store := newMemStore()
	if opts.StageChunkSize > 0 {
		store.chunkSize = opts.StageChunkSize
	}
	logger, _ := test.NewNullLogger()
	metrics := NewMetrics(prometheus.NewRegistry())

	f := serviceFixture{
		store:   store,
		metrics: metrics,
		service: NewService(store, store, store, opts,
			WithLogger(logger), WithMetrics(metrics), WithImportLog(store)),
	}
	f.rigID = store.addReference(domain.ReferenceCategoryRig, "Rig 04")
	f.siteID = store.addReference(domain.ReferenceCategorySite, "North Pit")
	return f
}

func (f serviceFixture) upload(t *testing.T, fileName, data string) UploadResult {
	t.Helper()
	result, err := f.service.Upload(context.Background(), UploadRequest{FileName: fileName, Data: strings.NewReader(data)})
	require.NoError(t, err)
	return result
}

const threeRowSheet = `Date,Rig,Site,Shift,Meters Drilled
2024-03-01,Rig 04,North Pit,Day,40
2024-03-01,Rig 04,North Pit,morning,35
2024-03-02,Rig 04,Site-X,Night,20
`

func TestUploadValidatesAndReportsMissingSite(t *testing.T) {
	f := newServiceFixture(t, Options{})

	result := f.upload(t, "shifts.csv", threeRowSheet)

	assert.Equal(t, 3, result.RowCount)
	assert.NotEqual(t, uuid.Nil, result.BatchID)

	report := result.Validation
	assert.Equal(t, 3, report.TotalRows)
	assert.Equal(t, 1, report.ValidCount)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, 1, report.UnresolvedCount)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].RowNumber)
	assert.Equal(t, []string{`shift "morning" must be Day or Night`}, report.Errors[0].Reasons)

	require.Len(t, report.AdminActions, 1)
	action := report.AdminActions[0]
	assert.Equal(t, "missing_site", action.Type)
	assert.Equal(t, domain.ReferenceCategorySite, action.Category)
	assert.Equal(t, []string{"Site-X"}, action.MissingNames)
	assert.Equal(t, []string{"North Pit"}, action.ValidNames)

	commit, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.False(t, commit.Success)
	assert.Equal(t, report.AdminActions, commit.AdminActions)
	assert.Equal(t, 1, commit.ValidCount)
	assert.Equal(t, 1, commit.ErrorCount)
	assert.Zero(t, commit.CommittedCount)
	assert.Empty(t, f.store.committedRecords())
	assert.Zero(t, f.store.importedCount())
}

func TestCommitAfterReferenceFixImportsResolvableRows(t *testing.T) {
	f := newServiceFixture(t, Options{})
	result := f.upload(t, "shifts.csv", threeRowSheet)

	siteX := f.store.addReference(domain.ReferenceCategorySite, "site-x")

	report, err := f.service.Validate(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.ValidCount)
	assert.Empty(t, report.AdminActions)

	commit, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.True(t, commit.Success)
	assert.Equal(t, 2, commit.CommittedCount)
	assert.Equal(t, 1, commit.RemainingErrorCount)

	records := f.store.committedRecords()
	require.Len(t, records, 2)
	assert.Equal(t, siteX, records[1].SiteID)

	batches, err := f.service.ListBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, domain.BatchStatusImported, batches[0].Status)
	assert.Equal(t, 3, batches[0].TotalRows)
	assert.Equal(t, 2, batches[0].Imported)
	assert.Equal(t, 1, batches[0].Pending)
}

func TestCommitTwoValidRowsThenNoop(t *testing.T) {
	f := newServiceFixture(t, Options{})
	result := f.upload(t, "shifts.csv", `Date,Rig,Site,Shift,Meters Drilled,Fuel Consumed,Mechanical Downtime
2024-03-01,Rig 04,North Pit,Day,40,,
2024-03-01,RIG 04,north pit,night,35,120,1.5
`)

	commit, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.True(t, commit.Success)
	assert.Equal(t, 2, commit.CommittedCount)
	assert.Zero(t, commit.RemainingErrorCount)

	records := f.store.committedRecords()
	require.Len(t, records, 2)
	assert.Nil(t, records[0].FuelConsumed, "blank fuel commits as null")
	assert.Equal(t, 0.0, records[0].MechanicalDowntime, "blank downtime commits as zero")
	require.NotNil(t, records[1].FuelConsumed)
	assert.Equal(t, 120.0, *records[1].FuelConsumed)
	assert.Equal(t, f.rigID, records[1].RigID)
	assert.Equal(t, f.siteID, records[1].SiteID)

	batches, err := f.service.ListBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, domain.BatchStatusImported, batches[0].Status)
	assert.Equal(t, 2, batches[0].TotalRows)
	assert.Equal(t, 2, batches[0].Imported)

	again, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Zero(t, again.CommittedCount)
	assert.Len(t, f.store.committedRecords(), 2)
}

func TestCommitRefusesWhenNoRowIsValid(t *testing.T) {
	f := newServiceFixture(t, Options{})
	result := f.upload(t, "shifts.csv", `Date,Rig,Site,Shift,Meters Drilled
2024-03-01,Rig 04,North Pit,Swing,40
`)

	commit, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.False(t, commit.Success)
	assert.Equal(t, 1, commit.ErrorCount)
	require.Len(t, commit.Errors, 1)
	assert.Equal(t, 1, commit.Errors[0].RowNumber)
	assert.Empty(t, f.store.committedRecords())
}

func TestCommitIsAllOrNothing(t *testing.T) {
	for _, tc := range []struct {
		name  string
		setup func(*memStore)
	}{
		{name: "insert fails", setup: func(m *memStore) { m.failInsert = errors.New("disk full") }},
		{name: "status update fails", setup: func(m *memStore) { m.failMark = errors.New("deadlock detected") }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newServiceFixture(t, Options{})
			result := f.upload(t, "shifts.csv", `Date,Rig,Site,Shift,Meters Drilled
2024-03-01,Rig 04,North Pit,Day,40
2024-03-02,Rig 04,North Pit,Night,41
`)
			tc.setup(f.store)

			_, err := f.service.Commit(context.Background(), result.BatchID)
			require.Error(t, err)
			assert.Empty(t, f.store.committedRecords())
			assert.Zero(t, f.store.importedCount())
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.commits.WithLabelValues(commitOutcomeFailed)))

			f.store.failInsert, f.store.failMark = nil, nil
			commit, err := f.service.Commit(context.Background(), result.BatchID)
			require.NoError(t, err)
			assert.Equal(t, 2, commit.CommittedCount)
		})
	}
}

func TestConcurrentCommitsDoNotDoubleInsert(t *testing.T) {
	f := newServiceFixture(t, Options{})
	result := f.upload(t, "shifts.csv", threeRowSheet)
	f.store.addReference(domain.ReferenceCategorySite, "Site-X")

	// Both committers validate before either takes the batch lock.
	var validated sync.WaitGroup
	validated.Add(2)
	f.store.beforeLock = func() {
		validated.Done()
		validated.Wait()
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []CommitResult
		errs    []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.service.Commit(context.Background(), result.BatchID)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	total := 0
	for i := range results {
		require.NoError(t, errs[i])
		assert.True(t, results[i].Success)
		total += results[i].CommittedCount
	}
	assert.Equal(t, 2, total)
	assert.Len(t, f.store.committedRecords(), 2)
	assert.Equal(t, 2, f.store.importedCount())
}

func TestValidateIsRepeatable(t *testing.T) {
	f := newServiceFixture(t, Options{})
	result := f.upload(t, "shifts.csv", threeRowSheet)

	first, err := f.service.Validate(context.Background(), result.BatchID)
	require.NoError(t, err)
	second, err := f.service.Validate(context.Background(), result.BatchID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, result.Validation, first)
}

func TestUploadAssignsRowNumbersAcrossChunks(t *testing.T) {
	f := newServiceFixture(t, Options{StageChunkSize: 2})
	var sb strings.Builder
	sb.WriteString("Date,Rig,Site,Shift,Meters Drilled\n")
	for i := 0; i < 7; i++ {
		sb.WriteString("2024-03-01,Rig 04,North Pit,Day,10\n")
		if i == 3 {
			sb.WriteString(",,,,\n")
		}
	}

	result := f.upload(t, "shifts.csv", sb.String())
	assert.Equal(t, 7, result.RowCount)

	rows, err := f.store.ListPending(context.Background(), result.BatchID)
	require.NoError(t, err)
	require.Len(t, rows, 7)
	for i, row := range rows {
		assert.Equal(t, i+1, row.RowNumber)
	}
	assert.Equal(t, 7.0, testutil.ToFloat64(f.metrics.rowsStaged))
}

func TestUploadStagingFailureKeepsEarlierChunks(t *testing.T) {
	f := newServiceFixture(t, Options{StageChunkSize: 1})
	f.store.failStageChunk = 2

	_, err := f.service.Upload(context.Background(), UploadRequest{FileName: "shifts.csv", Data: strings.NewReader(threeRowSheet)})
	require.Error(t, err)
	assert.False(t, IsFileError(err))

	batches, err := f.service.ListBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].Pending)
}

func TestUploadRejectsFileLevelErrors(t *testing.T) {
	cases := []struct {
		name     string
		fileName string
		data     string
		opts     Options
		want     error
	}{
		{name: "empty", fileName: "a.csv", data: "", want: ErrEmptyFile},
		{name: "blank lines only", fileName: "a.csv", data: "\n,,\n", want: ErrEmptyFile},
		{name: "header only", fileName: "a.csv", data: "Date,Rig,Site,Shift,Meters\n", want: ErrEmptyFile},
		{name: "missing meaning", fileName: "a.csv", data: "Date,Rig,Shift,Meters\n2024-03-01,Rig 04,Day,3\n", want: ErrMissingColumns},
		{name: "too large", fileName: "a.csv", data: threeRowSheet, opts: Options{MaxFileBytes: 16}, want: ErrFileTooLarge},
		{name: "unsupported", fileName: "report.pdf", data: "%PDF-1.4 binary", want: ErrUnsupportedFormat},
		{name: "corrupt workbook", fileName: "march.xlsx", data: "not really a zip file", want: ErrUnreadableFile},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newServiceFixture(t, tc.opts)
			_, err := f.service.Upload(context.Background(), UploadRequest{FileName: tc.fileName, Data: strings.NewReader(tc.data)})
			require.ErrorIs(t, err, tc.want)
			assert.True(t, IsFileError(err))

			batches, listErr := f.service.ListBatches(context.Background())
			require.NoError(t, listErr)
			assert.Empty(t, batches, "nothing may be staged")
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.uploadsRejected))
		})
	}
}

func TestUploadAcceptsBareQuotesInCells(t *testing.T) {
	f := newServiceFixture(t, Options{})
	result := f.upload(t, "shifts.csv", `Date,Rig,Site,Shift,Meters Drilled,Notes
2024-03-01,Rig 04,North Pit,Day,40,6" bit changed
`)
	assert.Equal(t, 1, result.RowCount)

	commit, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)
	require.True(t, commit.Success)

	records := f.store.committedRecords()
	require.Len(t, records, 1)
	assert.Equal(t, `6" bit changed`, records[0].Notes)
}

func TestUploadFuelUnitsColumnIsNotARig(t *testing.T) {
	f := newServiceFixture(t, Options{})
	result := f.upload(t, "shifts.csv", `Date,Rig,Site,Shift,Meters Drilled,Fuel (units)
2024-03-01,Rig 04,North Pit,Day,40,120
`)

	report, err := f.service.Validate(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ValidCount)
	assert.Empty(t, report.AdminActions)

	commit, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)
	require.True(t, commit.Success)

	records := f.store.committedRecords()
	require.Len(t, records, 1)
	assert.Equal(t, f.rigID, records[0].RigID)
	require.NotNil(t, records[0].FuelConsumed)
	assert.Equal(t, 120.0, *records[0].FuelConsumed)
}

func TestUploadMissingColumnsNamesThem(t *testing.T) {
	f := newServiceFixture(t, Options{})
	_, err := f.service.Upload(context.Background(), UploadRequest{
		FileName: "a.csv",
		Data:     strings.NewReader("Date,Rig\n2024-03-01,Rig 04\n"),
	})
	require.ErrorIs(t, err, ErrMissingColumns)
	assert.Contains(t, err.Error(), "site, shift, meters drilled")
}

func TestUploadWorkbookUsesFirstSheetAndSerialDates(t *testing.T) {
	f := newServiceFixture(t, Options{})

	book := excelize.NewFile()
	defer func() { _ = book.Close() }()
	sheetName := book.GetSheetName(0)
	rows := [][]any{
		{"Date", "Rig No.", "Work Site", "Shift", "Total Meters", "Fuel Consumed"},
		{45352, "Rig 04", "North Pit", "DAY", 55.5, ""},
		{"2024-03-02", "rig04", "NORTH PIT", "night", 60, 210},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheetName, cell, &row))
	}
	_, err := book.NewSheet("Ignored")
	require.NoError(t, err)
	require.NoError(t, book.SetCellValue("Ignored", "A1", "not a header"))

	var buf bytes.Buffer
	require.NoError(t, book.Write(&buf))

	result, err := f.service.Upload(context.Background(), UploadRequest{FileName: "march.xlsx", Data: &buf})
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, 2, result.Validation.ValidCount, "errors: %+v", result.Validation.Errors)

	commit, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)
	require.Equal(t, 2, commit.CommittedCount)

	records := f.store.committedRecords()
	assert.Equal(t, "2024-03-01", records[0].Date.Format("2006-01-02"))
	assert.Equal(t, "Day", records[0].Shift)
	assert.Equal(t, 55.5, records[0].MetersDrilled)
	assert.Nil(t, records[0].FuelConsumed)
	assert.Equal(t, "2024-03-02", records[1].Date.Format("2006-01-02"))
}

func TestUploadSniffsFormatWithoutExtension(t *testing.T) {
	f := newServiceFixture(t, Options{})
	result := f.upload(t, "upload", threeRowSheet)
	assert.Equal(t, 3, result.RowCount)
}

func TestUnknownBatch(t *testing.T) {
	f := newServiceFixture(t, Options{})
	missing := uuid.New()

	_, err := f.service.Validate(context.Background(), missing)
	assert.ErrorIs(t, err, ErrBatchNotFound)

	_, err = f.service.Commit(context.Background(), missing)
	assert.ErrorIs(t, err, ErrBatchNotFound)

	_, err = f.service.Discard(context.Background(), missing)
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestDiscardRemovesOnlyPendingRows(t *testing.T) {
	f := newServiceFixture(t, Options{})
	result := f.upload(t, "shifts.csv", threeRowSheet)
	f.store.addReference(domain.ReferenceCategorySite, "Site-X")

	_, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)

	removed, err := f.service.Discard(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	batches, err := f.service.ListBatches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 2, batches[0].TotalRows)
	assert.Zero(t, batches[0].Pending)
	assert.Equal(t, domain.BatchStatusImported, batches[0].Status)
}

func TestImportLogRecordsRejectionsAndRefusals(t *testing.T) {
	f := newServiceFixture(t, Options{})

	_, err := f.service.Upload(context.Background(), UploadRequest{FileName: "bad.csv", Data: strings.NewReader("Date,Rig\n2024-03-01,Rig 04\n")})
	require.ErrorIs(t, err, ErrMissingColumns)

	result := f.upload(t, "shifts.csv", threeRowSheet)
	commit, err := f.service.Commit(context.Background(), result.BatchID)
	require.NoError(t, err)
	require.False(t, commit.Success)

	rejected, err := f.service.ImportLogs(context.Background(), repository.ImportLogFilter{FileName: "bad.csv"})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Nil(t, rejected[0].BatchID)
	assert.Contains(t, rejected[0].ErrorMessage, "missing mandatory columns")

	refused, err := f.service.ImportLogs(context.Background(), repository.ImportLogFilter{BatchID: &result.BatchID})
	require.NoError(t, err)
	require.Len(t, refused, 2, "one admin action and one row error")

	var rowNumbers []int
	for _, entry := range refused {
		assert.Equal(t, "shifts.csv", entry.FileName)
		if entry.RowNumber != nil {
			rowNumbers = append(rowNumbers, *entry.RowNumber)
		}
	}
	assert.Equal(t, []int{2}, rowNumbers)
}

func TestImportLogsWithoutRepository(t *testing.T) {
	store := newMemStore()
	service := NewService(store, store, store, Options{})

	logs, err := service.ImportLogs(context.Background(), repository.ImportLogFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}
