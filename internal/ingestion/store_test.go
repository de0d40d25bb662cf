package ingestion

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/drillops/internal/domain"
	"github.com/rpattn/drillops/internal/repository"

	"github.com/google/uuid"
)

// memStore implements the staging, reference and commit repositories in
// memory. Commit writes are buffered and only applied when fn succeeds.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	clock      time.Time
	chunkSize  int
	rows       []domain.StagedRow
	records    []domain.DrillingRecord
	references map[domain.ReferenceCategory][]domain.ReferenceEntity
	logs       []domain.ImportLogEntry

	batchLocks sync.Map

	failStageChunk int // 1-based chunk index that fails; 0 disables
	failInsert     error
	failMark       error
	beforeLock     func()
}

func newMemStore() *memStore {
	return &memStore{
		clock:      time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		chunkSize:  repository.DefaultStageChunkSize,
		references: map[domain.ReferenceCategory][]domain.ReferenceEntity{},
	}
}

func (m *memStore) addReference(category domain.ReferenceCategory, name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.references[category] = append(m.references[category], domain.ReferenceEntity{ID: id, Name: name})
	return id
}

func (m *memStore) Stage(ctx context.Context, batchID uuid.UUID, fileName string, rows []domain.RawPayload) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := 0
	for i, chunk := range repository.ChunkRows(rows, m.chunkSize) {
		if m.failStageChunk == i+1 {
			return staged, errors.New("staging store unavailable")
		}
		m.clock = m.clock.Add(time.Second)
		for j, payload := range chunk.Rows {
			m.nextID++
			m.rows = append(m.rows, domain.StagedRow{
				ID:         m.nextID,
				BatchID:    batchID,
				RowNumber:  chunk.FirstRowNumber + j,
				FileName:   fileName,
				RawPayload: payload,
				Status:     domain.StagedRowStatusPending,
				CreatedAt:  m.clock,
			})
			staged++
		}
	}
	return staged, nil
}

func (m *memStore) ListPending(ctx context.Context, batchID uuid.UUID) ([]domain.StagedRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := []domain.StagedRow{}
	for _, row := range m.rows {
		if row.BatchID == batchID && row.Status == domain.StagedRowStatusPending {
			pending = append(pending, row)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].RowNumber < pending[j].RowNumber })
	return pending, nil
}

func (m *memStore) CountRows(ctx context.Context, batchID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, row := range m.rows {
		if row.BatchID == batchID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) ListBatches(ctx context.Context) ([]domain.BatchSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := map[uuid.UUID]*domain.BatchSummary{}
	var order []uuid.UUID
	for _, row := range m.rows {
		summary, ok := byID[row.BatchID]
		if !ok {
			summary = &domain.BatchSummary{BatchID: row.BatchID, FileName: row.FileName}
			byID[row.BatchID] = summary
			order = append(order, row.BatchID)
		}
		summary.TotalRows++
		switch row.Status {
		case domain.StagedRowStatusPending:
			summary.Pending++
		case domain.StagedRowStatusImported:
			summary.Imported++
		}
		if row.CreatedAt.After(summary.CreatedAt) {
			summary.CreatedAt = row.CreatedAt
		}
	}

	batches := make([]domain.BatchSummary, 0, len(order))
	for _, id := range order {
		batches = append(batches, *byID[id])
	}
	sort.SliceStable(batches, func(i, j int) bool { return batches[i].CreatedAt.After(batches[j].CreatedAt) })
	return batches, nil
}

func (m *memStore) DiscardPending(ctx context.Context, batchID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.rows[:0]
	removed := 0
	for _, row := range m.rows {
		if row.BatchID == batchID && row.Status == domain.StagedRowStatusPending {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	m.rows = kept
	return removed, nil
}

func (m *memStore) ListReferenceEntities(ctx context.Context, category domain.ReferenceCategory) ([]domain.ReferenceEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ReferenceEntity(nil), m.references[category]...), nil
}

func (m *memStore) WithinCommit(ctx context.Context, batchID uuid.UUID, fn func(ctx context.Context, tx repository.CommitTx) error) error {
	if m.beforeLock != nil {
		m.beforeLock()
	}
	lock, _ := m.batchLocks.LoadOrStore(batchID, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()

	tx := &memCommitTx{store: m, batchID: batchID}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	marked := make(map[int64]bool, len(tx.marked))
	for _, id := range tx.marked {
		marked[id] = true
	}
	for i := range m.rows {
		if marked[m.rows[i].ID] {
			m.rows[i].Status = domain.StagedRowStatusImported
		}
	}
	m.records = append(m.records, tx.inserted...)
	return nil
}

func (m *memStore) committedRecords() []domain.DrillingRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DrillingRecord(nil), m.records...)
}

func (m *memStore) importedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.rows {
		if row.Status == domain.StagedRowStatusImported {
			count++
		}
	}
	return count
}

type memCommitTx struct {
	store    *memStore
	batchID  uuid.UUID
	inserted []domain.DrillingRecord
	marked   []int64
}

func (t *memCommitTx) LockPending(ctx context.Context) ([]int64, error) {
	rows, err := t.store.ListPending(ctx, t.batchID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids, nil
}

func (t *memCommitTx) InsertRecords(ctx context.Context, records []domain.DrillingRecord) (int, error) {
	if t.store.failInsert != nil {
		return 0, t.store.failInsert
	}
	t.inserted = append(t.inserted, records...)
	return len(records), nil
}

func (t *memCommitTx) MarkImported(ctx context.Context, ids []int64) error {
	if t.store.failMark != nil {
		return t.store.failMark
	}
	t.marked = append(t.marked, ids...)
	return nil
}

func (m *memStore) Record(ctx context.Context, entries ...domain.ImportLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		m.clock = m.clock.Add(time.Millisecond)
		entry.ID = int64(len(m.logs) + 1)
		entry.CreatedAt = m.clock
		m.logs = append(m.logs, entry)
	}
	return nil
}

func (m *memStore) List(ctx context.Context, filter repository.ImportLogFilter) ([]domain.ImportLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.ImportLogEntry{}
	for i := len(m.logs) - 1; i >= 0; i-- {
		entry := m.logs[i]
		if filter.BatchID != nil && (entry.BatchID == nil || *entry.BatchID != *filter.BatchID) {
			continue
		}
		if filter.FileName != "" && entry.FileName != filter.FileName {
			continue
		}
		out = append(out, entry)
	}
	if filter.Offset > 0 {
		out = out[min(filter.Offset, len(out)):]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

var (
	_ repository.ImportLogRepository = (*memStore)(nil)
	_ repository.StagingRepository   = (*memStore)(nil)
	_ repository.ReferenceRepository = (*memStore)(nil)
	_ repository.CommitStore         = (*memStore)(nil)
)
