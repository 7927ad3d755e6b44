package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jaki95/registry-sync/internal/domain"
	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestImporter() (*Importer, *storage.MemoryStore, *progress.Tracker) {
	store := storage.NewMemoryStore()
	tracker := progress.NewTracker(time.Minute, progress.WithClock(fixedNow))
	return NewImporter(NewUpserter(store, fixedNow), tracker, 100, fixedNow), store, tracker
}

func importItems(n int) []domain.OperatorRecord {
	items := make([]domain.OperatorRecord, n)
	for i := range items {
		items[i] = domain.OperatorRecord{
			SerialNumber: fmt.Sprintf("SN-%04d", i),
			Status:       domain.StatusInService,
		}
	}
	return items
}

func TestImportEmptyBatch(t *testing.T) {
	importer, _, tracker := newTestImporter()

	_, err := importer.Import(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
	assert.False(t, tracker.Running())

	_, ok := tracker.Snapshot()
	assert.False(t, ok)
}

func TestImportBatches(t *testing.T) {
	importer, store, tracker := newTestImporter()

	var pages []int
	tracker.AddListener(func(s progress.Snapshot) {
		pages = append(pages, s.CurrentPage)
	})

	summary, err := importer.Import(context.Background(), importItems(250))
	require.NoError(t, err)
	assert.Equal(t, &ImportSummary{Scraped: 250, Inserted: 250}, summary)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 250, count)

	snap, ok := tracker.Snapshot()
	require.True(t, ok)
	assert.Equal(t, progress.SourceImport, snap.Source)
	assert.Equal(t, progress.StatusCompleted, snap.Status)
	assert.Equal(t, 3, snap.TotalPages)
	assert.Equal(t, 3, snap.CurrentPage)
	assert.Contains(t, pages, 2)

	again, err := importer.Import(context.Background(), importItems(250))
	require.NoError(t, err)
	assert.Equal(t, 250, again.Unchanged)
	assert.Equal(t, 0, again.Inserted)
}

func TestImportInvalidItems(t *testing.T) {
	importer, store, _ := newTestImporter()

	items := []domain.OperatorRecord{
		{SerialNumber: "SN-OK", Status: domain.StatusDecommissioned},
		{SerialNumber: "   ", Status: domain.StatusInService},
		{SerialNumber: "SN-BAD", Status: "broken"},
	}

	summary, err := importer.Import(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Scraped)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 2, summary.Errors)

	_, err = store.Get(context.Background(), "SN-BAD")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestImportRecomputesDerivedFields(t *testing.T) {
	importer, store, _ := newTestImporter()

	past := domain.NewDate(2020, time.January, 1)
	future := domain.NewDate(2030, time.January, 1)
	items := []domain.OperatorRecord{
		{SerialNumber: "SN-PAST", Status: domain.StatusInService, ExpiryDate: &past, Expired: false, Address: "Str. 1\nIasi, Iasi"},
		{SerialNumber: "SN-FUTURE", Status: domain.StatusInService, ExpiryDate: &future, Expired: true},
	}

	_, err := importer.Import(context.Background(), items)
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), "SN-PAST")
	require.NoError(t, err)
	assert.True(t, stored.Expired)
	assert.Equal(t, "Iasi", stored.City)
	assert.Equal(t, "Iasi", stored.County)

	stored, err = store.Get(context.Background(), "SN-FUTURE")
	require.NoError(t, err)
	assert.False(t, stored.Expired)
}

func TestImportRejectedWhileRunning(t *testing.T) {
	importer, store, tracker := newTestImporter()

	runID, err := tracker.Start(progress.SourceScrape, 1200)
	require.NoError(t, err)

	_, err = importer.Import(context.Background(), importItems(3))
	assert.ErrorIs(t, err, progress.ErrAlreadyRunning)

	snap, _ := tracker.Snapshot()
	assert.Equal(t, runID, snap.RunID)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestImportJSONSkipsMalformedItems(t *testing.T) {
	importer, store, _ := newTestImporter()

	raw := []json.RawMessage{
		json.RawMessage(`{"serial_number": "SN-1", "status": "in-service"}`),
		json.RawMessage(`{"serial_number": "SN-2", "status": "in-service", "expiry_date": "01/01/2020"}`),
		json.RawMessage(`42`),
		json.RawMessage(`{"serial_number": "SN-3", "status": "decommissioned"}`),
	}

	summary, err := importer.ImportJSON(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, &ImportSummary{Scraped: 4, Inserted: 2, Errors: 2}, summary)

	_, err = store.Get(context.Background(), "SN-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = importer.ImportJSON(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}
