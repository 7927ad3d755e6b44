package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jaki95/registry-sync/internal/domain"
	"github.com/jaki95/registry-sync/internal/metrics"
	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/registry"
)

// DefaultBatchSize is the number of records reconciled per import batch.
const DefaultBatchSize = 100

// PhaseImporting is the progress phase of a bulk import.
const PhaseImporting = "importing"

// ImportSummary is the result of a bulk import.
type ImportSummary struct {
	Scraped   int `json:"scraped"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
}

// Importer reconciles already-parsed records, such as a snapshot, with the
// store. It shares the progress tracker, and therefore the single-run guard,
// with the scraper.
type Importer struct {
	upserter  *Upserter
	tracker   *progress.Tracker
	batchSize int
	now       func() time.Time
}

func NewImporter(upserter *Upserter, tracker *progress.Tracker, batchSize int, now func() time.Time) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if now == nil {
		now = time.Now
	}
	return &Importer{
		upserter:  upserter,
		tracker:   tracker,
		batchSize: batchSize,
		now:       now,
	}
}

// importItem is one record to import, or the reason it could not be decoded.
type importItem struct {
	record domain.OperatorRecord
	err    error
}

// Import processes items in batches. Invalid items are counted as errors and
// skipped; the import itself only fails on an empty batch, a held guard or
// cancellation.
func (im *Importer) Import(ctx context.Context, records []domain.OperatorRecord) (*ImportSummary, error) {
	items := make([]importItem, len(records))
	for i := range records {
		items[i].record = records[i]
	}
	return im.run(ctx, items)
}

// ImportJSON decodes every item on its own so that one malformed item, such
// as a badly formatted date, is counted as an error instead of rejecting the
// whole batch.
func (im *Importer) ImportJSON(ctx context.Context, raw []json.RawMessage) (*ImportSummary, error) {
	items := make([]importItem, len(raw))
	for i, data := range raw {
		if err := json.Unmarshal(data, &items[i].record); err != nil {
			items[i] = importItem{err: fmt.Errorf("%w: item %d: %v", ErrInvalidItem, i, err)}
		}
	}
	return im.run(ctx, items)
}

func (im *Importer) run(ctx context.Context, items []importItem) (*ImportSummary, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	batches := (len(items) + im.batchSize - 1) / im.batchSize
	runID, err := im.tracker.Start(progress.SourceImport, batches)
	if err != nil {
		return nil, err
	}
	metrics.TrackActiveRun(true)

	start := im.now()
	summary := &ImportSummary{Scraped: len(items)}
	im.tracker.Update(runID, func(s *progress.Snapshot) {
		s.Phase = PhaseImporting
		s.Scraped = len(items)
	})
	slog.Info("Starting bulk import", "runId", runID, "items", len(items), "batches", batches)

	runErr := im.importBatches(ctx, runID, items, batches, summary)

	end := im.now()
	metrics.TrackActiveRun(false)
	if runErr != nil {
		im.tracker.Finish(runID, progress.StatusFailed, "Error: "+runErr.Error())
		metrics.RecordRun(string(progress.SourceImport), string(progress.StatusFailed), end.Sub(start), end)
		slog.Error("Bulk import failed", "runId", runID, "error", runErr)
		return summary, runErr
	}

	im.tracker.Finish(runID, progress.StatusCompleted,
		fmt.Sprintf("Imported %d records: %d inserted, %d updated, %d unchanged, %d errors",
			summary.Scraped, summary.Inserted, summary.Updated, summary.Unchanged, summary.Errors))
	metrics.RecordRun(string(progress.SourceImport), string(progress.StatusCompleted), end.Sub(start), end)
	slog.Info("Bulk import completed", "runId", runID, "inserted", summary.Inserted,
		"updated", summary.Updated, "unchanged", summary.Unchanged, "errors", summary.Errors)

	return summary, nil
}

func (im *Importer) importBatches(ctx context.Context, runID string, items []importItem, batches int, summary *ImportSummary) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("import panicked: %v", p)
		}
	}()

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import interrupted: %w", err)
		}

		lo := b * im.batchSize
		hi := min(lo+im.batchSize, len(items))

		im.tracker.Update(runID, func(s *progress.Snapshot) {
			s.CurrentPage = b + 1
			s.Step = fmt.Sprintf("Importing batch %d/%d...", b+1, batches)
		})

		for i := lo; i < hi; i++ {
			item := items[i]
			im.apply(ctx, &item, summary)
		}

		im.tracker.Update(runID, func(s *progress.Snapshot) {
			s.Inserted = summary.Inserted
			s.Updated = summary.Updated
			s.Unchanged = summary.Unchanged
			s.Errors = summary.Errors
		})
	}
	return nil
}

func (im *Importer) apply(ctx context.Context, item *importItem, summary *ImportSummary) {
	record := &item.record
	err := item.err
	if err == nil {
		err = prepareItem(record, im.now())
	}
	if err != nil {
		summary.Errors++
		metrics.RecordUpsert(string(progress.SourceImport), "error")
		slog.Warn("Skipping import item", "serial", record.SerialNumber, "error", err)
		return
	}

	decision, err := im.upserter.Apply(ctx, record)
	if err != nil {
		summary.Errors++
		metrics.RecordUpsert(string(progress.SourceImport), "error")
		slog.Error("Failed to persist import item", "serial", record.SerialNumber, "error", err)
		return
	}

	metrics.RecordUpsert(string(progress.SourceImport), string(decision))
	switch decision {
	case DecisionInsert:
		summary.Inserted++
	case DecisionUpdate:
		summary.Updated++
	default:
		summary.Unchanged++
	}
}

// prepareItem validates an imported record and recomputes its derived fields.
func prepareItem(record *domain.OperatorRecord, now time.Time) error {
	record.SerialNumber = strings.TrimSpace(record.SerialNumber)
	if record.SerialNumber == "" {
		return fmt.Errorf("%w: %v", ErrInvalidItem, registry.ErrMissingSerial)
	}
	if !record.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidItem, record.Status)
	}

	record.Expired = false
	if record.ExpiryDate != nil {
		record.Expired = registry.IsExpired(record.ExpiryDate.String(), now)
	}
	if record.City == "" && record.County == "" && record.Address != "" {
		record.City, record.County = registry.DecomposeAddress(record.Address)
	}
	// storage owns these
	record.LastSyncedAt = nil
	record.LastModifiedAt = nil
	return nil
}
