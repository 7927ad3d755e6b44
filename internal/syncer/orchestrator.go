package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaki95/registry-sync/internal/domain"
	"github.com/jaki95/registry-sync/internal/metrics"
	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/registry"
	"github.com/jaki95/registry-sync/internal/snapshot"
)

// State is a step of a sync run
type State string

const (
	StateNotStarted        State = "not-started"
	StateFetchingFirstPage State = "fetching-first-page"
	StateFetchingPage      State = "fetching-page"
	StatePersisting        State = "persisting"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
	StateRejected          State = "rejected"
)

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateRejected
}

// Request selects what a sync run covers. Nil fields use the defaults.
type Request struct {
	CompanyFilter *string `json:"companyFilter"`
	MaxPages      *int    `json:"maxPages"`
}

// PageStats counts page fetch outcomes.
type PageStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Errors  int `json:"errors"`
}

// Summary is the result of a sync run.
type Summary struct {
	Scraped   int       `json:"scraped"`
	Inserted  int       `json:"inserted"`
	Updated   int       `json:"updated"`
	Unchanged int       `json:"unchanged"`
	Errors    int       `json:"errors"`
	Pages     PageStats `json:"pages"`
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Options struct {
	// Pause after a successful page
	PageDelay time.Duration
	// Pause after a failed page
	ErrorDelay time.Duration
	// How often the persisting step text is refreshed
	PersistStepEvery int
	Budget           registry.PageBudget

	// Optional export of every scraped batch before it is persisted
	Snapshots       snapshot.Store
	ExportSnapshots bool

	Sleep SleepFunc
	Now   func() time.Time
}

// Orchestrator drives a full registry sync: it pages through the listing,
// parses every page and reconciles the records with the store.
type Orchestrator struct {
	fetcher  registry.PageFetcher
	upserter *Upserter
	tracker  *progress.Tracker
	opts     Options
}

func NewOrchestrator(fetcher registry.PageFetcher, upserter *Upserter, tracker *progress.Tracker, opts Options) *Orchestrator {
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PersistStepEvery <= 0 {
		opts.PersistStepEvery = 100
	}
	return &Orchestrator{
		fetcher:  fetcher,
		upserter: upserter,
		tracker:  tracker,
		opts:     opts,
	}
}

// Run prepares and executes a sync run synchronously.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Summary, error) {
	run, err := o.Prepare(req)
	if err != nil {
		return nil, err
	}
	return run.Execute(ctx)
}

// Prepare claims the progress tracker for a new run. It fails with
// progress.ErrAlreadyRunning while another run is active, in which case the
// active run is left untouched.
func (o *Orchestrator) Prepare(req Request) (*Run, error) {
	companyID := ""
	if req.CompanyFilter != nil {
		companyID = *req.CompanyFilter
	}
	explicit := 0
	if req.MaxPages != nil {
		explicit = *req.MaxPages
	}
	budget := o.opts.Budget.For(companyID, explicit)

	id, err := o.tracker.Start(progress.SourceScrape, budget)
	if err != nil {
		slog.Warn("Sync request rejected", "state", StateRejected, "reason", err)
		return nil, err
	}
	metrics.TrackActiveRun(true)

	return &Run{
		o:         o,
		id:        id,
		companyID: companyID,
		budget:    budget,
		state:     StateNotStarted,
	}, nil
}

// Run is a single prepared sync. Execute must be called exactly once.
type Run struct {
	o         *Orchestrator
	id        string
	companyID string
	budget    int

	state     State
	page      int
	records   []domain.OperatorRecord
	summary   Summary
	err       error
	startedAt time.Time
}

func (r *Run) ID() string {
	return r.id
}

// Execute walks the state machine until a terminal state and returns the
// summary. A failed run returns its partial summary together with the error.
func (r *Run) Execute(ctx context.Context) (summary *Summary, err error) {
	r.startedAt = r.o.opts.Now()
	r.state = StateFetchingFirstPage

	slog.Info("Starting registry sync", "runId", r.id, "company", r.companyID, "budget", r.budget)

	defer func() {
		if p := recover(); p != nil {
			r.err = fmt.Errorf("sync panicked: %v", p)
			r.state = StateFailed
		}
		r.finish()
		summary = &r.summary
		err = r.err
	}()

	for !r.state.terminal() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.err = fmt.Errorf("sync interrupted: %w", ctxErr)
			r.state = StateFailed
			break
		}

		switch r.state {
		case StateFetchingFirstPage:
			r.state = r.fetchFirstPage(ctx)
		case StateFetchingPage:
			r.state = r.fetchNextPage(ctx)
		case StatePersisting:
			r.state = r.persist(ctx)
		default:
			r.err = fmt.Errorf("unexpected sync state %q", r.state)
			r.state = StateFailed
		}
	}

	return
}

func (r *Run) fetchFirstPage(ctx context.Context) State {
	r.page = 1

	count, err := r.fetchPage(ctx)
	if err != nil {
		// page 1 failing means the query or the registry is unusable
		r.err = fmt.Errorf("failed to fetch first page: %w", err)
		return StateFailed
	}
	if count == 0 || r.page >= r.budget {
		return StatePersisting
	}

	if err := r.o.opts.Sleep(ctx, r.o.opts.PageDelay); err != nil {
		r.err = fmt.Errorf("sync interrupted: %w", err)
		return StateFailed
	}

	r.page++
	return StateFetchingPage
}

func (r *Run) fetchNextPage(ctx context.Context) State {
	if r.page > r.budget {
		return StatePersisting
	}

	count, err := r.fetchPage(ctx)
	delay := r.o.opts.PageDelay
	if err != nil {
		slog.Warn("Skipping registry page", "runId", r.id, "page", r.page, "error", err)
		delay = r.o.opts.ErrorDelay
	} else if count == 0 {
		slog.Info("Reached end of registry listing", "runId", r.id, "page", r.page)
		return StatePersisting
	}
	if r.page >= r.budget {
		slog.Info("Page budget reached", "runId", r.id, "budget", r.budget)
		return StatePersisting
	}

	if err := r.o.opts.Sleep(ctx, delay); err != nil {
		r.err = fmt.Errorf("sync interrupted: %w", err)
		return StateFailed
	}

	r.page++
	return StateFetchingPage
}

// fetchPage fetches and parses r.page and returns the number of records it
// held. Row errors are counted but do not fail the page.
func (r *Run) fetchPage(ctx context.Context) (int, error) {
	r.o.tracker.Update(r.id, func(s *progress.Snapshot) {
		s.Phase = string(r.state)
		s.CurrentPage = r.page
		s.Step = fmt.Sprintf("Scraping page %d/%d...", r.page, r.budget)
	})

	r.summary.Pages.Total++

	records, rowErrors, err := r.loadPage(ctx)
	metrics.RecordPage(err)
	if err != nil {
		r.summary.Pages.Errors++
		r.summary.Errors++
		r.o.tracker.Update(r.id, func(s *progress.Snapshot) {
			s.Errors = r.summary.Errors
		})
		return 0, err
	}

	r.summary.Pages.Success++
	for _, rowErr := range rowErrors {
		slog.Warn("Skipping unparsable row", "runId", r.id, "page", r.page, "error", rowErr)
		metrics.RowParseErrors.Inc()
	}
	r.summary.Errors += len(rowErrors)
	r.records = append(r.records, records...)
	r.summary.Scraped = len(r.records)

	r.o.tracker.Update(r.id, func(s *progress.Snapshot) {
		s.Scraped = r.summary.Scraped
		s.Errors = r.summary.Errors
	})

	slog.Debug("Parsed registry page", "runId", r.id, "page", r.page, "records", len(records), "rowErrors", len(rowErrors))
	return len(records), nil
}

func (r *Run) loadPage(ctx context.Context) ([]domain.OperatorRecord, []error, error) {
	page, err := r.o.fetcher.Fetch(ctx, r.page, r.companyID)
	if err != nil {
		return nil, nil, err
	}
	return registry.ParsePage(page.Body, page.URL, r.o.opts.Now())
}

func (r *Run) persist(ctx context.Context) State {
	total := len(r.records)
	slog.Info("Persisting scraped records", "runId", r.id, "records", total)

	r.exportSnapshot(ctx)

	r.o.tracker.Update(r.id, func(s *progress.Snapshot) {
		s.Phase = string(StatePersisting)
		s.Step = fmt.Sprintf("Saving %d records...", total)
	})

	for i := range r.records {
		if err := ctx.Err(); err != nil {
			r.err = fmt.Errorf("sync interrupted: %w", err)
			return StateFailed
		}

		record := &r.records[i]
		decision, err := r.o.upserter.Apply(ctx, record)
		r.count(decision, err, record.SerialNumber)

		done := i + 1
		r.o.tracker.Update(r.id, func(s *progress.Snapshot) {
			s.Inserted = r.summary.Inserted
			s.Updated = r.summary.Updated
			s.Unchanged = r.summary.Unchanged
			s.Errors = r.summary.Errors
			if done%r.o.opts.PersistStepEvery == 0 || done == total {
				s.Step = fmt.Sprintf("Saved %d/%d records", done, total)
			}
		})
	}

	return StateCompleted
}

func (r *Run) count(decision Decision, err error, serial string) {
	if err != nil {
		r.summary.Errors++
		metrics.RecordUpsert(string(progress.SourceScrape), "error")
		slog.Error("Failed to persist record", "runId", r.id, "serial", serial, "error", err)
		return
	}

	metrics.RecordUpsert(string(progress.SourceScrape), string(decision))
	switch decision {
	case DecisionInsert:
		r.summary.Inserted++
	case DecisionUpdate:
		r.summary.Updated++
	default:
		r.summary.Unchanged++
	}
}

func (r *Run) exportSnapshot(ctx context.Context) {
	if !r.o.opts.ExportSnapshots || r.o.opts.Snapshots == nil || len(r.records) == 0 {
		return
	}

	name := snapshot.Name(r.o.opts.Now())
	if err := r.o.opts.Snapshots.Save(ctx, name, r.records); err != nil {
		slog.Warn("Failed to export snapshot", "runId", r.id, "name", name, "error", err)
		return
	}
	slog.Info("Exported snapshot", "runId", r.id, "name", name, "records", len(r.records))
}

func (r *Run) finish() {
	end := r.o.opts.Now()
	duration := end.Sub(r.startedAt)
	metrics.TrackActiveRun(false)

	if r.state == StateCompleted {
		r.o.tracker.Finish(r.id, progress.StatusCompleted,
			fmt.Sprintf("Completed: %d inserted, %d updated, %d unchanged, %d errors",
				r.summary.Inserted, r.summary.Updated, r.summary.Unchanged, r.summary.Errors))
		metrics.RecordRun(string(progress.SourceScrape), string(progress.StatusCompleted), duration, end)
		slog.Info("Registry sync completed", "runId", r.id, "duration", duration,
			"scraped", r.summary.Scraped, "inserted", r.summary.Inserted,
			"updated", r.summary.Updated, "unchanged", r.summary.Unchanged, "errors", r.summary.Errors)
		return
	}

	if r.err == nil {
		r.err = errors.New("sync stopped unexpectedly")
	}
	r.state = StateFailed
	r.o.tracker.Finish(r.id, progress.StatusFailed, "Error: "+r.err.Error())
	metrics.RecordRun(string(progress.SourceScrape), string(progress.StatusFailed), duration, end)
	slog.Error("Registry sync failed", "runId", r.id, "page", r.page, "error", r.err)
}
