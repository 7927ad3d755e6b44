package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of the current run
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Source identifies what started a run
type Source string

const (
	SourceScrape Source = "scrape"
	SourceImport Source = "import"
)

// DefaultTTL is how long a finished run stays visible before reading as idle.
const DefaultTTL = 30 * time.Second

// Snapshot is the pollable view of a run.
type Snapshot struct {
	RunID       string     `json:"runId"`
	Source      Source     `json:"source"`
	Status      Status     `json:"status"`
	Phase       string     `json:"phase,omitempty"`
	CurrentPage int        `json:"currentPage"`
	TotalPages  int        `json:"totalPages"`
	Step        string     `json:"step"`
	Scraped     int        `json:"scraped"`
	Inserted    int        `json:"inserted"`
	Updated     int        `json:"updated"`
	Unchanged   int        `json:"unchanged"`
	Errors      int        `json:"errors"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	DurationMs  int64      `json:"durationMs,omitempty"`
}

// Terminal reports whether the run has finished.
func (s Snapshot) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Percent returns the page progress clamped to 0..100.
func (s Snapshot) Percent() float64 {
	if s.Status == StatusCompleted {
		return 100
	}
	if s.TotalPages <= 0 {
		return 0
	}
	p := float64(s.CurrentPage) / float64(s.TotalPages) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker holds the progress of the single active run. It doubles as the
// single-flight guard: Start refuses while a run is in progress.
type Tracker struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	current   *Snapshot
	expiresAt time.Time
	listeners []func(Snapshot)
}

func NewTracker(ttl time.Duration, opts ...Option) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := &Tracker{
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddListener registers a callback invoked with a copy of the snapshot after
// every change. Listeners run synchronously on the updating goroutine.
func (t *Tracker) AddListener(listener func(Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, listener)
}

// Start claims the tracker for a new run and returns its ID.
func (t *Tracker) Start(source Source, totalPages int) (string, error) {
	t.mu.Lock()
	if t.current != nil && t.current.Status == StatusRunning {
		t.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	t.current = &Snapshot{
		RunID:      uuid.NewString(),
		Source:     source,
		Status:     StatusRunning,
		TotalPages: totalPages,
		Step:       "starting",
		StartTime:  t.now(),
	}
	t.expiresAt = time.Time{}
	snap, listeners := *t.current, t.listeners
	t.mu.Unlock()

	notify(listeners, snap)
	return snap.RunID, nil
}

// Update applies fn to the snapshot of runID. Updates for a run that is no
// longer current, or already finished, are ignored.
func (t *Tracker) Update(runID string, fn func(*Snapshot)) {
	t.mu.Lock()
	if t.current == nil || t.current.RunID != runID || t.current.Status != StatusRunning {
		t.mu.Unlock()
		return
	}

	fn(t.current)
	// the callback may not alter identity or lifecycle
	t.current.RunID = runID
	t.current.Status = StatusRunning

	snap, listeners := *t.current, t.listeners
	t.mu.Unlock()

	notify(listeners, snap)
}

// Finish moves runID to a terminal status and starts its expiry countdown.
func (t *Tracker) Finish(runID string, status Status, step string) {
	t.mu.Lock()
	if t.current == nil || t.current.RunID != runID || t.current.Status != StatusRunning {
		t.mu.Unlock()
		return
	}
	if status != StatusFailed {
		status = StatusCompleted
	}

	end := t.now()
	t.current.Status = status
	t.current.Step = step
	t.current.EndTime = &end
	t.current.DurationMs = end.Sub(t.current.StartTime).Milliseconds()
	t.expiresAt = end.Add(t.ttl)

	snap, listeners := *t.current, t.listeners
	t.mu.Unlock()

	notify(listeners, snap)
}

// Snapshot returns a copy of the current run. ok is false when no run is
// active and the last finished run has expired.
func (t *Tracker) Snapshot() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return Snapshot{Status: StatusIdle}, false
	}
	if t.current.Terminal() && !t.now().Before(t.expiresAt) {
		t.current = nil
		return Snapshot{Status: StatusIdle}, false
	}
	return *t.current, true
}

// Running reports whether a run currently holds the tracker.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil && t.current.Status == StatusRunning
}

func notify(listeners []func(Snapshot), snap Snapshot) {
	for _, listener := range listeners {
		listener(snap)
	}
}
