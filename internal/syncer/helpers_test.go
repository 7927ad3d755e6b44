package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/registry"
	"github.com/jaki95/registry-sync/internal/storage"
)

var testNow = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time {
	return testNow
}

type fetchCall struct {
	page      int
	companyID string
}

// fakeFetcher serves canned listing pages. Pages without an entry are empty.
type fakeFetcher struct {
	pages  map[int]string
	errs   map[int]error
	calls  []fetchCall
	onPage func(page int)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[int]string{}, errs: map[int]error{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, page int, companyID string) (*registry.Page, error) {
	f.calls = append(f.calls, fetchCall{page: page, companyID: companyID})
	if f.onPage != nil {
		f.onPage(page)
	}
	if err, ok := f.errs[page]; ok {
		return nil, fmt.Errorf("%w: %v", registry.ErrFetchFailed, err)
	}

	body, ok := f.pages[page]
	if !ok {
		body = listingHTML()
	}
	return &registry.Page{
		Number:     page,
		URL:        fmt.Sprintf("https://registry.example/mijloace-de-joc?in_use=1&page=%d", page),
		StatusCode: 200,
		Body:       []byte(body),
	}, nil
}

// fillPages gives pages 1..n two records each.
func (f *fakeFetcher) fillPages(n int) {
	for p := 1; p <= n; p++ {
		f.pages[p] = listingHTML(
			row(fmt.Sprintf("SN-%04d-A", p), "În exploatare"),
			row(fmt.Sprintf("SN-%04d-B", p), "Scos din exploatare"),
		)
	}
}

type recordedSleep struct {
	durations []time.Duration
}

func (r *recordedSleep) Sleep(ctx context.Context, d time.Duration) error {
	r.durations = append(r.durations, d)
	return ctx.Err()
}

func listingHTML(rows ...string) string {
	return "<html><body><table><tbody>" + strings.Join(rows, "") + "</tbody></table></body></html>"
}

func row(serial, status string) string {
	return fmt.Sprintf(`<tr><td><a href="/detalii/%[1]s">%[1]s</a></td><td>Slot</td><td>ACME SRL<br><br>ACME</td><td>L-1</td>`+
		`<td>Str. Mare 1<br>Craiova, Dolj</td><td>01/01/2020</td><td>01/01/2030</td><td>%[2]s</td></tr>`, serial, status)
}

type testEnv struct {
	fetcher *fakeFetcher
	store   *storage.MemoryStore
	tracker *progress.Tracker
	sleep   *recordedSleep
	orch    *Orchestrator
}

func newTestEnv(opts Options) *testEnv {
	env := &testEnv{
		fetcher: newFakeFetcher(),
		store:   storage.NewMemoryStore(),
		tracker: progress.NewTracker(time.Minute, progress.WithClock(fixedNow)),
		sleep:   &recordedSleep{},
	}

	if opts.Budget.Default == 0 {
		opts.Budget = registry.PageBudget{Default: 1200, Company: 100}
	}
	if opts.PageDelay == 0 {
		opts.PageDelay = 500 * time.Millisecond
	}
	if opts.ErrorDelay == 0 {
		opts.ErrorDelay = time.Second
	}
	opts.Sleep = env.sleep.Sleep
	opts.Now = fixedNow

	upserter := NewUpserter(env.store, fixedNow)
	env.orch = NewOrchestrator(env.fetcher, upserter, env.tracker, opts)
	return env
}

func intPtr(n int) *int {
	return &n
}

func strPtr(s string) *string {
	return &s
}
