package cli

import (
	"io"

	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/syncer"
	"github.com/schollz/progressbar/v3"
)

type phase int

const (
	phaseNone phase = iota
	phaseScraping
	phaseSaving
	phaseImporting
)

func phaseOf(s progress.Snapshot) phase {
	switch s.Phase {
	case string(syncer.StateFetchingFirstPage), string(syncer.StateFetchingPage):
		return phaseScraping
	case string(syncer.StatePersisting):
		return phaseSaving
	case syncer.PhaseImporting:
		return phaseImporting
	default:
		return phaseNone
	}
}

// Reporter renders tracker snapshots as terminal progress bars: one over the
// page budget while scraping and one over the records while saving.
type Reporter struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	phase phase

	// errors already counted when the current bar started
	baseErrors int
}

func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// OnProgress is a progress.Tracker listener.
func (r *Reporter) OnProgress(s progress.Snapshot) {
	if s.Terminal() {
		r.finish()
		return
	}

	current := phaseOf(s)
	if current == phaseNone {
		return
	}
	if current != r.phase {
		r.start(current, s)
	}

	switch current {
	case phaseScraping:
		_ = r.bar.Set(s.CurrentPage)
	default:
		_ = r.bar.Set(s.Inserted + s.Updated + s.Unchanged + s.Errors - r.baseErrors)
	}
}

func (r *Reporter) start(p phase, s progress.Snapshot) {
	r.finish()

	total, description := s.TotalPages, "[cyan][1/2][reset] Scraping registry pages..."
	switch p {
	case phaseSaving:
		total, description = s.Scraped, "[cyan][2/2][reset] Saving records..."
	case phaseImporting:
		total, description = s.Scraped, "[cyan][1/1][reset] Importing records..."
	}

	r.phase = p
	r.baseErrors = s.Errors
	r.bar = progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionFullWidth(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(description),
	)
}

func (r *Reporter) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
	r.phase = phaseNone
}
