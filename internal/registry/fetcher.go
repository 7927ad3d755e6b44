package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly"
	"github.com/jaki95/registry-sync/config"
)

const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"

// Page is the raw body of one listing page.
type Page struct {
	Number     int
	URL        string
	StatusCode int
	Body       []byte
}

// PageFetcher retrieves listing pages from the registry.
type PageFetcher interface {
	Fetch(ctx context.Context, page int, companyID string) (*Page, error)
}

// Fetcher downloads listing pages with a colly collector. It never retries;
// pacing and error tolerance belong to the caller.
type Fetcher struct {
	baseURL        string
	userAgent      string
	acceptLanguage string
	timeout        time.Duration
}

func NewFetcher(cfg config.RegistryConfig) *Fetcher {
	return &Fetcher{
		baseURL:        cfg.BaseURL,
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
		timeout:        cfg.RequestTimeout,
	}
}

// PageURL builds the listing URL for a page, filtered to equipment in use and
// optionally to a single company.
func PageURL(baseURL string, page int, companyID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid registry url %q: %w", baseURL, err)
	}

	q := u.Query()
	q.Set("in_use", "1")
	if companyID != "" {
		q.Set("company_id", companyID)
	}
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (f *Fetcher) Fetch(ctx context.Context, page int, companyID string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pageURL, err := PageURL(f.baseURL, page, companyID)
	if err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxDepth(1),
		colly.UserAgent(f.userAgent),
	)
	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
		r.Headers.Set("Accept-Language", f.acceptLanguage)
	})

	result := &Page{Number: page, URL: pageURL}
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.Body = r.Body
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		result.StatusCode = status
		fetchErr = fmt.Errorf("%w: page %d returned status %d: %v", ErrFetchFailed, page, status, err)
	})

	slog.Debug("Fetching registry page", "page", page, "url", pageURL)
	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("%w: page %d: %v", ErrFetchFailed, page, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	if result.StatusCode < 200 || result.StatusCode > 299 {
		return nil, fmt.Errorf("%w: page %d returned status %d", ErrFetchFailed, page, result.StatusCode)
	}

	return result, nil
}
