package registry

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jaki95/registry-sync/internal/domain"
)

// MinCells is the number of data cells a listing row needs to be considered.
const MinCells = 8

// Column positions in the registry listing table
const (
	colSerial = iota
	colType
	colOperator
	colLicense
	colAddress
	colAuthorized
	colExpiry
	colStatus
)

// inServiceMarker is the registry's wording for equipment in operation.
const inServiceMarker = "în exploatare"

var (
	operatorSeparator = regexp.MustCompile(`\n+|\s{2,}`)
	cityCountyPattern = regexp.MustCompile(`^\s*([^,]+?)\s*,\s*([^,]+?)\s*$`)
)

// RowError describes a row that could not be turned into a record.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ParsePage extracts every operator record from one listing page. Rows with
// fewer than MinCells cells are skipped; rows that fail to parse are reported
// in the returned error slice and do not stop the page.
func ParsePage(body []byte, pageURL string, now time.Time) ([]domain.OperatorRecord, []error, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	base, _ := url.Parse(pageURL)

	var records []domain.OperatorRecord
	var rowErrors []error
	doc.Find("table tbody tr").Each(func(i int, row *goquery.Selection) {
		record, ok, err := ParseRow(row, base, now)
		if err != nil {
			rowErrors = append(rowErrors, &RowError{Row: i + 1, Err: err})
			return
		}
		if !ok {
			return
		}
		record.SourceURL = pageURL
		records = append(records, *record)
	})

	return records, rowErrors, nil
}

// ParseRow converts one table row into a record. ok is false when the row
// has too few cells to be a data row.
func ParseRow(row *goquery.Selection, base *url.URL, now time.Time) (record *domain.OperatorRecord, ok bool, err error) {
	cells := row.Find("td")
	if cells.Length() < MinCells {
		return nil, false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			record, ok, err = nil, false, fmt.Errorf("unexpected row layout: %v", r)
		}
	}()

	cell := func(i int) string {
		return cellText(cells.Eq(i))
	}

	serial := strings.TrimSpace(cell(colSerial))
	if serial == "" {
		return nil, false, ErrMissingSerial
	}

	company, brand := SplitOperator(cell(colOperator))
	address := strings.TrimSpace(cell(colAddress))
	city, county := DecomposeAddress(address)

	record = &domain.OperatorRecord{
		SerialNumber:  serial,
		EquipmentType: strings.TrimSpace(cell(colType)),
		Company:       company,
		Brand:         brand,
		LicenseNumber: strings.TrimSpace(cell(colLicense)),
		Address:       address,
		City:          city,
		County:        county,
		Status:        ClassifyStatus(cell(colStatus)),
	}

	if iso, ok := ParseDate(cell(colAuthorized)); ok {
		d, _ := domain.ParseISODate(iso)
		record.AuthorizationDate = &d
	}

	expiryISO, hasExpiry := ParseDate(cell(colExpiry))
	if hasExpiry {
		d, _ := domain.ParseISODate(expiryISO)
		record.ExpiryDate = &d
		record.Expired = IsExpired(expiryISO, now)
	}

	if href, exists := cells.Eq(colSerial).Find("a[href]").First().Attr("href"); exists {
		detailURL := resolveURL(base, strings.TrimSpace(href))
		record.DetailURL = domain.StringPtr(detailURL)
		record.DetailID = domain.StringPtr(detailIDFromURL(detailURL))
	}

	return record, true, nil
}

// cellText returns the text of a cell with <br> tags turned into newlines.
func cellText(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find("br").ReplaceWithHtml("\n")
	return clone.Text()
}

// SplitOperator splits "Company\n\nBrand" into its two parts. A missing second
// segment yields a nil brand.
func SplitOperator(text string) (company, brand *string) {
	var segments []string
	for _, part := range operatorSeparator.Split(strings.TrimSpace(text), -1) {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}

	switch len(segments) {
	case 0:
		return nil, nil
	case 1:
		return &segments[0], nil
	default:
		return &segments[0], &segments[1]
	}
}

// ParseDate converts a DD/MM/YYYY date to YYYY-MM-DD. ok is false for any
// malformed or impossible date.
func ParseDate(raw string) (iso string, ok bool) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 3 {
		return "", false
	}

	var nums [3]int
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if !allDigits(part) {
			return "", false
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return "", false
		}
		nums[i] = n
	}

	day, month, year := nums[0], nums[1], nums[2]
	if year < 1 || year > 9999 || month < 1 || month > 12 || day < 1 {
		return "", false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}

	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// allDigits reports whether s is a non-empty run of ASCII digits.
func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DecomposeAddress derives city and county from the last non-blank line of an
// address. Both are empty when that line is not "<city>, <county>".
func DecomposeAddress(address string) (city, county string) {
	lines := strings.Split(address, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		matches := cityCountyPattern.FindStringSubmatch(line)
		if matches == nil {
			return "", ""
		}
		return matches[1], matches[2]
	}
	return "", ""
}

// IsExpired reports whether an ISO expiry date lies strictly before today.
// Empty or unparsable dates are never expired.
func IsExpired(expiryISO string, now time.Time) bool {
	if expiryISO == "" {
		return false
	}
	expiry, err := domain.ParseISODate(expiryISO)
	if err != nil {
		return false
	}
	return expiry.Before(domain.DateOf(now).Time)
}

// ClassifyStatus maps the registry status text to an equipment status.
func ClassifyStatus(text string) domain.EquipmentStatus {
	if strings.Contains(strings.ToLower(text), inServiceMarker) {
		return domain.StatusInService
	}
	return domain.StatusDecommissioned
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func detailIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if id := u.Query().Get("id"); id != "" {
		return id
	}
	id := path.Base(strings.TrimSuffix(u.Path, "/"))
	if id == "." || id == "/" {
		return ""
	}
	return id
}
