package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaki95/registry-sync/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS operators (
	serial_number      TEXT PRIMARY KEY,
	detail_id          TEXT,
	equipment_type     TEXT NOT NULL DEFAULT '',
	company            TEXT,
	brand              TEXT,
	license_number     TEXT NOT NULL DEFAULT '',
	address            TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	county             TEXT NOT NULL DEFAULT '',
	authorization_date TEXT,
	expiry_date        TEXT,
	status             TEXT NOT NULL CHECK (status IN ('in-service', 'decommissioned')),
	expired            INTEGER NOT NULL DEFAULT 0,
	source_url         TEXT NOT NULL DEFAULT '',
	detail_url         TEXT,
	last_synced_at     DATETIME,
	last_modified_at   DATETIME
);
CREATE INDEX IF NOT EXISTS idx_operators_company ON operators(company);
CREATE INDEX IF NOT EXISTS idx_operators_county ON operators(county);
`

const selectColumns = `serial_number, detail_id, equipment_type, company, brand, license_number,
	address, city, county, authorization_date, expiry_date, status, expired,
	source_url, detail_url, last_synced_at, last_modified_at`

// SQLiteStore implements OperatorStore on a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps writes serialized and an in-memory database shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, serial string) (*domain.OperatorRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM operators WHERE serial_number = ?", serial)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator record: %w", err)
	}
	return record, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, record *domain.OperatorRecord, now time.Time) error {
	now = now.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO operators (serial_number, detail_id, equipment_type, company, brand, license_number,
			address, city, county, authorization_date, expiry_date, status, expired,
			source_url, detail_url, last_synced_at, last_modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.SerialNumber, nullString(record.DetailID), record.EquipmentType,
		nullString(record.Company), nullString(record.Brand), record.LicenseNumber,
		record.Address, record.City, record.County,
		nullDate(record.AuthorizationDate), nullDate(record.ExpiryDate),
		string(record.Status), record.Expired,
		record.SourceURL, nullString(record.DetailURL), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert operator record %s: %w", record.SerialNumber, err)
	}

	record.LastSyncedAt = &now
	record.LastModifiedAt = &now
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, record *domain.OperatorRecord, now time.Time) error {
	now = now.UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE operators SET detail_id = ?, equipment_type = ?, company = ?, brand = ?,
			license_number = ?, address = ?, city = ?, county = ?, authorization_date = ?,
			expiry_date = ?, status = ?, expired = ?, source_url = ?, detail_url = ?,
			last_synced_at = ?, last_modified_at = ?
		WHERE serial_number = ?`,
		nullString(record.DetailID), record.EquipmentType,
		nullString(record.Company), nullString(record.Brand), record.LicenseNumber,
		record.Address, record.City, record.County,
		nullDate(record.AuthorizationDate), nullDate(record.ExpiryDate),
		string(record.Status), record.Expired,
		record.SourceURL, nullString(record.DetailURL), now, now,
		record.SerialNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to update operator record %s: %w", record.SerialNumber, err)
	}
	if err := requireAffected(res, record.SerialNumber); err != nil {
		return err
	}

	record.LastSyncedAt = &now
	record.LastModifiedAt = &now
	return nil
}

func (s *SQLiteStore) Touch(ctx context.Context, serial, sourceURL string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE operators SET last_synced_at = ?, source_url = COALESCE(NULLIF(?, ''), source_url) WHERE serial_number = ?",
		now.UTC(), sourceURL, serial)
	if err != nil {
		return fmt.Errorf("failed to touch operator record %s: %w", serial, err)
	}
	return requireAffected(res, serial)
}

func (s *SQLiteStore) Delete(ctx context.Context, serial string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM operators WHERE serial_number = ?", serial)
	if err != nil {
		return fmt.Errorf("failed to delete operator record %s: %w", serial, err)
	}
	return requireAffected(res, serial)
}

func (s *SQLiteStore) List(ctx context.Context, offset, limit int) ([]domain.OperatorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM operators ORDER BY serial_number ASC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list operator records: %w", err)
	}
	defer rows.Close()

	records := []domain.OperatorRecord{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operator record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operators").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count operator records: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.OperatorRecord, error) {
	var (
		detailID, company, brand, detailURL sql.NullString
		authorized, expiry                  sql.NullString
		status                              string
		syncedAt, modifiedAt                sql.NullTime
	)

	record := &domain.OperatorRecord{}
	err := row.Scan(
		&record.SerialNumber, &detailID, &record.EquipmentType, &company, &brand,
		&record.LicenseNumber, &record.Address, &record.City, &record.County,
		&authorized, &expiry, &status, &record.Expired,
		&record.SourceURL, &detailURL, &syncedAt, &modifiedAt,
	)
	if err != nil {
		return nil, err
	}

	record.DetailID = fromNullString(detailID)
	record.Company = fromNullString(company)
	record.Brand = fromNullString(brand)
	record.DetailURL = fromNullString(detailURL)
	record.Status = domain.EquipmentStatus(status)

	if record.AuthorizationDate, err = fromNullDate(authorized); err != nil {
		return nil, err
	}
	if record.ExpiryDate, err = fromNullDate(expiry); err != nil {
		return nil, err
	}
	if syncedAt.Valid {
		t := syncedAt.Time.UTC()
		record.LastSyncedAt = &t
	}
	if modifiedAt.Valid {
		t := modifiedAt.Time.UTC()
		record.LastModifiedAt = &t
	}

	return record, nil
}

func requireAffected(res sql.Result, serial string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullDate(d *domain.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func fromNullDate(ns sql.NullString) (*domain.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := domain.ParseISODate(ns.String)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", ns.String, err)
	}
	return &d, nil
}
