package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jaki95/registry-sync/internal/domain"
)

var ErrNotFound = errors.New("operator record not found")

// OperatorStore persists operator records keyed by serial number.
type OperatorStore interface {
	// Get returns ErrNotFound when no record has the serial number.
	Get(ctx context.Context, serial string) (*domain.OperatorRecord, error)

	// Insert stores a new record and stamps it as synced and modified at now.
	Insert(ctx context.Context, record *domain.OperatorRecord, now time.Time) error

	// Update overwrites every field of an existing record.
	Update(ctx context.Context, record *domain.OperatorRecord, now time.Time) error

	// Touch refreshes the last-synced timestamp and, when sourceURL is not
	// empty, the listing page the record was last seen on.
	Touch(ctx context.Context, serial, sourceURL string, now time.Time) error

	Delete(ctx context.Context, serial string) error

	// List returns records ordered by serial number.
	List(ctx context.Context, offset, limit int) ([]domain.OperatorRecord, error)

	Count(ctx context.Context) (int, error)

	Close() error
}
