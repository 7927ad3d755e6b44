package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/jaki95/registry-sync/internal/domain"
)

var ErrNotFound = errors.New("snapshot not found")

const (
	namePrefix = "registry-"
	nameSuffix = ".json"
)

// Store persists named JSON exports of operator records. A snapshot can be fed
// back through the bulk import path.
type Store interface {
	Save(ctx context.Context, name string, records []domain.OperatorRecord) error
	Load(ctx context.Context, name string) ([]domain.OperatorRecord, error)
	// List returns snapshot names, oldest first.
	List(ctx context.Context) ([]string, error)
}

// Name returns the snapshot name for an export taken at t.
func Name(t time.Time) string {
	return namePrefix + t.UTC().Format("20060102-150405") + nameSuffix
}

// validName rejects names that could escape the store's directory or prefix.
func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}

func isSnapshotName(name string) bool {
	return strings.HasSuffix(name, nameSuffix)
}

func encode(w io.Writer, records []domain.OperatorRecord) error {
	if records == nil {
		records = []domain.OperatorRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

func decode(r io.Reader) ([]domain.OperatorRecord, error) {
	var records []domain.OperatorRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return records, nil
}
