package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jaki95/registry-sync/internal/domain"
)

// MemoryStore keeps records in a map. Records are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.OperatorRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.OperatorRecord)}
}

func (m *MemoryStore) Get(_ context.Context, serial string) (*domain.OperatorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[serial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	return &record, nil
}

func (m *MemoryStore) Insert(_ context.Context, record *domain.OperatorRecord, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.SerialNumber]; exists {
		return fmt.Errorf("operator record %s already exists", record.SerialNumber)
	}
	stamp(record, now, true)
	m.records[record.SerialNumber] = *record
	return nil
}

func (m *MemoryStore) Update(_ context.Context, record *domain.OperatorRecord, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.SerialNumber]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, record.SerialNumber)
	}
	stamp(record, now, true)
	m.records[record.SerialNumber] = *record
	return nil
}

func (m *MemoryStore) Touch(_ context.Context, serial, sourceURL string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.records[serial]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	if sourceURL != "" {
		record.SourceURL = sourceURL
	}
	stamp(&record, now, false)
	m.records[serial] = record
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, serial string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[serial]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	delete(m.records, serial)
	return nil
}

func (m *MemoryStore) List(_ context.Context, offset, limit int) ([]domain.OperatorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	serials := make([]string, 0, len(m.records))
	for serial := range m.records {
		serials = append(serials, serial)
	}
	sort.Strings(serials)

	records := []domain.OperatorRecord{}
	if offset < 0 {
		offset = 0
	}
	for i := offset; i < len(serials) && len(records) < limit; i++ {
		records = append(records, m.records[serials[i]])
	}
	return records, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func stamp(record *domain.OperatorRecord, now time.Time, modified bool) {
	now = now.UTC()
	synced := now
	record.LastSyncedAt = &synced
	if modified {
		mod := now
		record.LastModifiedAt = &mod
	}
}
