package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaki95/registry-sync/internal/domain"
	"github.com/jaki95/registry-sync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseRecord() *domain.OperatorRecord {
	expiry := domain.NewDate(2030, time.January, 1)
	return &domain.OperatorRecord{
		SerialNumber:  "SN-1",
		EquipmentType: "Slot",
		Company:       domain.StringPtr("ACME SRL"),
		Brand:         domain.StringPtr("ACME"),
		LicenseNumber: "L-1",
		Address:       "Craiova, Dolj",
		City:          "Craiova",
		County:        "Dolj",
		ExpiryDate:    &expiry,
		Status:        domain.StatusInService,
		SourceURL:     "https://registry.example/?page=1",
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		stored  *domain.OperatorRecord
		modify  func(r *domain.OperatorRecord)
		want    Decision
		changed []string
	}{
		{name: "nothing stored", stored: nil, want: DecisionInsert},
		{name: "identical", stored: baseRecord(), want: DecisionTouch},
		{
			name:    "status changed",
			stored:  baseRecord(),
			modify:  func(r *domain.OperatorRecord) { r.Status = domain.StatusDecommissioned },
			want:    DecisionUpdate,
			changed: []string{"status"},
		},
		{
			name:    "brand removed",
			stored:  baseRecord(),
			modify:  func(r *domain.OperatorRecord) { r.Brand = nil },
			want:    DecisionUpdate,
			changed: []string{"brand"},
		},
		{
			name:   "expiry moved",
			stored: baseRecord(),
			modify: func(r *domain.OperatorRecord) {
				d := domain.NewDate(2031, time.January, 1)
				r.ExpiryDate = &d
			},
			want:    DecisionUpdate,
			changed: []string{"expiry_date"},
		},
		{
			name:   "timestamps are not tracked",
			stored: baseRecord(),
			modify: func(r *domain.OperatorRecord) {
				now := time.Now()
				r.LastSyncedAt = &now
				r.LastModifiedAt = &now
			},
			want: DecisionTouch,
		},
		{
			name:   "moved to another listing page",
			stored: baseRecord(),
			modify: func(r *domain.OperatorRecord) {
				r.SourceURL = "https://registry.example/?page=2"
			},
			want: DecisionTouch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			incoming := baseRecord()
			if tt.modify != nil {
				tt.modify(incoming)
			}

			assert.Equal(t, tt.want, Decide(tt.stored, incoming))
			if tt.stored != nil {
				assert.Equal(t, tt.changed, ChangedFields(tt.stored, incoming))
			}
		})
	}
}

func TestUpserterApply(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	clock := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	upserter := NewUpserter(store, func() time.Time { return clock })

	decision, err := upserter.Apply(ctx, baseRecord())
	require.NoError(t, err)
	assert.Equal(t, DecisionInsert, decision)

	clock = clock.Add(time.Hour)
	decision, err = upserter.Apply(ctx, baseRecord())
	require.NoError(t, err)
	assert.Equal(t, DecisionTouch, decision)

	stored, err := store.Get(ctx, "SN-1")
	require.NoError(t, err)
	assert.True(t, clock.Equal(*stored.LastSyncedAt))
	assert.True(t, clock.Add(-time.Hour).Equal(*stored.LastModifiedAt))

	changed := baseRecord()
	changed.LicenseNumber = "L-2"
	clock = clock.Add(time.Hour)
	decision, err = upserter.Apply(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, DecisionUpdate, decision)

	stored, err = store.Get(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, "L-2", stored.LicenseNumber)
	assert.True(t, clock.Equal(*stored.LastModifiedAt))
}

func TestUpserterApplyPageShift(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	clock := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	upserter := NewUpserter(store, func() time.Time { return clock })

	first := baseRecord()
	first.SourceURL = "https://registry.example/?page=5"
	decision, err := upserter.Apply(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, DecisionInsert, decision)

	moved := baseRecord()
	moved.SourceURL = "https://registry.example/?page=6"
	clock = clock.Add(time.Hour)
	decision, err = upserter.Apply(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, DecisionTouch, decision)

	stored, err := store.Get(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, moved.SourceURL, stored.SourceURL)
	assert.True(t, clock.Equal(*stored.LastSyncedAt))
	assert.True(t, clock.Add(-time.Hour).Equal(*stored.LastModifiedAt))
}

type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) Get(context.Context, string) (*domain.OperatorRecord, error) {
	return nil, errors.New("database is locked")
}

func TestUpserterApplyStorageError(t *testing.T) {
	upserter := NewUpserter(failingStore{storage.NewMemoryStore()}, nil)

	_, err := upserter.Apply(context.Background(), baseRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}
