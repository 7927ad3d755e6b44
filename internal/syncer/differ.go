package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jaki95/registry-sync/internal/domain"
	"github.com/jaki95/registry-sync/internal/storage"
)

// Decision is the write a record needs to match its stored copy.
type Decision string

const (
	DecisionInsert Decision = "insert"
	DecisionUpdate Decision = "update"
	DecisionTouch  Decision = "touch"
)

// ChangedFields lists the tracked fields whose values differ between the
// stored and incoming record. Storage timestamps and the listing page URL are
// not tracked: a record shifting to another page is not a registry change.
func ChangedFields(stored, incoming *domain.OperatorRecord) []string {
	var changed []string
	diff := func(name string, equal bool) {
		if !equal {
			changed = append(changed, name)
		}
	}

	diff("detail_id", stringsEqual(stored.DetailID, incoming.DetailID))
	diff("equipment_type", stored.EquipmentType == incoming.EquipmentType)
	diff("company", stringsEqual(stored.Company, incoming.Company))
	diff("brand", stringsEqual(stored.Brand, incoming.Brand))
	diff("license_number", stored.LicenseNumber == incoming.LicenseNumber)
	diff("address", stored.Address == incoming.Address)
	diff("city", stored.City == incoming.City)
	diff("county", stored.County == incoming.County)
	diff("authorization_date", domain.DatesEqual(stored.AuthorizationDate, incoming.AuthorizationDate))
	diff("expiry_date", domain.DatesEqual(stored.ExpiryDate, incoming.ExpiryDate))
	diff("status", stored.Status == incoming.Status)
	diff("expired", stored.Expired == incoming.Expired)
	diff("detail_url", stringsEqual(stored.DetailURL, incoming.DetailURL))

	return changed
}

// Decide picks insert when nothing is stored, update when any tracked field
// changed and touch otherwise.
func Decide(stored, incoming *domain.OperatorRecord) Decision {
	if stored == nil {
		return DecisionInsert
	}
	if len(ChangedFields(stored, incoming)) > 0 {
		return DecisionUpdate
	}
	return DecisionTouch
}

func stringsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Upserter applies diff decisions to an operator store.
type Upserter struct {
	store storage.OperatorStore
	now   func() time.Time
}

func NewUpserter(store storage.OperatorStore, now func() time.Time) *Upserter {
	if now == nil {
		now = time.Now
	}
	return &Upserter{store: store, now: now}
}

// Apply reconciles one record with the store and reports what it did.
func (u *Upserter) Apply(ctx context.Context, record *domain.OperatorRecord) (Decision, error) {
	stored, err := u.store.Get(ctx, record.SerialNumber)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("failed to load %s: %w", record.SerialNumber, err)
	}
	if err != nil {
		stored = nil
	}

	decision := Decide(stored, record)
	now := u.now()

	switch decision {
	case DecisionInsert:
		err = u.store.Insert(ctx, record, now)
	case DecisionUpdate:
		err = u.store.Update(ctx, record, now)
	default:
		err = u.store.Touch(ctx, record.SerialNumber, record.SourceURL, now)
	}
	if err != nil {
		return decision, err
	}
	return decision, nil
}
