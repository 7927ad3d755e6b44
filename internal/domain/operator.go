package domain

import "time"

// EquipmentStatus is the lifecycle status of a piece of registered equipment.
type EquipmentStatus string

const (
	StatusInService      EquipmentStatus = "in-service"
	StatusDecommissioned EquipmentStatus = "decommissioned"
)

// Valid reports whether s is one of the two known statuses.
func (s EquipmentStatus) Valid() bool {
	return s == StatusInService || s == StatusDecommissioned
}

// OperatorRecord represents one equipment entry of the public registry.
// Pointer fields are optional: nil means the registry did not provide a value.
type OperatorRecord struct {
	SerialNumber      string          `json:"serial_number"`
	DetailID          *string         `json:"detail_id,omitempty"`
	EquipmentType     string          `json:"equipment_type"`
	Company           *string         `json:"company,omitempty"`
	Brand             *string         `json:"brand,omitempty"`
	LicenseNumber     string          `json:"license_number"`
	Address           string          `json:"address"`
	City              string          `json:"city"`
	County            string          `json:"county"`
	AuthorizationDate *Date           `json:"authorization_date,omitempty"`
	ExpiryDate        *Date           `json:"expiry_date,omitempty"`
	Status            EquipmentStatus `json:"status"`
	Expired           bool            `json:"expired"`
	SourceURL         string          `json:"source_url"`
	DetailURL         *string         `json:"detail_url,omitempty"`

	// Maintained by storage
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	LastModifiedAt *time.Time `json:"last_modified_at,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
