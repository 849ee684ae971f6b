package enums

import "fmt"

// InventoryChangeType maps to the inventory_change_type enum in Postgres.
type InventoryChangeType string

const (
	InventoryChangeReserved InventoryChangeType = "reserved"
	InventoryChangeReleased InventoryChangeType = "released"
	InventoryChangeRestock  InventoryChangeType = "restock"
)

var validInventoryChangeTypes = []InventoryChangeType{
	InventoryChangeReserved,
	InventoryChangeReleased,
	InventoryChangeRestock,
}

// IsValid reports whether the value matches the canonical inventory change enum.
func (t InventoryChangeType) IsValid() bool {
	for _, candidate := range validInventoryChangeTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseInventoryChangeType converts raw input into an InventoryChangeType.
func ParseInventoryChangeType(value string) (InventoryChangeType, error) {
	for _, candidate := range validInventoryChangeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory change type %q", value)
}
