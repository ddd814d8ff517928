package models

import "time"

// InstrumentCategory is the fixed set of catalog categories.
type InstrumentCategory string

const (
	CategoryBrass      InstrumentCategory = "brass"
	CategoryWoodwind   InstrumentCategory = "woodwind"
	CategoryPercussion InstrumentCategory = "percussion"
	CategoryStrings    InstrumentCategory = "strings"
)

// InstrumentStatus is an administrative flag on an instrument. It is not
// derived from availability: available_quantity = 0 does not force the
// status to borrowed, and maintenance can coexist with any availability.
type InstrumentStatus string

const (
	InstrumentAvailable   InstrumentStatus = "available"
	InstrumentBorrowed    InstrumentStatus = "borrowed"
	InstrumentMaintenance InstrumentStatus = "maintenance"
)

// Instrument represents a catalog entry with a finite pool of units.
// available_quantity always equals quantity minus the number of borrowing
// records currently active for this instrument.
type Instrument struct {
	ID                string             `db:"id" json:"id"`
	Name              string             `db:"name" json:"name"`
	Category          InstrumentCategory `db:"category" json:"category"`
	Description       string             `db:"description" json:"description"`
	Quantity          int                `db:"quantity" json:"quantity"`
	AvailableQuantity int                `db:"available_quantity" json:"available_quantity"`
	Status            InstrumentStatus   `db:"status" json:"status"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`
}

// ValidCategory reports whether the category belongs to the fixed set.
func ValidCategory(c InstrumentCategory) bool {
	switch c {
	case CategoryBrass, CategoryWoodwind, CategoryPercussion, CategoryStrings:
		return true
	}
	return false
}

// ValidInstrumentStatus reports whether the status is a known value.
func ValidInstrumentStatus(s InstrumentStatus) bool {
	switch s {
	case InstrumentAvailable, InstrumentBorrowed, InstrumentMaintenance:
		return true
	}
	return false
}

// InstrumentFilter defines filters supported by catalog list endpoints.
type InstrumentFilter struct {
	Category      InstrumentCategory
	Status        InstrumentStatus
	Search        string
	OnlyBorrowable bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
