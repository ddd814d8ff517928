package models

import "time"

// LoanStatus is the lifecycle state of a borrowing record. Only active and
// returned are ever persisted; overdue is a read-time projection computed by
// EffectiveStatus and never written to the store.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue"
)

// ReturnCondition describes the reported state of an instrument at return.
type ReturnCondition string

const (
	ConditionGood    ReturnCondition = "good"
	ConditionFair    ReturnCondition = "fair"
	ConditionDamaged ReturnCondition = "damaged"
)

// ValidCondition reports whether the condition is one of good, fair, damaged.
func ValidCondition(c ReturnCondition) bool {
	switch c {
	case ConditionGood, ConditionFair, ConditionDamaged:
		return true
	}
	return false
}

// BorrowingRecord is one loan of one unit of an instrument to a user. Records
// are never deleted; they form the permanent ledger.
type BorrowingRecord struct {
	ID                 string     `db:"id" json:"id"`
	UserID             string     `db:"user_id" json:"user_id"`
	InstrumentID       string     `db:"instrument_id" json:"instrument_id"`
	BorrowDate         time.Time  `db:"borrow_date" json:"borrow_date"`
	ExpectedReturnDate time.Time  `db:"expected_return_date" json:"expected_return_date"`
	ActualReturnDate   *time.Time `db:"actual_return_date" json:"actual_return_date,omitempty"`
	Status             LoanStatus `db:"status" json:"status"`
	Notes              string     `db:"notes" json:"notes"`
}

// EffectiveStatus derives the display state of the record at the given time.
// Deterministic and total: a returned record is returned regardless of dates,
// an active record past its expected return date is overdue, anything else is
// active. Recomputed on every read so the projection is never stale.
func (r BorrowingRecord) EffectiveStatus(now time.Time) LoanStatus {
	if r.Status == LoanReturned {
		return LoanReturned
	}
	if dateOnly(r.ExpectedReturnDate).Before(dateOnly(now)) {
		return LoanOverdue
	}
	return LoanActive
}

// Overdue reports whether the record projects to overdue at the given time.
func (r BorrowingRecord) Overdue(now time.Time) bool {
	return r.EffectiveStatus(now) == LoanOverdue
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LoanDetail is a borrowing record joined with instrument attributes for
// history and reporting reads. CurrentStatus carries the derived projection.
type LoanDetail struct {
	BorrowingRecord
	InstrumentName     string             `db:"instrument_name" json:"instrument_name"`
	InstrumentCategory InstrumentCategory `db:"instrument_category" json:"instrument_category"`
	BorrowerName       string             `db:"borrower_name" json:"borrower_name,omitempty"`
	CurrentStatus      LoanStatus         `db:"-" json:"current_status"`
}

// LoanFilter defines filters for ledger list reads.
type LoanFilter struct {
	UserID       string
	InstrumentID string
	Status       LoanStatus
	Page         int
	PageSize     int
}

// HistoryStats summarises a user's borrowing history.
type HistoryStats struct {
	TotalBorrowed     int `json:"total_borrowed"`
	ReturnedOnTime    int `json:"returned_on_time"`
	ReturnedLate      int `json:"returned_late"`
	CurrentlyBorrowed int `json:"currently_borrowed"`
}
