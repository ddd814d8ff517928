package models

import "time"

// OverallStats are the headline counters on the staff reports page.
type OverallStats struct {
	TotalInstruments int `db:"total_instruments" json:"total_instruments"`
	TotalBorrowings  int `db:"total_borrowings" json:"total_borrowings"`
	ActiveBorrowings int `db:"active_borrowings" json:"active_borrowings"`
	OverdueItems     int `db:"overdue_items" json:"overdue_items"`
}

// CategoryStats aggregates borrowing activity per instrument category over a
// reporting period.
type CategoryStats struct {
	Category         InstrumentCategory `db:"category" json:"category"`
	TotalBorrowings  int                `db:"total_borrowings" json:"total_borrowings"`
	ActiveBorrowings int                `db:"active_borrowings" json:"active_borrowings"`
	LateReturns      int                `db:"late_returns" json:"late_returns"`
}

// PopularInstrument ranks instruments by borrow count within a period.
type PopularInstrument struct {
	Name        string             `db:"name" json:"name"`
	Category    InstrumentCategory `db:"category" json:"category"`
	BorrowCount int                `db:"borrow_count" json:"borrow_count"`
}

// TopBorrower ranks users by borrow count within a period.
type TopBorrower struct {
	FullName         string `db:"full_name" json:"full_name"`
	Email            string `db:"email" json:"email"`
	BorrowCount      int    `db:"borrow_count" json:"borrow_count"`
	ActiveBorrowings int    `db:"active_borrowings" json:"active_borrowings"`
	LateReturns      int    `db:"late_returns" json:"late_returns"`
}

// OverdueLoan lists a loan past its expected return date with borrower and
// instrument context.
type OverdueLoan struct {
	RecordID           string             `db:"record_id" json:"record_id"`
	BorrowerName       string             `db:"borrower_name" json:"borrower_name"`
	BorrowerEmail      string             `db:"borrower_email" json:"borrower_email"`
	InstrumentName     string             `db:"instrument_name" json:"instrument_name"`
	Category           InstrumentCategory `db:"category" json:"category"`
	BorrowDate         time.Time          `db:"borrow_date" json:"borrow_date"`
	ExpectedReturnDate time.Time          `db:"expected_return_date" json:"expected_return_date"`
	DaysOverdue        int                `db:"days_overdue" json:"days_overdue"`
}

// ReportPeriod bounds period-scoped report queries by borrow date.
type ReportPeriod struct {
	StartDate time.Time
	EndDate   time.Time
}

// PeriodReport is the composed staff report payload.
type PeriodReport struct {
	Period        ReportPeriod        `json:"-"`
	StartDate     string              `json:"start_date"`
	EndDate       string              `json:"end_date"`
	Overall       OverallStats        `json:"overall"`
	ByCategory    []CategoryStats     `json:"by_category"`
	Popular       []PopularInstrument `json:"most_borrowed"`
	TopBorrowers  []TopBorrower       `json:"top_borrowers"`
	RecentOverdue []OverdueLoan       `json:"recent_overdue"`
}

// AdminDashboardStats backs the admin dashboard view.
type AdminDashboardStats struct {
	TotalUsers       int `db:"total_users" json:"total_users"`
	TotalInstruments int `db:"total_instruments" json:"total_instruments"`
	ActiveBorrowings int `db:"active_borrowings" json:"active_borrowings"`
	OverdueItems     int `db:"overdue_items" json:"overdue_items"`
}

// StaffDashboardStats backs the staff dashboard view.
type StaffDashboardStats struct {
	TotalInstruments     int `db:"total_instruments" json:"total_instruments"`
	AvailableInstruments int `db:"available_instruments" json:"available_instruments"`
	ActiveBorrowings     int `db:"active_borrowings" json:"active_borrowings"`
	OverdueItems         int `db:"overdue_items" json:"overdue_items"`
}

// StudentDashboardStats backs the personal student dashboard view.
type StudentDashboardStats struct {
	TotalBorrowed        int `json:"total_borrowed"`
	CurrentlyBorrowed    int `json:"currently_borrowed"`
	OverdueItems         int `json:"overdue_items"`
	AvailableInstruments int `json:"available_instruments"`
}
