package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/borrowsmart/lending-api/internal/models"
)

// ReportRepository serves the read-only aggregate queries behind dashboards
// and staff reports. Overdue is always expressed as the date projection over
// active records, never as a stored status. These reads tolerate the store's
// default isolation; only the lending transactions need stronger guarantees.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// OverallStats returns the headline counters.
func (r *ReportRepository) OverallStats(ctx context.Context) (*models.OverallStats, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM instruments) AS total_instruments,
	(SELECT COUNT(*) FROM borrowing_records) AS total_borrowings,
	(SELECT COUNT(*) FROM borrowing_records WHERE status = 'active') AS active_borrowings,
	(SELECT COUNT(*) FROM borrowing_records WHERE status = 'active' AND expected_return_date < CURRENT_DATE) AS overdue_items`
	var stats models.OverallStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("overall stats: %w", err)
	}
	return &stats, nil
}

// CategoryStats aggregates borrowing activity per category over the period.
func (r *ReportRepository) CategoryStats(ctx context.Context, period models.ReportPeriod) ([]models.CategoryStats, error) {
	const query = `SELECT i.category,
	       COUNT(*) AS total_borrowings,
	       COUNT(*) FILTER (WHERE br.status = 'active') AS active_borrowings,
	       COUNT(*) FILTER (WHERE br.status = 'returned' AND br.actual_return_date > br.expected_return_date) AS late_returns
	FROM borrowing_records br
	JOIN instruments i ON br.instrument_id = i.id
	WHERE br.borrow_date BETWEEN $1 AND $2
	GROUP BY i.category
	ORDER BY i.category`
	var stats []models.CategoryStats
	if err := r.db.SelectContext(ctx, &stats, query, period.StartDate, period.EndDate); err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	return stats, nil
}

// PopularInstruments ranks the most borrowed instruments within the period.
func (r *ReportRepository) PopularInstruments(ctx context.Context, period models.ReportPeriod, limit int) ([]models.PopularInstrument, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `SELECT i.name, i.category, COUNT(*) AS borrow_count
	FROM borrowing_records br
	JOIN instruments i ON br.instrument_id = i.id
	WHERE br.borrow_date BETWEEN $1 AND $2
	GROUP BY i.id, i.name, i.category
	ORDER BY borrow_count DESC
	LIMIT $3`
	var popular []models.PopularInstrument
	if err := r.db.SelectContext(ctx, &popular, query, period.StartDate, period.EndDate, limit); err != nil {
		return nil, fmt.Errorf("popular instruments: %w", err)
	}
	return popular, nil
}

// TopBorrowers ranks users by borrow count within the period.
func (r *ReportRepository) TopBorrowers(ctx context.Context, period models.ReportPeriod, limit int) ([]models.TopBorrower, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `SELECT u.full_name, u.email, COUNT(*) AS borrow_count,
	       COUNT(*) FILTER (WHERE br.status = 'active') AS active_borrowings,
	       COUNT(*) FILTER (WHERE br.status = 'returned' AND br.actual_return_date > br.expected_return_date) AS late_returns
	FROM borrowing_records br
	JOIN users u ON br.user_id = u.id
	WHERE br.borrow_date BETWEEN $1 AND $2
	GROUP BY u.id, u.full_name, u.email
	ORDER BY borrow_count DESC
	LIMIT $3`
	var borrowers []models.TopBorrower
	if err := r.db.SelectContext(ctx, &borrowers, query, period.StartDate, period.EndDate, limit); err != nil {
		return nil, fmt.Errorf("top borrowers: %w", err)
	}
	return borrowers, nil
}

// RecentOverdue lists the longest-overdue open loans.
func (r *ReportRepository) RecentOverdue(ctx context.Context, limit int) ([]models.OverdueLoan, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT br.id AS record_id,
	       u.full_name AS borrower_name, u.email AS borrower_email,
	       i.name AS instrument_name, i.category,
	       br.borrow_date, br.expected_return_date,
	       (CURRENT_DATE - br.expected_return_date::date) AS days_overdue
	FROM borrowing_records br
	JOIN users u ON br.user_id = u.id
	JOIN instruments i ON br.instrument_id = i.id
	WHERE br.status = 'active' AND br.expected_return_date < CURRENT_DATE
	ORDER BY br.expected_return_date ASC
	LIMIT $1`
	var overdue []models.OverdueLoan
	if err := r.db.SelectContext(ctx, &overdue, query, limit); err != nil {
		return nil, fmt.Errorf("recent overdue: %w", err)
	}
	return overdue, nil
}

// AdminDashboardStats returns the admin dashboard counters.
func (r *ReportRepository) AdminDashboardStats(ctx context.Context) (*models.AdminDashboardStats, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM users) AS total_users,
	(SELECT COUNT(*) FROM instruments) AS total_instruments,
	(SELECT COUNT(*) FROM borrowing_records WHERE status = 'active') AS active_borrowings,
	(SELECT COUNT(*) FROM borrowing_records WHERE status = 'active' AND expected_return_date < CURRENT_DATE) AS overdue_items`
	var stats models.AdminDashboardStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("admin dashboard stats: %w", err)
	}
	return &stats, nil
}

// StaffDashboardStats returns the staff dashboard counters.
func (r *ReportRepository) StaffDashboardStats(ctx context.Context) (*models.StaffDashboardStats, error) {
	const query = `SELECT
	(SELECT COUNT(*) FROM instruments) AS total_instruments,
	(SELECT COUNT(*) FROM instruments WHERE status = 'available') AS available_instruments,
	(SELECT COUNT(*) FROM borrowing_records WHERE status = 'active') AS active_borrowings,
	(SELECT COUNT(*) FROM borrowing_records WHERE status = 'active' AND expected_return_date < CURRENT_DATE) AS overdue_items`
	var stats models.StaffDashboardStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("staff dashboard stats: %w", err)
	}
	return &stats, nil
}

// RecentActivity lists the latest borrowing records for dashboards. When
// userID is empty the query spans all users.
func (r *ReportRepository) RecentActivity(ctx context.Context, userID string, limit int) ([]models.LoanDetail, error) {
	if limit <= 0 {
		limit = 5
	}
	base := `SELECT br.id, br.user_id, br.instrument_id, br.borrow_date, br.expected_return_date,
	       br.actual_return_date, br.status, br.notes,
	       i.name AS instrument_name, i.category AS instrument_category,
	       u.full_name AS borrower_name
	FROM borrowing_records br
	JOIN instruments i ON br.instrument_id = i.id
	JOIN users u ON br.user_id = u.id`

	var loans []models.LoanDetail
	if userID != "" {
		query := base + ` WHERE br.user_id = $1 ORDER BY br.borrow_date DESC LIMIT $2`
		if err := r.db.SelectContext(ctx, &loans, query, userID, limit); err != nil {
			return nil, fmt.Errorf("recent activity: %w", err)
		}
		return loans, nil
	}
	query := base + ` ORDER BY br.borrow_date DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &loans, query, limit); err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return loans, nil
}
