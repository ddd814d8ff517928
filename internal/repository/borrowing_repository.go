package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/borrowsmart/lending-api/internal/models"
)

// BorrowingRepository persists the borrowing ledger and carries the atomic
// borrow/return transactions spanning the ledger and the catalog. Records are
// inserted once and updated once (at return); they are never deleted.
type BorrowingRepository struct {
	db *sqlx.DB
}

// NewBorrowingRepository constructs the repository.
func NewBorrowingRepository(db *sqlx.DB) *BorrowingRepository {
	return &BorrowingRepository{db: db}
}

const recordColumns = "id, user_id, instrument_id, borrow_date, expected_return_date, actual_return_date, status, notes"

// CreateLoan creates an active borrowing record and decrements the
// instrument's availability in one serializable transaction. The instrument
// row is locked and re-checked inside the transaction, so two concurrent
// borrows of the last unit cannot both succeed: the loser observes zero
// availability and gets ErrInstrumentUnavailable.
func (r *BorrowingRepository) CreateLoan(ctx context.Context, userID, instrumentID string, dueDate time.Time, now time.Time) (*models.BorrowingRecord, error) {
	record := &models.BorrowingRecord{
		ID:                 uuid.NewString(),
		UserID:             userID,
		InstrumentID:       instrumentID,
		BorrowDate:         now,
		ExpectedReturnDate: dueDate,
		Status:             models.LoanActive,
	}

	err := runSerializable(ctx, r.db, func(tx *sqlx.Tx) error {
		var instrument models.Instrument
		const lockQuery = `SELECT id, quantity, available_quantity, status FROM instruments WHERE id = $1 FOR UPDATE`
		if err := tx.GetContext(ctx, &instrument, lockQuery, instrumentID); err != nil {
			return err
		}

		if instrument.Status == models.InstrumentMaintenance || instrument.AvailableQuantity <= 0 {
			return ErrInstrumentUnavailable
		}

		const decrement = `UPDATE instruments SET available_quantity = available_quantity - 1, updated_at = $1 WHERE id = $2`
		if _, err := tx.ExecContext(ctx, decrement, now, instrumentID); err != nil {
			return fmt.Errorf("decrement availability: %w", err)
		}

		const insert = `INSERT INTO borrowing_records (id, user_id, instrument_id, borrow_date, expected_return_date, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(ctx, insert,
			record.ID, record.UserID, record.InstrumentID,
			record.BorrowDate, record.ExpectedReturnDate, record.Status, record.Notes,
		); err != nil {
			return fmt.Errorf("insert borrowing record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ReturnLoanParams carries the return mutation inputs.
type ReturnLoanParams struct {
	RecordID      string
	ConditionNote string
	Damaged       bool
	ReturnDate    time.Time
}

// ReturnLoan closes an active borrowing record and increments the
// instrument's availability as one atomic unit; either both rows persist or
// neither does. The condition note is appended to the existing notes, never
// overwriting them. The availability increment is guarded against exceeding
// the current total quantity: a guarded update touching zero rows means a
// prior quantity edit corrupted the books, reported as
// ErrAvailabilityOverflow instead of clamping. A damaged return also flags
// the instrument for maintenance.
func (r *BorrowingRepository) ReturnLoan(ctx context.Context, params ReturnLoanParams) (*models.BorrowingRecord, error) {
	var returned models.BorrowingRecord
	err := runSerializable(ctx, r.db, func(tx *sqlx.Tx) error {
		var record models.BorrowingRecord
		lockQuery := fmt.Sprintf("SELECT %s FROM borrowing_records WHERE id = $1 FOR UPDATE", recordColumns)
		if err := tx.GetContext(ctx, &record, lockQuery, params.RecordID); err != nil {
			return err
		}

		if record.Status != models.LoanActive {
			return ErrLoanNotActive
		}

		const updateRecord = `UPDATE borrowing_records
		SET status = 'returned', actual_return_date = $1, notes = COALESCE(notes, '') || $2
		WHERE id = $3`
		if _, err := tx.ExecContext(ctx, updateRecord, params.ReturnDate, params.ConditionNote, params.RecordID); err != nil {
			return fmt.Errorf("update borrowing record: %w", err)
		}

		const updateInstrument = `UPDATE instruments
		SET available_quantity = available_quantity + 1,
		    status = CASE WHEN $1 THEN 'maintenance' ELSE status END,
		    updated_at = $2
		WHERE id = $3 AND available_quantity < quantity`
		result, err := tx.ExecContext(ctx, updateInstrument, params.Damaged, params.ReturnDate, record.InstrumentID)
		if err != nil {
			return fmt.Errorf("increment availability: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check availability update rows: %w", err)
		}
		if rows == 0 {
			// The FK guarantees the instrument row exists, so zero rows can
			// only mean available_quantity already equals quantity.
			return ErrAvailabilityOverflow
		}

		returned = record
		returned.Status = models.LoanReturned
		returnDate := params.ReturnDate
		returned.ActualReturnDate = &returnDate
		returned.Notes = record.Notes + params.ConditionNote
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &returned, nil
}

// FindByID loads a single borrowing record.
func (r *BorrowingRepository) FindByID(ctx context.Context, id string) (*models.BorrowingRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM borrowing_records WHERE id = $1", recordColumns)
	var record models.BorrowingRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ActiveCountFor counts open borrowing records for an instrument.
func (r *BorrowingRepository) ActiveCountFor(ctx context.Context, instrumentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM borrowing_records WHERE instrument_id = $1 AND status = 'active'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, instrumentID); err != nil {
		return 0, fmt.Errorf("count active loans: %w", err)
	}
	return count, nil
}

// ListByUser returns a user's borrowing history, most recent first, joined
// with instrument attributes.
func (r *BorrowingRepository) ListByUser(ctx context.Context, userID string) ([]models.LoanDetail, error) {
	const query = `SELECT br.id, br.user_id, br.instrument_id, br.borrow_date, br.expected_return_date,
	       br.actual_return_date, br.status, br.notes,
	       i.name AS instrument_name, i.category AS instrument_category
	FROM borrowing_records br
	JOIN instruments i ON br.instrument_id = i.id
	WHERE br.user_id = $1
	ORDER BY br.borrow_date DESC`
	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query, userID); err != nil {
		return nil, fmt.Errorf("list loans by user: %w", err)
	}
	return loans, nil
}

// ListActive returns every open borrowing record with borrower and
// instrument context, most recent first.
func (r *BorrowingRepository) ListActive(ctx context.Context) ([]models.LoanDetail, error) {
	const query = `SELECT br.id, br.user_id, br.instrument_id, br.borrow_date, br.expected_return_date,
	       br.actual_return_date, br.status, br.notes,
	       i.name AS instrument_name, i.category AS instrument_category,
	       u.full_name AS borrower_name
	FROM borrowing_records br
	JOIN instruments i ON br.instrument_id = i.id
	JOIN users u ON br.user_id = u.id
	WHERE br.status = 'active'
	ORDER BY br.borrow_date DESC`
	var loans []models.LoanDetail
	if err := r.db.SelectContext(ctx, &loans, query); err != nil {
		return nil, fmt.Errorf("list active loans: %w", err)
	}
	return loans, nil
}
