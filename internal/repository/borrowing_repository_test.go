package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borrowsmart/lending-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

const lockInstrumentQuery = "SELECT id, quantity, available_quantity, status FROM instruments WHERE id = $1 FOR UPDATE"

func instrumentLockRows(quantity, available int, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "quantity", "available_quantity", "status"}).
		AddRow("i1", quantity, available, status)
}

func TestCreateLoan(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)
	now := time.Now().UTC()
	due := now.AddDate(0, 0, 7)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockInstrumentQuery)).
		WithArgs("i1").
		WillReturnRows(instrumentLockRows(2, 2, "available"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE instruments SET available_quantity = available_quantity - 1")).
		WithArgs(now, "i1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO borrowing_records").
		WithArgs(sqlmock.AnyArg(), "u1", "i1", now, due, "active", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record, err := repo.CreateLoan(context.Background(), "u1", "i1", due, now)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.LoanActive, record.Status)
	assert.Equal(t, due, record.ExpectedReturnDate)
	assert.Nil(t, record.ActualReturnDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLoanNoAvailableUnits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockInstrumentQuery)).
		WithArgs("i1").
		WillReturnRows(instrumentLockRows(2, 0, "available"))
	mock.ExpectRollback()

	_, err := repo.CreateLoan(context.Background(), "u1", "i1", now.AddDate(0, 0, 7), now)
	assert.ErrorIs(t, err, ErrInstrumentUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLoanUnderMaintenance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockInstrumentQuery)).
		WithArgs("i1").
		WillReturnRows(instrumentLockRows(3, 3, "maintenance"))
	mock.ExpectRollback()

	_, err := repo.CreateLoan(context.Background(), "u1", "i1", now.AddDate(0, 0, 7), now)
	assert.ErrorIs(t, err, ErrInstrumentUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLoanRetriesOnSerializationConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)
	now := time.Now().UTC()
	due := now.AddDate(0, 0, 7)

	// First attempt fails at commit with a serialization conflict.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockInstrumentQuery)).
		WithArgs("i1").
		WillReturnRows(instrumentLockRows(1, 1, "available"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE instruments SET available_quantity = available_quantity - 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO borrowing_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001"})

	// Second attempt succeeds.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockInstrumentQuery)).
		WithArgs("i1").
		WillReturnRows(instrumentLockRows(1, 1, "available"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE instruments SET available_quantity = available_quantity - 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO borrowing_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record, err := repo.CreateLoan(context.Background(), "u1", "i1", due, now)
	require.NoError(t, err)
	assert.Equal(t, models.LoanActive, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func lockRecordRows(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "instrument_id", "borrow_date", "expected_return_date", "actual_return_date", "status", "notes"}).
		AddRow("r1", "u1", "i1", time.Now(), time.Now().AddDate(0, 0, 7), nil, status, "")
}

func TestReturnLoan(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)
	returnDate := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM borrowing_records WHERE id = .+ FOR UPDATE").
		WithArgs("r1").
		WillReturnRows(lockRecordRows("active"))
	mock.ExpectExec("UPDATE borrowing_records").
		WithArgs(returnDate, "\nReturn condition: good", "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE instruments")).
		WithArgs(false, returnDate, "i1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record, err := repo.ReturnLoan(context.Background(), ReturnLoanParams{
		RecordID:      "r1",
		ConditionNote: "\nReturn condition: good",
		Damaged:       false,
		ReturnDate:    returnDate,
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, record.Status)
	require.NotNil(t, record.ActualReturnDate)
	assert.Equal(t, returnDate, *record.ActualReturnDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnLoanDamagedFlagsMaintenance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)
	returnDate := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM borrowing_records WHERE id = .+ FOR UPDATE").
		WithArgs("r1").
		WillReturnRows(lockRecordRows("active"))
	mock.ExpectExec("UPDATE borrowing_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE instruments")).
		WithArgs(true, returnDate, "i1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := repo.ReturnLoan(context.Background(), ReturnLoanParams{
		RecordID:      "r1",
		ConditionNote: "\nReturn condition: damaged - cracked bell",
		Damaged:       true,
		ReturnDate:    returnDate,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnLoanAlreadyReturned(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM borrowing_records WHERE id = .+ FOR UPDATE").
		WithArgs("r1").
		WillReturnRows(lockRecordRows("returned"))
	mock.ExpectRollback()

	_, err := repo.ReturnLoan(context.Background(), ReturnLoanParams{
		RecordID:      "r1",
		ConditionNote: "\nReturn condition: good",
		ReturnDate:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrLoanNotActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnLoanAvailabilityOverflow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)
	returnDate := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM borrowing_records WHERE id = .+ FOR UPDATE").
		WithArgs("r1").
		WillReturnRows(lockRecordRows("active"))
	mock.ExpectExec("UPDATE borrowing_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Guarded increment matches no rows: availability already equals quantity.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE instruments")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ReturnLoan(context.Background(), ReturnLoanParams{
		RecordID:      "r1",
		ConditionNote: "\nReturn condition: good",
		ReturnDate:    returnDate,
	})
	assert.ErrorIs(t, err, ErrAvailabilityOverflow)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveCountFor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM borrowing_records WHERE instrument_id = $1 AND status = 'active'")).
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.ActiveCountFor(context.Background(), "i1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBorrowingRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "instrument_id", "borrow_date", "expected_return_date", "actual_return_date", "status", "notes", "instrument_name", "instrument_category"}).
		AddRow("r1", "u1", "i1", now, now.AddDate(0, 0, 7), nil, "active", "", "Trumpet", "brass")
	mock.ExpectQuery("SELECT br.id, br.user_id, .+ FROM borrowing_records br").
		WithArgs("u1").
		WillReturnRows(rows)

	loans, err := repo.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, "Trumpet", loans[0].InstrumentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
