package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borrowsmart/lending-api/internal/models"
)

func fullInstrumentRows(quantity, available int, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "name", "category", "description", "quantity", "available_quantity", "status", "created_at", "updated_at"}).
		AddRow("i1", "Trumpet", "brass", "Bb trumpet", quantity, available, status, now, now)
}

func TestInstrumentCreateStartsFullyAvailable(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstrumentRepository(db)

	mock.ExpectExec("INSERT INTO instruments").WillReturnResult(sqlmock.NewResult(0, 1))

	instrument := &models.Instrument{
		Name:     "Trumpet",
		Category: models.CategoryBrass,
		Quantity: 3,
	}
	err := repo.Create(context.Background(), instrument)
	require.NoError(t, err)
	assert.NotEmpty(t, instrument.ID)
	assert.Equal(t, 3, instrument.AvailableQuantity)
	assert.Equal(t, models.InstrumentAvailable, instrument.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstrumentFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstrumentRepository(db)

	mock.ExpectQuery("SELECT .+ FROM instruments WHERE id = .+").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestInstrumentUpdateRederivesAvailability(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstrumentRepository(db)

	// quantity 2, one unit on loan (available 1); shrinking the pool to 1
	// leaves availability at 0.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM instruments WHERE id = .+ FOR UPDATE").
		WithArgs("i1").
		WillReturnRows(fullInstrumentRows(2, 1, "available"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE instruments SET name = $1")).
		WithArgs("Trumpet", models.CategoryBrass, "Bb trumpet", 1, 0, models.InstrumentAvailable, sqlmock.AnyArg(), "i1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.Update(context.Background(), UpdateInstrumentParams{
		ID:          "i1",
		Name:        "Trumpet",
		Category:    models.CategoryBrass,
		Description: "Bb trumpet",
		Quantity:    1,
		Status:      models.InstrumentAvailable,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Quantity)
	assert.Equal(t, 0, updated.AvailableQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstrumentUpdateRejectsQuantityBelowLoans(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstrumentRepository(db)

	// quantity 2 with one unit on loan; a total of 0 would need available -1.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM instruments WHERE id = .+ FOR UPDATE").
		WithArgs("i1").
		WillReturnRows(fullInstrumentRows(2, 1, "available"))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), UpdateInstrumentParams{
		ID:       "i1",
		Name:     "Trumpet",
		Category: models.CategoryBrass,
		Quantity: 0,
		Status:   models.InstrumentAvailable,
	})
	assert.ErrorIs(t, err, ErrQuantityBelowLoans)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstrumentDeleteBlockedByActiveLoans(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstrumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM borrowing_records WHERE instrument_id = $1 AND status = 'active'")).
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "i1")
	assert.ErrorIs(t, err, ErrActiveLoansExist)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstrumentDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstrumentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM borrowing_records WHERE instrument_id = $1 AND status = 'active'")).
		WithArgs("i1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM instruments WHERE id = $1")).
		WithArgs("i1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "i1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstrumentSetStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstrumentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE instruments SET status = $1")).
		WithArgs(models.InstrumentMaintenance, sqlmock.AnyArg(), "i1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetStatus(context.Background(), "i1", models.InstrumentMaintenance)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstrumentList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInstrumentRepository(db)

	mock.ExpectQuery("SELECT id, name, category, .+ FROM instruments WHERE 1=1").
		WillReturnRows(fullInstrumentRows(2, 2, "available"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM instruments WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	instruments, total, err := repo.List(context.Background(), models.InstrumentFilter{})
	require.NoError(t, err)
	assert.Len(t, instruments, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
