package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Sentinel errors surfaced by transactional repository operations. Services
// translate these into the typed API errors.
var (
	// ErrInstrumentUnavailable: the instrument has no free units or is under
	// maintenance at commit time.
	ErrInstrumentUnavailable = errors.New("instrument unavailable")
	// ErrLoanNotActive: the borrowing record is not in the active state.
	ErrLoanNotActive = errors.New("borrowing record not active")
	// ErrQuantityBelowLoans: a quantity edit would push availability negative.
	ErrQuantityBelowLoans = errors.New("quantity below active loan count")
	// ErrActiveLoansExist: deletion blocked by open borrowing records.
	ErrActiveLoansExist = errors.New("instrument has active loans")
	// ErrAvailabilityOverflow: incrementing availability would exceed the
	// total quantity. Indicates a prior quantity-edit bug; never clamped.
	ErrAvailabilityOverflow = errors.New("available quantity would exceed total quantity")
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// runSerializable executes fn inside a serializable transaction. The whole
// transaction is retried once when Postgres reports a serialization conflict;
// every other failure is surfaced immediately after rollback.
func runSerializable(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = runTx(ctx, db, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func runTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
}
