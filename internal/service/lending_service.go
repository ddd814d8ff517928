package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/borrowsmart/lending-api/internal/models"
	"github.com/borrowsmart/lending-api/internal/repository"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
)

type borrowingLedger interface {
	CreateLoan(ctx context.Context, userID, instrumentID string, dueDate time.Time, now time.Time) (*models.BorrowingRecord, error)
	ReturnLoan(ctx context.Context, params repository.ReturnLoanParams) (*models.BorrowingRecord, error)
	FindByID(ctx context.Context, id string) (*models.BorrowingRecord, error)
	ActiveCountFor(ctx context.Context, instrumentID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]models.LoanDetail, error)
	ListActive(ctx context.Context) ([]models.LoanDetail, error)
}

// BorrowRequest describes payload for borrowing one unit of an instrument.
type BorrowRequest struct {
	InstrumentID string    `json:"instrument_id" validate:"required"`
	DueDate      time.Time `json:"due_date" validate:"required"`
}

// ReturnRequest describes payload for returning a borrowed instrument.
type ReturnRequest struct {
	RecordID  string                 `json:"record_id" validate:"required"`
	Condition models.ReturnCondition `json:"condition" validate:"required"`
	Notes     string                 `json:"notes"`
}

// LendingService coordinates the borrow and return lifecycle. It validates
// preconditions, delegates the paired catalog/ledger mutations to the
// repository's atomic transactions, and translates storage outcomes into
// typed API errors.
type LendingService struct {
	ledger      borrowingLedger
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
	maxLoanDays int
}

// NewLendingService constructs a LendingService.
func NewLendingService(ledger borrowingLedger, validate *validator.Validate, logger *zap.Logger, maxLoanDays int) *LendingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLoanDays <= 0 {
		maxLoanDays = 90
	}
	return &LendingService{
		ledger:      ledger,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
		maxLoanDays: maxLoanDays,
	}
}

// Borrow lends one unit of an instrument to the user. The due date must be
// strictly in the future and within the configured loan window. Availability
// is re-checked inside the storage transaction, so a request that loses the
// race for the last unit fails with InstrumentUnavailable rather than
// overdrawing the pool.
func (s *LendingService) Borrow(ctx context.Context, userID string, req BorrowRequest) (*models.BorrowingRecord, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid borrow payload")
	}

	now := s.now().UTC()
	if !req.DueDate.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "due date must be in the future")
	}
	if req.DueDate.After(now.AddDate(0, 0, s.maxLoanDays)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("due date exceeds maximum loan period of %d days", s.maxLoanDays))
	}

	record, err := s.ledger.CreateLoan(ctx, userID, req.InstrumentID, req.DueDate, now)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instrument not found")
		case errors.Is(err, repository.ErrInstrumentUnavailable):
			return nil, appErrors.ErrInstrumentUnavailable
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create loan")
		}
	}

	s.logger.Info("instrument borrowed",
		zap.String("record_id", record.ID),
		zap.String("user_id", userID),
		zap.String("instrument_id", req.InstrumentID),
		zap.Time("due_date", req.DueDate),
	)
	return record, nil
}

// Return closes a loan. The condition must be one of good, fair, damaged.
// The condition note is appended to the record's audit trail and the
// instrument's availability restored in the same storage transaction; a
// damaged return also flags the instrument for maintenance.
func (s *LendingService) Return(ctx context.Context, req ReturnRequest) (*models.BorrowingRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid return payload")
	}
	if !models.ValidCondition(req.Condition) {
		return nil, appErrors.ErrUnknownCondition
	}

	note := fmt.Sprintf("\nReturn condition: %s", req.Condition)
	if req.Notes != "" {
		note = fmt.Sprintf("%s - %s", note, req.Notes)
	}

	record, err := s.ledger.ReturnLoan(ctx, repository.ReturnLoanParams{
		RecordID:      req.RecordID,
		ConditionNote: note,
		Damaged:       req.Condition == models.ConditionDamaged,
		ReturnDate:    s.now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows), errors.Is(err, repository.ErrLoanNotActive):
			return nil, appErrors.ErrRecordNotActive
		case errors.Is(err, repository.ErrAvailabilityOverflow):
			s.logger.Error("availability invariant violated on return",
				zap.String("record_id", req.RecordID),
				zap.Error(err),
			)
			return nil, appErrors.ErrInvariantViolation
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return loan")
		}
	}

	s.logger.Info("instrument returned",
		zap.String("record_id", record.ID),
		zap.String("instrument_id", record.InstrumentID),
		zap.String("condition", string(req.Condition)),
	)
	return record, nil
}

// History returns the user's full borrowing history with the derived status
// projection applied, plus summary counters.
func (s *LendingService) History(ctx context.Context, userID string) ([]models.LoanDetail, *models.HistoryStats, error) {
	loans, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list borrowing history")
	}

	now := s.now()
	stats := &models.HistoryStats{TotalBorrowed: len(loans)}
	for i := range loans {
		loans[i].CurrentStatus = loans[i].EffectiveStatus(now)
		switch loans[i].CurrentStatus {
		case models.LoanReturned:
			if loans[i].ActualReturnDate != nil && !loans[i].ActualReturnDate.After(loans[i].ExpectedReturnDate) {
				stats.ReturnedOnTime++
			} else {
				stats.ReturnedLate++
			}
		default:
			stats.CurrentlyBorrowed++
		}
	}
	return loans, stats, nil
}

// ActiveLoans returns every open loan with the overdue projection applied.
func (s *LendingService) ActiveLoans(ctx context.Context) ([]models.LoanDetail, error) {
	loans, err := s.ledger.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active loans")
	}

	now := s.now()
	for i := range loans {
		loans[i].CurrentStatus = loans[i].EffectiveStatus(now)
	}
	return loans, nil
}

// Get returns a single borrowing record with the derived status projection.
func (s *LendingService) Get(ctx context.Context, recordID string) (*models.BorrowingRecord, models.LoanStatus, error) {
	record, err := s.ledger.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "borrowing record not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load borrowing record")
	}
	return record, record.EffectiveStatus(s.now()), nil
}
