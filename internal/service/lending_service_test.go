package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/borrowsmart/lending-api/internal/models"
	"github.com/borrowsmart/lending-api/internal/repository"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
)

// fakeLedger mimics the atomic semantics of the borrowing repository: the
// availability check and decrement happen under one lock, so concurrent
// borrows contend exactly as they would against the database.
type fakeLedger struct {
	mu          sync.Mutex
	quantity    int
	available   int
	maintenance bool
	records     map[string]*models.BorrowingRecord

	createErr error
	returnErr error
}

func newFakeLedger(quantity int) *fakeLedger {
	return &fakeLedger{
		quantity:  quantity,
		available: quantity,
		records:   make(map[string]*models.BorrowingRecord),
	}
}

func (f *fakeLedger) CreateLoan(ctx context.Context, userID, instrumentID string, dueDate, now time.Time) (*models.BorrowingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.maintenance || f.available <= 0 {
		return nil, repository.ErrInstrumentUnavailable
	}
	f.available--
	record := &models.BorrowingRecord{
		ID:                 uuid.NewString(),
		UserID:             userID,
		InstrumentID:       instrumentID,
		BorrowDate:         now,
		ExpectedReturnDate: dueDate,
		Status:             models.LoanActive,
	}
	f.records[record.ID] = record
	return record, nil
}

func (f *fakeLedger) ReturnLoan(ctx context.Context, params repository.ReturnLoanParams) (*models.BorrowingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	record, ok := f.records[params.RecordID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if record.Status != models.LoanActive {
		return nil, repository.ErrLoanNotActive
	}
	if f.available >= f.quantity {
		return nil, repository.ErrAvailabilityOverflow
	}
	returnDate := params.ReturnDate
	record.Status = models.LoanReturned
	record.ActualReturnDate = &returnDate
	record.Notes += params.ConditionNote
	f.available++
	if params.Damaged {
		f.maintenance = true
	}
	copy := *record
	return &copy, nil
}

func (f *fakeLedger) FindByID(ctx context.Context, id string) (*models.BorrowingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[id]; ok {
		copy := *record
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeLedger) ActiveCountFor(ctx context.Context, instrumentID string) (int, error) {
	return f.quantity - f.available, nil
}

func (f *fakeLedger) ListByUser(ctx context.Context, userID string) ([]models.LoanDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var loans []models.LoanDetail
	for _, record := range f.records {
		if record.UserID == userID {
			loans = append(loans, models.LoanDetail{BorrowingRecord: *record})
		}
	}
	return loans, nil
}

func (f *fakeLedger) ListActive(ctx context.Context) ([]models.LoanDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var loans []models.LoanDetail
	for _, record := range f.records {
		if record.Status == models.LoanActive {
			loans = append(loans, models.LoanDetail{BorrowingRecord: *record})
		}
	}
	return loans, nil
}

func newLendingService(ledger borrowingLedger) *LendingService {
	return NewLendingService(ledger, nil, zap.NewNop(), 90)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBorrowAndReturnLifecycle(t *testing.T) {
	ledger := newFakeLedger(2)
	svc := newLendingService(ledger)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)
	due := now.AddDate(0, 0, 14)

	first, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: due})
	require.NoError(t, err)
	assert.Equal(t, models.LoanActive, first.Status)
	assert.Equal(t, 1, ledger.available)

	second, err := svc.Borrow(context.Background(), "student-2", BorrowRequest{InstrumentID: "inst-1", DueDate: due})
	require.NoError(t, err)
	assert.Equal(t, 0, ledger.available)

	_, err = svc.Borrow(context.Background(), "student-3", BorrowRequest{InstrumentID: "inst-1", DueDate: due})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInstrumentUnavailable.Code, appErrors.FromError(err).Code)

	returned, err := svc.Return(context.Background(), ReturnRequest{RecordID: second.ID, Condition: models.ConditionGood})
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, returned.Status)
	require.NotNil(t, returned.ActualReturnDate)
	assert.Equal(t, 1, ledger.available)

	// the freed unit can be borrowed again
	_, err = svc.Borrow(context.Background(), "student-3", BorrowRequest{InstrumentID: "inst-1", DueDate: due})
	require.NoError(t, err)
}

func TestBorrowRejectsPastDueDate(t *testing.T) {
	svc := newLendingService(newFakeLedger(1))
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	_, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: now.AddDate(0, 0, -1)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: now})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBorrowRejectsDueDateBeyondMaxLoanDays(t *testing.T) {
	svc := NewLendingService(newFakeLedger(1), nil, zap.NewNop(), 30)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	_, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: now.AddDate(0, 0, 31)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestBorrowUnknownInstrument(t *testing.T) {
	ledger := newFakeLedger(1)
	ledger.createErr = sql.ErrNoRows
	svc := newLendingService(ledger)

	_, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "missing", DueDate: time.Now().AddDate(0, 0, 7)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReturnIsNotIdempotent(t *testing.T) {
	ledger := newFakeLedger(1)
	svc := newLendingService(ledger)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	record, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: now.AddDate(0, 0, 7)})
	require.NoError(t, err)

	_, err = svc.Return(context.Background(), ReturnRequest{RecordID: record.ID, Condition: models.ConditionGood})
	require.NoError(t, err)

	_, err = svc.Return(context.Background(), ReturnRequest{RecordID: record.ID, Condition: models.ConditionGood})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRecordNotActive.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, ledger.available, "second return must not increment availability")
}

func TestReturnUnknownRecord(t *testing.T) {
	svc := newLendingService(newFakeLedger(1))

	_, err := svc.Return(context.Background(), ReturnRequest{RecordID: "missing", Condition: models.ConditionGood})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrRecordNotActive.Code, appErrors.FromError(err).Code)
}

func TestReturnRejectsUnknownCondition(t *testing.T) {
	svc := newLendingService(newFakeLedger(1))

	_, err := svc.Return(context.Background(), ReturnRequest{RecordID: "rec-1", Condition: "pristine"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnknownCondition.Code, appErrors.FromError(err).Code)
}

func TestReturnAppendsConditionNote(t *testing.T) {
	ledger := newFakeLedger(1)
	svc := newLendingService(ledger)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	record, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: now.AddDate(0, 0, 7)})
	require.NoError(t, err)

	returned, err := svc.Return(context.Background(), ReturnRequest{RecordID: record.ID, Condition: models.ConditionFair, Notes: "scratched bell"})
	require.NoError(t, err)
	assert.Equal(t, "\nReturn condition: fair - scratched bell", returned.Notes)
}

func TestReturnDamagedFlagsMaintenance(t *testing.T) {
	ledger := newFakeLedger(1)
	svc := newLendingService(ledger)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	record, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: now.AddDate(0, 0, 7)})
	require.NoError(t, err)

	_, err = svc.Return(context.Background(), ReturnRequest{RecordID: record.ID, Condition: models.ConditionDamaged, Notes: "cracked body"})
	require.NoError(t, err)
	assert.True(t, ledger.maintenance)
}

func TestReturnAvailabilityOverflowSurfacesInvariantViolation(t *testing.T) {
	ledger := newFakeLedger(1)
	ledger.returnErr = repository.ErrAvailabilityOverflow
	svc := newLendingService(ledger)

	_, err := svc.Return(context.Background(), ReturnRequest{RecordID: "rec-1", Condition: models.ConditionGood})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvariantViolation.Code, appErrors.FromError(err).Code)
}

// Concurrent borrows against a pool of k units must admit exactly k loans no
// matter how many requests race.
func TestConcurrentBorrowsNeverOverdraw(t *testing.T) {
	const workers = 32
	const units = 5

	ledger := newFakeLedger(units)
	svc := newLendingService(ledger)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)
	due := now.AddDate(0, 0, 7)

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Borrow(context.Background(), uuid.NewString(), BorrowRequest{InstrumentID: "inst-1", DueDate: due})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded, unavailable := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case appErrors.FromError(err).Code == appErrors.ErrInstrumentUnavailable.Code:
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, units, succeeded)
	assert.Equal(t, workers-units, unavailable)
	assert.Equal(t, 0, ledger.available)
}

func TestHistoryAppliesOverdueProjection(t *testing.T) {
	ledger := newFakeLedger(3)
	svc := newLendingService(ledger)
	borrowTime := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(borrowTime)

	onTime, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: borrowTime.AddDate(0, 0, 30)})
	require.NoError(t, err)
	late, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: borrowTime.AddDate(0, 0, 3)})
	require.NoError(t, err)

	// a week later the short loan is overdue, the long one is not
	svc.now = fixedClock(borrowTime.AddDate(0, 0, 7))
	loans, stats, err := svc.History(context.Background(), "student-1")
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, 2, stats.TotalBorrowed)
	assert.Equal(t, 2, stats.CurrentlyBorrowed)

	statuses := map[string]models.LoanStatus{}
	for _, loan := range loans {
		statuses[loan.ID] = loan.CurrentStatus
	}
	assert.Equal(t, models.LoanActive, statuses[onTime.ID])
	assert.Equal(t, models.LoanOverdue, statuses[late.ID])

	// nothing was persisted as overdue
	stored, err := ledger.FindByID(context.Background(), late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanActive, stored.Status)
}

func TestHistoryCountsLateReturns(t *testing.T) {
	ledger := newFakeLedger(1)
	svc := newLendingService(ledger)
	borrowTime := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(borrowTime)

	record, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: borrowTime.AddDate(0, 0, 3)})
	require.NoError(t, err)

	svc.now = fixedClock(borrowTime.AddDate(0, 0, 10))
	_, err = svc.Return(context.Background(), ReturnRequest{RecordID: record.ID, Condition: models.ConditionGood})
	require.NoError(t, err)

	_, stats, err := svc.History(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ReturnedLate)
	assert.Equal(t, 0, stats.ReturnedOnTime)
	assert.Equal(t, 0, stats.CurrentlyBorrowed)
}

func TestActiveLoansProjection(t *testing.T) {
	ledger := newFakeLedger(2)
	svc := newLendingService(ledger)
	borrowTime := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(borrowTime)

	_, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: borrowTime.AddDate(0, 0, 1)})
	require.NoError(t, err)

	svc.now = fixedClock(borrowTime.AddDate(0, 0, 5))
	loans, err := svc.ActiveLoans(context.Background())
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, models.LoanOverdue, loans[0].CurrentStatus)
}

func TestBorrowSurfacesInternalErrors(t *testing.T) {
	ledger := newFakeLedger(1)
	ledger.createErr = errors.New("connection reset")
	svc := newLendingService(ledger)

	_, err := svc.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: time.Now().AddDate(0, 0, 7)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
