package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/borrowsmart/lending-api/internal/models"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
)

type mockReportRepo struct {
	overall    models.OverallStats
	byCategory []models.CategoryStats
	popular    []models.PopularInstrument
	borrowers  []models.TopBorrower
	overdue    []models.OverdueLoan

	seenPeriod models.ReportPeriod
}

func (m *mockReportRepo) OverallStats(ctx context.Context) (*models.OverallStats, error) {
	copy := m.overall
	return &copy, nil
}

func (m *mockReportRepo) CategoryStats(ctx context.Context, period models.ReportPeriod) ([]models.CategoryStats, error) {
	m.seenPeriod = period
	return m.byCategory, nil
}

func (m *mockReportRepo) PopularInstruments(ctx context.Context, period models.ReportPeriod, limit int) ([]models.PopularInstrument, error) {
	return m.popular, nil
}

func (m *mockReportRepo) TopBorrowers(ctx context.Context, period models.ReportPeriod, limit int) ([]models.TopBorrower, error) {
	return m.borrowers, nil
}

func (m *mockReportRepo) RecentOverdue(ctx context.Context, limit int) ([]models.OverdueLoan, error) {
	return m.overdue, nil
}

func newReportFixture(repo *mockReportRepo) *ReportService {
	svc := NewReportService(repo, zap.NewNop(), ReportServiceConfig{})
	svc.now = fixedClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	return svc
}

func TestPeriodReportComposition(t *testing.T) {
	repo := &mockReportRepo{
		overall: models.OverallStats{TotalInstruments: 8, ActiveBorrowings: 3, OverdueItems: 1},
		byCategory: []models.CategoryStats{
			{Category: models.CategoryBrass, TotalBorrowings: 5, ActiveBorrowings: 2, LateReturns: 1},
		},
		popular: []models.PopularInstrument{{Name: "Trumpet", Category: models.CategoryBrass, BorrowCount: 5}},
	}
	svc := newReportFixture(repo)

	period := models.ReportPeriod{
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
	}
	report, err := svc.PeriodReport(context.Background(), period)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01", report.StartDate)
	assert.Equal(t, "2026-02-28", report.EndDate)
	assert.Equal(t, 8, report.Overall.TotalInstruments)
	require.Len(t, report.ByCategory, 1)
	assert.Equal(t, period, repo.seenPeriod)
}

func TestPeriodReportDefaultsToLastThirtyDays(t *testing.T) {
	repo := &mockReportRepo{}
	svc := newReportFixture(repo)

	report, err := svc.PeriodReport(context.Background(), models.ReportPeriod{})
	require.NoError(t, err)
	assert.Equal(t, "2026-01-31", report.StartDate)
	assert.Equal(t, "2026-03-02", report.EndDate)
}

func TestPeriodReportRejectsInvertedRange(t *testing.T) {
	svc := newReportFixture(&mockReportRepo{})

	_, err := svc.PeriodReport(context.Background(), models.ReportPeriod{
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportCSV(t *testing.T) {
	repo := &mockReportRepo{
		byCategory: []models.CategoryStats{
			{Category: models.CategoryWoodwind, TotalBorrowings: 4, ActiveBorrowings: 1, LateReturns: 0},
		},
	}
	svc := newReportFixture(repo)

	result, err := svc.Export(context.Background(), models.ReportPeriod{}, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, "lending-report-20260302.csv", result.FileName)

	content := string(result.Content)
	assert.True(t, strings.HasPrefix(content, "Category,Total Borrowings,Active Borrowings,Late Returns"))
	assert.Contains(t, content, "Woodwind,4,1,0")
}

func TestExportPDF(t *testing.T) {
	svc := newReportFixture(&mockReportRepo{})

	result, err := svc.Export(context.Background(), models.ReportPeriod{}, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.NotEmpty(t, result.Content)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := newReportFixture(&mockReportRepo{})

	_, err := svc.Export(context.Background(), models.ReportPeriod{}, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
