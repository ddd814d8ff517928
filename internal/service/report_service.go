package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/borrowsmart/lending-api/internal/models"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
	"github.com/borrowsmart/lending-api/pkg/export"
)

type reportRepository interface {
	OverallStats(ctx context.Context) (*models.OverallStats, error)
	CategoryStats(ctx context.Context, period models.ReportPeriod) ([]models.CategoryStats, error)
	PopularInstruments(ctx context.Context, period models.ReportPeriod, limit int) ([]models.PopularInstrument, error)
	TopBorrowers(ctx context.Context, period models.ReportPeriod, limit int) ([]models.TopBorrower, error)
	RecentOverdue(ctx context.Context, limit int) ([]models.OverdueLoan, error)
}

// ExportFormat selects the rendering for report downloads.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult carries a rendered report document.
type ExportResult struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ReportServiceConfig tunes report composition.
type ReportServiceConfig struct {
	RankingLimit int
	OverdueLimit int
}

// ReportService composes period-scoped lending reports and renders them for
// download.
type ReportService struct {
	repo   reportRepository
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
	now    func() time.Time
	cfg    ReportServiceConfig
}

// NewReportService constructs a ReportService.
func NewReportService(repo reportRepository, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if cfg.RankingLimit <= 0 {
		cfg.RankingLimit = 10
	}
	if cfg.OverdueLimit <= 0 {
		cfg.OverdueLimit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:   repo,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
		now:    time.Now,
		cfg:    cfg,
	}
}

// PeriodReport composes the lending report for the given period. A zero
// start date defaults to thirty days before now; a zero end date defaults to
// now.
func (s *ReportService) PeriodReport(ctx context.Context, period models.ReportPeriod) (*models.PeriodReport, error) {
	period = s.normalizePeriod(period)
	if period.EndDate.Before(period.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}

	overall, err := s.repo.OverallStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overall stats")
	}
	byCategory, err := s.repo.CategoryStats(ctx, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category stats")
	}
	popular, err := s.repo.PopularInstruments(ctx, period, s.cfg.RankingLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load popular instruments")
	}
	borrowers, err := s.repo.TopBorrowers(ctx, period, s.cfg.RankingLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load top borrowers")
	}
	overdue, err := s.repo.RecentOverdue(ctx, s.cfg.OverdueLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load overdue loans")
	}

	return &models.PeriodReport{
		Period:        period,
		StartDate:     period.StartDate.Format("2006-01-02"),
		EndDate:       period.EndDate.Format("2006-01-02"),
		Overall:       *overall,
		ByCategory:    byCategory,
		Popular:       popular,
		TopBorrowers:  borrowers,
		RecentOverdue: overdue,
	}, nil
}

// Export renders the period report as a downloadable CSV or PDF document.
func (s *ReportService) Export(ctx context.Context, period models.ReportPeriod, format ExportFormat) (*ExportResult, error) {
	report, err := s.PeriodReport(ctx, period)
	if err != nil {
		return nil, err
	}

	dataset := categoryDataset(report.ByCategory)
	title := fmt.Sprintf("Lending Report %s to %s", report.StartDate, report.EndDate)
	stamp := s.now().UTC().Format("20060102")

	switch format {
	case FormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("lending-report-%s.csv", stamp),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case FormatPDF:
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("lending-report-%s.pdf", stamp),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *ReportService) normalizePeriod(period models.ReportPeriod) models.ReportPeriod {
	now := s.now().UTC()
	if period.EndDate.IsZero() {
		period.EndDate = now
	}
	if period.StartDate.IsZero() {
		period.StartDate = period.EndDate.AddDate(0, 0, -30)
	}
	return period
}

func categoryDataset(stats []models.CategoryStats) export.Dataset {
	headers := []string{"Category", "Total Borrowings", "Active Borrowings", "Late Returns"}
	rows := make([]map[string]string, 0, len(stats))
	for _, stat := range stats {
		rows = append(rows, map[string]string{
			"Category":          titleCase(string(stat.Category)),
			"Total Borrowings":  strconv.Itoa(stat.TotalBorrowings),
			"Active Borrowings": strconv.Itoa(stat.ActiveBorrowings),
			"Late Returns":      strconv.Itoa(stat.LateReturns),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
