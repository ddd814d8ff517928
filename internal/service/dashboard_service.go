package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/borrowsmart/lending-api/internal/models"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
)

type dashboardStatsRepository interface {
	AdminDashboardStats(ctx context.Context) (*models.AdminDashboardStats, error)
	StaffDashboardStats(ctx context.Context) (*models.StaffDashboardStats, error)
	RecentActivity(ctx context.Context, userID string, limit int) ([]models.LoanDetail, error)
}

type dashboardLedger interface {
	ListByUser(ctx context.Context, userID string) ([]models.LoanDetail, error)
}

// AdminDashboard is the composed admin view.
type AdminDashboard struct {
	Stats          models.AdminDashboardStats `json:"stats"`
	RecentActivity []models.LoanDetail        `json:"recent_activity"`
}

// StaffDashboard is the composed staff view.
type StaffDashboard struct {
	Stats          models.StaffDashboardStats `json:"stats"`
	RecentActivity []models.LoanDetail        `json:"recent_activity"`
}

// StudentDashboard is the composed personal view.
type StudentDashboard struct {
	Stats       models.StudentDashboardStats `json:"stats"`
	ActiveLoans []models.LoanDetail          `json:"active_loans"`
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL            time.Duration
	RecentActivityLimit int
}

// DashboardService composes role-scoped dashboard payloads. Admin and staff
// views are cached; the student view is always computed fresh because its
// overdue counters must reflect the current date.
type DashboardService struct {
	stats  dashboardStatsRepository
	ledger dashboardLedger
	cache  *CacheService
	logger *zap.Logger
	now    func() time.Time
	cfg    DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(stats dashboardStatsRepository, ledger dashboardLedger, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.RecentActivityLimit <= 0 {
		cfg.RecentActivityLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		stats:  stats,
		ledger: ledger,
		cache:  cache,
		logger: logger,
		now:    time.Now,
		cfg:    cfg,
	}
}

// Admin returns the admin dashboard and indicates cache utilisation.
func (s *DashboardService) Admin(ctx context.Context) (*AdminDashboard, bool, error) {
	cacheKey := s.dayScopedKey("dash:admin")
	var cached AdminDashboard
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	stats, err := s.stats.AdminDashboardStats(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load admin dashboard")
	}
	activity, err := s.recentActivity(ctx, "")
	if err != nil {
		return nil, false, err
	}

	dashboard := &AdminDashboard{Stats: *stats, RecentActivity: activity}
	s.persistCache(ctx, cacheKey, dashboard)
	return dashboard, false, nil
}

// Staff returns the staff dashboard and indicates cache utilisation.
func (s *DashboardService) Staff(ctx context.Context) (*StaffDashboard, bool, error) {
	cacheKey := s.dayScopedKey("dash:staff")
	var cached StaffDashboard
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	stats, err := s.stats.StaffDashboardStats(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff dashboard")
	}
	activity, err := s.recentActivity(ctx, "")
	if err != nil {
		return nil, false, err
	}

	dashboard := &StaffDashboard{Stats: *stats, RecentActivity: activity}
	s.persistCache(ctx, cacheKey, dashboard)
	return dashboard, false, nil
}

// Student returns the personal dashboard for the given user.
func (s *DashboardService) Student(ctx context.Context, userID string) (*StudentDashboard, error) {
	if userID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}

	loans, err := s.ledger.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load borrowing history")
	}

	staffStats, err := s.stats.StaffDashboardStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instrument counters")
	}

	now := s.now()
	dashboard := &StudentDashboard{
		Stats: models.StudentDashboardStats{
			TotalBorrowed:        len(loans),
			AvailableInstruments: staffStats.AvailableInstruments,
		},
	}
	for i := range loans {
		loans[i].CurrentStatus = loans[i].EffectiveStatus(now)
		switch loans[i].CurrentStatus {
		case models.LoanReturned:
		case models.LoanOverdue:
			dashboard.Stats.CurrentlyBorrowed++
			dashboard.Stats.OverdueItems++
			dashboard.ActiveLoans = append(dashboard.ActiveLoans, loans[i])
		default:
			dashboard.Stats.CurrentlyBorrowed++
			dashboard.ActiveLoans = append(dashboard.ActiveLoans, loans[i])
		}
	}
	return dashboard, nil
}

// InvalidateCache drops cached dashboard payloads after a mutation.
func (s *DashboardService) InvalidateCache(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "dash:*"); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) recentActivity(ctx context.Context, userID string) ([]models.LoanDetail, error) {
	activity, err := s.stats.RecentActivity(ctx, userID, s.cfg.RecentActivityLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent activity")
	}
	now := s.now()
	for i := range activity {
		activity[i].CurrentStatus = activity[i].EffectiveStatus(now)
	}
	return activity, nil
}

// dayScopedKey embeds the current UTC date so cached overdue counters roll
// over at midnight even within the TTL window.
func (s *DashboardService) dayScopedKey(prefix string) string {
	return fmt.Sprintf("%s:%s", prefix, s.now().UTC().Format("2006-01-02"))
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil && s.logger != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}
