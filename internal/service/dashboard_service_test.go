package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/borrowsmart/lending-api/internal/models"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
)

type memoryCacheRepo struct {
	entries map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: make(map[string][]byte)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.entries = make(map[string][]byte)
	return nil
}

type mockStatsRepo struct {
	adminCalls int
	staffCalls int
	admin      models.AdminDashboardStats
	staff      models.StaffDashboardStats
	activity   []models.LoanDetail
}

func (m *mockStatsRepo) AdminDashboardStats(ctx context.Context) (*models.AdminDashboardStats, error) {
	m.adminCalls++
	copy := m.admin
	return &copy, nil
}

func (m *mockStatsRepo) StaffDashboardStats(ctx context.Context) (*models.StaffDashboardStats, error) {
	m.staffCalls++
	copy := m.staff
	return &copy, nil
}

func (m *mockStatsRepo) RecentActivity(ctx context.Context, userID string, limit int) ([]models.LoanDetail, error) {
	return m.activity, nil
}

func newDashboardFixture(stats *mockStatsRepo, ledger dashboardLedger) *DashboardService {
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, zap.NewNop(), true)
	return NewDashboardService(stats, ledger, cache, zap.NewNop(), DashboardServiceConfig{CacheTTL: time.Minute})
}

func TestAdminDashboardCachesComposedPayload(t *testing.T) {
	stats := &mockStatsRepo{admin: models.AdminDashboardStats{TotalUsers: 12, ActiveBorrowings: 3}}
	svc := newDashboardFixture(stats, newFakeLedger(1))
	svc.now = fixedClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	first, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 12, first.Stats.TotalUsers)

	second, cached, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, 1, stats.adminCalls)
}

func TestDashboardCacheKeyRollsOverAtMidnight(t *testing.T) {
	stats := &mockStatsRepo{staff: models.StaffDashboardStats{TotalInstruments: 4}}
	svc := newDashboardFixture(stats, newFakeLedger(1))
	svc.now = fixedClock(time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC))

	_, _, err := svc.Staff(context.Background())
	require.NoError(t, err)

	// next day must not serve yesterday's overdue counters
	svc.now = fixedClock(time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC))
	_, cached, err := svc.Staff(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, stats.staffCalls)
}

func TestStudentDashboardDerivesOverdueFresh(t *testing.T) {
	ledger := newFakeLedger(3)
	lending := newLendingService(ledger)
	borrowTime := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	lending.now = fixedClock(borrowTime)

	_, err := lending.Borrow(context.Background(), "student-1", BorrowRequest{InstrumentID: "inst-1", DueDate: borrowTime.AddDate(0, 0, 2)})
	require.NoError(t, err)

	stats := &mockStatsRepo{staff: models.StaffDashboardStats{AvailableInstruments: 2}}
	svc := newDashboardFixture(stats, ledger)
	svc.now = fixedClock(borrowTime.AddDate(0, 0, 7))

	dashboard, err := svc.Student(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 1, dashboard.Stats.TotalBorrowed)
	assert.Equal(t, 1, dashboard.Stats.CurrentlyBorrowed)
	assert.Equal(t, 1, dashboard.Stats.OverdueItems)
	assert.Equal(t, 2, dashboard.Stats.AvailableInstruments)
	require.Len(t, dashboard.ActiveLoans, 1)
	assert.Equal(t, models.LoanOverdue, dashboard.ActiveLoans[0].CurrentStatus)
}

func TestStudentDashboardRequiresUserID(t *testing.T) {
	svc := newDashboardFixture(&mockStatsRepo{}, newFakeLedger(1))

	_, err := svc.Student(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
