package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uniportal-api/internal/models"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
)

type mockStatsRepo struct {
	regCalls int
	payCalls int
}

func (m *mockStatsRepo) RegistrationsByGroup(ctx context.Context, academicYear string) ([]models.RegistrationStatRow, error) {
	m.regCalls++
	return []models.RegistrationStatRow{{
		Department: "Computer Science",
		Program:    "BSc",
		Level:      300,
		Semester:   "FIRST",
		Pending:    4,
		Approved:   30,
		Total:      34,
	}}, nil
}

func (m *mockStatsRepo) CourseFillRates(ctx context.Context) ([]models.CourseFillRow, error) {
	return []models.CourseFillRow{{CourseID: "course-1", Code: "CSC301", CurrentEnrollment: 30, FillRate: 0.75}}, nil
}

func (m *mockStatsRepo) PaymentsByGroup(ctx context.Context) ([]models.PaymentStatRow, error) {
	m.payCalls++
	return []models.PaymentStatRow{{
		Department:  "Computer Science",
		PaymentType: "TUITION",
		Status:      "SUCCESSFUL",
		Count:       120,
		TotalAmount: 6000000,
	}}, nil
}

type mockStatsCache struct {
	entries map[string][]byte
}

func newMockStatsCache() *mockStatsCache {
	return &mockStatsCache{entries: map[string][]byte{}}
}

func (m *mockStatsCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *mockStatsCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.entries = map[string][]byte{}
	return nil
}

func TestStatsServiceRegistrationDashboardCaches(t *testing.T) {
	repo := &mockStatsRepo{}
	cache := newMockStatsCache()
	svc := NewStatsService(repo, cache, time.Minute, nil, NewMetricsService())

	first, err := svc.RegistrationDashboard(context.Background(), "2025/2026")
	require.NoError(t, err)
	require.Len(t, first.ByGroup, 1)
	require.Equal(t, 30, first.ByGroup[0].Approved)

	second, err := svc.RegistrationDashboard(context.Background(), "2025/2026")
	require.NoError(t, err)
	require.Equal(t, first.GeneratedAt.Unix(), second.GeneratedAt.Unix())
	require.Equal(t, 1, repo.regCalls)
}

func TestStatsServicePaymentDashboard(t *testing.T) {
	repo := &mockStatsRepo{}
	cache := newMockStatsCache()
	svc := NewStatsService(repo, cache, time.Minute, nil, NewMetricsService())

	dashboard, err := svc.PaymentDashboard(context.Background())
	require.NoError(t, err)
	require.Len(t, dashboard.ByGroup, 1)
	require.Equal(t, int64(6000000), dashboard.ByGroup[0].TotalAmount)

	_, err = svc.PaymentDashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, repo.payCalls)
}

func TestStatsServiceInvalidate(t *testing.T) {
	repo := &mockStatsRepo{}
	cache := newMockStatsCache()
	svc := NewStatsService(repo, cache, time.Minute, nil, NewMetricsService())

	_, err := svc.RegistrationDashboard(context.Background(), "2025/2026")
	require.NoError(t, err)
	require.NotEmpty(t, cache.entries)

	svc.Invalidate(context.Background())
	require.Empty(t, cache.entries)

	_, err = svc.RegistrationDashboard(context.Background(), "2025/2026")
	require.NoError(t, err)
	require.Equal(t, 2, repo.regCalls)
}
