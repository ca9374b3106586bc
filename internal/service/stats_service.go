package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uniportal-api/internal/models"
	appErrors "github.com/noah-isme/uniportal-api/pkg/errors"
)

type statsRepository interface {
	RegistrationsByGroup(ctx context.Context, academicYear string) ([]models.RegistrationStatRow, error)
	CourseFillRates(ctx context.Context) ([]models.CourseFillRow, error)
	PaymentsByGroup(ctx context.Context) ([]models.PaymentStatRow, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// StatsService serves the admin dashboard aggregates, fronted by Redis.
// Dashboards tolerate slightly stale numbers, so reads go through the
// cache and fall back to the database on a miss.
type StatsService struct {
	repo     statsRepository
	cache    statsCache
	cacheTTL time.Duration
	logger   *zap.Logger
	metrics  *MetricsService
}

// NewStatsService constructs StatsService.
func NewStatsService(repo statsRepository, cache statsCache, cacheTTL time.Duration, logger *zap.Logger, metrics *MetricsService) *StatsService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger, metrics: metrics}
}

// RegistrationDashboard returns registration aggregates and course fill
// rates, cached per academic year.
func (s *StatsService) RegistrationDashboard(ctx context.Context, academicYear string) (*models.RegistrationDashboard, error) {
	key := fmt.Sprintf("stats:registrations:%s", academicYear)

	var cached models.RegistrationDashboard
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		s.metrics.RecordCacheOperation(true)
		return &cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.metrics.RecordCacheOperation(false)

	byGroup, err := s.repo.RegistrationsByGroup(ctx, academicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate registrations")
	}
	fill, err := s.repo.CourseFillRates(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate course fill rates")
	}

	dashboard := &models.RegistrationDashboard{
		ByGroup:     byGroup,
		CourseFill:  fill,
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.cache.Set(ctx, key, dashboard, s.cacheTTL); err != nil {
		s.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
	return dashboard, nil
}

// PaymentDashboard returns payment aggregates grouped by department,
// type and status.
func (s *StatsService) PaymentDashboard(ctx context.Context) (*models.PaymentDashboard, error) {
	const key = "stats:payments"

	var cached models.PaymentDashboard
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		s.metrics.RecordCacheOperation(true)
		return &cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.metrics.RecordCacheOperation(false)

	byGroup, err := s.repo.PaymentsByGroup(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate payments")
	}

	dashboard := &models.PaymentDashboard{
		ByGroup:     byGroup,
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.cache.Set(ctx, key, dashboard, s.cacheTTL); err != nil {
		s.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
	return dashboard, nil
}

// Invalidate drops all cached dashboard payloads. Called after admin
// actions that visibly move the numbers.
func (s *StatsService) Invalidate(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, "stats:*"); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}
