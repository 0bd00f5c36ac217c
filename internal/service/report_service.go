package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

const (
	reportCachePrefix = "reports:"
	dashboardCacheKey = reportCachePrefix + "dashboard"
)

type reportRepository interface {
	DashboardCounts(ctx context.Context, today time.Time) (*models.DashboardCounts, error)
	SessionTallies(ctx context.Context) ([]models.PatientSessionTally, error)
	EnrollmentCounts(ctx context.Context) ([]models.ProgramEnrollmentCount, error)
}

// ReportService builds the dashboard and chart aggregates.
type ReportService struct {
	repo     reportRepository
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewReportService(repo reportRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *ReportService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger, now: time.Now}
}

// Dashboard returns the totals and reports whether they came from cache.
// A failing cache is logged and treated as a miss.
func (s *ReportService) Dashboard(ctx context.Context) (*models.DashboardStats, bool, error) {
	var cached models.DashboardStats
	if hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	counts, err := s.repo.DashboardCounts(ctx, TruncateDay(s.now()))
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard counts")
	}
	tallies, err := s.repo.SessionTallies(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session tallies")
	}
	samples := make([]AdherenceSample, len(tallies))
	for i, t := range tallies {
		samples[i] = AdherenceSample{Attended: t.Attended, Total: t.Total}
	}

	stats := &models.DashboardStats{
		TotalPatients:        counts.TotalPatients,
		ActivePatients:       counts.ActivePatients,
		TotalPrograms:        counts.TotalPrograms,
		TotalEnrollments:     counts.TotalEnrollments,
		AverageAdherence:     AverageAdherence(samples),
		OverduePrescriptions: counts.OverduePrescriptions,
		AttendedSessions:     counts.AttendedSessions,
		MissedSessions:       counts.MissedSessions,
		CanceledSessions:     counts.CanceledSessions,
	}
	_ = s.cache.Set(ctx, dashboardCacheKey, stats, s.cacheTTL)
	return stats, false, nil
}

// Adherence lists every patient's rate keyed by first name.
func (s *ReportService) Adherence(ctx context.Context) ([]models.AdherencePoint, error) {
	tallies, err := s.repo.SessionTallies(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session tallies")
	}
	points := make([]models.AdherencePoint, len(tallies))
	for i, t := range tallies {
		points[i] = models.AdherencePoint{Name: firstWord(t.Name), Adherence: AdherencePercent(t.Attended, t.Total)}
	}
	return points, nil
}

// Enrollments lists enrolled patient counts keyed by the first word of the program name.
func (s *ReportService) Enrollments(ctx context.Context) ([]models.EnrollmentPoint, error) {
	rows, err := s.repo.EnrollmentCounts(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment counts")
	}
	points := make([]models.EnrollmentPoint, len(rows))
	for i, r := range rows {
		points[i] = models.EnrollmentPoint{Name: firstWord(r.Name), Enrolled: r.Enrolled}
	}
	return points, nil
}

// SessionStatus reuses the dashboard totals so it shares the cache entry.
func (s *ReportService) SessionStatus(ctx context.Context) ([]models.StatusSlice, error) {
	stats, _, err := s.Dashboard(ctx)
	if err != nil {
		return nil, err
	}
	return []models.StatusSlice{
		{Name: "Attended", Value: stats.AttendedSessions},
		{Name: "Missed", Value: stats.MissedSessions},
		{Name: "Canceled", Value: stats.CanceledSessions},
	}, nil
}

// invalidateReports drops cached aggregates after a write. Failures only log.
func invalidateReports(ctx context.Context, cache *CacheService, logger *zap.Logger) {
	if err := cache.Invalidate(ctx, reportCachePrefix+"*"); err != nil && logger != nil {
		logger.Warn("report cache invalidation failed", zap.Error(err))
	}
}

func firstWord(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
