package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/internal/handler"
	"github.com/noah-isme/carepath-api/internal/repository"
	"github.com/noah-isme/carepath-api/internal/service"
	"github.com/noah-isme/carepath-api/pkg/breaker"
	"github.com/noah-isme/carepath-api/pkg/cache"
	"github.com/noah-isme/carepath-api/pkg/config"
	"github.com/noah-isme/carepath-api/pkg/database"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

// app holds the wired services shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	redis  *redis.Client

	metrics       *service.MetricsService
	auth          *service.AuthService
	users         *service.UserService
	patients      *service.PatientService
	programs      *service.ProgramService
	sessions      *service.SessionService
	medications   *service.MedicationService
	prescriptions *service.PrescriptionService
	reports       *service.ReportService
	exports       *service.ExportService
	sweeps        *service.SweepService

	cacheRepo *repository.CacheRepository
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db, metrics: service.NewMetricsService()}

	var cacheRepo service.CacheRepository
	if cfg.Reports.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			// Reports fall back to the database while Redis is down.
			logger.Warn("redis unavailable, report cache disabled", zap.Error(err))
		} else {
			br := breaker.New(breaker.Config{
				Name:             "redis-cache",
				MaxRequests:      cfg.Breaker.MaxRequests,
				Interval:         cfg.Breaker.Interval,
				Timeout:          cfg.Breaker.Timeout,
				FailureThreshold: cfg.Breaker.FailureThreshold,
			}, logger, appErrors.ErrCacheMiss)
			a.redis = client
			a.cacheRepo = repository.NewCacheRepository(client, br, logger)
			cacheRepo = a.cacheRepo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, a.metrics, cfg.Reports.CacheTTL, logger, cacheRepo != nil)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	programRepo := repository.NewProgramRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	medicationRepo := repository.NewMedicationRepository(db)
	prescriptionRepo := repository.NewPrescriptionRepository(db)
	reportRepo := repository.NewReportRepository(db)

	a.auth = service.NewAuthService(userRepo, validate, logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	a.users = service.NewUserService(userRepo, validate, logger)
	a.patients = service.NewPatientService(patientRepo, programRepo, userRepo, cacheSvc, validate, logger)
	a.programs = service.NewProgramService(programRepo, medicationRepo, cacheSvc, validate, logger)
	a.sessions = service.NewSessionService(sessionRepo, programRepo, patientRepo, cacheSvc, a.metrics, validate, logger)
	a.medications = service.NewMedicationService(medicationRepo, prescriptionRepo, cacheSvc, validate, logger)
	a.prescriptions = service.NewPrescriptionService(prescriptionRepo, medicationRepo, patientRepo, cacheSvc, a.metrics, validate, logger)
	a.reports = service.NewReportService(reportRepo, cacheSvc, cfg.Reports.CacheTTL, logger)
	a.exports = service.NewExportService(service.ExportSources{
		Patients:      patientRepo,
		Programs:      programRepo,
		Sessions:      sessionRepo,
		Prescriptions: prescriptionRepo,
	}, nil, nil, logger)
	a.sweeps = service.NewSweepService(a.prescriptions, a.sessions, service.SweepConfig{
		Interval:   cfg.Sweep.Interval,
		Workers:    cfg.Sweep.Workers,
		MaxRetries: cfg.Sweep.MaxRetries,
		RetryDelay: cfg.Sweep.RetryDelay,
	}, logger)

	return a, nil
}

func (a *app) handlers() handler.Handlers {
	deps := map[string]handler.Pinger{
		"database": handler.PingFunc(a.db.PingContext),
	}
	if a.cacheRepo != nil {
		deps["cache"] = a.cacheRepo
	}

	return handler.Handlers{
		Auth:        handler.NewAuthHandler(a.auth, a.users),
		Users:       handler.NewUserHandler(a.users),
		Patients:    handler.NewPatientHandler(a.patients),
		Programs:    handler.NewProgramHandler(a.programs),
		Sessions:    handler.NewSessionHandler(a.sessions),
		Medications: handler.NewMedicationHandler(a.medications, a.prescriptions),
		Reports:     handler.NewReportHandler(a.reports, a.exports),
		Metrics:     handler.NewMetricsHandler(a.metrics, deps),
	}
}

func (a *app) Close() {
	if a.cacheRepo != nil {
		if err := a.cacheRepo.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
}

func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
