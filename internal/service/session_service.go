package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
	"github.com/noah-isme/carepath-api/pkg/tracing"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
	MarkMissed(ctx context.Context, today time.Time) (int, error)
}

type programLookup interface {
	FindByID(ctx context.Context, id string) (*models.ProgramStats, error)
}

type patientLookup interface {
	FindByID(ctx context.Context, id string) (*models.PatientStats, error)
}

// CreateSessionRequest schedules a session. Supplying a status records an explicit decision.
type CreateSessionRequest struct {
	ProgramID    string                `json:"program_id" validate:"required,uuid"`
	PatientID    string                `json:"patient_id" validate:"required,uuid"`
	Date         string                `json:"date" validate:"required"`
	Status       *models.SessionStatus `json:"status" validate:"omitempty,oneof=attended missed canceled"`
	CancelReason *string               `json:"cancel_reason"`
	Notes        *string               `json:"notes"`
}

// UpdateSessionRequest is a partial update; nil fields are left unchanged.
type UpdateSessionRequest struct {
	ProgramID    *string               `json:"program_id" validate:"omitempty,uuid"`
	PatientID    *string               `json:"patient_id" validate:"omitempty,uuid"`
	Date         *string               `json:"date"`
	Status       *models.SessionStatus `json:"status" validate:"omitempty,oneof=attended missed canceled"`
	CancelReason *string               `json:"cancel_reason"`
	Notes        *string               `json:"notes"`
}

// SessionService manages program sessions and the missed sweep.
type SessionService struct {
	repo      sessionRepository
	programs  programLookup
	patients  patientLookup
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func NewSessionService(repo sessionRepository, programs programLookup, patients patientLookup, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, programs: programs, patients: patients, cache: cache, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return items, newPagination(filter.Page, filter.PageSize, total), nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// Create stores a session. Without a status it starts as missed and unfinalized,
// so the sweep still owns it.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	day, err := ParseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	if err := s.ensureParticipants(ctx, req.ProgramID, req.PatientID); err != nil {
		return nil, err
	}

	session := &models.Session{
		ProgramID:    req.ProgramID,
		PatientID:    req.PatientID,
		Date:         day,
		Status:       models.SessionMissed,
		CancelReason: req.CancelReason,
		Notes:        req.Notes,
	}
	if req.Status != nil {
		s.finalize(session, *req.Status)
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return session, nil
}

func (s *SessionService) Update(ctx context.Context, id string, req UpdateSessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	programID, patientID := session.ProgramID, session.PatientID
	if req.ProgramID != nil {
		programID = *req.ProgramID
	}
	if req.PatientID != nil {
		patientID = *req.PatientID
	}
	if programID != session.ProgramID || patientID != session.PatientID {
		if err := s.ensureParticipants(ctx, programID, patientID); err != nil {
			return nil, err
		}
	}
	session.ProgramID, session.PatientID = programID, patientID

	if req.Date != nil {
		day, err := ParseDate("date", *req.Date)
		if err != nil {
			return nil, err
		}
		session.Date = day
	}
	if req.CancelReason != nil {
		session.CancelReason = req.CancelReason
	}
	if req.Notes != nil {
		session.Notes = req.Notes
	}
	if req.Status != nil {
		s.finalize(session, *req.Status)
	}

	if err := s.repo.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return session, nil
}

func (s *SessionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return nil
}

// SweepMissed marks every past session that nobody finalized as missed.
func (s *SessionService) SweepMissed(ctx context.Context) (int, error) {
	ctx, span := tracing.Tracer().Start(ctx, "session.sweep_missed")
	defer span.End()

	start := time.Now()
	updated, err := s.repo.MarkMissed(ctx, TruncateDay(s.now()))
	elapsed := time.Since(start)
	s.metrics.ObserveDBQuery("session.mark_missed", elapsed)
	s.metrics.ObserveSweep(SweepMissed, updated, elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark missed sessions")
	}
	span.SetAttributes(attribute.Int("sweep.updated", updated))
	if updated > 0 {
		invalidateReports(ctx, s.cache, s.logger)
	}
	s.logger.Info("missed sweep finished", zap.Int("updated", updated))
	return updated, nil
}

// finalize records an explicit status decision. The first decision stamps FinalizedAt.
func (s *SessionService) finalize(session *models.Session, status models.SessionStatus) {
	session.Status = status
	if session.FinalizedAt == nil {
		now := s.now().UTC()
		session.FinalizedAt = &now
	}
}

func (s *SessionService) ensureParticipants(ctx context.Context, programID, patientID string) error {
	if _, err := s.programs.FindByID(ctx, programID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	if _, err := s.patients.FindByID(ctx, patientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	return nil
}
