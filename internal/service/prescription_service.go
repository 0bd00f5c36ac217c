package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
	"github.com/noah-isme/carepath-api/pkg/tracing"
)

type prescriptionRepository interface {
	List(ctx context.Context, filter models.PrescriptionFilter) ([]models.PrescriptionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Prescription, error)
	CreateIfEligible(ctx context.Context, p *models.Prescription, check func(last *models.Prescription) error) error
	UpdateStatus(ctx context.Context, id string, status models.PrescriptionStatus) error
	Delete(ctx context.Context, id string) error
	MarkOverdue(ctx context.Context, today time.Time) (int, error)
}

type medicationLookup interface {
	FindByID(ctx context.Context, id string) (*models.Medication, error)
}

// DB operation labels for the repository calls the gate and sweep time.
const (
	queryCreatePrescription = "prescription.create_if_eligible"
	queryMarkOverdue        = "prescription.mark_overdue"
)

// CreatePrescriptionRequest records a collection event.
type CreatePrescriptionRequest struct {
	MedicationID  string `json:"medication_id" validate:"required,uuid"`
	PatientID     string `json:"patient_id" validate:"required,uuid"`
	DateCollected string `json:"date_collected" validate:"required"`
	NextDueDate   string `json:"next_due_date" validate:"required"`
}

// UpdatePrescriptionStatusRequest is the payload of PATCH /medications/prescriptions/:id/status.
type UpdatePrescriptionStatusRequest struct {
	Status models.PrescriptionStatus `json:"status" validate:"required,oneof=pending collected overdue"`
}

// PrescriptionService runs the collection gate and the prescription lifecycle.
type PrescriptionService struct {
	repo        prescriptionRepository
	medications medicationLookup
	patients    patientLookup
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

func NewPrescriptionService(repo prescriptionRepository, medications medicationLookup, patients patientLookup, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PrescriptionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionService{repo: repo, medications: medications, patients: patients, cache: cache, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// Create accepts a collection only when the medication's frequency window since
// the patient's latest collected prescription has elapsed. The new prescription
// starts pending.
func (s *PrescriptionService) Create(ctx context.Context, req CreatePrescriptionRequest) (*models.Prescription, error) {
	ctx, span := tracing.Tracer().Start(ctx, "prescription.create", trace.WithAttributes(
		attribute.String("patient.id", req.PatientID),
		attribute.String("medication.id", req.MedicationID),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prescription payload")
	}
	collected, err := ParseDate("date_collected", req.DateCollected)
	if err != nil {
		return nil, err
	}
	nextDue, err := ParseDate("next_due_date", req.NextDueDate)
	if err != nil {
		return nil, err
	}
	if nextDue.Before(collected) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "next_due_date must not be before date_collected")
	}

	medication, err := s.medications.FindByID(ctx, req.MedicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "medication not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medication")
	}
	span.SetAttributes(attribute.String("medication.frequency", string(medication.Frequency)))
	if _, err := s.patients.FindByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}

	prescription := &models.Prescription{
		MedicationID:  req.MedicationID,
		PatientID:     req.PatientID,
		DateCollected: collected,
		NextDueDate:   nextDue,
		Status:        models.PrescriptionPending,
	}
	start := time.Now()
	err = s.repo.CreateIfEligible(ctx, prescription, func(last *models.Prescription) error {
		var lastCollected *time.Time
		if last != nil {
			lastCollected = &last.DateCollected
		}
		eligible, err := IsEligibleForCollection(medication.Frequency, lastCollected, collected)
		if err != nil {
			return err
		}
		if !eligible {
			return appErrors.DuplicateCollection(string(medication.Frequency))
		}
		return nil
	})
	s.metrics.ObserveDBQuery(queryCreatePrescription, time.Since(start))
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			if errors.Is(appErr, appErrors.ErrDuplicateCollection) {
				s.metrics.RecordCollection(medication.Frequency, false)
				span.SetStatus(codes.Error, "duplicate collection")
				s.logger.Info("collection rejected",
					zap.String("patient_id", req.PatientID),
					zap.String("medication_id", req.MedicationID),
					zap.String("frequency", string(medication.Frequency)))
			}
			return nil, appErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create prescription")
	}

	s.metrics.RecordCollection(medication.Frequency, true)
	invalidateReports(ctx, s.cache, s.logger)
	view := *prescription
	ApplyOverdue(&view, s.now())
	return &view, nil
}

// List returns prescriptions with overdue status evaluated as of today. A status
// filter matches that evaluated status, not the stored one.
func (s *PrescriptionService) List(ctx context.Context, filter models.PrescriptionFilter) ([]models.PrescriptionDetail, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	today := TruncateDay(s.now())
	filter.AsOf = today
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list prescriptions")
	}
	for i := range items {
		ApplyOverdue(&items[i].Prescription, today)
	}
	return items, newPagination(filter.Page, filter.PageSize, total), nil
}

func (s *PrescriptionService) Get(ctx context.Context, id string) (*models.Prescription, error) {
	prescription, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	ApplyOverdue(prescription, s.now())
	return prescription, nil
}

// UpdateStatus applies an explicit transition. The overdue rule is re-evaluated
// before the write, so asking for pending on a past-due prescription stores overdue.
func (s *PrescriptionService) UpdateStatus(ctx context.Context, id string, req UpdatePrescriptionStatusRequest) (*models.Prescription, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	prescription, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	TransitionPrescription(prescription, req.Status, s.now())
	if err := s.repo.UpdateStatus(ctx, id, prescription.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prescription not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update prescription")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return prescription, nil
}

func (s *PrescriptionService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "prescription not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete prescription")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return nil
}

// SweepOverdue marks every uncollected prescription due before today as overdue
// and reports how many changed.
func (s *PrescriptionService) SweepOverdue(ctx context.Context) (int, error) {
	ctx, span := tracing.Tracer().Start(ctx, "prescription.sweep_overdue")
	defer span.End()

	start := time.Now()
	updated, err := s.repo.MarkOverdue(ctx, TruncateDay(s.now()))
	elapsed := time.Since(start)
	s.metrics.ObserveDBQuery(queryMarkOverdue, elapsed)
	s.metrics.ObserveSweep(SweepOverdue, updated, elapsed, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update overdue prescriptions")
	}
	span.SetAttributes(attribute.Int("sweep.updated", updated))
	if updated > 0 {
		invalidateReports(ctx, s.cache, s.logger)
	}
	s.logger.Info("overdue sweep finished", zap.Int("updated", updated))
	return updated, nil
}

func (s *PrescriptionService) find(ctx context.Context, id string) (*models.Prescription, error) {
	prescription, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prescription not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prescription")
	}
	return prescription, nil
}
