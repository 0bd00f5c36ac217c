package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

type medicationRepository interface {
	List(ctx context.Context, filter models.MedicationFilter) ([]models.Medication, int, error)
	FindByID(ctx context.Context, id string) (*models.Medication, error)
	Create(ctx context.Context, medication *models.Medication) error
	Update(ctx context.Context, medication *models.Medication) error
	Delete(ctx context.Context, id string) error
}

type medicationPrescriptionReader interface {
	ListByMedication(ctx context.Context, medicationID string) ([]models.Prescription, error)
}

// CreateMedicationRequest is the payload of POST /medications.
type CreateMedicationRequest struct {
	Name        string           `json:"name" validate:"required"`
	Dosage      string           `json:"dosage" validate:"required"`
	Frequency   models.Frequency `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	Description string           `json:"description" validate:"required"`
}

// UpdateMedicationRequest is a partial update; nil fields are left unchanged.
type UpdateMedicationRequest struct {
	Name        *string           `json:"name" validate:"omitempty,min=1"`
	Dosage      *string           `json:"dosage" validate:"omitempty,min=1"`
	Frequency   *models.Frequency `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	Description *string           `json:"description"`
}

// MedicationService manages the medication catalogue.
type MedicationService struct {
	repo          medicationRepository
	prescriptions medicationPrescriptionReader
	cache         *CacheService
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

func NewMedicationService(repo medicationRepository, prescriptions medicationPrescriptionReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *MedicationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicationService{repo: repo, prescriptions: prescriptions, cache: cache, validator: validate, logger: logger, now: time.Now}
}

func (s *MedicationService) List(ctx context.Context, filter models.MedicationFilter) ([]models.Medication, *models.Pagination, error) {
	if filter.Frequency != nil && !filter.Frequency.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid frequency filter")
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list medications")
	}
	return items, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns the medication with its prescriptions, overdue status evaluated as of today.
func (s *MedicationService) Get(ctx context.Context, id string) (*models.MedicationDetail, error) {
	medication, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	prescriptions, err := s.prescriptions.ListByMedication(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prescriptions")
	}
	today := s.now()
	for i := range prescriptions {
		ApplyOverdue(&prescriptions[i], today)
	}
	if prescriptions == nil {
		prescriptions = []models.Prescription{}
	}
	return &models.MedicationDetail{Medication: *medication, Prescriptions: prescriptions}, nil
}

func (s *MedicationService) Create(ctx context.Context, req CreateMedicationRequest) (*models.Medication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid medication payload")
	}
	medication := &models.Medication{
		Name:        req.Name,
		Dosage:      req.Dosage,
		Frequency:   req.Frequency,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, medication); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create medication")
	}
	return medication, nil
}

func (s *MedicationService) Update(ctx context.Context, id string, req UpdateMedicationRequest) (*models.Medication, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid medication payload")
	}
	medication, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		medication.Name = *req.Name
	}
	if req.Dosage != nil {
		medication.Dosage = *req.Dosage
	}
	if req.Frequency != nil {
		medication.Frequency = *req.Frequency
	}
	if req.Description != nil {
		medication.Description = *req.Description
	}
	if err := s.repo.Update(ctx, medication); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update medication")
	}
	return medication, nil
}

// Delete removes the medication along with its prescriptions and program links.
func (s *MedicationService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "medication not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete medication")
	}
	s.logger.Info("medication deleted", zap.String("medication_id", id))
	invalidateReports(ctx, s.cache, s.logger)
	return nil
}

func (s *MedicationService) find(ctx context.Context, id string) (*models.Medication, error) {
	medication, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "medication not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medication")
	}
	return medication, nil
}
