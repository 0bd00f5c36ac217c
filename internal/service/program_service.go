package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

type programRepository interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.ProgramStats, int, error)
	FindByID(ctx context.Context, id string) (*models.ProgramStats, error)
	MedicationIDs(ctx context.Context, programIDs []string) (map[string][]string, error)
	Create(ctx context.Context, program *models.Program, medicationIDs []string) error
	Update(ctx context.Context, program *models.Program, medicationIDs []string) error
	Delete(ctx context.Context, id string) error
}

type medicationCounter interface {
	CountExisting(ctx context.Context, ids []string) (int, error)
}

// CreateProgramRequest defines a care program and the medications it uses.
type CreateProgramRequest struct {
	Name          string            `json:"name" validate:"required"`
	Description   string            `json:"description" validate:"required"`
	Frequency     *models.Frequency `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	SessionsCount int               `json:"sessions_count" validate:"required,min=1"`
	MedicationIDs []string          `json:"medication_ids" validate:"omitempty,dive,uuid"`
}

// UpdateProgramRequest is a partial update. A present medication_ids replaces the links.
type UpdateProgramRequest struct {
	Name          *string           `json:"name" validate:"omitempty,min=1"`
	Description   *string           `json:"description"`
	Frequency     *models.Frequency `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	SessionsCount *int              `json:"sessions_count" validate:"omitempty,min=1"`
	MedicationIDs []string          `json:"medication_ids" validate:"omitempty,dive,uuid"`
}

// ProgramService manages care programs.
type ProgramService struct {
	repo        programRepository
	medications medicationCounter
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

func NewProgramService(repo programRepository, medications medicationCounter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ProgramService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgramService{repo: repo, medications: medications, cache: cache, validator: validate, logger: logger}
}

func (s *ProgramService) List(ctx context.Context, filter models.ProgramFilter) ([]models.ProgramView, *models.Pagination, error) {
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}
	views, err := s.withMedications(ctx, rows)
	if err != nil {
		return nil, nil, err
	}
	return views, newPagination(filter.Page, filter.PageSize, total), nil
}

func (s *ProgramService) Get(ctx context.Context, id string) (*models.ProgramView, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	views, err := s.withMedications(ctx, []models.ProgramStats{*row})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *ProgramService) Create(ctx context.Context, req CreateProgramRequest) (*models.ProgramView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}
	medicationIDs := dedupe(req.MedicationIDs)
	if err := s.ensureMedications(ctx, medicationIDs); err != nil {
		return nil, err
	}
	program := &models.Program{
		Name:          req.Name,
		Description:   req.Description,
		Frequency:     models.FrequencyWeekly,
		SessionsCount: req.SessionsCount,
	}
	if req.Frequency != nil {
		program.Frequency = *req.Frequency
	}
	if err := s.repo.Create(ctx, program, medicationIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create program")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return &models.ProgramView{
		ProgramStats: models.ProgramStats{Program: *program},
		Medications:  medicationIDs,
	}, nil
}

func (s *ProgramService) Update(ctx context.Context, id string, req UpdateProgramRequest) (*models.ProgramView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid program payload")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	program := current.Program
	if req.Name != nil {
		program.Name = *req.Name
	}
	if req.Description != nil {
		program.Description = *req.Description
	}
	if req.Frequency != nil {
		program.Frequency = *req.Frequency
	}
	if req.SessionsCount != nil {
		program.SessionsCount = *req.SessionsCount
	}

	var medicationIDs []string
	if req.MedicationIDs != nil {
		medicationIDs = dedupe(req.MedicationIDs)
		if err := s.ensureMedications(ctx, medicationIDs); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, &program, medicationIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update program")
	}
	invalidateReports(ctx, s.cache, s.logger)

	view := &models.ProgramView{
		ProgramStats: models.ProgramStats{Program: program, EnrolledPatients: current.EnrolledPatients},
		Medications:  current.Medications,
	}
	if medicationIDs != nil {
		view.Medications = medicationIDs
	}
	return view, nil
}

// Delete removes the program with its sessions, enrollments and medication links.
func (s *ProgramService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete program")
	}
	s.logger.Info("program deleted", zap.String("program_id", id))
	invalidateReports(ctx, s.cache, s.logger)
	return nil
}

func (s *ProgramService) withMedications(ctx context.Context, rows []models.ProgramStats) ([]models.ProgramView, error) {
	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	links, err := s.repo.MedicationIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program medications")
	}
	views := make([]models.ProgramView, len(rows))
	for i, row := range rows {
		meds := links[row.ID]
		if meds == nil {
			meds = []string{}
		}
		views[i] = models.ProgramView{ProgramStats: row, Medications: meds}
	}
	return views, nil
}

func (s *ProgramService) ensureMedications(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.medications.CountExisting(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check medications")
	}
	if n != len(ids) {
		return appErrors.Clone(appErrors.ErrValidation, "one or more medications do not exist")
	}
	return nil
}
