package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

type patientRepository interface {
	ListWithStats(ctx context.Context, filter models.PatientFilter, rng models.DateRange) ([]models.PatientStats, error)
	FindByID(ctx context.Context, id string) (*models.PatientStats, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	ProgramIDs(ctx context.Context, patientIDs []string) (map[string][]string, error)
	Create(ctx context.Context, patient *models.Patient, programIDs []string) error
	Update(ctx context.Context, patient *models.Patient, programIDs []string) error
	Delete(ctx context.Context, id string) error
	Enroll(ctx context.Context, patientID, programID string) error
	Unenroll(ctx context.Context, patientID, programID string) error
}

type programChecker interface {
	FindByID(ctx context.Context, id string) (*models.ProgramStats, error)
	CountExisting(ctx context.Context, ids []string) (int, error)
}

type staffLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CreatePatientRequest registers a patient, optionally enrolling it in programs.
type CreatePatientRequest struct {
	Name            string                `json:"name" validate:"required"`
	Email           string                `json:"email" validate:"required,email"`
	Phone           string                `json:"phone" validate:"required"`
	AssignedStaffID string                `json:"assigned_staff_id" validate:"required,uuid"`
	Status          *models.PatientStatus `json:"status" validate:"omitempty,oneof=active inactive"`
	ProgramIDs      []string              `json:"program_ids" validate:"omitempty,dive,uuid"`
}

// UpdatePatientRequest is a partial update. A present program_ids replaces the enrollments.
type UpdatePatientRequest struct {
	Name            *string               `json:"name" validate:"omitempty,min=1"`
	Email           *string               `json:"email" validate:"omitempty,email"`
	Phone           *string               `json:"phone"`
	AssignedStaffID *string               `json:"assigned_staff_id" validate:"omitempty,uuid"`
	Status          *models.PatientStatus `json:"status" validate:"omitempty,oneof=active inactive"`
	ProgramIDs      []string              `json:"program_ids" validate:"omitempty,dive,uuid"`
}

// PatientService manages patients and their program enrollments.
type PatientService struct {
	repo      patientRepository
	programs  programChecker
	staff     staffLookup
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

func NewPatientService(repo patientRepository, programs programChecker, staff staffLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PatientService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientService{repo: repo, programs: programs, staff: staff, cache: cache, validator: validate, logger: logger}
}

// List filters on the derived adherence rate, so matching and paging run here
// rather than in SQL.
func (s *PatientService) List(ctx context.Context, filter models.PatientFilter) ([]models.PatientView, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	matches, err := AdherenceMatcher(filter.Adherence)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.repo.ListWithStats(ctx, filter, models.DateRange{})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list patients")
	}

	views := make([]models.PatientView, 0, len(rows))
	for _, row := range rows {
		view := toPatientView(row, nil)
		if matches(view.AdherenceRate) {
			views = append(views, view)
		}
	}

	pagination := newPagination(filter.Page, filter.PageSize, len(views))
	start := (pagination.Page - 1) * pagination.PageSize
	if start > len(views) {
		start = len(views)
	}
	end := start + pagination.PageSize
	if end > len(views) {
		end = len(views)
	}
	page := views[start:end]

	if err := s.attachPrograms(ctx, page); err != nil {
		return nil, nil, err
	}
	return page, pagination, nil
}

func (s *PatientService) Get(ctx context.Context, id string) (*models.PatientView, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	views := []models.PatientView{toPatientView(*row, nil)}
	if err := s.attachPrograms(ctx, views); err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *PatientService) Create(ctx context.Context, req CreatePatientRequest) (*models.PatientView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	if err := s.ensureStaff(ctx, req.AssignedStaffID); err != nil {
		return nil, err
	}
	programIDs := dedupe(req.ProgramIDs)
	if err := s.ensurePrograms(ctx, programIDs); err != nil {
		return nil, err
	}

	status := models.PatientActive
	if req.Status != nil {
		status = *req.Status
	}
	staffID := req.AssignedStaffID
	patient := &models.Patient{
		Name:            req.Name,
		Email:           email,
		Phone:           req.Phone,
		AssignedStaffID: &staffID,
		Status:          status,
	}
	if err := s.repo.Create(ctx, patient, programIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create patient")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return s.Get(ctx, patient.ID)
}

func (s *PatientService) Update(ctx context.Context, id string, req UpdatePatientRequest) (*models.PatientView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid patient payload")
	}
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	patient := row.Patient

	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if err := s.ensureEmailFree(ctx, email, id); err != nil {
			return nil, err
		}
		patient.Email = email
	}
	if req.AssignedStaffID != nil {
		if err := s.ensureStaff(ctx, *req.AssignedStaffID); err != nil {
			return nil, err
		}
		staffID := *req.AssignedStaffID
		patient.AssignedStaffID = &staffID
	}
	if req.Name != nil {
		patient.Name = *req.Name
	}
	if req.Phone != nil {
		patient.Phone = *req.Phone
	}
	if req.Status != nil {
		patient.Status = *req.Status
	}

	var programIDs []string
	if req.ProgramIDs != nil {
		programIDs = dedupe(req.ProgramIDs)
		if err := s.ensurePrograms(ctx, programIDs); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, &patient, programIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update patient")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return s.Get(ctx, id)
}

// Delete removes the patient with its prescriptions, sessions and enrollments.
func (s *PatientService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete patient")
	}
	s.logger.Info("patient deleted", zap.String("patient_id", id))
	invalidateReports(ctx, s.cache, s.logger)
	return nil
}

// Enroll is idempotent: enrolling twice leaves one enrollment.
func (s *PatientService) Enroll(ctx context.Context, patientID, programID string) error {
	if _, err := s.find(ctx, patientID); err != nil {
		return err
	}
	if _, err := s.programs.FindByID(ctx, programID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	if err := s.repo.Enroll(ctx, patientID, programID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll patient")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return nil
}

func (s *PatientService) Unenroll(ctx context.Context, patientID, programID string) error {
	if err := s.repo.Unenroll(ctx, patientID, programID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll patient")
	}
	invalidateReports(ctx, s.cache, s.logger)
	return nil
}

func (s *PatientService) find(ctx context.Context, id string) (*models.PatientStats, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	return row, nil
}

func (s *PatientService) attachPrograms(ctx context.Context, views []models.PatientView) error {
	if len(views) == 0 {
		return nil
	}
	ids := make([]string, len(views))
	for i := range views {
		ids[i] = views[i].ID
	}
	programs, err := s.repo.ProgramIDs(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	for i := range views {
		if p := programs[views[i].ID]; p != nil {
			views[i].Programs = p
		}
	}
	return nil
}

func (s *PatientService) ensureEmailFree(ctx context.Context, email, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "patient email already exists")
	}
	return nil
}

func (s *PatientService) ensureStaff(ctx context.Context, id string) error {
	if _, err := s.staff.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "assigned staff member does not exist")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff member")
	}
	return nil
}

func (s *PatientService) ensurePrograms(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := s.programs.CountExisting(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check programs")
	}
	if n != len(ids) {
		return appErrors.Clone(appErrors.ErrValidation, "one or more programs do not exist")
	}
	return nil
}

// toPatientView derives the adherence rate from the loaded session counts.
func toPatientView(row models.PatientStats, programs []string) models.PatientView {
	view := models.PatientView{
		Patient:       row.Patient,
		AdherenceRate: AdherencePercent(row.AttendedSessions, row.TotalSessions),
		Programs:      programs,
	}
	if row.AssignedStaffName != nil {
		view.AssignedStaffName = *row.AssignedStaffName
	}
	if view.Programs == nil {
		view.Programs = []string{}
	}
	return view
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
