package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carepath-api/internal/models"
	"github.com/noah-isme/carepath-api/internal/service"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
	"github.com/noah-isme/carepath-api/pkg/response"
)

type patientService interface {
	List(ctx context.Context, filter models.PatientFilter) ([]models.PatientView, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.PatientView, error)
	Create(ctx context.Context, req service.CreatePatientRequest) (*models.PatientView, error)
	Update(ctx context.Context, id string, req service.UpdatePatientRequest) (*models.PatientView, error)
	Delete(ctx context.Context, id string) error
	Enroll(ctx context.Context, patientID, programID string) error
	Unenroll(ctx context.Context, patientID, programID string) error
}

// PatientHandler exposes patient and enrollment endpoints.
type PatientHandler struct {
	patients patientService
}

func NewPatientHandler(patients patientService) *PatientHandler {
	return &PatientHandler{patients: patients}
}

// List godoc
// @Summary List patients
// @Tags Patients
// @Produce json
// @Security BearerAuth
// @Param status query string false "active or inactive"
// @Param programId query string false "Enrolled in program"
// @Param adherence query string false "high, medium, low or a minimum percentage"
// @Param search query string false "Name or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /patients [get]
func (h *PatientHandler) List(c *gin.Context) {
	var filter models.PatientFilter
	if status := optionalQuery(c, "status"); status != "" {
		s := models.PatientStatus(status)
		filter.Status = &s
	}
	filter.ProgramID = optionalQuery(c, "programId")
	filter.Adherence = optionalQuery(c, "adherence")
	filter.Search = optionalQuery(c, "search")
	filter.Page, filter.PageSize = pageParams(c)

	patients, pagination, err := h.patients.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patients, pagination)
}

// Get godoc
// @Summary Get patient
// @Tags Patients
// @Produce json
// @Security BearerAuth
// @Param id path string true "Patient ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /patients/{id} [get]
func (h *PatientHandler) Get(c *gin.Context) {
	patient, err := h.patients.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patient, nil)
}

// Create godoc
// @Summary Create patient
// @Tags Patients
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreatePatientRequest true "Patient payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /patients [post]
func (h *PatientHandler) Create(c *gin.Context) {
	var req service.CreatePatientRequest
	if !bindJSON(c, &req, "patient") {
		return
	}
	patient, err := h.patients.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, patient)
}

// Update godoc
// @Summary Update patient
// @Tags Patients
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Patient ID"
// @Param payload body service.UpdatePatientRequest true "Patient payload"
// @Success 200 {object} response.Envelope
// @Router /patients/{id} [patch]
func (h *PatientHandler) Update(c *gin.Context) {
	var req service.UpdatePatientRequest
	if !bindJSON(c, &req, "patient") {
		return
	}
	patient, err := h.patients.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patient, nil)
}

// Delete godoc
// @Summary Delete patient
// @Tags Patients
// @Security BearerAuth
// @Param id path string true "Patient ID"
// @Success 204
// @Router /patients/{id} [delete]
func (h *PatientHandler) Delete(c *gin.Context) {
	if err := h.patients.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Enroll godoc
// @Summary Enroll patient in program
// @Tags Patients
// @Security BearerAuth
// @Param id path string true "Patient ID"
// @Param programId path string true "Program ID"
// @Success 204
// @Router /patients/{id}/programs/{programId} [post]
func (h *PatientHandler) Enroll(c *gin.Context) {
	programID := c.Param("programId")
	if programID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "programId is required"))
		return
	}
	if err := h.patients.Enroll(c.Request.Context(), c.Param("id"), programID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Unenroll godoc
// @Summary Remove patient from program
// @Tags Patients
// @Security BearerAuth
// @Param id path string true "Patient ID"
// @Param programId path string true "Program ID"
// @Success 204
// @Router /patients/{id}/programs/{programId} [delete]
func (h *PatientHandler) Unenroll(c *gin.Context) {
	if err := h.patients.Unenroll(c.Request.Context(), c.Param("id"), c.Param("programId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
