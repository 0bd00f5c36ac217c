package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carepath-api/internal/models"
	"github.com/noah-isme/carepath-api/internal/service"
	"github.com/noah-isme/carepath-api/pkg/response"
)

type medicationService interface {
	List(ctx context.Context, filter models.MedicationFilter) ([]models.Medication, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.MedicationDetail, error)
	Create(ctx context.Context, req service.CreateMedicationRequest) (*models.Medication, error)
	Update(ctx context.Context, id string, req service.UpdateMedicationRequest) (*models.Medication, error)
	Delete(ctx context.Context, id string) error
}

type prescriptionService interface {
	Create(ctx context.Context, req service.CreatePrescriptionRequest) (*models.Prescription, error)
	List(ctx context.Context, filter models.PrescriptionFilter) ([]models.PrescriptionDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Prescription, error)
	UpdateStatus(ctx context.Context, id string, req service.UpdatePrescriptionStatusRequest) (*models.Prescription, error)
	Delete(ctx context.Context, id string) error
	SweepOverdue(ctx context.Context) (int, error)
}

// MedicationHandler exposes the medication catalogue and its prescriptions.
type MedicationHandler struct {
	medications   medicationService
	prescriptions prescriptionService
}

func NewMedicationHandler(medications medicationService, prescriptions prescriptionService) *MedicationHandler {
	return &MedicationHandler{medications: medications, prescriptions: prescriptions}
}

// List godoc
// @Summary List medications
// @Tags Medications
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name"
// @Param frequency query string false "daily, weekly or monthly"
// @Param sort query string false "name, frequency or created_at"
// @Param order query string false "asc or desc"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /medications [get]
func (h *MedicationHandler) List(c *gin.Context) {
	filter := models.MedicationFilter{
		Search:    optionalQuery(c, "search"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if freq := optionalQuery(c, "frequency"); freq != "" {
		f := models.Frequency(freq)
		filter.Frequency = &f
	}
	filter.Page, filter.PageSize = pageParams(c)

	medications, pagination, err := h.medications.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, medications, pagination)
}

// Get godoc
// @Summary Get medication with its prescriptions
// @Tags Medications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Medication ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /medications/{id} [get]
func (h *MedicationHandler) Get(c *gin.Context) {
	medication, err := h.medications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, medication, nil)
}

// Create godoc
// @Summary Create medication
// @Tags Medications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateMedicationRequest true "Medication payload"
// @Success 201 {object} response.Envelope
// @Router /medications [post]
func (h *MedicationHandler) Create(c *gin.Context) {
	var req service.CreateMedicationRequest
	if !bindJSON(c, &req, "medication") {
		return
	}
	medication, err := h.medications.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, medication)
}

// Update godoc
// @Summary Update medication
// @Tags Medications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Medication ID"
// @Param payload body service.UpdateMedicationRequest true "Medication payload"
// @Success 200 {object} response.Envelope
// @Router /medications/{id} [patch]
func (h *MedicationHandler) Update(c *gin.Context) {
	var req service.UpdateMedicationRequest
	if !bindJSON(c, &req, "medication") {
		return
	}
	medication, err := h.medications.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, medication, nil)
}

// Delete godoc
// @Summary Delete medication and its prescriptions
// @Tags Medications
// @Security BearerAuth
// @Param id path string true "Medication ID"
// @Success 204
// @Router /medications/{id} [delete]
func (h *MedicationHandler) Delete(c *gin.Context) {
	if err := h.medications.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CreatePrescription godoc
// @Summary Record a medication collection
// @Description Rejected with DUPLICATE_COLLECTION when the frequency window has not elapsed
// @Tags Prescriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreatePrescriptionRequest true "Prescription payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /medications/prescriptions [post]
func (h *MedicationHandler) CreatePrescription(c *gin.Context) {
	var req service.CreatePrescriptionRequest
	if !bindJSON(c, &req, "prescription") {
		return
	}
	prescription, err := h.prescriptions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, prescription)
}

// ListPrescriptions godoc
// @Summary List prescriptions
// @Tags Prescriptions
// @Produce json
// @Security BearerAuth
// @Param patientId query string false "Patient ID"
// @Param medicationId query string false "Medication ID"
// @Param status query string false "pending, collected or overdue"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /medications/prescriptions/all [get]
func (h *MedicationHandler) ListPrescriptions(c *gin.Context) {
	filter := models.PrescriptionFilter{
		PatientID:    optionalQuery(c, "patientId"),
		MedicationID: optionalQuery(c, "medicationId"),
	}
	if status := optionalQuery(c, "status"); status != "" {
		s := models.PrescriptionStatus(status)
		filter.Status = &s
	}
	filter.Page, filter.PageSize = pageParams(c)

	items, pagination, err := h.prescriptions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetPrescription godoc
// @Summary Get prescription
// @Tags Prescriptions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Prescription ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /medications/prescriptions/{id} [get]
func (h *MedicationHandler) GetPrescription(c *gin.Context) {
	prescription, err := h.prescriptions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prescription, nil)
}

// UpdatePrescriptionStatus godoc
// @Summary Change prescription status
// @Tags Prescriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Prescription ID"
// @Param payload body service.UpdatePrescriptionStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /medications/prescriptions/{id}/status [patch]
func (h *MedicationHandler) UpdatePrescriptionStatus(c *gin.Context) {
	var req service.UpdatePrescriptionStatusRequest
	if !bindJSON(c, &req, "status") {
		return
	}
	prescription, err := h.prescriptions.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prescription, nil)
}

// DeletePrescription godoc
// @Summary Delete prescription
// @Tags Prescriptions
// @Security BearerAuth
// @Param id path string true "Prescription ID"
// @Success 204
// @Router /medications/prescriptions/{id} [delete]
func (h *MedicationHandler) DeletePrescription(c *gin.Context) {
	if err := h.prescriptions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateOverdue godoc
// @Summary Flag overdue prescriptions
// @Tags Prescriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /medications/prescriptions/update-overdue [post]
func (h *MedicationHandler) UpdateOverdue(c *gin.Context) {
	updated, err := h.prescriptions.SweepOverdue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}
