package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carepath-api/internal/middleware"
	"github.com/noah-isme/carepath-api/internal/models"
	"github.com/noah-isme/carepath-api/internal/service"
	"github.com/noah-isme/carepath-api/pkg/response"
)

type reportService interface {
	Dashboard(ctx context.Context) (*models.DashboardStats, bool, error)
	Adherence(ctx context.Context) ([]models.AdherencePoint, error)
	Enrollments(ctx context.Context) ([]models.EnrollmentPoint, error)
	SessionStatus(ctx context.Context) ([]models.StatusSlice, error)
}

type exportService interface {
	Export(ctx context.Context, req service.ExportRequest) (*service.ExportFile, error)
}

// ReportHandler exposes dashboard charts and dataset exports.
type ReportHandler struct {
	reports reportService
	exports exportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService, exports exportService) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports}
}

// Dashboard godoc
// @Summary Dashboard totals
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/dashboard [get]
func (h *ReportHandler) Dashboard(c *gin.Context) {
	stats, cacheHit, err := h.reports.Dashboard(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// Adherence godoc
// @Summary Adherence per patient
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/adherence [get]
func (h *ReportHandler) Adherence(c *gin.Context) {
	points, err := h.reports.Adherence(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, points, nil)
}

// Enrollments godoc
// @Summary Enrolled patients per program
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/enrollments [get]
func (h *ReportHandler) Enrollments(c *gin.Context) {
	points, err := h.reports.Enrollments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, points, nil)
}

// SessionStatus godoc
// @Summary Session status distribution
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /reports/session-status [get]
func (h *ReportHandler) SessionStatus(c *gin.Context) {
	slices, err := h.reports.SessionStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slices, nil)
}

// Export godoc
// @Summary Export a dataset
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param dataset path string true "patients, programs, sessions or prescriptions"
// @Param format query string false "csv or pdf" default(csv)
// @Param startDate query string false "First day (YYYY-MM-DD)"
// @Param endDate query string false "Last day (YYYY-MM-DD)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /reports/export/{dataset} [get]
func (h *ReportHandler) Export(c *gin.Context) {
	file, err := h.exports.Export(c.Request.Context(), service.ExportRequest{
		Dataset:   c.Param("dataset"),
		Format:    c.DefaultQuery("format", "csv"),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
