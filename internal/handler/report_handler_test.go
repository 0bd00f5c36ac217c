package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carepath-api/internal/middleware"
	"github.com/noah-isme/carepath-api/internal/models"
	"github.com/noah-isme/carepath-api/internal/service"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

type fakeReportSrv struct {
	stats *models.DashboardStats
	hit   bool
	err   error
}

func (f *fakeReportSrv) Dashboard(context.Context) (*models.DashboardStats, bool, error) {
	return f.stats, f.hit, f.err
}

func (f *fakeReportSrv) Adherence(context.Context) ([]models.AdherencePoint, error) {
	return []models.AdherencePoint{{Name: "Alice", Adherence: 75}}, f.err
}

func (f *fakeReportSrv) Enrollments(context.Context) ([]models.EnrollmentPoint, error) {
	return nil, f.err
}

func (f *fakeReportSrv) SessionStatus(context.Context) ([]models.StatusSlice, error) {
	return nil, f.err
}

type fakeExportSrv struct {
	last service.ExportRequest
	err  error
}

func (f *fakeExportSrv) Export(_ context.Context, req service.ExportRequest) (*service.ExportFile, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.ExportFile{Filename: "patients.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")}, nil
}

func TestReportHandlerDashboardCacheMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportSrv{stats: &models.DashboardStats{TotalPatients: 4, AverageAdherence: 71}, hit: true}, &fakeExportSrv{})

	router := gin.New()
	router.Use(middleware.WithResponseMeta())
	router.GET("/reports/dashboard", handler.Dashboard)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/dashboard", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data models.DashboardStats  `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Data.TotalPatients)
	assert.Equal(t, 71, body.Data.AverageAdherence)
	assert.Equal(t, true, body.Meta["cache_hit"])
	assert.Contains(t, body.Meta, "processing_time_ms")
}

func TestReportHandlerDashboardError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportSrv{err: appErrors.ErrInternal}, &fakeExportSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/reports/dashboard", nil)

	handler.Dashboard(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReportHandlerExportDefaultsToCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	exports := &fakeExportSrv{}
	handler := NewReportHandler(&fakeReportSrv{}, exports)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/reports/export/patients?startDate=2024-01-01", nil)
	c.Params = gin.Params{{Key: "dataset", Value: "patients"}}

	handler.Export(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ExportRequest{Dataset: "patients", Format: "csv", StartDate: "2024-01-01"}, exports.last)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestReportHandlerExportRejectsBadDataset(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportSrv{}, &fakeExportSrv{err: appErrors.Clone(appErrors.ErrValidation, "unknown dataset")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/reports/export/grades", nil)
	c.Params = gin.Params{{Key: "dataset", Value: "grades"}}

	handler.Export(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}
