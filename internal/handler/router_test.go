package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/noah-isme/carepath-api/internal/middleware"
	"github.com/noah-isme/carepath-api/internal/models"
	"github.com/noah-isme/carepath-api/internal/service"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
)

type routeAuthStub struct{}

func (routeAuthStub) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "token", User: models.UserInfo{Email: req.Email}}, nil
}

func (routeAuthStub) Profile(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID}, nil
}

func (routeAuthStub) Register(_ context.Context, req service.RegisterUserRequest) (*models.User, error) {
	return &models.User{ID: "u-new", Email: req.Email}, nil
}

type routeUserStub struct{}

func (routeUserStub) List(context.Context, models.UserFilter) ([]models.User, *models.Pagination, error) {
	return []models.User{}, &models.Pagination{}, nil
}

func (routeUserStub) ListStaff(context.Context) ([]models.User, error) { return []models.User{}, nil }

func (routeUserStub) Get(_ context.Context, id string) (*models.User, error) {
	return &models.User{ID: id}, nil
}

type routePatientStub struct {
	created []service.CreatePatientRequest
}

func (f *routePatientStub) List(context.Context, models.PatientFilter) ([]models.PatientView, *models.Pagination, error) {
	return []models.PatientView{}, &models.Pagination{}, nil
}

func (f *routePatientStub) Get(_ context.Context, id string) (*models.PatientView, error) {
	return &models.PatientView{Patient: models.Patient{ID: id}}, nil
}

func (f *routePatientStub) Create(_ context.Context, req service.CreatePatientRequest) (*models.PatientView, error) {
	f.created = append(f.created, req)
	return &models.PatientView{Patient: models.Patient{ID: "p-1", Name: req.Name}, Programs: req.ProgramIDs}, nil
}

func (f *routePatientStub) Update(_ context.Context, id string, _ service.UpdatePatientRequest) (*models.PatientView, error) {
	return &models.PatientView{Patient: models.Patient{ID: id}}, nil
}

func (f *routePatientStub) Delete(context.Context, string) error            { return nil }
func (f *routePatientStub) Enroll(context.Context, string, string) error   { return nil }
func (f *routePatientStub) Unenroll(context.Context, string, string) error { return nil }

type routeProgramStub struct {
	deleted []string
}

func (f *routeProgramStub) List(context.Context, models.ProgramFilter) ([]models.ProgramView, *models.Pagination, error) {
	return []models.ProgramView{}, &models.Pagination{}, nil
}

func (f *routeProgramStub) Get(_ context.Context, id string) (*models.ProgramView, error) {
	return &models.ProgramView{ProgramStats: models.ProgramStats{Program: models.Program{ID: id}}}, nil
}

func (f *routeProgramStub) Create(_ context.Context, req service.CreateProgramRequest) (*models.ProgramView, error) {
	return &models.ProgramView{ProgramStats: models.ProgramStats{Program: models.Program{ID: "prog-1", Name: req.Name}}}, nil
}

func (f *routeProgramStub) Update(_ context.Context, id string, _ service.UpdateProgramRequest) (*models.ProgramView, error) {
	return &models.ProgramView{ProgramStats: models.ProgramStats{Program: models.Program{ID: id}}}, nil
}

func (f *routeProgramStub) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type routeSessionStub struct {
	lastFilter models.SessionFilter
	swept      int
}

func (f *routeSessionStub) List(_ context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.Session{}, &models.Pagination{}, nil
}

func (f *routeSessionStub) Get(_ context.Context, id string) (*models.Session, error) {
	return &models.Session{ID: id}, nil
}

func (f *routeSessionStub) Create(_ context.Context, req service.CreateSessionRequest) (*models.Session, error) {
	return &models.Session{ID: "s-1", ProgramID: req.ProgramID, PatientID: req.PatientID}, nil
}

func (f *routeSessionStub) Update(_ context.Context, id string, _ service.UpdateSessionRequest) (*models.Session, error) {
	return &models.Session{ID: id}, nil
}

func (f *routeSessionStub) Delete(context.Context, string) error { return nil }

func (f *routeSessionStub) SweepMissed(context.Context) (int, error) { return f.swept, nil }

type routeMedicationStub struct{}

func (routeMedicationStub) List(context.Context, models.MedicationFilter) ([]models.Medication, *models.Pagination, error) {
	return []models.Medication{}, &models.Pagination{}, nil
}

func (routeMedicationStub) Get(_ context.Context, id string) (*models.MedicationDetail, error) {
	return &models.MedicationDetail{Medication: models.Medication{ID: id}}, nil
}

func (routeMedicationStub) Create(_ context.Context, req service.CreateMedicationRequest) (*models.Medication, error) {
	return &models.Medication{ID: "m-1", Name: req.Name}, nil
}

func (routeMedicationStub) Update(_ context.Context, id string, _ service.UpdateMedicationRequest) (*models.Medication, error) {
	return &models.Medication{ID: id}, nil
}

func (routeMedicationStub) Delete(context.Context, string) error { return nil }

type routePrescriptionStub struct {
	createErr error
	swept     int
}

func (f *routePrescriptionStub) Create(_ context.Context, req service.CreatePrescriptionRequest) (*models.Prescription, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.Prescription{ID: "rx-1", MedicationID: req.MedicationID, PatientID: req.PatientID, Status: models.PrescriptionPending}, nil
}

func (f *routePrescriptionStub) List(context.Context, models.PrescriptionFilter) ([]models.PrescriptionDetail, *models.Pagination, error) {
	return []models.PrescriptionDetail{}, &models.Pagination{}, nil
}

func (f *routePrescriptionStub) Get(_ context.Context, id string) (*models.Prescription, error) {
	return &models.Prescription{ID: id}, nil
}

func (f *routePrescriptionStub) UpdateStatus(_ context.Context, id string, req service.UpdatePrescriptionStatusRequest) (*models.Prescription, error) {
	return &models.Prescription{ID: id, Status: req.Status}, nil
}

func (f *routePrescriptionStub) Delete(context.Context, string) error { return nil }

func (f *routePrescriptionStub) SweepOverdue(context.Context) (int, error) { return f.swept, nil }

type routeReportStub struct{}

func (routeReportStub) Dashboard(context.Context) (*models.DashboardStats, bool, error) {
	return &models.DashboardStats{TotalPatients: 3}, false, nil
}

func (routeReportStub) Adherence(context.Context) ([]models.AdherencePoint, error) {
	return []models.AdherencePoint{{Name: "Alice", Adherence: 80}}, nil
}

func (routeReportStub) Enrollments(context.Context) ([]models.EnrollmentPoint, error) {
	return []models.EnrollmentPoint{}, nil
}

func (routeReportStub) SessionStatus(context.Context) ([]models.StatusSlice, error) {
	return []models.StatusSlice{}, nil
}

type routeExportStub struct{}

func (routeExportStub) Export(_ context.Context, req service.ExportRequest) (*service.ExportFile, error) {
	return &service.ExportFile{Filename: req.Dataset + "-2024-10-20.csv", ContentType: "text/csv", Data: []byte("Name\n")}, nil
}

const (
	patientID        = "0b7e5f2a-6c1d-4e8f-9a3b-2c4d6e8f0a1b"
	programID        = "5d9c3a71-2e4f-4b6a-8c0d-1e2f3a4b5c6d"
	deletedProgramID = "9a8b7c6d-5e4f-4a3b-9c2d-1e0f2a3b4c5d"
	sessionID        = "c1d2e3f4-a5b6-4c7d-8e9f-0a1b2c3d4e5f"
)

type routeFixture struct {
	router        *gin.Engine
	patients      *routePatientStub
	programs      *routeProgramStub
	sessions      *routeSessionStub
	prescriptions *routePrescriptionStub
}

func newRouteFixture() *routeFixture {
	gin.SetMode(gin.TestMode)
	f := &routeFixture{
		patients:      &routePatientStub{},
		programs:      &routeProgramStub{},
		sessions:      &routeSessionStub{swept: 4},
		prescriptions: &routePrescriptionStub{swept: 2},
	}

	testAuth := func(c *gin.Context) {
		role := c.GetHeader("X-Test-Role")
		if role == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "test-user", Role: models.UserRole(role)})
		c.Next()
	}

	router := gin.New()
	Register(router.Group(""), Handlers{
		Auth:        NewAuthHandler(routeAuthStub{}, routeAuthStub{}),
		Users:       NewUserHandler(routeUserStub{}),
		Patients:    NewPatientHandler(f.patients),
		Programs:    NewProgramHandler(f.programs),
		Sessions:    NewSessionHandler(f.sessions),
		Medications: NewMedicationHandler(routeMedicationStub{}, f.prescriptions),
		Reports:     NewReportHandler(routeReportStub{}, routeExportStub{}),
	}, testAuth)
	f.router = router
	return f
}

func (f *routeFixture) do(method, path, role, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRoutesRoleGating(t *testing.T) {
	f := newRouteFixture()

	cases := []struct {
		name   string
		method string
		path   string
		role   models.UserRole
		body   string
		status int
	}{
		{"login is public", http.MethodPost, "/auth/login", "", `{"email":"a@b.test","password":"x"}`, http.StatusOK},
		{"reads need a token", http.MethodGet, "/patients", "", "", http.StatusUnauthorized},
		{"guest can read", http.MethodGet, "/programs", models.RoleGuest, "", http.StatusOK},
		{"guest cannot create patient", http.MethodPost, "/patients", models.RoleGuest, `{"name":"A"}`, http.StatusForbidden},
		{"staff creates patient", http.MethodPost, "/patients", models.RoleStaff, `{"name":"Alice","email":"alice@care.test","phone":"1","assigned_staff_id":"u-1"}`, http.StatusCreated},
		{"staff cannot delete patient", http.MethodDelete, "/patients/"+patientID, models.RoleStaff, "", http.StatusForbidden},
		{"admin deletes patient", http.MethodDelete, "/patients/"+patientID, models.RoleAdmin, "", http.StatusNoContent},
		{"staff enrolls", http.MethodPost, "/patients/"+patientID+"/programs/"+programID, models.RoleStaff, "", http.StatusNoContent},
		{"staff cannot create program", http.MethodPost, "/programs", models.RoleStaff, `{"name":"Cardio"}`, http.StatusForbidden},
		{"admin deletes program", http.MethodDelete, "/programs/"+deletedProgramID, models.RoleAdmin, "", http.StatusNoContent},
		{"staff cannot delete session", http.MethodDelete, "/sessions/"+sessionID, models.RoleStaff, "", http.StatusForbidden},
		{"staff cannot create medication", http.MethodPost, "/medications", models.RoleStaff, `{"name":"X"}`, http.StatusForbidden},
		{"guest cannot record collection", http.MethodPost, "/medications/prescriptions", models.RoleGuest, `{}`, http.StatusForbidden},
		{"prescription list is not a medication id", http.MethodGet, "/medications/prescriptions/all", models.RoleGuest, "", http.StatusOK},
		{"staff registers user", http.MethodPost, "/auth/register", models.RoleStaff, `{"email":"n@care.test"}`, http.StatusForbidden},
		{"guest cannot export", http.MethodGet, "/reports/export/patients", models.RoleGuest, "", http.StatusForbidden},
		{"malformed id is rejected", http.MethodGet, "/patients/not-a-uuid", models.RoleGuest, "", http.StatusBadRequest},
		{"users staff route wins over id", http.MethodGet, "/users/staff", models.RoleGuest, "", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(tc.method, tc.path, string(tc.role), tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	assert.Equal(t, []string{deletedProgramID}, f.programs.deleted)
	require.Len(t, f.patients.created, 1)
	assert.Equal(t, "Alice", f.patients.created[0].Name)
}

func TestRoutesDuplicateCollection(t *testing.T) {
	f := newRouteFixture()
	f.prescriptions.createErr = appErrors.DuplicateCollection("weekly")

	rec := f.do(http.MethodPost, "/medications/prescriptions", string(models.RoleStaff),
		`{"medication_id":"m-1","patient_id":"p-1","date_collected":"2024-10-20","next_due_date":"2024-10-27"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DUPLICATE_COLLECTION", body.Error.Code)
	assert.Contains(t, body.Error.Message, "Frequency: weekly")
}

func TestRoutesSweepsReportCounts(t *testing.T) {
	f := newRouteFixture()

	rec := f.do(http.MethodPost, "/sessions/mark-missed", string(models.RoleStaff), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"updated":4}}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/medications/prescriptions/update-overdue", string(models.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"updated":2}}`, rec.Body.String())
}

func TestRoutesSessionFilters(t *testing.T) {
	f := newRouteFixture()

	rec := f.do(http.MethodGet, "/sessions?programId="+programID+"&status=attended&startDate=2024-10-01&endDate=2024-10-31&page=2&limit=5", string(models.RoleGuest), "")
	require.Equal(t, http.StatusOK, rec.Code)

	filter := f.sessions.lastFilter
	assert.Equal(t, programID, filter.ProgramID)
	require.NotNil(t, filter.Status)
	assert.Equal(t, models.SessionAttended, *filter.Status)
	require.NotNil(t, filter.StartDate)
	assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), *filter.StartDate)
	require.NotNil(t, filter.EndDate)
	assert.Equal(t, 2, filter.Page)
	assert.Equal(t, 5, filter.PageSize)

	rec = f.do(http.MethodGet, "/sessions?startDate=yesterday", string(models.RoleGuest), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoutesExportAttachment(t *testing.T) {
	f := newRouteFixture()

	rec := f.do(http.MethodGet, "/reports/export/sessions?format=csv", string(models.RoleStaff), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sessions-2024-10-20.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Name\n", rec.Body.String())
}
