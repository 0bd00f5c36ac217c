package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carepath-api/internal/middleware"
	"github.com/noah-isme/carepath-api/internal/models"
)

// Handlers bundles every HTTP handler mounted by Register.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Patients    *PatientHandler
	Programs    *ProgramHandler
	Sessions    *SessionHandler
	Medications *MedicationHandler
	Reports     *ReportHandler
	Metrics     *MetricsHandler
}

// Register mounts the API on rg. authn must populate middleware.ContextUserKey.
func Register(rg *gin.RouterGroup, h Handlers, authn gin.HandlerFunc) {
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)

	rg.POST("/auth/login", h.Auth.Login)

	secured := rg.Group("")
	secured.Use(authn, middleware.ValidateIDs())

	secured.POST("/auth/register", adminOnly, h.Auth.Register)
	secured.GET("/auth/profile", h.Auth.Profile)

	users := secured.Group("/users")
	users.GET("", h.Users.List)
	users.GET("/staff", h.Users.Staff)
	users.GET("/:id", h.Users.Get)

	patients := secured.Group("/patients")
	patients.GET("", h.Patients.List)
	patients.GET("/:id", h.Patients.Get)
	patients.POST("", staff, h.Patients.Create)
	patients.PATCH("/:id", staff, h.Patients.Update)
	patients.DELETE("/:id", adminOnly, h.Patients.Delete)
	patients.POST("/:id/programs/:programId", staff, h.Patients.Enroll)
	patients.DELETE("/:id/programs/:programId", staff, h.Patients.Unenroll)

	programs := secured.Group("/programs")
	programs.GET("", h.Programs.List)
	programs.GET("/:id", h.Programs.Get)
	programs.POST("", adminOnly, h.Programs.Create)
	programs.PATCH("/:id", adminOnly, h.Programs.Update)
	programs.DELETE("/:id", adminOnly, h.Programs.Delete)

	sessions := secured.Group("/sessions")
	sessions.GET("", h.Sessions.List)
	sessions.GET("/:id", h.Sessions.Get)
	sessions.POST("", staff, h.Sessions.Create)
	sessions.POST("/mark-missed", staff, h.Sessions.MarkMissed)
	sessions.PATCH("/:id", staff, h.Sessions.Update)
	sessions.DELETE("/:id", adminOnly, h.Sessions.Delete)

	medications := secured.Group("/medications")
	medications.GET("", h.Medications.List)
	medications.POST("", adminOnly, h.Medications.Create)
	medications.POST("/prescriptions", staff, h.Medications.CreatePrescription)
	medications.GET("/prescriptions/all", h.Medications.ListPrescriptions)
	medications.POST("/prescriptions/update-overdue", staff, h.Medications.UpdateOverdue)
	medications.GET("/prescriptions/:id", h.Medications.GetPrescription)
	medications.PATCH("/prescriptions/:id/status", staff, h.Medications.UpdatePrescriptionStatus)
	medications.DELETE("/prescriptions/:id", staff, h.Medications.DeletePrescription)
	medications.GET("/:id", h.Medications.Get)
	medications.PATCH("/:id", adminOnly, h.Medications.Update)
	medications.DELETE("/:id", adminOnly, h.Medications.Delete)

	reports := secured.Group("/reports")
	reports.GET("/dashboard", h.Reports.Dashboard)
	reports.GET("/adherence", h.Reports.Adherence)
	reports.GET("/enrollments", h.Reports.Enrollments)
	reports.GET("/session-status", h.Reports.SessionStatus)
	reports.GET("/export/:dataset", staff, h.Reports.Export)

	if h.Metrics != nil {
		secured.GET("/system/metrics", adminOnly, h.Metrics.Summary)
	}
}
