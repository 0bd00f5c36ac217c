package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carepath-api/internal/models"
	"github.com/noah-isme/carepath-api/internal/service"
	"github.com/noah-isme/carepath-api/pkg/response"
)

type sessionService interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, req service.CreateSessionRequest) (*models.Session, error)
	Update(ctx context.Context, id string, req service.UpdateSessionRequest) (*models.Session, error)
	Delete(ctx context.Context, id string) error
	SweepMissed(ctx context.Context) (int, error)
}

// SessionHandler exposes program session endpoints.
type SessionHandler struct {
	sessions sessionService
}

func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List godoc
// @Summary List sessions
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param programId query string false "Program ID"
// @Param patientId query string false "Patient ID"
// @Param status query string false "attended, missed or canceled"
// @Param startDate query string false "First day (YYYY-MM-DD)"
// @Param endDate query string false "Last day (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	rng, err := service.ParseDateRange(c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.SessionFilter{
		ProgramID: optionalQuery(c, "programId"),
		PatientID: optionalQuery(c, "patientId"),
		StartDate: rng.Start,
		EndDate:   rng.End,
	}
	if status := optionalQuery(c, "status"); status != "" {
		s := models.SessionStatus(status)
		filter.Status = &s
	}
	filter.Page, filter.PageSize = pageParams(c)

	sessions, pagination, err := h.sessions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, pagination)
}

// Get godoc
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Create godoc
// @Summary Schedule session
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req service.CreateSessionRequest
	if !bindJSON(c, &req, "session") {
		return
	}
	session, err := h.sessions.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Update godoc
// @Summary Update session
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param payload body service.UpdateSessionRequest true "Session payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [patch]
func (h *SessionHandler) Update(c *gin.Context) {
	var req service.UpdateSessionRequest
	if !bindJSON(c, &req, "session") {
		return
	}
	session, err := h.sessions.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Delete godoc
// @Summary Delete session
// @Tags Sessions
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkMissed godoc
// @Summary Mark past unfinalized sessions as missed
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /sessions/mark-missed [post]
func (h *SessionHandler) MarkMissed(c *gin.Context) {
	updated, err := h.sessions.SweepMissed(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}
