package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carepath-api/internal/models"
	"github.com/noah-isme/carepath-api/internal/service"
	"github.com/noah-isme/carepath-api/pkg/response"
)

type programService interface {
	List(ctx context.Context, filter models.ProgramFilter) ([]models.ProgramView, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ProgramView, error)
	Create(ctx context.Context, req service.CreateProgramRequest) (*models.ProgramView, error)
	Update(ctx context.Context, id string, req service.UpdateProgramRequest) (*models.ProgramView, error)
	Delete(ctx context.Context, id string) error
}

// ProgramHandler exposes care program endpoints.
type ProgramHandler struct {
	programs programService
}

func NewProgramHandler(programs programService) *ProgramHandler {
	return &ProgramHandler{programs: programs}
}

// List godoc
// @Summary List programs
// @Tags Programs
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /programs [get]
func (h *ProgramHandler) List(c *gin.Context) {
	filter := models.ProgramFilter{Search: optionalQuery(c, "search")}
	filter.Page, filter.PageSize = pageParams(c)

	programs, pagination, err := h.programs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, pagination)
}

// Get godoc
// @Summary Get program
// @Tags Programs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /programs/{id} [get]
func (h *ProgramHandler) Get(c *gin.Context) {
	program, err := h.programs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Create godoc
// @Summary Create program
// @Tags Programs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateProgramRequest true "Program payload"
// @Success 201 {object} response.Envelope
// @Router /programs [post]
func (h *ProgramHandler) Create(c *gin.Context) {
	var req service.CreateProgramRequest
	if !bindJSON(c, &req, "program") {
		return
	}
	program, err := h.programs.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, program)
}

// Update godoc
// @Summary Update program
// @Tags Programs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Program ID"
// @Param payload body service.UpdateProgramRequest true "Program payload"
// @Success 200 {object} response.Envelope
// @Router /programs/{id} [patch]
func (h *ProgramHandler) Update(c *gin.Context) {
	var req service.UpdateProgramRequest
	if !bindJSON(c, &req, "program") {
		return
	}
	program, err := h.programs.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// Delete godoc
// @Summary Delete program
// @Tags Programs
// @Security BearerAuth
// @Param id path string true "Program ID"
// @Success 204
// @Router /programs/{id} [delete]
func (h *ProgramHandler) Delete(c *gin.Context) {
	if err := h.programs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
