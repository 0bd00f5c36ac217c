package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/carepath-api/internal/middleware"
	"github.com/noah-isme/carepath-api/internal/models"
	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
	"github.com/noah-isme/carepath-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.CurrentUser(c)
}

// pageParams reads page and limit, leaving defaults to the service.
func pageParams(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, size
}

// bindJSON decodes the body into dest and writes a validation error on failure.
func bindJSON(c *gin.Context, dest interface{}, what string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid "+what+" payload"))
		return false
	}
	return true
}

func optionalQuery(c *gin.Context, key string) string {
	return strings.TrimSpace(c.Query(key))
}
