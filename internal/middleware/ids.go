package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appErrors "github.com/noah-isme/carepath-api/pkg/errors"
	"github.com/noah-isme/carepath-api/pkg/response"
)

var (
	idParams  = []string{"id", "programId"}
	idQueries = []string{"patientId", "programId", "medicationId"}
)

// ValidateIDs rejects requests whose id path parameters or id query filters are
// not UUIDs, so malformed ids never reach the database.
func ValidateIDs() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range idParams {
			if raw := c.Param(name); raw != "" && !isUUID(raw) {
				rejectID(c, name)
				return
			}
		}
		for _, name := range idQueries {
			if raw := c.Query(name); raw != "" && !isUUID(raw) {
				rejectID(c, name)
				return
			}
		}
		c.Next()
	}
}

func isUUID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}

func rejectID(c *gin.Context, name string) {
	response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" must be a valid UUID"))
	c.Abort()
}
