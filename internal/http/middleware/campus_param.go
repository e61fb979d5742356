package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/campus-complaints-backend/internal/http/response"
)

var campusIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// CampusParam проверяет идентификатор кампуса в пути и кладёт его в контекст.
// Использование: router.GET("/campuses/:campusId/reports", CampusParam("campusId"), handler.List)
func CampusParam(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		campusID := c.Param(paramName)
		if campusID == "" {
			response.BadRequest(c, "параметр "+paramName+" обязателен")
			c.Abort()
			return
		}
		if !campusIDPattern.MatchString(campusID) {
			response.BadRequest(c, "параметр "+paramName+" содержит недопустимые символы")
			c.Abort()
			return
		}

		c.Set(ContextCampusKey, campusID)
		c.Next()
	}
}
