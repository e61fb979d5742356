package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/campus-complaints-backend/internal/http/response"
	"github.com/ignatzorin/campus-complaints-backend/internal/logger"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// ErrorHandler обрабатывает ошибки, добавленные хэндлерами через c.Error.
// Ошибки приложения отдаются с их кодом, остальные маскируются.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Проверяем, не был ли уже отправлен ответ
		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		fields := logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"code":   apperror.CodeOf(err),
		}
		if campusID := c.GetString(ContextCampusKey); campusID != "" {
			fields["campus_id"] = campusID
		}

		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus < 500 {
			logger.Log.WithFields(fields).WithError(err).Debug("request error")
		} else {
			logger.Log.WithFields(fields).WithError(err).Error("request error")
		}

		response.Error(c, err)
	}
}
