package common

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/campus-complaints-backend/internal/http/middleware"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// CampusID возвращает кампус, проверенный middleware.CampusParam.
func CampusID(c *gin.Context) (string, error) {
	campusID := c.GetString(middleware.ContextCampusKey)
	if campusID == "" {
		return "", apperror.ErrCampusRequired
	}
	return campusID, nil
}

// QueryList читает параметр, заданный несколько раз или через запятую.
// Пустые значения отбрасываются.
func QueryList(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ParseIntQuery читает целочисленный параметр. Отсутствующий параметр
// даёт fallback, некорректный возвращает ошибку валидации.
func ParseIntQuery(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.ErrCodeInvalidCriteria, "параметр "+key+" должен быть целым числом")
	}
	return parsed, nil
}
