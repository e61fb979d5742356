package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PaginatedResponse struct {
	Success    bool            `json:"success"`
	Items      interface{}     `json:"data"`
	Pagination Pagination      `json:"pagination"`
	Feed       FeedMeta        `json:"feed"`
	Status     feed.StatusView `json:"status"`
}

type Pagination struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// FeedMeta параметры, с которыми построена страница.
type FeedMeta struct {
	CampusID string          `json:"campusId"`
	Total    int             `json:"total"`
	Scope    feed.ViewScope  `json:"scope"`
	Sort     feed.Sort       `json:"sort"`
	Filter   feed.FilterView `json:"filter"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// Page отдаёт страницу ленты. pagination.total считает жалобы после
// фильтра и области, feed.total весь неудалённый набор кампуса.
func Page(c *gin.Context, view feed.View) {
	c.JSON(http.StatusOK, PaginatedResponse{
		Success: true,
		Items:   view.Items,
		Pagination: Pagination{
			Total:      view.Matched,
			Page:       view.Page,
			PageSize:   view.PageSize,
			TotalPages: view.TotalPages,
			HasMore:    view.Page < view.TotalPages,
		},
		Feed: FeedMeta{
			CampusID: view.CampusID,
			Total:    view.Total,
			Scope:    view.Scope,
			Sort:     view.Sort,
			Filter:   view.Filter,
		},
		Status: view.Status,
	})
}

func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, Response{
			Success: false,
			Error: &ErrorInfo{
				Code:    string(appErr.Code),
				Message: appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    string(apperror.ErrCodeInternal),
			Message: "внутренняя ошибка сервера",
		},
	})
}

func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    string(apperror.ErrCodeBadRequest),
			Message: message,
		},
	})
}

func Unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    string(apperror.ErrCodeUnauthorized),
			Message: message,
		},
	})
}
