package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/campus-complaints-backend/internal/feed"
	"github.com/ignatzorin/campus-complaints-backend/internal/http/handlers/common"
	"github.com/ignatzorin/campus-complaints-backend/internal/http/middleware"
	"github.com/ignatzorin/campus-complaints-backend/internal/service"
)

// maxPageSize верхняя граница page_size для HTTP запросов.
const maxPageSize = 100

// parseFeedQuery собирает запрос ленты из query параметров.
func parseFeedQuery(c *gin.Context) (service.Query, error) {
	actor, _ := middleware.ActorFrom(c)

	var scope feed.ViewScope
	if raw := c.Query("scope"); raw != "" {
		parsed, err := feed.ParseViewScope(raw)
		if err != nil {
			return service.Query{}, err
		}
		scope = parsed
	}

	page, err := common.ParseIntQuery(c, "page", 1)
	if err != nil {
		return service.Query{}, err
	}
	pageSize, err := common.ParseIntQuery(c, "page_size", 0)
	if err != nil {
		return service.Query{}, err
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	return service.Query{
		Actor: actor,
		Scope: scope,
		Sort: feed.Sort{
			Key:       feed.SortKey(c.Query("sort")),
			Direction: feed.ParseDirection(c.Query("dir")),
		},
		Filter: feed.FilterFromLists(
			common.QueryList(c, "status"),
			common.QueryList(c, "area"),
			common.QueryList(c, "category"),
		),
		Beacon:   c.Query("beacon"),
		Page:     page,
		PageSize: pageSize,
	}, nil
}
