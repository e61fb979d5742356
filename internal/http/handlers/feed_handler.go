package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ignatzorin/campus-complaints-backend/internal/http/handlers/common"
	"github.com/ignatzorin/campus-complaints-backend/internal/http/response"
	"github.com/ignatzorin/campus-complaints-backend/internal/logger"
	"github.com/ignatzorin/campus-complaints-backend/internal/service"
	"github.com/ignatzorin/campus-complaints-backend/internal/ws"
)

// FeedHandler отдаёт ленту жалоб кампуса по HTTP и WebSocket.
type FeedHandler struct {
	feeds        *service.FeedService
	hub          *ws.Hub
	tokenManager *service.TokenManager
	upgrader     websocket.Upgrader
}

// NewFeedHandler создаёт новый хэндлер.
func NewFeedHandler(feeds *service.FeedService, hub *ws.Hub, tokens *service.TokenManager, checkOrigin func(r *http.Request) bool) *FeedHandler {
	return &FeedHandler{
		feeds:        feeds,
		hub:          hub,
		tokenManager: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
}

// ListReports обслуживает GET /api/campuses/:campusId/reports.
func (h *FeedHandler) ListReports(c *gin.Context) {
	campusID, err := common.CampusID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	query, err := parseFeedQuery(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	view, err := h.feeds.Query(c.Request.Context(), campusID, query)
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.Page(c, view)
}

// Stream обслуживает GET /api/campuses/:campusId/reports/ws?token=...
// Токен необязателен: без него доступна только область all.
func (h *FeedHandler) Stream(c *gin.Context) {
	campusID, err := common.CampusID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	query, err := parseFeedQuery(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if rawToken := c.Query("token"); rawToken != "" {
		actor, err := h.tokenManager.ParseAccess(rawToken)
		if err != nil {
			response.Unauthorized(c, "невалидный access токен")
			return
		}
		query.Actor = actor
	}

	// Лента открывается до upgrade, чтобы ошибки параметров ушли обычным HTTP ответом.
	f, err := h.feeds.Open(c.Request.Context(), campusID, query)
	if err != nil {
		_ = c.Error(err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		f.Close()
		logger.ForCampus(campusID).WithError(err).Warn("ws: upgrade не удался")
		return
	}

	client := ws.NewClient(conn, h.hub, campusID, f)
	h.hub.Register(client)

	client.Run(c.Request.Context())
}

// ResolveBeacon обслуживает GET /api/campuses/:campusId/beacons/:name.
func (h *FeedHandler) ResolveBeacon(c *gin.Context) {
	campusID, err := common.CampusID(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	area, err := h.feeds.ResolveBeacon(c.Request.Context(), campusID, c.Param("name"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	response.Success(c, gin.H{"campusId": campusID, "beacon": c.Param("name"), "area": area})
}
