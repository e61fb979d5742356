package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger зависимость, состояние которой проверяет health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler предоставляет endpoint для проверки здоровья сервиса.
type HealthHandler struct {
	checks  map[string]Pinger
	clients func() int
}

// NewHealthHandler создаёт новый health handler. clients может быть nil.
func NewHealthHandler(checks map[string]Pinger, clients func() int) *HealthHandler {
	return &HealthHandler{checks: checks, clients: clients}
}

// HealthResponse представляет ответ health check.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Clients   int               `json:"wsClients"`
}

// Health обрабатывает GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	checks := make(map[string]string, len(h.checks))
	status := "healthy"

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	for name, pinger := range h.checks {
		if err := pinger.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
	}
	if h.clients != nil {
		resp.Clients = h.clients()
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, resp)
}
