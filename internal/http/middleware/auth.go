package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/campus-complaints-backend/internal/http/response"
	"github.com/ignatzorin/campus-complaints-backend/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextActorKey  = "actor"
	ContextCampusKey = "campusID"
)

// OptionalAuth пропускает анонимные запросы, но отклоняет невалидный токен.
// Без токена доступна только область all.
func OptionalAuth(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		actor, err := tokens.ParseAccess(raw)
		if err != nil {
			response.Unauthorized(c, "токен невалиден")
			return
		}

		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// ActorFrom возвращает участника из контекста. Для анонимного запроса
// возвращается пустой Actor.
func ActorFrom(c *gin.Context) (service.Actor, bool) {
	raw, exists := c.Get(ContextActorKey)
	if !exists {
		return service.Actor{}, false
	}
	actor, ok := raw.(service.Actor)
	return actor, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return raw, raw != ""
}
