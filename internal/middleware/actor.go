package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/requestdata"
)

const actorHeader = "X-Actor"

type ActorMiddleware struct {
	log *logger.Logger
}

func NewActorMiddleware(log *logger.Logger) *ActorMiddleware {
	return &ActorMiddleware{log: log.With("middleware", "ActorMiddleware")}
}

// WithActor records who is acting from the X-Actor header. Missing or blank
// actors are allowed; downstream writes fall back to the System sentinel.
func (m *ActorMiddleware) WithActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(actorHeader))
		rd := &requestdata.RequestData{Actor: actor}
		ctx := requestdata.WithRequestData(c.Request.Context(), rd)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
