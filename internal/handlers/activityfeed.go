package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/sse"
)

type ActivityFeedHandler struct {
	log *logger.Logger
	hub *sse.FeedHub
}

func NewActivityFeedHandler(log *logger.Logger, hub *sse.FeedHub) *ActivityFeedHandler {
	return &ActivityFeedHandler{
		log: log.With("handler", "ActivityFeedHandler"),
		hub: hub,
	}
}

// Stream subscribes the caller to one or more client-record feeds
// (?client_id=a,b) and streams activity entries as server-sent events.
func (h *ActivityFeedHandler) Stream(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("client_id"))
	if raw == "" {
		RespondError(c, http.StatusBadRequest, "missing_client_id", nil)
		return
	}

	var channels []string
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_client_id", err)
			return
		}
		channels = append(channels, sse.ClientChannel(id))
	}

	sub := h.hub.NewSubscriber()
	for _, ch := range channels {
		h.hub.AddChannel(sub, ch)
	}
	defer h.hub.CloseSubscriber(sub)

	h.hub.ServeHTTP(c.Writer, c.Request, sub)
}
