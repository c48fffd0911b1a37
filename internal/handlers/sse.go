package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/requestdata"
	"github.com/yungbote/depositly-backend/internal/sse"
)

type SSEHandler struct {
	log *logger.Logger
	hub *sse.SSEHub
}

func NewSSEHandler(log *logger.Logger, hub *sse.SSEHub) *SSEHandler {
	return &SSEHandler{
		log: log.With("handler", "SSEHandler"),
		hub: hub,
	}
}

// GET /sse/stream
// Long-lived stream subscribed to the caller's own channel. The connection
// holds until the client disconnects.
func (h *SSEHandler) SSEStream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, apierr.Permission("unauthenticated"))
		return
	}
	client := h.hub.NewSSEClient(rd.Role, rd.ActorID)
	h.hub.AddChannel(client, sse.Channel(rd.Role, rd.ActorID))
	defer h.hub.CloseClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
