package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/upcycleai/internal/platform/logger"
	"github.com/yungbote/upcycleai/internal/realtime"
)

type RealtimeHandler struct {
	Log *logger.Logger
	Hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{Log: log.With("handler", "RealtimeHandler"), Hub: hub}
}

// GET /api/events?channels=profile,artifacts
// Without a channels query the client receives every channel.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	channels := realtime.AllChannels
	if raw := strings.TrimSpace(c.Query("channels")); raw != "" {
		channels = nil
		for _, ch := range strings.Split(raw, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				channels = append(channels, ch)
			}
		}
	}

	client := h.Hub.NewSSEClient()
	for _, ch := range channels {
		h.Hub.AddChannel(client, ch)
	}
	h.Log.Debug("SSE stream open", "client_id", client.ID, "channels", channels)

	h.Hub.ServeHTTP(c.Writer, c.Request, client)
	h.Hub.CloseClient(client)
}
