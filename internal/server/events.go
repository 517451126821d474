package server

import (
	"github.com/gin-gonic/gin"
)

// StreamUsageEvents streams quota threshold crossings for a workspace as
// server-sent events. The hub's replay buffer is flushed first so a client
// that reconnects still sees recent crossings.
func (s *Server) StreamUsageEvents(c *gin.Context) {
	workspaceID := c.Param("workspace_id")

	sub, replay, err := s.events.Subscribe(workspaceID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")

	for _, event := range replay {
		c.SSEvent(event.Type, event)
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			c.SSEvent(event.Type, event)
			c.Writer.Flush()
		}
	}
}
