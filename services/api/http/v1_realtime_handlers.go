package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tombeihofer23/Projekt/services/internal/live"
)

// handleV1RealtimeFetch fetches the latest readings now and stores the new ones
// POST /api/v1/realtime/fetch
func (s *Server) handleV1RealtimeFetch(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	res, err := s.poller.PollOnce(ctx)
	if err != nil {
		s.logger.Warnw("manual fetch failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	s.hub.Publish(live.TypePoll, live.PollPayload(res))

	c.JSON(http.StatusOK, gin.H{
		"data": res,
		"meta": gin.H{
			"box_id":      s.profile.BoxID,
			"subscribers": s.hub.ClientCount(),
		},
	})
}

// handleV1RealtimeWS upgrades to a websocket stream of inserted readings
// GET /api/v1/realtime/ws
func (s *Server) handleV1RealtimeWS(c *gin.Context) {
	live.NewHandler(s.hub, s.profile.BoxID).ServeHTTP(c.Writer, c.Request)
}
