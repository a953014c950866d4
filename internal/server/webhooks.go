package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		AbortWithError(c, fmt.Errorf("%w: empty webhook body", ErrInvalidRequest))
		return
	}

	event, err := s.ingestSvc.HandleWebhook(c.Request.Context(), c.Param("store_path"), body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"event_id": event.ID.String(),
	})
}
