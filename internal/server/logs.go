package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	auditlogdomain "github.com/kassaflow/kassaflow/internal/auditlog/domain"
)

func (s *Server) listLogs(c *gin.Context) {
	storeID, ok := queryID(c, "store_id")
	if !ok {
		AbortWithError(c, fmt.Errorf("%w: malformed store_id", ErrInvalidRequest))
		return
	}

	entries, err := s.auditSvc.List(c.Request.Context(), auditlogdomain.ListFilter{
		StoreID: storeID,
		Level:   strings.TrimSpace(c.Query("level")),
		Event:   strings.TrimSpace(c.Query("event")),
		Limit:   queryLimit(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}
