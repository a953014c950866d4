package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	eventdomain "github.com/kassaflow/kassaflow/internal/event/domain"
)

func (s *Server) listEvents(c *gin.Context) {
	storeID, ok := queryID(c, "store_id")
	if !ok {
		AbortWithError(c, fmt.Errorf("%w: malformed store_id", ErrInvalidRequest))
		return
	}
	dateFrom, ok := queryTime(c, "date_from")
	if !ok {
		AbortWithError(c, fmt.Errorf("%w: malformed date_from", ErrInvalidRequest))
		return
	}
	dateTo, ok := queryTime(c, "date_to")
	if !ok {
		AbortWithError(c, fmt.Errorf("%w: malformed date_to", ErrInvalidRequest))
		return
	}

	events, err := s.events.List(c.Request.Context(), s.db, eventdomain.ListFilter{
		StoreID:  storeID,
		DateFrom: dateFrom,
		DateTo:   dateTo,
		Limit:    queryLimit(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
