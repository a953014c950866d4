package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	receiptdomain "github.com/kassaflow/kassaflow/internal/receipt/domain"
)

func (s *Server) listReceipts(c *gin.Context) {
	storeID, ok := queryID(c, "store_id")
	if !ok {
		AbortWithError(c, fmt.Errorf("%w: malformed store_id", ErrInvalidRequest))
		return
	}

	receipts, err := s.receipts.List(c.Request.Context(), s.db, receiptdomain.ListFilter{
		StoreID:   storeID,
		PaymentID: strings.TrimSpace(c.Query("payment_id")),
		Status:    receiptdomain.Status(strings.TrimSpace(c.Query("status"))),
		Limit:     queryLimit(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}
