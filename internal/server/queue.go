package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	auditlogdomain "github.com/kassaflow/kassaflow/internal/auditlog/domain"
	taskdomain "github.com/kassaflow/kassaflow/internal/task/domain"
)

func (s *Server) listQueue(c *gin.Context) {
	storeID, ok := queryID(c, "store_id")
	if !ok {
		AbortWithError(c, fmt.Errorf("%w: malformed store_id", ErrInvalidRequest))
		return
	}

	filter := taskdomain.ListFilter{
		StoreID: storeID,
		Limit:   queryLimit(c),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := taskdomain.Status(raw)
		filter.Status = &status
	}

	tasks, err := s.tasks.List(c.Request.Context(), s.db, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *Server) queueStats(c *gin.Context) {
	storeID, ok := queryID(c, "store_id")
	if !ok {
		AbortWithError(c, fmt.Errorf("%w: malformed store_id", ErrInvalidRequest))
		return
	}

	counts, err := s.tasks.CountByStatus(c.Request.Context(), s.db, storeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"counts": counts,
		"depth":  counts.Depth(),
	})
}

type retryTaskRequest struct {
	TaskID string `json:"task_id" binding:"required"`
}

// retryTask returns a parked or failed task to pending, immediately
// eligible. Used after re-authenticating a profile or fixing store config.
func (s *Server) retryTask(c *gin.Context) {
	var req retryTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	taskID, err := snowflake.ParseString(strings.TrimSpace(req.TaskID))
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: malformed task_id", ErrInvalidRequest))
		return
	}

	ctx := c.Request.Context()
	task, err := s.tasks.GetByID(ctx, s.db, taskID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.tasks.Requeue(ctx, s.db, task.ID, s.clock.Now()); err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditSvc.Log(ctx, auditlogdomain.LevelInfo, "task_requeued", "task manually returned to pending", &task.StoreID, map[string]any{
		"task_id":    task.ID.String(),
		"payment_id": task.PaymentID,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
