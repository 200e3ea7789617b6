package api

import (
	"github.com/gin-gonic/gin"

	"github.com/marketpulse/marketpulse/internal/scheduler"
)

// SchedulerHandler exposes scheduler state and manual refresh
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(s *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s}
}

// GetStats returns scheduler counters and configuration
func (h *SchedulerHandler) GetStats(c *gin.Context) {
	SuccessResponse(c, gin.H{
		"running": h.scheduler.IsRunning(),
		"symbols": h.scheduler.Symbols(),
		"stats":   h.scheduler.GetStats(),
	})
}

// TriggerRefresh runs one refresh cycle immediately and returns its outcome
func (h *SchedulerHandler) TriggerRefresh(c *gin.Context) {
	run := h.scheduler.RefreshNow(c.Request.Context())
	SuccessResponse(c, run)
}
