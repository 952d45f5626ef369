package api

import (
	"net/http"

	"SocialScheduler/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ScheduleHandler 排期生成接口
type ScheduleHandler struct {
	schedules *service.ScheduleService
	logger    *logrus.Logger
}

// NewScheduleHandler 创建 ScheduleHandler
func NewScheduleHandler(schedules *service.ScheduleService, logger *logrus.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, logger: logger}
}

// CreateBulkSchedule POST /api/schedules/bulk
func (h *ScheduleHandler) CreateBulkSchedule(c *gin.Context) {
	var req service.BulkScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := h.schedules.CreateBulkSchedule(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "CreateBulkSchedule", err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// CreateRecurringSchedule POST /api/schedules/recurring
func (h *ScheduleHandler) CreateRecurringSchedule(c *gin.Context) {
	var req service.RecurringScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := h.schedules.CreateRecurringSchedule(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "CreateRecurringSchedule", err)
		return
	}
	c.JSON(http.StatusCreated, report)
}
