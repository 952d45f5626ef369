package api

import (
	"net/http"

	"SocialScheduler/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CalendarHandler 日历接口
type CalendarHandler struct {
	calendar *service.CalendarService
	logger   *logrus.Logger
}

// NewCalendarHandler 创建 CalendarHandler
func NewCalendarHandler(calendar *service.CalendarService, logger *logrus.Logger) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, logger: logger}
}

// CreateEvent POST /api/calendar/events
func (h *CalendarHandler) CreateEvent(c *gin.Context) {
	var req service.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	view, err := h.calendar.CreateCalendarEvent(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "CreateEvent", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// ListEvents GET /api/calendar/events?organization_id=org1&start=...&end=...&timezone=Asia/Shanghai&types=custom,post_scheduled
func (h *CalendarHandler) ListEvents(c *gin.Context) {
	start, err := requiredTime("start", c.Query("start"))
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := requiredTime("end", c.Query("end"))
	if err != nil {
		badRequest(c, err)
		return
	}
	views, err := h.calendar.GetCalendarEvents(c.Request.Context(), service.EventQuery{
		OrganizationID: c.Query("organization_id"),
		Start:          start,
		End:            end,
		Timezone:       c.Query("timezone"),
		Types:          splitList(c.Query("types")),
	})
	if err != nil {
		respondError(c, h.logger, "ListEvents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": views})
}

// MoveEvent 拖拽改期 PATCH /api/calendar/events/:id/move
func (h *CalendarHandler) MoveEvent(c *gin.Context) {
	id, err := pathID(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	var req service.MoveEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.EventID = id
	result, err := h.calendar.UpdateCalendarEventDragDrop(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "MoveEvent", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelEvent POST /api/calendar/events/:id/cancel
func (h *CalendarHandler) CancelEvent(c *gin.Context) {
	id, err := pathID(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.calendar.CancelCalendarEvent(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "CancelEvent", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
