package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 全部业务接口
type Handlers struct {
	Analytics *AnalyticsHandler
	Schedules *ScheduleHandler
	Conflicts *ConflictHandler
	Calendar  *CalendarHandler
}

// RegisterRoutes 注册业务路由 + /metrics + /healthz
func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := r.Group("/api")
	g.POST("/analytics/optimal-times", h.Analytics.AnalyzeOptimalTimes)
	g.GET("/analytics/optimal-times", h.Analytics.ListOptimalTimes)

	g.POST("/schedules/bulk", h.Schedules.CreateBulkSchedule)
	g.POST("/schedules/recurring", h.Schedules.CreateRecurringSchedule)

	g.POST("/conflicts/detect", h.Conflicts.DetectConflicts)
	g.GET("/conflicts", h.Conflicts.ListConflicts)

	g.POST("/calendar/events", h.Calendar.CreateEvent)
	g.GET("/calendar/events", h.Calendar.ListEvents)
	g.PATCH("/calendar/events/:id/move", h.Calendar.MoveEvent)
	g.POST("/calendar/events/:id/cancel", h.Calendar.CancelEvent)
}
