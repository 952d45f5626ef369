package api

import (
	"net/http"

	"SocialScheduler/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AnalyticsHandler 最佳时段分析接口
type AnalyticsHandler struct {
	analyzer *service.AnalyzerService
	logger   *logrus.Logger
}

// NewAnalyticsHandler 创建 AnalyticsHandler
func NewAnalyticsHandler(analyzer *service.AnalyzerService, logger *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{analyzer: analyzer, logger: logger}
}

// AnalyzeOptimalTimes 重新计算并返回各平台时段评分
// POST /api/analytics/optimal-times
func (h *AnalyticsHandler) AnalyzeOptimalTimes(c *gin.Context) {
	var req service.MultiAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.analyzer.AnalyzePlatforms(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "AnalyzeOptimalTimes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organization_id": req.OrganizationID, "platforms": result})
}

// ListOptimalTimes 读取已存的时段评分
// GET /api/analytics/optimal-times?organization_id=org1&platform=twitter&timezone=America/New_York&limit=10
func (h *AnalyticsHandler) ListOptimalTimes(c *gin.Context) {
	limit, err := queryLimit(c.Query("limit"), 20)
	if err != nil {
		badRequest(c, err)
		return
	}
	scores, err := h.analyzer.TopSlots(c.Request.Context(), c.Query("organization_id"), c.Query("platform"), c.Query("timezone"), limit)
	if err != nil {
		respondError(c, h.logger, "ListOptimalTimes", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": scores})
}
