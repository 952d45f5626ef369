package api

import (
	"net/http"

	"SocialScheduler/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConflictHandler 冲突检测与查询接口
type ConflictHandler struct {
	conflicts *service.ConflictService
	logger    *logrus.Logger
}

// NewConflictHandler 创建 ConflictHandler
func NewConflictHandler(conflicts *service.ConflictService, logger *logrus.Logger) *ConflictHandler {
	return &ConflictHandler{conflicts: conflicts, logger: logger}
}

// DetectConflicts POST /api/conflicts/detect
func (h *ConflictHandler) DetectConflicts(c *gin.Context) {
	var req service.DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.conflicts.Detect(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "DetectConflicts", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListConflicts GET /api/conflicts?organization_id=org1&status=ACTIVE&start=...&end=...
func (h *ConflictHandler) ListConflicts(c *gin.Context) {
	start, err := queryTime("start", c.Query("start"))
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := queryTime("end", c.Query("end"))
	if err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.conflicts.ListConflicts(c.Request.Context(), service.ListConflictsRequest{
		OrganizationID: c.Query("organization_id"),
		Status:         c.Query("status"),
		Start:          start,
		End:            end,
	})
	if err != nil {
		respondError(c, h.logger, "ListConflicts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}
