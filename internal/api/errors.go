package api

import (
	"errors"
	"net/http"

	"SocialScheduler/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusOf 服务层错误 -> HTTP 状态码
func statusOf(err error) int {
	var (
		validation *service.ValidationError
		notFound   *service.NotFoundError
		busy       *service.BusyError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &busy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *logrus.Logger, op string, err error) {
	status := statusOf(err)
	entry := logger.WithError(err).WithField("path", c.FullPath())
	if status >= http.StatusInternalServerError {
		entry.Error(op + " failed")
	} else {
		entry.Warn(op + " rejected")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}
