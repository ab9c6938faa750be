package middleware

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/storyfeed/pkg/logger"
	"github.com/d60-Lab/storyfeed/pkg/response"
)

// Recovery panic 恢复,上报 sentry(未配置 DSN 时 Recover 为 no-op)
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		sentry.CurrentHub().Recover(err)
		logger.Error("panic recovered", zap.Any("error", err), zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Code:    http.StatusInternalServerError,
			Message: "internal error",
		})
	})
}
