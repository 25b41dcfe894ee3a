package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	ctx := c.Request.Context()

	if err := h.Store.Ping(ctx); err != nil {
		zap.L().Error("Database health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
		return
	}

	redisStatus := "disabled"
	if h.Redis != nil {
		redisStatus = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			zap.L().Warn("Redis health check failed", zap.Error(err))
			redisStatus = "unreachable"
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok", "redis": redisStatus})
}
