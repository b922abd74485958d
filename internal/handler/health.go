package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"wallet-session/internal/handler/response"
	"wallet-session/pkg/errno"

	"github.com/gin-gonic/gin"
)

const (
	ServiceName = "auth-server"
	Version     = "1.0.0"

	probeTimeout = 2 * time.Second
)

// Probe 检查一个外部依赖 (Redis, Postgres) 是否可用
type Probe func(ctx context.Context) error

// HealthCheck godoc
// @Summary Check system health
// @Description Reports the server and its dependencies. Any failing dependency turns the status DOWN with HTTP 503.
// @Tags system
// @Produce  json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /health [get]
func HealthCheck(probes map[string]Probe) gin.HandlerFunc {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
		defer cancel()

		status := "UP"
		components := gin.H{}
		for _, name := range names {
			if err := probes[name](ctx); err != nil {
				status = "DOWN"
				components[name] = gin.H{"status": "DOWN", "error": err.Error()}
				continue
			}
			components[name] = gin.H{"status": "UP"}
		}

		data := gin.H{
			"status":     status,
			"version":    Version,
			"service":    ServiceName,
			"components": components,
		}
		if status == "UP" {
			response.Success(c, data)
			return
		}
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code:    errno.ErrDependency.Code,
			Message: errno.ErrDependency.Message,
			Data:    data,
		})
	}
}
