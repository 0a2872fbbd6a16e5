package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Служебные пути не попадают в HTTP метрики
var skipPaths = map[string]bool{
	"/metrics": true,
	"/health":  true,
}

// HTTPMetricsMiddleware собирает метрики для HTTP запросов
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		method := c.Request.Method

		// Обработка запроса
		c.Next()

		// Собираем метрики
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	}
}
