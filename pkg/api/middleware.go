// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tavari-hq/admix/pkg/log"
	"github.com/tavari-hq/admix/pkg/metric"
)

// metricsMiddleware counts every processed request by method and
// status.
func metricsMiddleware(m *metric.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.RequestsProcessed.WithLabelValues(
			c.Request.Method,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}

// requestLogger logs one line per request, errors at warn.
func requestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if status >= 500 {
			logger.Error("request failed", fields...)
		} else if status >= 400 {
			logger.Warn("request rejected", fields...)
		} else {
			logger.Debug("request served", fields...)
		}
	}
}
