/*
 * Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
 * Copyright 2024-2025 The StrataSTOR Authors and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stratastor/logger"
	"github.com/stratastor/pdud/internal/constants"
	"github.com/stratastor/pdud/pkg/errors"
)

const requestIDHeader = "X-Request-Id"

// LoggerMiddleware logs one line per request, tagged with a request id that
// is taken from X-Request-Id or generated.
func LoggerMiddleware(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Probes are too frequent to log
		if path == constants.HealthPath || path == constants.MetricsPath {
			c.Next()
			return
		}

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("request_id", requestID)

		c.Next()

		attrs := []slog.Attr{
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.Int("bytes_out", c.Writer.Size()),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
		}

		if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
			attrs = append(attrs, slog.String("forwarded_for", xff))
		}

		for _, err := range c.Errors {
			var de *errors.DaemonError
			if errors.As(err.Err, &de) {
				attrs = append(attrs,
					slog.Int("error_code", int(de.Code)),
					slog.String("error_domain", string(de.Domain)),
					slog.String("error_message", de.Message),
					slog.String("error_details", de.Details),
				)
				for k, v := range de.Metadata {
					attrs = append(attrs, slog.String("error_metadata_"+k, v))
				}
			} else {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			l.Error("Server Error", logAttrs(attrs)...)
		case status >= 400:
			l.Warn("Client Error", logAttrs(attrs)...)
		default:
			l.Info("Request", logAttrs(attrs)...)
		}
	}
}

// Helper to convert slog.Attr slice to interface slice
func logAttrs(attrs []slog.Attr) []interface{} {
	args := make([]interface{}, len(attrs)*2)
	for i, attr := range attrs {
		args[i*2] = attr.Key
		args[i*2+1] = attr.Value.Any()
	}
	return args
}
