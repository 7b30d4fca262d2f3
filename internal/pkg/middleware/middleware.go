// Package middleware provides the HTTP middleware used by the papercite
// server.
package middleware

import (
	"math/rand"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"
)

// HeaderXRequestID is the request ID header.
const HeaderXRequestID = "X-Request-ID"

// ContextKeyRequestID is the gin context key holding the request ID.
const ContextKeyRequestID = "request_id"

// RequestID assigns every request a ULID unless the client supplied one,
// and echoes it in the response header.
func RequestID() gin.HandlerFunc {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)

	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
		}

		c.Set(ContextKeyRequestID, requestID)
		c.Writer.Header().Set(HeaderXRequestID, requestID)
		c.Next()
	}
}

// GetRequestID returns the request ID stored by the RequestID middleware.
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// AccessLog logs one structured line per request, skipping the given
// paths (health and metrics probes are noisy).
func AccessLog(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", GetRequestID(c),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Errorw("http request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warnw("http request", fields...)
		default:
			logger.Infow("http request", fields...)
		}
	}
}

// Recovery converts panics into 500 responses and logs the panic value.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"request_id", GetRequestID(c),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    500,
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
