package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

const loggerKey = "logger"

// LoggerMiddleware stores a request-scoped logger carrying the request id.
// It must run after RequestIDMiddleware.
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		l := logger
		if reqID := c.GetString(requestIDKey); reqID != "" {
			l = logger.With("request_id", reqID)
		}
		c.Set(loggerKey, l)
		c.Next()
	}
}

// LoggerFrom returns the request logger or slog.Default when none is set.
func LoggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// AccessLogMiddleware writes one line per request once the chain finished.
// Rejections are logged at warn with the outcome, never the credential.
func AccessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if route := c.FullPath(); route != "" {
			attrs = append(attrs, "route", route)
		}
		if token, ok := TokenFromContext(c); ok {
			if sub := token.Subject(); sub != "" {
				attrs = append(attrs, "sub", sub)
			}
		}

		l := LoggerFrom(c)
		switch {
		case status >= 500:
			l.Error("request", attrs...)
		case status == 401 || status == 403 || status == 429:
			l.Warn("request rejected", attrs...)
		default:
			l.Info("request", attrs...)
		}
	}
}
