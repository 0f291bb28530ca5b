package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	slogLoggerKey = "slogLogger"
	errorCodeKey  = "errorCode"
)

// SlogLoggerMiddleware 为每个请求准备带 correlation_id 的 logger，并在结束时输出一条访问日志。
func SlogLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		c.Set(slogLoggerKey, logger.With(
			slog.String("correlation_id", GetCorrelationID(c)),
			slog.String("method", c.Request.Method),
			slog.String("route", route),
		))

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes", c.Writer.Size()),
			slog.String("client_ip", c.ClientIP()),
		}
		if code, ok := c.Get(errorCodeKey); ok {
			attrs = append(attrs, slog.Any("error_code", code))
		}

		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		// 鉴权中间件可能替换了 logger（附加 org）。
		LoggerFromContext(c).LogAttrs(c.Request.Context(), level, "request completed", attrs...)
	}
}

// SetErrorCode records the business error code for the access log line.
func SetErrorCode(c *gin.Context, code int) {
	c.Set(errorCodeKey, code)
}

// LoggerFromContext 返回请求级 logger；不在请求链路中时退回 slog.Default()。
func LoggerFromContext(c *gin.Context) *slog.Logger {
	if logger, ok := c.Value(slogLoggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
