// Package logger builds the process zap logger and the gin access log.
package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/noah-isme/asterism/pkg/config"
	"github.com/noah-isme/asterism/pkg/middleware/requestid"
)

// usernameKey is the gin context key the auth middlewares fill in.
const usernameKey = "username"

// probePaths are polled by load balancers and scrapers and logged at debug.
var probePaths = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// New builds a logger from the ENV, LOG_LEVEL and LOG_FORMAT settings. An
// unknown level falls back to info.
func New(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Env == config.EnvProduction {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Encoding = "json"
	if cfg.Log.Format == "console" {
		zapCfg.Encoding = "console"
	}
	if cfg.Log.Level != "" {
		if err := zapCfg.Level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
	}
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", "asterism"), zap.String("env", cfg.Env)), nil
}

// GinMiddleware logs one line per request. Credentials in the path are
// masked, server errors log at error and client errors at warn. A WebSocket
// watch is logged once when it ends, with its whole lifetime as latency.
func GinMiddleware(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", redactedPath(c)),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if id := requestid.Value(c); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if user := c.GetString(usernameKey); user != "" {
			fields = append(fields, zap.String("username", user))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		msg := "http_request"
		if status < http.StatusBadRequest && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			msg = "ws_session"
		}
		switch {
		case status >= http.StatusInternalServerError:
			l.Error(msg, fields...)
		case status >= http.StatusBadRequest:
			l.Warn(msg, fields...)
		case isProbe(c.Request.URL.Path):
			l.Debug(msg, fields...)
		default:
			l.Info(msg, fields...)
		}
	}
}

func isProbe(path string) bool {
	_, ok := probePaths[path]
	return ok
}

func redactedPath(c *gin.Context) string {
	if c.Param("token") == "" && c.Param("signature") == "" {
		return c.Request.URL.Path
	}
	if route := c.FullPath(); route != "" {
		return route
	}
	return "[redacted]"
}
