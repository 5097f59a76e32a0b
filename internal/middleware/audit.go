package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/asterism/pkg/middleware/requestid"
)

// Audit records who looked at student work. Entries are written for
// successful requests only.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	audit := logger.Named("audit")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}
		audit.Info(action,
			zap.String("username", Username(c)),
			zap.String("course", c.Param("course")),
			zap.String("section", c.Param("section")),
			zap.String("exercise", c.Param("exercise")),
			zap.String("file", c.Param("file")),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", requestid.Value(c)),
		)
	}
}
