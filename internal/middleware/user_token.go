package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

type userTokenVerifier interface {
	VerifyUser(token string) (string, error)
}

// UserToken authenticates lightweight client requests by the :token path
// parameter. Every failure answers 403 without detail.
func UserToken(codec userTokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		username, err := codec.VerifyUser(c.Param("token"))
		if err != nil {
			logger.Debug("user token rejected", zap.String("path", c.FullPath()), zap.Error(err))
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Set(ContextUsernameKey, username)
		c.Next()
	}
}
