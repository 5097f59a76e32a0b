package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

type staffChecker interface {
	IsStaff(ctx context.Context, course, username string) (bool, error)
}

// StaffOnly admits only users listed as staff of the :course path parameter.
// It must run after Session.
func StaffOnly(staff staffChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := Username(c)
		if username == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		ok, err := staff.IsStaff(c.Request.Context(), c.Param("course"), username)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "staff only"))
			c.Abort()
			return
		}
		c.Next()
	}
}
