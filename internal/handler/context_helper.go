package handler

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

// bindURI binds and validates path parameters. A path that does not fit
// the expected shape is answered as an unknown route.
func bindURI(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindUri(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "no such resource"))
		return false
	}
	return true
}
