package middleware

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/asterism/internal/models"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

// ContextUsernameKey is the gin context key holding the authenticated username.
const ContextUsernameKey = "username"

type sessionValidator interface {
	Validate(token string) (*models.SessionClaims, error)
}

// SessionOptions configures the browser session middleware.
type SessionOptions struct {
	CookieName string
	// LoginURL receives unauthenticated GET requests with a return_to query.
	// When empty they get 401 instead.
	LoginURL string
}

// Session requires a valid session cookie. Unauthenticated POSTs always get
// 401; other methods are redirected to the login page when one is set.
func Session(sessions sessionValidator, opts SessionOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if username, ok := readSession(c, sessions, opts.CookieName); ok {
			c.Set(ContextUsernameKey, username)
			c.Next()
			return
		}

		if c.Request.Method == http.MethodPost || opts.LoginURL == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required"))
			c.Abort()
			return
		}
		target := opts.LoginURL + "?return_to=" + url.QueryEscape(c.Request.URL.RequestURI())
		c.Redirect(http.StatusFound, target)
		c.Abort()
	}
}

// OptionalSession attaches the username when a valid cookie is present but
// does not block.
func OptionalSession(sessions sessionValidator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if username, ok := readSession(c, sessions, cookieName); ok {
			c.Set(ContextUsernameKey, username)
		}
		c.Next()
	}
}

// Username returns the authenticated username stored on c, if any.
func Username(c *gin.Context) string {
	return c.GetString(ContextUsernameKey)
}

func readSession(c *gin.Context, sessions sessionValidator, cookieName string) (string, bool) {
	raw, err := c.Cookie(cookieName)
	if err != nil || raw == "" {
		return "", false
	}
	claims, err := sessions.Validate(raw)
	if err != nil {
		return "", false
	}
	return claims.Username, true
}
