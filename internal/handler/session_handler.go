package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/asterism/internal/dto"
	"github.com/noah-isme/asterism/pkg/response"
)

type sessionIssuer interface {
	Issue(username string) (string, time.Time, error)
}

// SessionHandler sets browser session cookies. It only backs the
// development login; production sessions come from the identity provider.
type SessionHandler struct {
	sessions   sessionIssuer
	cookieName string
	secure     bool
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(sessions sessionIssuer, cookieName string, secure bool) *SessionHandler {
	return &SessionHandler{sessions: sessions, cookieName: cookieName, secure: secure}
}

// DevLogin godoc
// @Summary Sign in as any user (development only)
// @Tags Session
// @Produce json
// @Param username path string true "Username"
// @Param return_to query string false "Local path to redirect to"
// @Success 200 {object} response.Envelope
// @Success 302
// @Router /dev/login/{username} [get]
func (h *SessionHandler) DevLogin(c *gin.Context) {
	var uri dto.DevLoginURI
	if !bindURI(c, &uri) {
		return
	}
	token, expiresAt, err := h.sessions.Issue(uri.Username)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(time.Until(expiresAt).Seconds()), "/", "", h.secure, true)

	if target := c.Query("return_to"); isLocalPath(target) {
		c.Redirect(http.StatusFound, target)
		return
	}
	response.JSON(c, http.StatusOK, dto.SessionIssued{
		Username:  uri.Username,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}
