package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/dto"
	"github.com/noah-isme/asterism/internal/middleware"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

type linkService interface {
	StartLink(ticketID, identity string) error
	AwaitLink(ctx context.Context, ticketID string) (string, error)
}

type userTokenIssuer interface {
	IssueUser(identity string) string
}

// LinkHandler pairs a lightweight client with the browser session that
// confirmed its ticket.
type LinkHandler struct {
	links  linkService
	tokens userTokenIssuer
	logger *zap.Logger
}

// NewLinkHandler constructs a LinkHandler.
func NewLinkHandler(links linkService, tokens userTokenIssuer, logger *zap.Logger) *LinkHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkHandler{links: links, tokens: tokens, logger: logger}
}

// Start godoc
// @Summary Confirm a client link
// @Description Binds the signed-in user to the ticket a waiting client is polling.
// @Tags Link
// @Produce json
// @Param course path string true "Course"
// @Param section path string true "Section"
// @Param uuid path string true "Ticket identifier"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /{course}/{section}/start/{uuid} [get]
func (h *LinkHandler) Start(c *gin.Context) {
	var uri dto.LinkURI
	if !bindURI(c, &uri) {
		return
	}
	username := middleware.Username(c)
	if err := h.links.StartLink(uri.Ticket, username); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.LinkStarted{
		Course:   uri.Course,
		Section:  uri.Section,
		Username: username,
		Message:  "Your client is now linked. You can close this page.",
	})
}

// Await godoc
// @Summary Wait for a link confirmation
// @Description Blocks until the ticket is confirmed and returns a user token as plain text.
// @Tags Link
// @Produce plain
// @Param course path string true "Course"
// @Param section path string true "Section"
// @Param uuid path string true "Ticket identifier"
// @Success 200 {string} string "user token"
// @Failure 408 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /{course}/{section}/await/{uuid} [get]
func (h *LinkHandler) Await(c *gin.Context) {
	var uri dto.LinkURI
	if !bindURI(c, &uri) {
		return
	}
	ctx := c.Request.Context()
	identity, err := h.links.AwaitLink(ctx, uri.Ticket)
	if err != nil {
		if errors.Is(context.Cause(ctx), appErrors.ErrShuttingDown) {
			c.Header("Retry-After", "5")
			response.Error(c, appErrors.ErrShuttingDown)
			return
		}
		if errors.Is(err, context.Canceled) {
			h.logger.Debug("link waiter went away", zap.String("ticket", uri.Ticket))
			c.Abort()
			return
		}
		response.Error(c, err)
		return
	}
	response.Text(c, http.StatusOK, h.tokens.IssueUser(identity))
}
