package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/dto"
	"github.com/noah-isme/asterism/internal/hub"
	"github.com/noah-isme/asterism/internal/middleware"
	"github.com/noah-isme/asterism/internal/models"
	"github.com/noah-isme/asterism/internal/watch"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

type topicSubscriber interface {
	Subscribe(topic models.Topic, sub hub.Subscriber) *hub.Subscription
}

type snapshotSource interface {
	ReadAll(ctx context.Context, key models.FileKey) ([]models.Submission, error)
}

type staffChecker interface {
	IsStaff(ctx context.Context, course, username string) (bool, error)
}

// WatchOptions tunes live watch connections.
type WatchOptions struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	Buffer         int
}

// WatchHandler upgrades staff connections and streams live edits.
type WatchHandler struct {
	hub      topicSubscriber
	store    snapshotSource
	staff    staffChecker
	upgrader websocket.Upgrader
	opts     watch.Options
	logger   *zap.Logger
}

// NewWatchHandler constructs a WatchHandler.
func NewWatchHandler(h topicSubscriber, store snapshotSource, staff staffChecker, opts WatchOptions, logger *zap.Logger) *WatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = watch.PingInterval
	}
	sessionOpts := watch.Options{Buffer: opts.Buffer, PingInterval: opts.PingInterval, Logger: logger}
	return &WatchHandler{
		hub:   h,
		store: store,
		staff: staff,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
		opts:   sessionOpts,
		logger: logger,
	}
}

// Watch godoc
// @Summary Watch live edits of one exercise file
// @Description WebSocket. Sends {"username","content"} for every student's latest version, then one message per change.
// @Tags Watch
// @Param course path string true "Course"
// @Param section path string true "Section"
// @Param exercise path string true "Exercise"
// @Param file path string true "File name"
// @Success 101
// @Failure 403 {object} response.Envelope
// @Router /{course}/{section}/watch/{exercise}/{file} [get]
func (h *WatchHandler) Watch(c *gin.Context) {
	var uri dto.ExerciseFileURI
	if !bindURI(c, &uri) {
		return
	}
	if !websocket.IsWebSocketUpgrade(c.Request) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "websocket upgrade required"))
		return
	}

	username := middleware.Username(c)
	if username != "" {
		ok, err := h.staff.IsStaff(c.Request.Context(), uri.Course, username)
		if err != nil {
			response.Error(c, err)
			return
		}
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "staff only"))
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("watch upgrade failed", zap.Error(err))
		return
	}

	ws := watch.NewWSConn(conn, h.logger)
	// The request context outlives the hijack and is cancelled on shutdown.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go ws.ReadPump(cancel)

	session := watch.New(fileKey(uri.ExerciseURI, uri.File), username, h.hub, h.store, h.opts)
	if err := session.Run(ctx, ws); err != nil && !errors.Is(err, watch.ErrUnauthenticated) {
		h.logger.Info("watch ended", zap.String("username", username), zap.Error(err))
	}
}

func originChecker(allowed map[string]struct{}) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed[strings.TrimRight(origin, "/")]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
