package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/asterism/internal/dto"
	"github.com/noah-isme/asterism/internal/middleware"
	"github.com/noah-isme/asterism/internal/models"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

type syncService interface {
	Save(ctx context.Context, key models.FileKey, username, content string) error
	Read(ctx context.Context, key models.FileKey, username string) (*models.Submission, error)
}

// SyncHandler receives pushes from linked clients and serves back their own
// latest versions.
type SyncHandler struct {
	sync     syncService
	maxBytes int64
}

// NewSyncHandler constructs a SyncHandler. Form bodies above maxBytes are
// rejected with 413.
func NewSyncHandler(sync syncService, maxBytes int64) *SyncHandler {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &SyncHandler{sync: sync, maxBytes: maxBytes}
}

// Push godoc
// @Summary Push a file version
// @Tags Sync
// @Accept x-www-form-urlencoded
// @Param course path string true "Course"
// @Param section path string true "Section"
// @Param exercise path string true "Exercise"
// @Param file path string true "File name"
// @Param token path string true "User token"
// @Param content formData string true "Full file content"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /{course}/{section}/push/{exercise}/{file}/{token} [post]
func (h *SyncHandler) Push(c *gin.Context) {
	var uri dto.ScriptURI
	if !bindURI(c, &uri) {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	if err := parseForm(c.Request, h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, appErrors.ErrPayloadTooLarge)
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form body"))
		return
	}
	values, ok := c.Request.PostForm["content"]
	if !ok || len(values) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "content is required"))
		return
	}

	if err := h.sync.Save(c.Request.Context(), fileKey(uri.ExerciseURI, uri.File), middleware.Username(c), values[0]); err != nil {
		response.Error(c, err)
		return
	}
	response.Status(c, http.StatusNoContent)
}

// Pull godoc
// @Summary Fetch the caller's latest pushed version
// @Tags Sync
// @Produce plain
// @Param course path string true "Course"
// @Param section path string true "Section"
// @Param exercise path string true "Exercise"
// @Param file path string true "File name"
// @Param token path string true "User token"
// @Success 200 {string} string "file content"
// @Failure 404 {object} response.Envelope
// @Router /{course}/{section}/pull/{exercise}/{file}/{token} [get]
func (h *SyncHandler) Pull(c *gin.Context) {
	var uri dto.ScriptURI
	if !bindURI(c, &uri) {
		return
	}
	sub, err := h.sync.Read(c.Request.Context(), fileKey(uri.ExerciseURI, uri.File), middleware.Username(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Last-Modified", sub.UpdatedAt.UTC().Format(http.TimeFormat))
	response.Text(c, http.StatusOK, sub.Content)
}

func fileKey(uri dto.ExerciseURI, file string) models.FileKey {
	return models.FileKey{
		Topic: models.Topic{Course: uri.Course, Section: uri.Section, Exercise: uri.Exercise},
		File:  file,
	}
}

// parseForm fills r.PostForm. ParseMultipartForm would hide a body read
// error behind ErrNotMultipart for urlencoded bodies, so only multipart
// bodies go through it.
func parseForm(r *http.Request, maxBytes int64) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(maxBytes)
	}
	return r.ParseForm()
}
