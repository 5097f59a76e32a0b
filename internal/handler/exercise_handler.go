package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/asterism/internal/dto"
	"github.com/noah-isme/asterism/internal/models"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

type exerciseService interface {
	Descriptor(ctx context.Context, course, section, exercise string) (*models.ExerciseDescriptor, error)
	VerifyBundle(signature, course, section, exercise string) bool
	WriteBundle(ctx context.Context, w io.Writer, course, section, exercise string) error
}

// ExerciseHandler serves exercise sources to staff and signed bundles to students.
type ExerciseHandler struct {
	exercises exerciseService
}

// NewExerciseHandler constructs an ExerciseHandler.
func NewExerciseHandler(exercises exerciseService) *ExerciseHandler {
	return &ExerciseHandler{exercises: exercises}
}

// Exercise godoc
// @Summary Describe an exercise
// @Description Lists the exercise files and the shareable bundle URL. Staff only.
// @Tags Exercises
// @Produce json
// @Param course path string true "Course"
// @Param section path string true "Section"
// @Param exercise path string true "Exercise"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /{course}/{section}/exercise/{exercise} [get]
func (h *ExerciseHandler) Exercise(c *gin.Context) {
	var uri dto.ExerciseURI
	if !bindURI(c, &uri) {
		return
	}
	desc, err := h.exercises.Descriptor(c.Request.Context(), uri.Course, uri.Section, uri.Exercise)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, desc)
}

// Bundle godoc
// @Summary Download an exercise bundle
// @Description Zip of the exercise with activation markers filled in. The signature is the only credential.
// @Tags Exercises
// @Produce application/zip
// @Param signature path string true "Exercise signature"
// @Param course path string true "Course"
// @Param section path string true "Section"
// @Param archive path string true "<exercise>.zip"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /bundle/{signature}/{course}/{section}/{archive} [get]
func (h *ExerciseHandler) Bundle(c *gin.Context) {
	var uri dto.BundleURI
	if !bindURI(c, &uri) {
		return
	}
	exercise := strings.TrimSuffix(uri.Archive, ".zip")
	if !h.exercises.VerifyBundle(uri.Signature, uri.Course, uri.Section, exercise) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	buf := &bytes.Buffer{}
	if err := h.exercises.WriteBundle(c.Request.Context(), buf, uri.Course, uri.Section, exercise); err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, uri.Archive))
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}
