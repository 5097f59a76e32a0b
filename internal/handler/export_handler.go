package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/asterism/internal/dto"
	"github.com/noah-isme/asterism/internal/models"
	"github.com/noah-isme/asterism/internal/service"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/response"
)

type exportService interface {
	Generate(ctx context.Context, key models.FileKey, format service.ExportFormat) (*service.ExportResult, error)
}

// ExportHandler serves snapshot exports to staff.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs an ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Export godoc
// @Summary Export the current snapshot of a file
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param course path string true "Course"
// @Param section path string true "Section"
// @Param exercise path string true "Exercise"
// @Param file path string true "File name"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /{course}/{section}/export/{exercise}/{file} [get]
func (h *ExportHandler) Export(c *gin.Context) {
	var uri dto.ExerciseFileURI
	if !bindURI(c, &uri) {
		return
	}
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf"))
		return
	}
	format := service.ExportFormat(query.Format)
	if format == "" {
		format = service.ExportFormatCSV
	}

	result, err := h.exports.Generate(c.Request.Context(), fileKey(uri.ExerciseURI, uri.File), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
