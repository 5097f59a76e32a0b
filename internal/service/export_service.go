package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/models"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/export"
)

// ExportFormat selects the rendering of a snapshot export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

type snapshotReader interface {
	ReadAll(ctx context.Context, key models.FileKey) ([]models.Submission, error)
}

// ExportResult is a rendered snapshot ready to be served.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders the current snapshot of a file for staff to keep.
type ExportService struct {
	snapshots snapshotReader
	renderers map[ExportFormat]renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService backed by the sync store.
func NewExportService(snapshots snapshotReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		snapshots: snapshots,
		renderers: map[ExportFormat]renderer{
			ExportFormatCSV: export.NewCSVExporter(true),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    time.Now,
	}
}

// Generate renders every student's latest version of key.File.
func (s *ExportService) Generate(ctx context.Context, key models.FileKey, format ExportFormat) (*ExportResult, error) {
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	subs, err := s.snapshots.ReadAll(ctx, key)
	if err != nil {
		return nil, err
	}

	generated := s.now().UTC()
	dataset := export.Dataset{
		Title:   fmt.Sprintf("%s %s (%s)", key.Topic.String(), key.File, generated.Format(time.RFC3339)),
		Headers: []string{"username", "updated_at", "lines", "bytes", "content"},
		Rows:    make([][]string, 0, len(subs)),
	}
	for _, sub := range subs {
		dataset.Rows = append(dataset.Rows, []string{
			sub.Username,
			sub.UpdatedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(countLines(sub.Content)),
			strconv.Itoa(len(sub.Content)),
			sub.Content,
		})
	}

	payload, err := r.Render(dataset)
	if err != nil {
		s.logger.Error("export render failed", zap.String("topic", key.Topic.String()), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &ExportResult{
		Filename:    s.filename(key, format, generated),
		ContentType: r.ContentType(),
		Payload:     payload,
	}, nil
}

func (s *ExportService) filename(key models.FileKey, format ExportFormat, at time.Time) string {
	base := strings.NewReplacer(".", "_").Replace(key.File)
	return fmt.Sprintf("%s_%s_%s_%s_%s.%s", key.Course, key.Section, key.Exercise, base, at.Format("20060102T150405Z"), format)
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}
