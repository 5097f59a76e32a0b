package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/models"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/signer"
	"github.com/noah-isme/asterism/pkg/storage"
)

// BundleEnvFile is the client settings file added to every bundle.
const BundleEnvFile = "asterism.env"

// activationMarker is the placeholder authors put in exercise sources. The
// first group captures the comment leader so the rewrite stays a comment.
var activationMarker = regexp.MustCompile(`(.{0,5} +)(Asterism +\*\*\* +)student( +-> +)server( +\*\*\*)`)

// ExerciseService serves exercise sources to staff and bundles them for
// students with activation markers filled in.
type ExerciseService struct {
	courses *storage.LocalStorage
	codec   *signer.Codec
	hostURL string
	logger  *zap.Logger
}

// NewExerciseService constructs an ExerciseService reading from courses.
func NewExerciseService(courses *storage.LocalStorage, codec *signer.Codec, hostURL string, logger *zap.Logger) *ExerciseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExerciseService{courses: courses, codec: codec, hostURL: strings.TrimRight(hostURL, "/"), logger: logger}
}

// Files returns the regular files of <course>/<exercise>, sorted by name.
func (s *ExerciseService) Files(ctx context.Context, course, exercise string) ([]models.ExerciseFile, error) {
	if !ValidSegment(course) || !ValidSegment(exercise) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid exercise")
	}
	dir := path.Join(course, exercise)
	entries, err := s.courses.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exercise not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list exercise")
	}

	files := make([]models.ExerciseFile, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		raw, err := s.courses.ReadFile(path.Join(dir, entry.Name()))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read exercise file")
		}
		content := string(raw)
		files = append(files, models.ExerciseFile{
			Name:    entry.Name(),
			Content: content,
			Marked:  activationMarker.MatchString(content),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Descriptor describes an exercise for staff, including the signed bundle URL.
func (s *ExerciseService) Descriptor(ctx context.Context, course, section, exercise string) (*models.ExerciseDescriptor, error) {
	if !ValidSegment(section) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid section")
	}
	files, err := s.Files(ctx, course, exercise)
	if err != nil {
		return nil, err
	}
	return &models.ExerciseDescriptor{
		Course:    course,
		Section:   section,
		Exercise:  exercise,
		BundleURL: s.BundleURL(course, section, exercise),
		Files:     files,
	}, nil
}

// BundleURL returns the capability URL of the exercise bundle.
func (s *ExerciseService) BundleURL(course, section, exercise string) string {
	return fmt.Sprintf("%s/bundle/%s/%s/%s/%s.zip", s.hostURL, s.codec.SignResource(course, section, exercise), course, section, exercise)
}

// VerifyBundle reports whether signature grants access to the bundle.
func (s *ExerciseService) VerifyBundle(signature, course, section, exercise string) bool {
	return s.codec.VerifyResource(signature, course, section, exercise)
}

// ExerciseURL is the base URL written into activation markers. Clients
// derive the push and link endpoints from it.
func (s *ExerciseService) ExerciseURL(course, section, exercise string) string {
	return fmt.Sprintf("%s/%s/%s/%s", s.hostURL, course, section, exercise)
}

// Activate rewrites the first activation marker in content into the block
// the client looks for.
func (s *ExerciseService) Activate(content, name, course, section, exercise string) string {
	loc := activationMarker.FindStringSubmatchIndex(content)
	if loc == nil {
		return content
	}
	group := func(i int) string { return content[loc[2*i]:loc[2*i+1]] }
	comment, pre, direction, post := group(1), group(2), group(3), group(4)

	var b strings.Builder
	b.WriteString(content[:loc[0]])
	b.WriteString(comment + "Do not edit the following magic line, it shares your work on this file during class:\n")
	b.WriteString(comment + pre + name + direction + s.ExerciseURL(course, section, exercise) + post + "\n")
	b.WriteString(comment + "While the asterism client is running, when you save this file, your changes are recorded.")
	b.WriteString(content[loc[1]:])
	return b.String()
}

// WriteBundle streams a zip of the exercise with markers activated, plus
// the client settings file.
func (s *ExerciseService) WriteBundle(ctx context.Context, w io.Writer, course, section, exercise string) error {
	files, err := s.Files(ctx, course, exercise)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	modified := time.Now()
	marked := make([]string, 0, len(files))
	for _, f := range files {
		content := f.Content
		if f.Marked {
			content = s.Activate(content, f.Name, course, section, exercise)
			marked = append(marked, f.Name)
		}
		if err := writeZipEntry(zw, f.Name, content, modified); err != nil {
			return err
		}
	}
	if err := writeZipEntry(zw, BundleEnvFile, s.bundleEnv(course, section, exercise, marked), modified); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish bundle: %w", err)
	}

	s.logger.Debug("bundle served",
		zap.String("course", course),
		zap.String("section", section),
		zap.String("exercise", exercise),
		zap.Int("files", len(files)),
	)
	return nil
}

func (s *ExerciseService) bundleEnv(course, section, exercise string, marked []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ASTERISM_URL=%s\n", s.ExerciseURL(course, section, exercise))
	fmt.Fprintf(&b, "ASTERISM_EXERCISE=%s\n", exercise)
	fmt.Fprintf(&b, "ASTERISM_FILES=%s\n", strings.Join(marked, ","))
	return b.String()
}

func writeZipEntry(zw *zip.Writer, name, content string, modified time.Time) error {
	entry, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("add %s to bundle: %w", name, err)
	}
	if _, err := io.WriteString(entry, content); err != nil {
		return fmt.Errorf("write %s to bundle: %w", name, err)
	}
	return nil
}
