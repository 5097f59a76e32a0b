package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/noah-isme/asterism/internal/models"
	"github.com/noah-isme/asterism/pkg/storage"
)

// ErrSubmissionNotFound is returned when a student never pushed a file.
var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionRepository stores the latest pushed version of each student file
// under <course>/section-<section>/<exercise>/<username>/<file>.
type SubmissionRepository struct {
	store *storage.LocalStorage
}

// NewSubmissionRepository wraps a storage root.
func NewSubmissionRepository(store *storage.LocalStorage) *SubmissionRepository {
	return &SubmissionRepository{store: store}
}

// Save replaces the stored content for (key, username).
func (r *SubmissionRepository) Save(ctx context.Context, key models.FileKey, username string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.WriteAtomic(submissionPath(key, username), content); err != nil {
		return fmt.Errorf("save submission %s/%s: %w", key.Topic, username, err)
	}
	return nil
}

// Find returns the latest content pushed by username.
func (r *SubmissionRepository) Find(ctx context.Context, key models.FileKey, username string) (*models.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel := submissionPath(key, username)
	data, err := r.store.ReadFile(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("read submission %s/%s: %w", key.Topic, username, err)
	}
	sub := &models.Submission{Username: username, Content: string(data)}
	if info, err := r.store.Stat(rel); err == nil {
		sub.UpdatedAt = info.ModTime().UTC()
	}
	return sub, nil
}

// ListLatest returns every student's latest content for key.File, sorted by
// username. An exercise nobody pushed to yet yields an empty slice.
func (r *SubmissionRepository) ListLatest(ctx context.Context, key models.FileKey) ([]models.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := r.store.ReadDir(exerciseDir(key.Topic))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.Submission{}, nil
		}
		return nil, fmt.Errorf("list submissions %s: %w", key.Topic, err)
	}

	result := make([]models.Submission, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub, err := r.Find(ctx, key, entry.Name())
		if err != nil {
			if errors.Is(err, ErrSubmissionNotFound) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// An unreadable file for one student must not hide the others.
			continue
		}
		result = append(result, *sub)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func exerciseDir(topic models.Topic) string {
	return filepath.Join(topic.Course, "section-"+topic.Section, topic.Exercise)
}

func submissionPath(key models.FileKey, username string) string {
	return filepath.Join(exerciseDir(key.Topic), username, key.File)
}
