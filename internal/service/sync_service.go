package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/models"
	"github.com/noah-isme/asterism/internal/repository"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
)

type submissionStore interface {
	Save(ctx context.Context, key models.FileKey, username string, content []byte) error
	Find(ctx context.Context, key models.FileKey, username string) (*models.Submission, error)
	ListLatest(ctx context.Context, key models.FileKey) ([]models.Submission, error)
}

type changePublisher interface {
	Publish(event models.ChangeEvent) int
}

type syncRecorder interface {
	ObservePush(bytes int, duration time.Duration, ok bool)
}

// SyncService stores student pushes and announces them to live watchers.
type SyncService struct {
	store   submissionStore
	hub     changePublisher
	logger  *zap.Logger
	metrics syncRecorder
	writers writerLocks
}

type writerKey struct {
	key      models.FileKey
	username string
}

// writerLocks serialises write+publish per student file so watchers see
// versions in the order they were stored. Entries live only while held.
type writerLocks struct {
	mu    sync.Mutex
	locks map[writerKey]*writerLock
}

type writerLock struct {
	mu   sync.Mutex
	refs int
}

func (w *writerLocks) lock(k writerKey) func() {
	w.mu.Lock()
	if w.locks == nil {
		w.locks = make(map[writerKey]*writerLock)
	}
	l, ok := w.locks[k]
	if !ok {
		l = &writerLock{}
		w.locks[k] = l
	}
	l.refs++
	w.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		w.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.locks, k)
		}
		w.mu.Unlock()
	}
}

// NewSyncService constructs a SyncService. metrics may be nil.
func NewSyncService(store submissionStore, hub changePublisher, logger *zap.Logger, metrics syncRecorder) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{store: store, hub: hub, logger: logger, metrics: metrics}
}

// Save persists content as the latest version of key for username, then
// publishes a change event. Nothing is published if the write fails. Saves
// of the same file by the same student are serialised across both steps.
func (s *SyncService) Save(ctx context.Context, key models.FileKey, username, content string) error {
	if err := validateFileKey(key); err != nil {
		return err
	}
	if !ValidSegment(username) {
		return appErrors.Clone(appErrors.ErrValidation, "invalid username")
	}
	unlock := s.writers.lock(writerKey{key: key, username: username})
	defer unlock()

	start := time.Now()
	if err := s.store.Save(ctx, key, username, []byte(content)); err != nil {
		s.observe(len(content), start, false)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		s.logger.Error("submission save failed",
			zap.String("topic", key.Topic.String()),
			zap.String("file", key.File),
			zap.String("username", username),
			zap.Error(err),
		)
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to save submission")
	}
	s.observe(len(content), start, true)

	delivered := s.hub.Publish(models.ChangeEvent{
		Topic:    key.Topic,
		File:     key.File,
		Username: username,
		Content:  content,
	})
	s.logger.Debug("submission saved",
		zap.String("topic", key.Topic.String()),
		zap.String("file", key.File),
		zap.String("username", username),
		zap.Int("bytes", len(content)),
		zap.Int("watchers", delivered),
	)
	return nil
}

// ReadAll returns the latest content of key.File for every student who
// pushed it. A fresh exercise yields an empty slice.
func (s *SyncService) ReadAll(ctx context.Context, key models.FileKey) ([]models.Submission, error) {
	if err := validateFileKey(key); err != nil {
		return nil, err
	}
	subs, err := s.store.ListLatest(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		s.logger.Error("submission snapshot failed", zap.String("topic", key.Topic.String()), zap.String("file", key.File), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read submissions")
	}
	return subs, nil
}

// Read returns the caller's own latest version of key.File.
func (s *SyncService) Read(ctx context.Context, key models.FileKey, username string) (*models.Submission, error) {
	if err := validateFileKey(key); err != nil {
		return nil, err
	}
	if !ValidSegment(username) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid username")
	}
	sub, err := s.store.Find(ctx, key, username)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "nothing pushed yet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read submission")
	}
	return sub, nil
}

func (s *SyncService) observe(size int, start time.Time, ok bool) {
	if s.metrics != nil {
		s.metrics.ObservePush(size, time.Since(start), ok)
	}
}

// ValidSegment reports whether v can be used as a single path element.
func ValidSegment(v string) bool {
	if v == "" || v == "." || v == ".." || len(v) > 255 {
		return false
	}
	return !strings.ContainsAny(v, "/\\\x00")
}

func validateFileKey(key models.FileKey) error {
	for _, part := range []string{key.Course, key.Section, key.Exercise, key.File} {
		if !ValidSegment(part) {
			return appErrors.Clone(appErrors.ErrValidation, "invalid exercise or file name")
		}
	}
	return nil
}
