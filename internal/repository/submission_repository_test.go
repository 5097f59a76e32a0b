package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/asterism/internal/models"
	"github.com/noah-isme/asterism/pkg/storage"
)

func newSubmissionRepo(t *testing.T) (*SubmissionRepository, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	return NewSubmissionRepository(store), dir
}

var mainPy = models.FileKey{
	Topic: models.Topic{Course: "cs.101", Section: "a", Exercise: "lab-1"},
	File:  "main.py",
}

func TestSubmissionSaveLayout(t *testing.T) {
	repo, dir := newSubmissionRepo(t)
	require.NoError(t, repo.Save(context.Background(), mainPy, "alice", []byte("print(1)")))

	data, err := os.ReadFile(filepath.Join(dir, "cs.101", "section-a", "lab-1", "alice", "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(data))
}

func TestSubmissionListLatest(t *testing.T) {
	repo, _ := newSubmissionRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, mainPy, "bob", []byte("b1")))
	require.NoError(t, repo.Save(ctx, mainPy, "alice", []byte("a1")))
	require.NoError(t, repo.Save(ctx, mainPy, "alice", []byte("a2")))

	other := mainPy
	other.File = "util.py"
	require.NoError(t, repo.Save(ctx, other, "carol", []byte("c1")))

	subs, err := repo.ListLatest(ctx, mainPy)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "alice", subs[0].Username)
	assert.Equal(t, "a2", subs[0].Content)
	assert.Equal(t, "bob", subs[1].Username)
	assert.False(t, subs[0].UpdatedAt.IsZero())
}

func TestSubmissionListLatestMissingExercise(t *testing.T) {
	repo, _ := newSubmissionRepo(t)
	subs, err := repo.ListLatest(context.Background(), mainPy)
	require.NoError(t, err)
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
}

func TestSubmissionFindMissing(t *testing.T) {
	repo, _ := newSubmissionRepo(t)
	_, err := repo.Find(context.Background(), mainPy, "nobody")
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestSubmissionCancelledContext(t *testing.T) {
	repo, _ := newSubmissionRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, repo.Save(ctx, mainPy, "alice", []byte("x")), context.Canceled)
}
