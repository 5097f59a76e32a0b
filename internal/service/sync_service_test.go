package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/hub"
	"github.com/noah-isme/asterism/internal/models"
	"github.com/noah-isme/asterism/internal/repository"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/storage"
)

type eventLog struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (l *eventLog) Deliver(event models.ChangeEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) all() []models.ChangeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ChangeEvent(nil), l.events...)
}

type failingStore struct{ err error }

func (f failingStore) Save(context.Context, models.FileKey, string, []byte) error { return f.err }
func (f failingStore) Find(context.Context, models.FileKey, string) (*models.Submission, error) {
	return nil, f.err
}
func (f failingStore) ListLatest(context.Context, models.FileKey) ([]models.Submission, error) {
	return nil, f.err
}

type pushMetricsStub struct{ ok, failed int }

func (m *pushMetricsStub) ObservePush(_ int, _ time.Duration, ok bool) {
	if ok {
		m.ok++
	} else {
		m.failed++
	}
}

var labKey = models.FileKey{
	Topic: models.Topic{Course: "cs.101", Section: "a", Exercise: "lab-1"},
	File:  "main.py",
}

func newSyncServiceForTest(t *testing.T) (*SyncService, *hub.Hub) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	h := hub.New(zap.NewNop(), nil)
	return NewSyncService(repository.NewSubmissionRepository(store), h, zap.NewNop(), nil), h
}

func TestSyncSaveThenReadAll(t *testing.T) {
	svc, _ := newSyncServiceForTest(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, labKey, "alice", "print('hi')"))

	subs, err := svc.ReadAll(ctx, labKey)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "alice", subs[0].Username)
	assert.Equal(t, "print('hi')", subs[0].Content)
}

func TestSyncOverwriteKeepsLatest(t *testing.T) {
	svc, _ := newSyncServiceForTest(t)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, labKey, "alice", "v1"))
	require.NoError(t, svc.Save(ctx, labKey, "alice", "v2"))

	subs, err := svc.ReadAll(ctx, labKey)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "v2", subs[0].Content)

	own, err := svc.Read(ctx, labKey, "alice")
	require.NoError(t, err)
	assert.Equal(t, "v2", own.Content)
}

func TestSyncSavePublishesEveryWrite(t *testing.T) {
	svc, h := newSyncServiceForTest(t)
	log := &eventLog{}
	h.Subscribe(labKey.Topic, log)

	require.NoError(t, svc.Save(context.Background(), labKey, "alice", "same"))
	require.NoError(t, svc.Save(context.Background(), labKey, "alice", "same"))

	events := log.all()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "main.py", ev.File)
		assert.Equal(t, "alice", ev.Username)
		assert.Equal(t, "same", ev.Content)
	}
}

// gatedHub records events and holds the first Publish until release closes.
type gatedHub struct {
	mu      sync.Mutex
	events  []string
	first   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedHub) Publish(event models.ChangeEvent) int {
	g.mu.Lock()
	hold := !g.first
	g.first = true
	g.mu.Unlock()
	if hold {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	g.events = append(g.events, event.Content)
	g.mu.Unlock()
	return 1
}

func (g *gatedHub) all() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.events...)
}

func TestSyncConcurrentSavesPublishInStoreOrder(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	gate := &gatedHub{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewSyncService(repository.NewSubmissionRepository(store), gate, zap.NewNop(), nil)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- svc.Save(ctx, labKey, "alice", "v1") }()
	<-gate.entered

	second := make(chan error, 1)
	go func() { second <- svc.Save(ctx, labKey, "alice", "v2") }()

	select {
	case <-second:
		t.Fatal("second save finished while the first was still publishing")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	events := gate.all()
	require.Equal(t, []string{"v1", "v2"}, events)
	own, err := svc.Read(ctx, labKey, "alice")
	require.NoError(t, err)
	assert.Equal(t, events[len(events)-1], own.Content)
	assert.Empty(t, svc.writers.locks)
}

func TestSyncFailedWriteDoesNotPublish(t *testing.T) {
	h := hub.New(zap.NewNop(), nil)
	log := &eventLog{}
	h.Subscribe(labKey.Topic, log)
	metrics := &pushMetricsStub{}
	svc := NewSyncService(failingStore{err: errors.New("disk full")}, h, zap.NewNop(), metrics)

	err := svc.Save(context.Background(), labKey, "alice", "x")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, appErrors.FromError(err).Status)
	assert.Empty(t, log.all())
	assert.Equal(t, 1, metrics.failed)

	_, err = svc.ReadAll(context.Background(), labKey)
	assert.Equal(t, "STORAGE_ERROR", appErrors.FromError(err).Code)
}

func TestSyncReadAllFreshExercise(t *testing.T) {
	svc, _ := newSyncServiceForTest(t)
	subs, err := svc.ReadAll(context.Background(), labKey)
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = svc.Read(context.Background(), labKey, "alice")
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestSyncRejectsUnsafeNames(t *testing.T) {
	svc, _ := newSyncServiceForTest(t)
	ctx := context.Background()

	bad := labKey
	bad.File = "../../etc/passwd"
	err := svc.Save(ctx, bad, "alice", "x")
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)

	err = svc.Save(ctx, labKey, "..", "x")
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)

	_, err = svc.ReadAll(ctx, bad)
	assert.Error(t, err)
}

func TestValidSegment(t *testing.T) {
	assert.True(t, ValidSegment("main.py"))
	assert.True(t, ValidSegment("lab-1"))
	for _, v := range []string{"", ".", "..", "a/b", `a\b`, "a\x00b"} {
		assert.False(t, ValidSegment(v), v)
	}
}
