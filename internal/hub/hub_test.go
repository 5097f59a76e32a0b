package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (r *recorder) Deliver(event models.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) snapshot() []models.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ChangeEvent(nil), r.events...)
}

type metricsStub struct {
	delivered, failed, watchers int
}

func (m *metricsStub) ObserveBroadcast(delivered, failed int) {
	m.delivered += delivered
	m.failed += failed
}

func (m *metricsStub) SetWatchers(count int) { m.watchers = count }

var (
	lab1 = models.Topic{Course: "cs.101", Section: "a", Exercise: "lab-1"}
	lab2 = models.Topic{Course: "cs.101", Section: "a", Exercise: "lab-2"}
)

func TestPublishFansOutWithinTopic(t *testing.T) {
	h := New(zap.NewNop(), nil)
	first, second, other := &recorder{}, &recorder{}, &recorder{}
	h.Subscribe(lab1, first)
	h.Subscribe(lab1, second)
	h.Subscribe(lab2, other)

	delivered := h.Publish(models.ChangeEvent{Topic: lab1, File: "main.py", Username: "alice", Content: "x"})

	assert.Equal(t, 2, delivered)
	assert.Len(t, first.snapshot(), 1)
	assert.Len(t, second.snapshot(), 1)
	assert.Empty(t, other.snapshot())
}

func TestPublishPreservesOrder(t *testing.T) {
	h := New(nil, nil)
	rec := &recorder{}
	h.Subscribe(lab1, rec)

	for i := 0; i < 50; i++ {
		h.Publish(models.ChangeEvent{Topic: lab1, File: "f", Username: "u", Content: fmt.Sprint(i)})
	}

	events := rec.snapshot()
	require.Len(t, events, 50)
	for i, ev := range events {
		assert.Equal(t, fmt.Sprint(i), ev.Content)
	}
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	metrics := &metricsStub{}
	h := New(zap.NewNop(), metrics)
	rec := &recorder{}
	h.Subscribe(lab1, SubscriberFunc(func(models.ChangeEvent) error { return errors.New("connection gone") }))
	h.Subscribe(lab1, SubscriberFunc(func(models.ChangeEvent) error { panic("boom") }))
	h.Subscribe(lab1, rec)

	delivered := h.Publish(models.ChangeEvent{Topic: lab1, File: "f"})

	assert.Equal(t, 1, delivered)
	assert.Len(t, rec.snapshot(), 1)
	assert.Equal(t, 1, metrics.delivered)
	assert.Equal(t, 2, metrics.failed)
}

func TestDetachedSubscriberIsNotAFailure(t *testing.T) {
	metrics := &metricsStub{}
	h := New(zap.NewNop(), metrics)
	live := &recorder{}
	h.Subscribe(lab1, live)
	h.Subscribe(lab1, SubscriberFunc(func(models.ChangeEvent) error { return ErrDetached }))

	assert.Equal(t, 1, h.Publish(models.ChangeEvent{Topic: lab1, File: "main.py", Username: "alice", Content: "x"}))
	assert.Equal(t, 1, metrics.delivered)
	assert.Equal(t, 0, metrics.failed)
	assert.Len(t, live.snapshot(), 1)
}

func TestCloseStopsDelivery(t *testing.T) {
	metrics := &metricsStub{}
	h := New(zap.NewNop(), metrics)
	rec := &recorder{}
	sub := h.Subscribe(lab1, rec)
	assert.Equal(t, 1, h.Count(lab1))
	assert.Equal(t, 1, metrics.watchers)

	sub.Close()
	sub.Close()

	h.Publish(models.ChangeEvent{Topic: lab1, File: "f"})
	assert.Empty(t, rec.snapshot())
	assert.Equal(t, 0, h.Count(lab1))
	assert.Equal(t, 0, metrics.watchers)
	assert.NotEmpty(t, sub.ID())
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	h := New(zap.NewNop(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := h.Subscribe(lab1, &recorder{})
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			h.Publish(models.ChangeEvent{Topic: lab1, File: "f"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, h.Count(lab1))
}
