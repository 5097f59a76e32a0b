// Package hub routes change events to live watchers subscribed to an
// exercise topic.
package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/models"
)

// Subscriber receives events for a topic. Deliver runs while the hub lock is
// held, so it must not block and must not call back into the hub.
type Subscriber interface {
	Deliver(event models.ChangeEvent) error
}

// ErrDetached is returned by a subscriber that is already leaving. The
// event is skipped without counting as a failed delivery.
var ErrDetached = errors.New("hub: subscriber detached")

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(event models.ChangeEvent) error

// Deliver calls f(event).
func (f SubscriberFunc) Deliver(event models.ChangeEvent) error { return f(event) }

type deliveryRecorder interface {
	ObserveBroadcast(delivered, failed int)
	SetWatchers(count int)
}

// Hub is an in-process topic registry. One instance per server.
type Hub struct {
	mu      sync.Mutex
	topics  map[models.Topic]map[string]Subscriber
	total   int
	logger  *zap.Logger
	metrics deliveryRecorder
}

// New constructs an empty hub. metrics may be nil.
func New(logger *zap.Logger, metrics deliveryRecorder) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics:  make(map[models.Topic]map[string]Subscriber),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscription is a routing entry. Close removes it.
type Subscription struct {
	hub   *Hub
	topic models.Topic
	id    string
	once  sync.Once
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Close deregisters the subscription. Once Close returns, no further event is
// delivered to it. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s.topic, s.id) })
}

// Subscribe registers sub for every event published on topic.
func (h *Hub) Subscribe(topic models.Topic, sub Subscriber) *Subscription {
	id := uuid.NewString()

	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]Subscriber)
		h.topics[topic] = subs
	}
	subs[id] = sub
	h.total++
	total := h.total
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetWatchers(total)
	}
	h.logger.Debug("hub subscribe", zap.String("topic", topic.String()), zap.String("subscription", id))
	return &Subscription{hub: h, topic: topic, id: id}
}

func (h *Hub) remove(topic models.Topic, id string) {
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if ok {
		if _, exists := subs[id]; exists {
			delete(subs, id)
			h.total--
		}
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	total := h.total
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetWatchers(total)
	}
	h.logger.Debug("hub unsubscribe", zap.String("topic", topic.String()), zap.String("subscription", id))
}

// Publish delivers event to every subscriber attached to its topic and
// returns how many accepted it. Events on one topic are delivered to all
// subscribers before the next Publish on that hub starts.
func (h *Hub) Publish(event models.ChangeEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered, failed := 0, 0
	for id, sub := range h.topics[event.Topic] {
		if err := safeDeliver(sub, event); err != nil {
			if errors.Is(err, ErrDetached) {
				continue
			}
			failed++
			h.logger.Warn("hub delivery failed",
				zap.String("topic", event.Topic.String()),
				zap.String("subscription", id),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	if h.metrics != nil {
		h.metrics.ObserveBroadcast(delivered, failed)
	}
	return delivered
}

// Count returns the number of live subscriptions on topic.
func (h *Hub) Count(topic models.Topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

func safeDeliver(sub Subscriber, event models.ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.Deliver(event)
}
