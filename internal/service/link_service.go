package service

import (
	"context"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/asterism/pkg/errors"
)

// Link outcomes reported to metrics.
const (
	LinkOutcomeStarted   = "started"
	LinkOutcomeResolved  = "resolved"
	LinkOutcomeTimeout   = "timeout"
	LinkOutcomeCancelled = "cancelled"
	LinkOutcomeExpired   = "expired"
)

// DefaultLinkTimeout bounds how long a client waits for its ticket.
const DefaultLinkTimeout = 10 * time.Minute

var ticketPattern = regexp.MustCompile(`^[\w-]{1,128}$`)

type linkRecorder interface {
	RecordLink(outcome string)
}

// linkTicket is the durable record for one ticket id. resolved is closed
// exactly once, when identity is bound.
type linkTicket struct {
	identity   string
	resolved   chan struct{}
	createdAt  time.Time
	resolvedAt time.Time
	waiters    int
}

// LinkService pairs a browser-authenticated session with a waiting
// lightweight client through a one-time ticket id.
type LinkService struct {
	mu      sync.Mutex
	tickets map[string]*linkTicket
	// consumed remembers spent ids until Sweep forgets them.
	consumed map[string]time.Time
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  linkRecorder
}

// NewLinkService constructs an empty ticket registry.
func NewLinkService(timeout time.Duration, logger *zap.Logger, metrics linkRecorder) *LinkService {
	if timeout <= 0 {
		timeout = DefaultLinkTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkService{
		tickets:  make(map[string]*linkTicket),
		consumed: make(map[string]time.Time),
		timeout:  timeout,
		now:      time.Now,
		logger:   logger,
		metrics:  metrics,
	}
}

// ValidTicketID reports whether id is an acceptable ticket identifier.
func ValidTicketID(id string) bool {
	return ticketPattern.MatchString(id)
}

// StartLink binds identity to ticketID and wakes any waiter. The resolution
// is kept until a waiter consumes it, so a client that polls after the
// browser confirmed still succeeds. A consumed id is refused with
// ErrLinkConsumed.
func (s *LinkService) StartLink(ticketID, identity string) error {
	if !ValidTicketID(ticketID) {
		return appErrors.Clone(appErrors.ErrValidation, "invalid link identifier")
	}
	if identity == "" {
		return appErrors.ErrUnauthorized
	}

	s.mu.Lock()
	if _, spent := s.consumed[ticketID]; spent {
		s.mu.Unlock()
		s.logger.Warn("link ticket reused", zap.String("ticket", ticketID))
		return appErrors.ErrLinkConsumed
	}
	t := s.ticketLocked(ticketID)
	if t.identity != "" {
		bound := t.identity
		s.mu.Unlock()
		if bound == identity {
			return nil
		}
		s.logger.Warn("link ticket already bound", zap.String("ticket", ticketID))
		return appErrors.Clone(appErrors.ErrConflict, "link already confirmed by another user")
	}
	t.identity = identity
	t.resolvedAt = s.now()
	close(t.resolved)
	s.mu.Unlock()

	s.record(LinkOutcomeStarted)
	s.logger.Info("link confirmed", zap.String("ticket", ticketID), zap.String("username", identity))
	return nil
}

// AwaitLink blocks until ticketID is resolved, the bounded wait elapses, or
// ctx is done. On success the ticket is consumed; a later call with the same
// id waits until timeout, since a consumed id is never bound again. Timeout
// returns ErrLinkTimeout.
func (s *LinkService) AwaitLink(ctx context.Context, ticketID string) (string, error) {
	if !ValidTicketID(ticketID) {
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid link identifier")
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		if _, spent := s.consumed[ticketID]; spent {
			s.mu.Unlock()
			return "", s.waitSpent(ctx, timer.C)
		}
		t := s.ticketLocked(ticketID)
		if identity, ok := s.consumeLocked(ticketID, t); ok {
			s.mu.Unlock()
			s.record(LinkOutcomeResolved)
			return identity, nil
		}
		t.waiters++
		resolved := t.resolved
		s.mu.Unlock()

		select {
		case <-resolved:
			s.mu.Lock()
			t.waiters--
			identity, ok := s.consumeLocked(ticketID, t)
			s.mu.Unlock()
			if ok {
				s.record(LinkOutcomeResolved)
				return identity, nil
			}
			// Another waiter consumed it first.

		case <-timer.C:
			identity, ok := s.abandon(ticketID, t)
			if ok {
				s.record(LinkOutcomeResolved)
				return identity, nil
			}
			s.record(LinkOutcomeTimeout)
			return "", appErrors.ErrLinkTimeout

		case <-ctx.Done():
			identity, ok := s.abandon(ticketID, t)
			if ok {
				s.record(LinkOutcomeResolved)
				return identity, nil
			}
			s.record(LinkOutcomeCancelled)
			return "", ctx.Err()
		}
	}
}

// waitSpent holds a waiter on a consumed id until the wait bound or ctx.
func (s *LinkService) waitSpent(ctx context.Context, timeout <-chan time.Time) error {
	select {
	case <-timeout:
		s.record(LinkOutcomeTimeout)
		return appErrors.ErrLinkTimeout
	case <-ctx.Done():
		s.record(LinkOutcomeCancelled)
		return ctx.Err()
	}
}

// Sweep drops tickets older than the wait bound that nobody is waiting on:
// pending tickets whose start page was never confirmed, and confirmed
// tickets whose client never came back. It returns the number removed.
// Consumed ids are forgotten once they are older than the wait bound and
// are not counted.
func (s *LinkService) Sweep() int {
	cutoff := s.now().Add(-s.timeout)

	s.mu.Lock()
	for id, at := range s.consumed {
		if at.Before(cutoff) {
			delete(s.consumed, id)
		}
	}
	removed := 0
	for id, t := range s.tickets {
		if t.waiters > 0 {
			continue
		}
		stamp := t.createdAt
		if t.identity != "" {
			stamp = t.resolvedAt
		}
		if stamp.Before(cutoff) {
			delete(s.tickets, id)
			removed++
		}
	}
	s.mu.Unlock()

	for i := 0; i < removed; i++ {
		s.record(LinkOutcomeExpired)
	}
	if removed > 0 {
		s.logger.Debug("link tickets swept", zap.Int("removed", removed))
	}
	return removed
}

// RunJanitor sweeps on every interval until ctx is done.
func (s *LinkService) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Pending returns the number of tickets currently tracked.
func (s *LinkService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func (s *LinkService) ticketLocked(id string) *linkTicket {
	t, ok := s.tickets[id]
	if !ok {
		t = &linkTicket{resolved: make(chan struct{}), createdAt: s.now()}
		s.tickets[id] = t
	}
	return t
}

// consumeLocked removes t when it is still the live record for id and has
// been resolved.
func (s *LinkService) consumeLocked(id string, t *linkTicket) (string, bool) {
	if t.identity == "" || s.tickets[id] != t {
		return "", false
	}
	delete(s.tickets, id)
	s.consumed[id] = s.now()
	return t.identity, true
}

// abandon settles a waiter that stops waiting. A resolution that landed
// before the lock was taken still wins.
func (s *LinkService) abandon(id string, t *linkTicket) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.waiters--
	if identity, ok := s.consumeLocked(id, t); ok {
		return identity, true
	}
	if t.identity == "" && t.waiters == 0 && s.tickets[id] == t {
		delete(s.tickets, id)
	}
	return "", false
}

func (s *LinkService) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLink(outcome)
	}
}
