// Package watch implements the per-connection state of an instructor
// watching one exercise file: snapshot on attach, then live changes.
package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/asterism/internal/hub"
	"github.com/noah-isme/asterism/internal/models"
)

// State is the lifecycle position of a session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateAttached
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAttached:
		return "attached"
	default:
		return "closed"
	}
}

// DefaultBuffer is the number of live events queued per session.
const DefaultBuffer = 256

var (
	ErrUnauthenticated = errors.New("watch: unauthenticated connection")
	ErrSlowConsumer    = errors.New("watch: outbound buffer full")
)

// Message is one (username, content) pair sent to the watcher. File is set
// on live events only.
type Message struct {
	Username string `json:"username"`
	Content  string `json:"content"`
	File     string `json:"file,omitempty"`
}

// Conn is the outbound side of a watcher connection. Calls come from a
// single goroutine.
type Conn interface {
	Send(msg Message) error
	Ping() error
	Close() error
}

type snapshotter interface {
	ReadAll(ctx context.Context, key models.FileKey) ([]models.Submission, error)
}

type subscriber interface {
	Subscribe(topic models.Topic, sub hub.Subscriber) *hub.Subscription
}

// Options tunes a session.
type Options struct {
	Buffer       int
	PingInterval time.Duration
	Logger       *zap.Logger
}

// Session is one watcher. Create it with New and drive it with Run.
type Session struct {
	key      models.FileKey
	username string
	hub      subscriber
	store    snapshotter
	logger   *zap.Logger
	ping     time.Duration

	out    chan Message
	done   chan struct{}
	once   sync.Once
	reason error

	mu    sync.Mutex
	state State
	sub   *hub.Subscription
}

// New constructs a session for username watching key. An empty username
// means the caller could not be identified.
func New(key models.FileKey, username string, h subscriber, store snapshotter, opts Options) *Session {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Session{
		key:      key,
		username: username,
		hub:      h,
		store:    store,
		logger:   opts.Logger,
		ping:     opts.PingInterval,
		out:      make(chan Message, opts.Buffer),
		done:     make(chan struct{}),
		state:    StateConnecting,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Deliver implements hub.Subscriber. It never blocks: a full buffer ends
// the session instead. A session that is already ending reports
// hub.ErrDetached.
func (s *Session) Deliver(event models.ChangeEvent) error {
	if event.File != s.key.File {
		return nil
	}
	select {
	case <-s.done:
		return hub.ErrDetached
	default:
	}
	select {
	case s.out <- Message{Username: event.Username, Content: event.Content, File: event.File}:
		return nil
	default:
		s.stop(ErrSlowConsumer)
		return ErrSlowConsumer
	}
}

// Run attaches the session and streams to conn until ctx is done, the
// connection fails, or the session is stopped. The subscription is always
// removed before Run returns. A session closed by Close returns nil.
func (s *Session) Run(ctx context.Context, conn Conn) error {
	s.setState(StateAuthenticating)
	if s.username == "" {
		s.setState(StateClosed)
		_ = conn.Close()
		return ErrUnauthenticated
	}

	s.mu.Lock()
	s.sub = s.hub.Subscribe(s.key.Topic, s)
	s.state = StateAttached
	s.mu.Unlock()
	defer s.Close(conn)

	s.logger.Info("watch attached",
		zap.String("topic", s.key.Topic.String()),
		zap.String("file", s.key.File),
		zap.String("username", s.username),
	)

	snapshot, err := s.store.ReadAll(ctx, s.key)
	if err != nil {
		return err
	}
	for _, sub := range snapshot {
		if err := conn.Send(Message{Username: sub.Username, Content: sub.Content}); err != nil {
			return err
		}
	}

	var tick <-chan time.Time
	if s.ping > 0 {
		ticker := time.NewTicker(s.ping)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return s.reason
		case msg := <-s.out:
			if err := conn.Send(msg); err != nil {
				return err
			}
		case <-tick:
			if err := conn.Ping(); err != nil {
				return err
			}
		}
	}
}

// Close deregisters from the hub and then closes conn. Safe to call more
// than once.
func (s *Session) Close(conn Conn) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	sub := s.sub
	s.mu.Unlock()

	s.stop(nil)
	if sub != nil {
		sub.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.logger.Info("watch detached",
		zap.String("topic", s.key.Topic.String()),
		zap.String("file", s.key.File),
		zap.String("username", s.username),
	)
}

// stop ends Run with reason. Only the first call counts.
func (s *Session) stop(reason error) {
	s.once.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
