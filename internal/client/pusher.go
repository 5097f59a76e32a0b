package client

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/jobs"
)

const (
	// DefaultDebounce coalesces the burst of events an editor emits per save.
	DefaultDebounce = 300 * time.Millisecond
	// DefaultDuration is how long a push session runs before stopping.
	DefaultDuration = time.Hour
	// DefaultRetries bounds how often a failed push is attempted again.
	DefaultRetries = 5
	// DefaultRetryDelay is the base backoff between push attempts.
	DefaultRetryDelay = 2 * time.Second
)

type pushTarget interface {
	Push(ctx context.Context, file, token, content string) error
}

// PushOptions tunes a Pusher.
type PushOptions struct {
	Debounce   time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// OnPush is called after each successful push.
	OnPush func(name string)
	Logger *zap.Logger
}

// Pusher watches marked files and pushes each saved version once.
type Pusher struct {
	target    pushTarget
	token     string
	serverURL string
	files     map[string]string // absolute path -> name
	debounce  time.Duration
	onPush    func(string)
	logger    *zap.Logger
	queue     *jobs.Queue[string]

	mu      sync.Mutex
	sent    map[string][sha256.Size]byte
	pending map[string]*time.Timer
}

// NewPusher prepares a Pusher for markers. Only markers whose mode pushes
// are watched.
func NewPusher(target pushTarget, token, serverURL string, markers []Marker, opts PushOptions) *Pusher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	files := make(map[string]string)
	for _, m := range markers {
		if !m.Mode.Pushes() {
			continue
		}
		abs, err := filepath.Abs(m.Path)
		if err != nil {
			abs = m.Path
		}
		files[filepath.Clean(abs)] = m.Name
	}
	p := &Pusher{
		target:    target,
		token:     token,
		serverURL: serverURL,
		files:     files,
		debounce:  opts.Debounce,
		onPush:    opts.OnPush,
		logger:    opts.Logger,
		sent:      make(map[string][sha256.Size]byte),
		pending:   make(map[string]*time.Timer),
	}
	// One worker keeps pushes of the same file in save order.
	p.queue = jobs.NewQueue("push", p.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: len(files) * 4,
		MaxRetries: opts.MaxRetries,
		RetryDelay: opts.RetryDelay,
		Coalesce:   true,
		Logger:     opts.Logger,
	})
	return p
}

// Files returns how many files are being pushed.
func (p *Pusher) Files() int { return len(p.files) }

// Run pushes every file once, then again after each change, until ctx is
// done. Directories are watched rather than files so editors that replace
// files on save are followed.
func (p *Pusher) Run(ctx context.Context) error {
	if len(p.files) == 0 {
		return errors.New("no files to push")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := make(map[string]struct{})
	for path := range p.files {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return err
		}
	}

	p.queue.Start(ctx)
	defer p.queue.Stop()
	defer p.stopTimers()

	for path := range p.files {
		p.enqueue(path)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			path := filepath.Clean(ev.Name)
			if _, tracked := p.files[path]; tracked {
				p.schedule(path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("file watch error", zap.Error(err))
		}
	}
}

func (p *Pusher) schedule(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.pending[path]; ok {
		t.Stop()
	}
	p.pending[path] = time.AfterFunc(p.debounce, func() {
		p.mu.Lock()
		delete(p.pending, path)
		p.mu.Unlock()
		p.enqueue(path)
	})
}

// enqueue asks the worker to sync path. A job already waiting for path
// reads the file when it runs, so coalesced or rejected jobs lose nothing.
func (p *Pusher) enqueue(path string) {
	if err := p.queue.TryEnqueue(jobs.Job[string]{Key: p.files[path], Payload: path}); err != nil {
		p.logger.Debug("push not queued", zap.String("file", p.files[path]), zap.Error(err))
	}
}

func (p *Pusher) handle(ctx context.Context, job jobs.Job[string]) error {
	return p.sync(ctx, job.Payload)
}

func (p *Pusher) stopTimers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for path, t := range p.pending {
		t.Stop()
		delete(p.pending, path)
	}
}

// sync pushes path when its content differs from the last pushed version
// and it still carries a valid marker. Only a failed push is reported, so
// the queue retries it with whatever the file holds by then.
func (p *Pusher) sync(ctx context.Context, path string) error {
	if ctx.Err() != nil {
		return nil
	}
	name := p.files[path]
	marker, err := ScanFile(path, p.serverURL)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("cannot read file", zap.String("file", name), zap.Error(err))
		}
		return nil
	}
	if marker == nil || !marker.Mode.Pushes() {
		p.logger.Debug("marker gone, skipping", zap.String("file", name))
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		p.logger.Warn("cannot read file", zap.String("file", name), zap.Error(err))
		return nil
	}
	digest := sha256.Sum256(raw)

	p.mu.Lock()
	last, seen := p.sent[path]
	p.mu.Unlock()
	if seen && last == digest {
		return nil
	}

	if err := p.target.Push(ctx, name, p.token, string(raw)); err != nil {
		var status *StatusError
		if errors.As(err, &status) && !appErrors.Retryable(status.Status) {
			p.logger.Error("push rejected", zap.String("file", name), zap.Error(err))
			return nil
		}
		return err
	}
	p.mu.Lock()
	p.sent[path] = digest
	p.mu.Unlock()
	p.logger.Info("pushed", zap.String("file", name), zap.Int("bytes", len(raw)))
	if p.onPush != nil {
		p.onPush(name)
	}
	return nil
}
