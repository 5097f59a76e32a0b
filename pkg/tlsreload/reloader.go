// Package tlsreload serves a certificate pair from disk and picks up renewals
// without restarting the listener.
package tlsreload

import (
	"context"
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultInterval is how often the pair is re-read when no file event arrives.
const DefaultInterval = 24 * time.Hour

// Reloader holds the current certificate for tls.Config.GetCertificate.
type Reloader struct {
	certFile string
	keyFile  string
	logger   *zap.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

// New loads the pair once. It fails when the files cannot be used.
func New(certFile, keyFile string, logger *zap.Logger) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reloader{certFile: certFile, keyFile: keyFile, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the pair. On failure the previous certificate stays in use.
func (r *Reloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("load tls key pair: %w", err)
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// TLSConfig returns a server config backed by the reloader.
func (r *Reloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}

// Run reloads every interval and whenever the certificate directory changes,
// until ctx is done.
func (r *Reloader) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(r.certFile)); err != nil {
			r.logger.Warn("tls watch unavailable, using interval only", zap.Error(err))
		} else {
			events = watcher.Events
		}
	} else {
		r.logger.Warn("tls watch unavailable, using interval only", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reloadAndLog("interval")
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				name := filepath.Clean(ev.Name)
				if name == filepath.Clean(r.certFile) || name == filepath.Clean(r.keyFile) {
					r.reloadAndLog("file change")
				}
			}
		}
	}
}

func (r *Reloader) reloadAndLog(trigger string) {
	if err := r.Reload(); err != nil {
		r.logger.Warn("tls reload failed, keeping previous certificate", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	r.logger.Info("tls certificate reloaded", zap.String("trigger", trigger))
}
