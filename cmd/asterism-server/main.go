package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/noah-isme/asterism/internal/handler"
	"github.com/noah-isme/asterism/internal/hub"
	"github.com/noah-isme/asterism/internal/middleware"
	"github.com/noah-isme/asterism/internal/repository"
	"github.com/noah-isme/asterism/internal/router"
	"github.com/noah-isme/asterism/internal/service"
	"github.com/noah-isme/asterism/pkg/cache"
	"github.com/noah-isme/asterism/pkg/config"
	appErrors "github.com/noah-isme/asterism/pkg/errors"
	"github.com/noah-isme/asterism/pkg/logger"
	"github.com/noah-isme/asterism/pkg/signer"
	"github.com/noah-isme/asterism/pkg/storage"
	"github.com/noah-isme/asterism/pkg/tlsreload"
)

// @title Asterism API
// @version 1.0.0
// @description Live class sync: device linking, file pushes and live watch
// @BasePath /
// @schemes https http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	courses, err := storage.NewLocalStorage(cfg.Storage.CoursesDir)
	if err != nil {
		return fmt.Errorf("courses storage: %w", err)
	}
	submissions, err := storage.NewLocalStorage(cfg.Storage.SubmissionsDir)
	if err != nil {
		return fmt.Errorf("submissions storage: %w", err)
	}

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{
		"submissions": func(context.Context) error {
			_, err := submissions.Stat(".")
			return err
		},
	}

	var rosterCache *service.RosterCache
	if cfg.Staff.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis, 3*time.Second)
		if err != nil {
			logr.Warn("redis unavailable, staff cache disabled", zap.Error(err))
		} else {
			repo := repository.NewRosterCacheRepository(client, logr)
			defer repo.Close() //nolint:errcheck
			rosterCache = service.NewRosterCache(repo, metrics, cfg.Staff.CacheTTL, logr)
			checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		}
	}

	codec := signer.NewCodec(cfg.WebSecret, cfg.Push.TokenWindowHours, nil)
	sessions, err := service.NewSessionService(cfg.WebSecret, cfg.Session.TTL)
	if err != nil {
		return err
	}
	h := hub.New(logr, metrics)
	links := service.NewLinkService(cfg.Link.Timeout, logr, metrics)
	syncSvc := service.NewSyncService(repository.NewSubmissionRepository(submissions), h, logr, metrics)

	awaitLimiter := middleware.NewRateLimiter(cfg.Link.AwaitPerMinute, cfg.Link.AwaitBurst)
	pushLimiter := middleware.NewRateLimiter(cfg.Push.RatePerMinute, cfg.Push.RateBurst)

	engine, err := router.New(router.Dependencies{
		Config:       cfg,
		Logger:       logr,
		Metrics:      metrics,
		Hub:          h,
		Codec:        codec,
		Links:        links,
		Sync:         syncSvc,
		Sessions:     sessions,
		Staff:        service.NewStaffService(repository.NewStaffRepository(courses), rosterCache, logr),
		Exercises:    service.NewExerciseService(courses, codec, cfg.HostURL, logr),
		Exports:      service.NewExportService(syncSvc, logr),
		AwaitLimiter: awaitLimiter,
		PushLimiter:  pushLimiter,
		Checks:       checks,
	})
	if err != nil {
		return err
	}

	go links.RunJanitor(ctx, time.Minute)
	go awaitLimiter.RunCleanup(ctx, 5*time.Minute)
	go pushLimiter.RunCleanup(ctx, 5*time.Minute)

	// Requests share a base context that Shutdown cancels, so pending
	// link waits and watch sockets end instead of holding Shutdown open.
	base, cancelBase := context.WithCancelCause(context.Background())
	defer cancelBase(nil)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(func() { cancelBase(appErrors.ErrShuttingDown) })

	serve := srv.ListenAndServe
	switch cfg.TLS.Mode {
	case config.TLSModeFiles:
		reloader, err := tlsreload.New(cfg.TLS.CertFile, cfg.TLS.KeyFile, logr)
		if err != nil {
			return err
		}
		go reloader.Run(ctx, cfg.TLS.ReloadInterval)
		srv.TLSConfig = reloader.TLSConfig()
		serve = func() error { return srv.ListenAndServeTLS("", "") }
	case config.TLSModeAutocert:
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.AutocertHosts...),
			Cache:      autocert.DirCache(cfg.TLS.AutocertCache),
		}
		srv.TLSConfig = manager.TLSConfig()
		challenge := &http.Server{Addr: ":80", Handler: manager.HTTPHandler(nil), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logr.Warn("acme challenge listener stopped", zap.Error(err))
			}
		}()
		defer challenge.Close() //nolint:errcheck
		serve = func() error { return srv.ListenAndServeTLS("", "") }
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "tls", cfg.TLS.Mode, "host_url", cfg.HostURL)
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
