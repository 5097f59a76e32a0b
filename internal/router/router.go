// Package router wires handlers and middleware into the HTTP surface.
package router

import (
	"errors"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/asterism/api/swagger"
	"github.com/noah-isme/asterism/internal/dto"
	"github.com/noah-isme/asterism/internal/handler"
	"github.com/noah-isme/asterism/internal/hub"
	"github.com/noah-isme/asterism/internal/middleware"
	"github.com/noah-isme/asterism/internal/service"
	"github.com/noah-isme/asterism/pkg/config"
	"github.com/noah-isme/asterism/pkg/logger"
	corsmiddleware "github.com/noah-isme/asterism/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/asterism/pkg/middleware/requestid"
	"github.com/noah-isme/asterism/pkg/signer"
)

// Dependencies are the long-lived services behind the routes.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *service.MetricsService
	Hub       *hub.Hub
	Codec     *signer.Codec
	Links     *service.LinkService
	Sync      *service.SyncService
	Sessions  *service.SessionService
	Staff     *service.StaffService
	Exercises *service.ExerciseService
	Exports   *service.ExportService

	AwaitLimiter *middleware.RateLimiter
	PushLimiter  *middleware.RateLimiter

	Checks map[string]handler.ReadinessCheck
}

// New builds the gin engine.
func New(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, errors.New("router: config is required")
	}
	if deps.Codec == nil || deps.Sessions == nil || deps.Links == nil || deps.Sync == nil || deps.Hub == nil {
		return nil, errors.New("router: codec, sessions, links, sync and hub are required")
	}
	if deps.Staff == nil || deps.Exercises == nil {
		return nil, errors.New("router: staff and exercises are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if err := dto.RegisterValidators(); err != nil {
		return nil, err
	}

	cfg := deps.Config
	logr := deps.Logger

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	observability := handler.NewMetricsHandler(nil, deps.Checks)
	if deps.Metrics != nil {
		observability = handler.NewMetricsHandler(deps.Metrics, deps.Checks)
	}
	r.GET("/health", observability.Health)
	r.GET("/ready", observability.Ready)
	r.GET("/metrics", observability.Prometheus)
	r.GET("/stats", observability.Stats)

	if cfg.Docs.Enabled {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	sessionHandler := handler.NewSessionHandler(deps.Sessions, cfg.Session.CookieName, cfg.Session.Secure)
	if cfg.Env == config.EnvDevelopment {
		r.GET("/dev/login/:username", sessionHandler.DevLogin)
		logr.Warn("development login enabled", zap.String("path", "/dev/login/:username"))
	}

	exerciseHandler := handler.NewExerciseHandler(deps.Exercises)
	r.GET("/bundle/:signature/:course/:section/:archive", exerciseHandler.Bundle)

	requireSession := middleware.Session(deps.Sessions, middleware.SessionOptions{
		CookieName: cfg.Session.CookieName,
		LoginURL:   cfg.Session.LoginURL,
	})
	staffOnly := middleware.StaffOnly(deps.Staff)
	userToken := middleware.UserToken(deps.Codec, logr)

	linkHandler := handler.NewLinkHandler(deps.Links, deps.Codec, logr)
	syncHandler := handler.NewSyncHandler(deps.Sync, cfg.Push.MaxBytes)
	watchHandler := handler.NewWatchHandler(deps.Hub, deps.Sync, deps.Staff, handler.WatchOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}, logr)

	section := r.Group("/:course/:section")
	{
		section.GET("/start/:uuid", requireSession, linkHandler.Start)
		section.GET("/await/:uuid", middleware.RateLimit(deps.AwaitLimiter, middleware.ByParam("uuid"), logr), linkHandler.Await)

		client := section.Group("")
		client.Use(userToken, middleware.RateLimit(deps.PushLimiter, middleware.ByUsername, logr))
		client.POST("/push/:exercise/:file/:token", syncHandler.Push)
		client.GET("/pull/:exercise/:file/:token", syncHandler.Pull)

		staff := section.Group("")
		staff.Use(requireSession, staffOnly)
		staff.GET("/exercise/:exercise", middleware.Audit(logr, "exercise.view"), exerciseHandler.Exercise)
		if cfg.Exports.Enabled && deps.Exports != nil {
			exportHandler := handler.NewExportHandler(deps.Exports)
			staff.GET("/export/:exercise/:file", middleware.Audit(logr, "snapshot.export"), exportHandler.Export)
		}

		section.GET("/watch/:exercise/:file",
			middleware.OptionalSession(deps.Sessions, cfg.Session.CookieName),
			middleware.Audit(logr, "watch.session"),
			watchHandler.Watch,
		)
	}

	return r, nil
}
