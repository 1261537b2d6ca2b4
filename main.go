package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"storyboard-api/api"
	"storyboard-api/autosave"
	"storyboard-api/board"
	"storyboard-api/storage"
)

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatal(err)
	}
	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	store, err := storage.New(cfg.StorageConnStr, cfg.ProjectsTable, cfg.CardsTable, cfg.CleanupQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	rc := redis.NewClient(redisOptions(cfg.RedisConnStr))
	cache := storage.NewCache(store, rc, cfg.CacheTTL)
	deduper := api.NewRedisDeduper(rc, cfg.DeduperTTL)

	authCfg := api.AuthConfig{
		Audience:    cfg.AuthAudience,
		Issuer:      cfg.issuer(),
		KeyCacheTTL: cfg.JWKSCacheTTL,
	}
	if cfg.SharedSecret != "" {
		authCfg.SharedSecret = []byte(cfg.SharedSecret)
	} else {
		jwks, err := keyfunc.Get(cfg.jwksURL(), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		authCfg.JWKS = jwks
	}
	auth := api.NewAuth(authCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	delay := autosave.WithDelay(cfg.AutosaveDelay)
	registry := board.NewRegistry(cache, logger, cfg.SessionIdleTTL, delay)
	projects := board.NewProjects(cache, registry, logger, delay)
	go registry.RunSweeper(ctx, cfg.SessionIdleTTL/2)
	go store.NewCleanupWorker(logger).Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding, api.IdempotencyKeyHeader},
	}))
	e.Use(api.GzipRequestMiddleware())
	if cfg.Pprof {
		pprof.Register(e)
	}
	api.Register(e, projects, registry, auth, deduper, logger)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	registry.Shutdown()
	projects.Close()
	if err := rc.Close(); err != nil {
		log.WithError(err).Warn("redis close")
	}
}
