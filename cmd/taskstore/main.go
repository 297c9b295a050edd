package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/api"
	"taskboard/config"
	"taskboard/session"
	"taskboard/storage"
)

func main() {
	cfg, err := config.LoadStore()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	rc := redis.NewClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rc.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("redis: %v", err)
	}
	cancel()

	store := storage.NewCache(storage.NewRedisStore(rc), rc, cfg.CacheTTL)
	deduper := storage.NewRedisDeduper(rc, cfg.DeduperTTL)

	var auth api.Authenticator
	switch {
	case cfg.LocalAuthSecret != "":
		auth = api.NewAuth(session.NewSharedSecretVerifier([]byte(cfg.LocalAuthSecret), cfg.AuthAudience, ""))
		log.Warn("LOCAL_AUTH_MODE=hs256: accepting locally signed tokens")
	case cfg.AuthDomain != "":
		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{RefreshInterval: time.Hour})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		auth = api.NewAuth(session.NewVerifier(jwks, cfg.AuthAudience, cfg.Issuer()))
	default:
		log.Warn("auth disabled: serving every owner without token checks")
	}

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.HeaderIdempotencyKey},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	api.Register(e, store, deduper, auth, log.StandardLogger())

	go func() {
		if err := e.Start(":" + strconv.Itoa(cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	if err := rc.Close(); err != nil {
		log.Errorf("redis close: %v", err)
	}
}
