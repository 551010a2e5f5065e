package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/dmarves/toolshare/internal/cache"
	"github.com/dmarves/toolshare/internal/config"
	"github.com/dmarves/toolshare/internal/database"
	"github.com/dmarves/toolshare/internal/handler"
	"github.com/dmarves/toolshare/internal/middleware"
	"github.com/dmarves/toolshare/internal/queue"
	"github.com/dmarves/toolshare/internal/repository"
	"github.com/dmarves/toolshare/internal/router"
	"github.com/dmarves/toolshare/internal/service"
)

func main() {
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()

	cfg := config.Load()
	cacheCfg := config.LoadCacheConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer func() { _ = db.Close() }()

	// Redis backs both the cache namespace and the login rate limiter.
	// A missing Redis degrades to cache misses and unlimited requests.
	rdb := config.NewRedisClient()
	store := cache.NewRedisStore(rdb)

	users := repository.NewUserRepo(db)
	tools := repository.NewToolRepo(db)
	ratings := repository.NewRatingRepo(db)
	tokens := repository.NewTokenRepo(db)
	codes := repository.NewTwoFactorRepo(db)
	audit := service.NewAuditRecorder(repository.NewAuditRepo(db))

	authH := handler.NewAuthHandler(cfg, users, tokens, codes, service.AMQPCodePublisher{}, audit)
	toolH := handler.NewToolHandler(tools, ratings, store, audit, cacheCfg)
	adminH := handler.NewAdminHandler(users, audit)

	// Development stand-in for the external messenger: drains the code
	// queue into logs/notify.log. Runs until the process exits.
	go func() {
		if err := queue.StartNotifyConsumer(); err != nil {
			log.Printf("notify-consumer: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler(cfg.Dev())

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, cfg.JWTSecret, limit)
	router.RegisterTools(e, toolH, cfg.JWTSecret)
	router.RegisterAdmin(e, adminH, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// errorHandler renders uncaught errors as {"detail": ...}. Outside
// development the body is a generic message so internals never leak.
func errorHandler(dev bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		detail := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			detail = http.StatusText(code)
			if s, ok := he.Message.(string); ok {
				detail = s
			}
		} else if dev {
			detail = err.Error()
		}
		if code >= http.StatusInternalServerError {
			c.Logger().Error(err)
			if !dev {
				detail = "internal server error"
			}
		}
		_ = c.JSON(code, echo.Map{"detail": detail})
	}
}
