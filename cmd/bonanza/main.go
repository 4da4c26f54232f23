package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/worckguarddev/ton-trip-bonanza/config"
	"github.com/worckguarddev/ton-trip-bonanza/db"
	"github.com/worckguarddev/ton-trip-bonanza/internal/bot"
	"github.com/worckguarddev/ton-trip-bonanza/internal/cache"
	"github.com/worckguarddev/ton-trip-bonanza/internal/events"
	"github.com/worckguarddev/ton-trip-bonanza/internal/handler"
	"github.com/worckguarddev/ton-trip-bonanza/internal/middleware"
	"github.com/worckguarddev/ton-trip-bonanza/internal/repository"
	"github.com/worckguarddev/ton-trip-bonanza/internal/service"
	"github.com/worckguarddev/ton-trip-bonanza/internal/tracing"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", ".env", "Path to the env config file")
	flag.Parse()

	logger := utils.InitLogger()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config: ", err)
	}
	logger = utils.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.ConnectDb(cfg.DB_URL, logger)
	if err != nil {
		logger.Fatal(err)
	}
	if err := db.Migrate(database, cfg.Migrate, logger); err != nil {
		logger.Fatal(err)
	}

	if err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: tracing.ServiceName,
		Version:     version,
	}); err != nil {
		logger.Warnf("Tracing disabled: %v", err)
	}

	var c cache.Cache = cache.NewInMemoryCache()
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warnf("Redis unavailable, using in-memory cache: %v", err)
		} else {
			defer redisCache.Close()
			c = redisCache
			logger.Infof("✅ Redis cache at %s", cfg.RedisAddr)
		}
	}

	eventManager := events.NewManager(true, logger)

	repo := repository.NewRepository(database, logger)
	svc := service.NewService(repo, &cfg, c, eventManager, logger)
	adminSvc := service.NewAdminService(repo, c, eventManager, logger)

	if cfg.TelegramBotToken != "" {
		telegramBot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			logger.Fatal("Failed to create bot API: ", err)
		}
		b := bot.NewBot(telegramBot, svc, adminSvc, logger, &cfg)
		b.RegisterEventHandlers(eventManager)
		go b.Start(ctx)
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, bot and init data checks are disabled")
	}

	if cfg.DevUserID != 0 {
		logger.Warnf("DEV_USER_ID=%d: requests without init data act as this user", cfg.DevUserID)
	}

	h := handler.NewHandler(svc, adminSvc, logger)
	router := handler.NewRouter(h, handler.RouterOptions{
		Auth: middleware.AuthConfig{
			BotToken:  cfg.TelegramBotToken,
			MaxAge:    cfg.InitDataMaxAge,
			DevUserID: cfg.DevUserID,
		},
		IsAdmin:        cfg.IsAdmin,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Error closing server: %v", err)
		}
	}()

	logger.Infof("Starting HTTP server on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}

	eventManager.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Tracing shutdown: %v", err)
	}
	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("Bye")
}
