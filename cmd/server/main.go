package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/resaleops/autopilot/internal/channel"
	"github.com/resaleops/autopilot/internal/db"
	"github.com/resaleops/autopilot/internal/handlers"
	"github.com/resaleops/autopilot/internal/ledger"
	"github.com/resaleops/autopilot/internal/logger"
	"github.com/resaleops/autopilot/internal/metrics"
	"github.com/resaleops/autopilot/internal/quota"
	"github.com/resaleops/autopilot/internal/repositories"
	"github.com/resaleops/autopilot/internal/router"
	"github.com/resaleops/autopilot/internal/services"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Database
	database, err := db.Connect(db.NewConfig())
	if err != nil {
		log.Fatal("connecting to database", zap.Error(err))
	}
	defer database.Close()
	if err := database.Health(); err != nil {
		log.Fatal("database health check", zap.Error(err))
	}
	log.Info("database connection established")

	// Quota store: Redis when configured, otherwise the shared database.
	window := quota.NewWindow(getEnvInt("QUOTA_DAILY_CAP", 250), getEnv("QUOTA_TIMEZONE", "America/Los_Angeles"))
	var quotaStore quota.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisStore := quota.NewRedisStore(quota.RedisConfig{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			UseTLS:   os.Getenv("REDIS_TLS") == "true",
		}, window, log)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisStore.Ping(ctx); err != nil {
			cancel()
			log.Fatal("redis ping", zap.Error(err))
		}
		cancel()
		quotaStore = redisStore
		log.Info("quota store using redis", zap.String("addr", addr))
	} else {
		quotaStore = quota.NewGormStore(database, window)
		log.Info("quota store using database")
	}

	// Repositories
	ruleRepo := repositories.NewRuleRepository(database)
	actionRepo := repositories.NewActionRepository(database)
	auditRepo := repositories.NewAuditRepository(database)
	connRepo := repositories.NewConnectionRepository(database)
	itemRepo := repositories.NewItemRepository(database)
	listingRepo := repositories.NewListingRepository(database)
	notificationRepo := repositories.NewNotificationRepository(database)

	m := metrics.Registry("autopilot")

	// Channels
	ebayClient := channel.NewClient(channel.NewClientConfig(
		"ebay",
		getEnv("EBAY_API_URL", "https://api.ebay.com"),
		getEnv("EBAY_TOKEN_URL", "https://api.ebay.com/identity/v1/oauth2/token"),
		os.Getenv("EBAY_CLIENT_ID"),
		os.Getenv("EBAY_CLIENT_SECRET"),
	), connRepo, quotaStore, m, log)
	registry := channel.NewRegistry()
	registry.RegisterNative("ebay", channel.NewEbayAdapter(ebayClient, log),
		channel.CapPublish, channel.CapUpdate, channel.CapReprice,
		channel.CapDelist, channel.CapRelist, channel.CapSync, channel.CapOffers)
	registry.RegisterAssisted("poshmark", map[channel.Capability]string{
		channel.CapReprice: "open the Poshmark listing and lower the price",
		channel.CapDelist:  "mark the Poshmark listing not for sale",
		channel.CapRelist:  "use Poshmark's copy listing to relist",
	})
	registry.RegisterAssisted("mercari", map[channel.Capability]string{
		channel.CapReprice: "edit the Mercari listing price",
		channel.CapDelist:  "deactivate the Mercari listing",
		channel.CapRelist:  "relist the item on Mercari",
	})
	log.Info("channels registered", zap.Strings("channels", registry.Names()))

	// Engine
	execRouter := router.NewRouter(registry, itemRepo, listingRepo, log)
	auditLedger := ledger.NewLedger(auditRepo, actionRepo, itemRepo, listingRepo, execRouter, m, log)
	notificationService := services.NewNotificationService(notificationRepo, log)
	ruleService := services.NewRuleService(ruleRepo)
	autopilotService := services.NewAutopilotService(
		ruleRepo, actionRepo, itemRepo, listingRepo,
		quotaStore, execRouter, auditLedger, notificationService, m, log)

	// HTTP
	httpRouter := handlers.NewRouter(autopilotService, ruleService, notificationService, actionRepo, auditLedger)

	port := getEnv("SERVER_PORT", "8080")
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      corsHandler(httpRouter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func corsHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
