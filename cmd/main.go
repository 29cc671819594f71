package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisclient "github.com/harborlight/careledger-backend/internal/clients/redis"
	"github.com/harborlight/careledger-backend/internal/db"
	"github.com/harborlight/careledger-backend/internal/handlers"
	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/middleware"
	"github.com/harborlight/careledger-backend/internal/repos"
	"github.com/harborlight/careledger-backend/internal/server"
	"github.com/harborlight/careledger-backend/internal/services"
	"github.com/harborlight/careledger-backend/internal/sse"
	"github.com/harborlight/careledger-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	port := utils.GetEnv("PORT", "8080", log)

	// Record store
	storeService, err := db.NewStoreService(log)
	if err != nil {
		log.Error("Record store init failed", "error", err)
		os.Exit(1)
	}
	if err = storeService.AutoMigrateAll(); err != nil {
		log.Error("Record store auto migration failed", "error", err)
		os.Exit(1)
	}
	theDB := storeService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	clientRepo := repos.NewClientRepo(theDB, log)
	carePlanRepo := repos.NewCarePlanRepo(theDB, log)
	activityLogRepo := repos.NewActivityLogRepo(theDB, log)

	// Activity feed
	log.Info("Setting up activity feed hub now...")
	feedHub := sse.NewFeedHub(log)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var activityBus redisclient.ActivityBus
	if bus, err := redisclient.NewActivityBus(log); err != nil {
		log.Warn("Could not init redis activity bus; running in-process only", "error", err)
	} else {
		activityBus = bus
		defer activityBus.Close()
		if err := activityBus.StartForwarder(ctx, feedHub.Broadcast); err != nil {
			log.Warn("Could not start redis activity forwarder", "error", err)
			activityBus = nil
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	activityLogService := services.NewActivityLogService(theDB, log, activityLogRepo, feedHub, activityBus)
	clientService := services.NewClientService(theDB, log, clientRepo, activityLogService)
	carePlanService := services.NewCarePlanService(theDB, log, clientRepo, carePlanRepo, activityLogService)

	// Handlers
	log.Info("Setting up Handlers from main...")
	clientHandler := handlers.NewClientHandler(log, clientService)
	carePlanHandler := handlers.NewCarePlanHandler(log, carePlanService)
	activityLogHandler := handlers.NewActivityLogHandler(log, activityLogService)
	activityFeedHandler := handlers.NewActivityFeedHandler(log, feedHub)

	// Middleware
	actorMiddleware := middleware.NewActorMiddleware(log)

	// Router
	router := server.NewRouter(server.RouterConfig{
		ActorMiddleware:    actorMiddleware,
		ClientHandler:      clientHandler,
		CarePlanHandler:    carePlanHandler,
		ActivityLogHandler: activityLogHandler,
		ActivityFeed:       activityFeedHandler,
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("Starting HTTP server...", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}
	log.Info("Shutdown complete")
}
