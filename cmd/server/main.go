package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/uwcirg/truenth-portal-sub002/internal/clock"
	"github.com/uwcirg/truenth-portal-sub002/internal/config"
	"github.com/uwcirg/truenth-portal-sub002/internal/consent"
	"github.com/uwcirg/truenth-portal-sub002/internal/db"
	"github.com/uwcirg/truenth-portal-sub002/internal/events"
	"github.com/uwcirg/truenth-portal-sub002/internal/middleware"
	"github.com/uwcirg/truenth-portal-sub002/internal/protocol"
	"github.com/uwcirg/truenth-portal-sub002/internal/response"
	"github.com/uwcirg/truenth-portal-sub002/internal/timeline"
	"github.com/uwcirg/truenth-portal-sub002/internal/worker"
	"github.com/uwcirg/truenth-portal-sub002/redis"
)

func main() {
	// Load configuration
	config.LoadConfig()
	logger := config.NewLogger()

	// Connect to database
	db.ConnectDb()
	defer db.CloseDb()

	// Migrate database schema
	db.Migrate()

	if config.AppConfig.Environment == "development" {
		// Seed database with a demo protocol (for development)
		db.SeedData()
	}

	// Initialize Redis
	cache := redis.Init(config.AppConfig.RedisAddress)

	// Initialize repositories
	consentRepo := consent.NewRepository(db.AppDb)
	protocolRepo := protocol.NewRepository(db.AppDb)
	responseRepo := response.NewRepository(db.AppDb)
	timelineStore := timeline.NewStore(db.AppDb)

	// Initialize the rebuild coordinator and services
	coordinator := timeline.NewCoordinator(
		timelineStore,
		consentRepo,
		protocolRepo,
		responseRepo,
		clock.System{},
		cache,
		logger,
		config.AppConfig.ReplaceMaxRetries,
		config.AppConfig.RebuildWorkers,
	)
	timelineService := timeline.NewService(coordinator, cache, logger)
	consentService := consent.NewService(consentRepo, coordinator, logger)
	responseService := response.NewService(responseRepo, coordinator, logger)

	// Background pool for warmup rebuilds
	pool := worker.NewPool(config.AppConfig.RebuildWorkers, 100, logger)

	// Initialize handlers
	timelineHandler := timeline.NewHandler(timelineService, coordinator, pool)
	consentHandler := consent.NewHandler(consentService)
	responseHandler := response.NewHandler(responseService)

	// Initialize Gin router
	router := gin.Default()
	router.Use(middleware.ErrorHandler())

	// cors setting
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}
	if config.AppConfig.Environment == "development" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{"https://truenth.org"}
	}
	router.Use(cors.New(corsConfig))

	// internal use routes
	authGuard := &middleware.Auth{
		InternalSecret:     config.AppConfig.InternalSecret,
		ServiceTokenSecret: config.AppConfig.ServiceTokenSecret,
	}
	internal := router.Group("/internal", authGuard.InternalAuthMiddleware())

	internal.GET("/subjects/:id/studies/:study/timeline", timelineHandler.ShowTimeline)
	internal.GET("/subjects/:id/studies/:study/timeline/next-due", timelineHandler.NextDue)
	internal.GET("/subjects/:id/studies/:study/timeline/status", timelineHandler.StatusAt)
	internal.POST("/subjects/:id/studies/:study/timeline/invalidate", timelineHandler.Invalidate)
	internal.POST("/studies/:study/timeline/invalidate", timelineHandler.InvalidateStudy)
	internal.POST("/studies/:study/timeline/warmup", timelineHandler.Warmup)

	internal.POST("/subjects/:id/consents", consentHandler.Record)
	internal.GET("/subjects/:id/studies/:study/consents", consentHandler.ShowHistory)
	internal.POST("/subjects/:id/responses", responseHandler.Record)
	internal.DELETE("/responses/:responseId", responseHandler.Remove)

	// Mutation-event stream (optional)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	if config.AppConfig.KafkaBrokers != "" {
		consumer := events.NewConsumer(
			config.AppConfig.KafkaBrokers,
			config.AppConfig.KafkaTopic,
			config.AppConfig.KafkaGroupID,
			coordinator,
			logger,
		)
		defer consumer.Close()
		go consumer.Run(consumerCtx)
		log.Println("Mutation-event consumer started")
	}

	// Server configuration
	serverPort := config.AppConfig.ServerPort
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverPort),
		Handler: router.Handler(),
	}

	// Start server
	go func() {
		log.Printf("Server listening on port %s", serverPort)
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	stopConsumer()
	pool.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Println("Server shutdown error:", err)
	}

	<-ctx.Done()
	log.Println("Server shutdown complete")
}
