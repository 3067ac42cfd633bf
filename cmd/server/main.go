// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ofisk/loresmith-ai-sub003/internal/config"
	"github.com/ofisk/loresmith-ai-sub003/internal/handler"
	"github.com/ofisk/loresmith-ai-sub003/internal/middleware"
	"github.com/ofisk/loresmith-ai-sub003/internal/model"
	"github.com/ofisk/loresmith-ai-sub003/internal/notify"
	"github.com/ofisk/loresmith-ai-sub003/internal/pipeline"
	"github.com/ofisk/loresmith-ai-sub003/internal/repository"
	"github.com/ofisk/loresmith-ai-sub003/internal/service"
	"github.com/ofisk/loresmith-ai-sub003/pkg/database"
	"github.com/ofisk/loresmith-ai-sub003/pkg/es"
	"github.com/ofisk/loresmith-ai-sub003/pkg/extraction"
	"github.com/ofisk/loresmith-ai-sub003/pkg/kafka"
	"github.com/ofisk/loresmith-ai-sub003/pkg/log"
	"github.com/ofisk/loresmith-ai-sub003/pkg/storage"
	"github.com/ofisk/loresmith-ai-sub003/pkg/tika"
	"github.com/ofisk/loresmith-ai-sub003/pkg/token"
)

func main() {
	// 1. Configuration.
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. Logger.
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("Logger initialized")

	// 3. Datastores.
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.Campaign{},
		&model.SourceDocument{},
		&model.ChunkInfo{},
		&model.StagingRecord{},
	); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("elasticsearch initialization failed: %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. Repositories.
	userRepo := repository.NewUserRepository(database.DB)
	campaignRepo := repository.NewCampaignRepository(database.DB)
	uploadRepo := repository.NewUploadRepository(database.DB, database.RDB)
	stagingRepo := repository.NewStagingRepository(database.DB)
	activityRepo := repository.NewActivityRepository(database.RDB)

	// 5. Services.
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	extractor := extraction.NewClient(cfg.Extraction)
	hub := notify.NewHub()

	userService := service.NewUserService(userRepo, jwtManager)
	campaignService := service.NewCampaignService(campaignRepo, uploadRepo, stagingRepo, activityRepo, cfg.MinIO, cfg.Elasticsearch)
	uploadService := service.NewUploadService(uploadRepo, cfg.MinIO)
	resourceService := service.NewResourceService(uploadRepo, stagingRepo, cfg.MinIO, cfg.Elasticsearch)
	stagingService := service.NewStagingService(stagingRepo, activityRepo, extractor, cfg.Elasticsearch)
	searchService := service.NewSearchService(stagingRepo, cfg.Elasticsearch)

	// 6. Document processing pipeline.
	processor := pipeline.NewProcessor(tikaClient, extractor, stagingService, hub, cfg.MinIO, cfg.Split)

	// 7. Background Kafka consumer.
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. Router.
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	authHandler := handler.NewAuthHandler(userService)
	campaignHandler := handler.NewCampaignHandler(campaignService)
	uploadHandler := handler.NewUploadHandler(uploadService)
	resourceHandler := handler.NewResourceHandler(resourceService)
	stagingHandler := handler.NewStagingHandler(stagingService, hub)
	searchHandler := handler.NewSearchHandler(searchService)
	notifyHandler := handler.NewNotifyHandler(hub, jwtManager)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		campaigns := apiV1.Group("/campaigns")
		campaigns.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			campaigns.POST("", campaignHandler.CreateCampaign)
			campaigns.GET("", campaignHandler.ListCampaigns)
			campaigns.GET("/:campaignId", campaignHandler.GetCampaign)
			campaigns.PUT("/:campaignId", campaignHandler.UpdateCampaign)
			campaigns.DELETE("/:campaignId", campaignHandler.DeleteCampaign)

			upload := campaigns.Group("/:campaignId/upload")
			{
				upload.POST("/check", uploadHandler.CheckFile)
				upload.POST("/chunk", uploadHandler.UploadChunk)
				upload.POST("/merge", uploadHandler.MergeChunks)
				upload.GET("/status", uploadHandler.GetUploadStatus)
				upload.POST("/fast-upload", uploadHandler.FastUpload)
			}

			resources := campaigns.Group("/:campaignId/resources")
			{
				resources.GET("", resourceHandler.ListResources)
				resources.GET("/:fileMd5/download", resourceHandler.GetDownloadURL)
				resources.DELETE("/:fileMd5", resourceHandler.DeleteResource)
			}

			staging := campaigns.Group("/:campaignId/staging")
			{
				staging.GET("", stagingHandler.ListGroups)
				staging.POST("/select-all", stagingHandler.SelectAll)
				staging.POST("/select-none", stagingHandler.SelectNone)
				staging.POST("/:id/toggle", stagingHandler.ToggleSelection)
				staging.POST("/approve", stagingHandler.ApproveSelected)
				staging.POST("/reject", stagingHandler.RejectSelected)
				staging.POST("/:id/approve", stagingHandler.ApproveOne)
				staging.POST("/:id/reject", stagingHandler.RejectOne)
				staging.DELETE("/:id", stagingHandler.DeleteShard)
				staging.GET("/:id/properties", stagingHandler.ShardProperties)
				staging.PUT("/:id/content", stagingHandler.UpdateContent)
				staging.POST("/:id/fill-field", stagingHandler.FillField)
				staging.GET("/search", stagingHandler.SearchApproved)
				staging.GET("/activity", stagingHandler.Activity)
			}

			campaigns.GET("/:campaignId/search", searchHandler.Search)
		}
	}

	// Websocket subscription: the token travels in the path because
	// browsers cannot set headers on websocket connections.
	r.GET("/ws/campaigns/:campaignId/:token", notifyHandler.Subscribe)

	// 9. HTTP server with graceful shutdown.
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}

	log.Info("server stopped")
}
