package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/LuckiPhoenix/idest-server/internal/cache"
	"github.com/LuckiPhoenix/idest-server/internal/config"
	"github.com/LuckiPhoenix/idest-server/internal/repository"
	"github.com/LuckiPhoenix/idest-server/internal/service"
	"github.com/LuckiPhoenix/idest-server/internal/transport/rest"
	"github.com/LuckiPhoenix/idest-server/internal/transport/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal().Err(err).Msg("failed to ping MongoDB")
	}
	log.Info().Msg("connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping Redis")
	}
	log.Info().Msg("connected to Redis")

	// WebSocket hub
	wsHub := ws.NewHub()

	// Repositories
	sessionRepo := repository.NewSessionRepo(db)
	classRepo := repository.NewClassRepo(db)
	userRepo := repository.NewUserRepo(db)
	recordingRepo := repository.NewRecordingRepo(db)
	chatRepo := repository.NewChatRepo(db)

	// Caches
	sessionCache := cache.NewSessionCache(rdb)

	// Media provider and recording storage
	media := service.NewLiveKitService(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, service.RecordingUpload{
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		Bucket:    cfg.S3Bucket,
	})
	resolver, err := service.NewS3URLResolver(ctx,
		cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Region, cfg.S3Endpoint, cfg.S3Bucket,
		time.Duration(cfg.SignedURLExpirySeconds)*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build storage resolver")
	}

	// Services
	authSvc := service.NewAuthService(cfg.JWTSecret)
	policy := service.NewAccessPolicy()
	presence := service.NewPresenceRegistry()
	screenLock := service.NewResourceLock("screen share")
	canvasLock := service.NewResourceLock("canvas")
	canvasSvc := service.NewCanvasService(sessionRepo, sessionCache, canvasLock)
	recordingSvc := service.NewRecordingService(sessionRepo, classRepo, recordingRepo, sessionCache,
		media, resolver, policy, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.RecordingBaseURL)
	coordinator := service.NewSessionCoordinator(sessionRepo, classRepo, userRepo, chatRepo,
		sessionCache, presence, screenLock, canvasSvc, media, policy)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	coordinator.SetBroadcaster(wsHub)

	router := rest.NewRouter(&rest.Container{
		AuthService:      authSvc,
		Coordinator:      coordinator,
		RecordingService: recordingSvc,
		WSHub:            wsHub,
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen and serve")
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
