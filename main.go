package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"detectorgo/internal/api"
	"detectorgo/internal/config"
	"detectorgo/internal/document"
	"detectorgo/internal/identity"
	"detectorgo/internal/logging"
	"detectorgo/internal/redis"
	"detectorgo/internal/repository"
	"detectorgo/internal/service/detector"
	"detectorgo/internal/service/inference"
	"detectorgo/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("DETECTOR_CONFIG"))
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.BasicConfig.LogLevel, cfg.BasicConfig.PrettyLogs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbType := cfg.BasicConfig.Database
	logger.Info().Str("db_type", dbType).Msg("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	// Create necessary tables: app_users, predictions, feedbacks, auth tables
	if err := storage.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migrate database")
	}

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("create redis client")
		}
		defer rdb.Close()
	}

	identities, err := newIdentityProvider(ctx, cfg, db, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init identity provider")
	}

	classifier, err := inference.New(ctx, cfg.Inference)
	if err != nil {
		logger.Fatal().Err(err).Msg("init classifier")
	}
	extractor, err := document.NewExtractor(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("init pdf extractor")
	}

	deps := detector.Deps{
		Users:       repository.NewUserRepository(db),
		Predictions: repository.NewPredictionRepository(db),
		Feedbacks:   repository.NewFeedbackRepository(db),
		Identities:  identities,
		Classifier:  classifier,
		Extractor:   extractor,
		Logger:      logger,
	}
	if cfg.Documents.Enabled() {
		archive, err := storage.NewMinioStore(ctx, cfg.Documents)
		if err != nil {
			logger.Fatal().Err(err).Msg("minio connect")
		}
		deps.Archive = archive
	}
	handlers := api.NewHandler(detector.NewService(deps), cfg.BasicConfig.MaxUploadBytes)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger(logger), logging.CORS(logging.CORSOptions(cfg.BasicConfig.AllowedOrigins)))
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("model", classifier.ModelName()).Msg("detector listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func newIdentityProvider(ctx context.Context, cfg *config.Config, db *storage.DB, rdb *redis.Client, logger zerolog.Logger) (identity.Provider, error) {
	timeout := time.Duration(cfg.Identity.TimeoutSeconds) * time.Second
	switch cfg.Identity.Provider {
	case "gotrue":
		return identity.NewGoTrue(cfg.Identity.URL, cfg.Identity.APIKey, timeout), nil
	case "local":
		ttl := time.Duration(cfg.Identity.TokenTTLMinutes) * time.Minute
		local := identity.NewLocal(db, rdb, cfg.Identity.JWTSecret, ttl, logger)
		local.StartJanitor(ctx, time.Duration(cfg.Identity.CleanupIntervalMinutes)*time.Minute)
		return local, nil
	default:
		return nil, errors.New("unsupported identity provider: " + cfg.Identity.Provider)
	}
}
