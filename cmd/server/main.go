package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/salonkit/mediavault/internal/middleware"
	"github.com/salonkit/mediavault/internal/rest"
	"github.com/salonkit/mediavault/media/application"
	"github.com/salonkit/mediavault/media/persistence"
	"github.com/salonkit/mediavault/media/storage"
	"github.com/salonkit/mediavault/media/usage"
	"github.com/salonkit/mediavault/shared/config"
	"github.com/salonkit/mediavault/shared/db/sqlite"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize dependencies
	database := sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: cfg.SQLitePath})
	if err := database.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	store, err := storage.NewDiskStore(cfg.StorageDir, cfg.PublicBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize blob store")
	}

	registry := usage.NewRegistry(cfg.ResolverTimeout, log.Logger)
	usage.RegisterCMSResolvers(registry, database.DB())

	assetRepo := persistence.NewAssetRepository(database.DB())
	gate := application.NewAccessGate([]byte(cfg.ConfirmationSecret), cfg.ConfirmationTTL)

	catalog := application.NewCatalogService(assetRepo, store, registry, gate, application.UploadLimits{
		MaxSizeBytes:     cfg.MaxUploadBytes,
		AllowedMimeTypes: cfg.AllowedMimeSet(),
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.RequestLog())
	r.Use(middleware.CORS())
	r.Use(gin.CustomRecovery(middleware.HandlePanics()))
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	r.Static("/files", store.Dir())
	rest.NewApi(r, rest.NewMediaHandler(catalog, cfg.StatsIncludeDeleted))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to shutdown server")
	}

	log.Info().Msg("Server stopped")
}
