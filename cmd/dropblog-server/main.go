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
	"github.com/rs/zerolog/log"

	"github.com/dropblog/dropblog/blog/application"
	"github.com/dropblog/dropblog/blog/persistence"
	"github.com/dropblog/dropblog/internal/middleware"
	"github.com/dropblog/dropblog/internal/rest"
	"github.com/dropblog/dropblog/shared/cache"
	"github.com/dropblog/dropblog/shared/config"
	"github.com/dropblog/dropblog/shared/db/sqlite"
	"github.com/dropblog/dropblog/shared/dropbox"
	"github.com/dropblog/dropblog/shared/ratelimit"
)

const shutdownTimeout = 5 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	sqliteDB := sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: cfg.Database.Path})
	if err := sqliteDB.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer sqliteDB.Close()

	client := dropbox.NewClient(cfg.Dropbox.AccessToken)
	limiter := ratelimit.NewLimiter(cfg.Dropbox.MaxRequests, cfg.Dropbox.Window)
	store := persistence.NewDropboxPostStore(client, limiter, persistence.DefaultFolders(cfg.Dropbox.RootFolder))

	postRepo := persistence.NewPostRepository(sqliteDB.DB())
	mediaRepo := persistence.NewMediaRepository(sqliteDB.DB())
	renderer := application.NewMarkdownRenderer(cfg.Server.BaseURL)
	contentCache := cache.New(cache.Config{
		PostTTL:         cfg.Cache.PostTTL,
		ListTTL:         cfg.Cache.ListTTL,
		StatsTTL:        cfg.Cache.StatsTTL,
		MaxPosts:        cfg.Cache.MaxPosts,
		MaxLists:        cfg.Cache.MaxLists,
		CleanupInterval: cfg.Cache.CleanupInterval,
	})

	postService := application.NewPostService(postRepo, store, mediaRepo, store, renderer, contentCache, sqliteDB.DB())

	startupCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if account, err := client.TestConnection(startupCtx); err != nil {
		log.Warn().Err(err).Msg("Dropbox connection test failed")
	} else {
		log.Info().Interface("account", account).Msg("Connected to Dropbox")
	}
	if err := store.InitializeStructure(startupCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize remote folder structure")
	}
	if count, err := postService.SyncFromRemote(startupCtx); err != nil {
		log.Warn().Err(err).Msg("Initial sync failed; serving from the existing mirror")
	} else {
		log.Info().Int("posts", count).Msg("Initial sync complete")
	}
	cancel()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestLogger())
	router.Use(gin.CustomRecovery(middleware.HandlePanics()))
	rest.NewAPI(router, postService, cfg.Server.APIKey)

	srv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to shutdown server")
	}

	log.Info().Msg("Server stopped")
}
