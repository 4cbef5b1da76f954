package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"linkpage/api/internal/app"
	"linkpage/api/internal/config"
	"linkpage/api/internal/media"
	"linkpage/api/internal/ratelimit"
	"linkpage/api/internal/search"
	"linkpage/api/internal/session"
	"linkpage/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "rollback" {
		rollback(ctx, cfg, os.Args[2:])
		return
	}

	var (
		dataStore app.DataStore
		db        *sql.DB
	)
	if store.IsMemoryURL(cfg.DatabaseURL) {
		log.Printf("Using in-memory store (data is lost on restart)")
		dataStore = store.NewMemoryStore()
	} else {
		var err error
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		dataStore = store.NewPostgresStore(db)
	}

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := session.Dial(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer client.Close()
		redisClient = client
	}

	var service *app.Service
	if redisClient != nil {
		log.Printf("Using Redis for refresh token storage")
		service = app.NewWithSessionStore(cfg, dataStore, session.NewRedisStoreWithClient(redisClient))
	} else {
		service = app.New(cfg, dataStore)
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	var fallback search.Searcher = search.NewScan(service.SearchRecords)
	if db != nil {
		fallback = search.NewPgFTS(db)
	}
	service.SetSearch(search.NewService(meiliClient, fallback))
	if meiliClient != nil {
		go func() {
			reindexCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			defer cancel()
			service.ReindexSearch(reindexCtx)
		}()
	}

	mediaCfg := media.Config{
		Endpoint:  cfg.MediaEndpoint,
		AccessKey: cfg.MediaAccessKey,
		SecretKey: cfg.MediaSecretKey,
		Bucket:    cfg.MediaBucket,
		UseSSL:    cfg.MediaUseSSL,
		PublicURL: cfg.MediaPublicURL,
		MaxBytes:  cfg.MediaMaxBytes,
	}
	if mediaCfg.IsConfigured() {
		uploader, err := media.NewUploader(ctx, mediaCfg)
		if err != nil {
			log.Printf("WARNING: avatar uploads disabled: %v", err)
		} else {
			service.SetAvatarUploader(uploader)
		}
	}

	if !service.SMTPConfigured() {
		log.Printf("SMTP not configured; verification tokens are returned in API responses")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	if redisClient != nil {
		httpServer.SetRateLimiters(
			ratelimit.NewRedis(redisClient, "api", cfg.APIRateLimit, cfg.RateLimitWindow),
			ratelimit.NewRedis(redisClient, "slug", cfg.SlugCheckRateLimit, cfg.RateLimitWindow),
		)
	} else {
		httpServer.SetRateLimiters(
			ratelimit.NewMemory(cfg.APIRateLimit, cfg.RateLimitWindow),
			ratelimit.NewMemory(cfg.SlugCheckRateLimit, cfg.RateLimitWindow),
		)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Linkpage API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// rollback reverts the newest migrations; see rollbackSteps for the count.
func rollback(ctx context.Context, cfg config.Config, args []string) {
	if store.IsMemoryURL(cfg.DatabaseURL) {
		log.Fatalf("rollback needs a Postgres DATABASE_URL")
	}
	steps, err := rollbackSteps(args)
	if err != nil {
		log.Fatalf("%v", err)
	}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	reverted, err := store.RollbackMigrations(ctx, db, cfg.MigrationsDir, steps)
	if err != nil {
		log.Fatalf("rollback failed after %d migrations: %v", reverted, err)
	}
	log.Printf("Reverted %d migrations", reverted)
}

// rollbackSteps reads `rollback [n]`: no argument reverts one migration and
// an explicit 0 reverts all of them.
func rollbackSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	if len(args) > 1 {
		return 0, fmt.Errorf("rollback takes at most one step count, got %d arguments", len(args))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid step count %q", args[0])
	}
	return n, nil
}
