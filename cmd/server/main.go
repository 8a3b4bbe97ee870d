// Command server runs the WorldFriends HTTP API.
//
//go:generate swag init -g cmd/server/main.go -o docs --parseInternal
//
//	@title						WorldFriends API
//	@version					1.0
//	@description				Messaging, friendships, groups, feed and notifications.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
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
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	_ "github.com/tbourn/worldfriends-backend/docs"
	"github.com/tbourn/worldfriends-backend/internal/auth"
	"github.com/tbourn/worldfriends-backend/internal/config"
	httpapi "github.com/tbourn/worldfriends-backend/internal/http"
	"github.com/tbourn/worldfriends-backend/internal/observability"
	"github.com/tbourn/worldfriends-backend/internal/realtime"
	"github.com/tbourn/worldfriends-backend/internal/repo"
	"github.com/tbourn/worldfriends-backend/internal/storage"
	"github.com/tbourn/worldfriends-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 10 * time.Second

func appVersion() string { return sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version) }

func main() {
	// A missing .env is fine; the environment wins anyway.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stdout, sysutil.LogOptions{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: cfg.OTEL.ServiceName,
		Version: appVersion(),
	})
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion())
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	db, err := repo.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	blobs, err := newBlobs(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	hub := realtime.NewHub()
	var events realtime.Publisher = hub
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		events = realtime.NewRedisPublisher(client)
		go func() {
			if err := realtime.Relay(ctx, client, hub); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("realtime relay stopped")
			}
		}()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("realtime fan-out via redis")
	}

	go purgeIdempotency(ctx, db, cfg.IdempotencyPurge)

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Tokens:   auth.NewResolver(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		Blobs:    blobs,
		Events:   events,
		Realtime: hub,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	log.Info().Msg("server stopped gracefully")
	return nil
}

func newBlobs(ctx context.Context, sc config.StorageConfig) (storage.Blobs, error) {
	if sc.S3Bucket == "" {
		return storage.NewStatic(sc.StaticBaseURL), nil
	}
	s3, err := storage.NewS3(ctx, storage.S3Config{
		Region:     sc.S3Region,
		Bucket:     sc.S3Bucket,
		AccessKey:  sc.S3AccessKey,
		SecretKey:  sc.S3SecretKey,
		Endpoint:   sc.S3Endpoint,
		PublicBase: sc.S3PublicBase,
		PresignTTL: sc.S3PresignTTL,
	})
	if err != nil {
		return nil, err
	}
	return s3, nil
}

// purgeIdempotency drops expired Idempotency-Key records every interval
// until ctx is done.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("idempotency keys purged")
			}
		}
	}
}
