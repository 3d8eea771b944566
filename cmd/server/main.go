package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"blogauth/internal/config"
	"blogauth/internal/db"
	"blogauth/internal/logging"
	"blogauth/internal/notify"
	"blogauth/internal/redis"
	"blogauth/internal/server"
	"blogauth/internal/services"
	"blogauth/internal/store"
	"blogauth/internal/token"
	"blogauth/internal/tokencache"
	"blogauth/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	gin.SetMode(cfg.GinMode)
	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn(context.Background(), "close", "err", err)
			}
		}
	}()

	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	cache, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	sender, closeSender := newNotifier(cfg, logger)
	if closeSender != nil {
		closers = append(closers, closeSender)
	}
	dispatcher := notify.NewDispatcher(sender, logger, 0)

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		return err
	}

	tokens := token.NewService(cfg.JWTSecret)
	authSvc := services.NewAuthService(st, tokens, cache, dispatcher, uploader, logger, services.AuthConfig{
		AccessTokenTTL: cfg.AccessTokenTTL,
		OTPTTL:         cfg.OTPTTL,
		PendingTTL:     cfg.PendingTTL,
		RedirectURL:    cfg.RedirectURL,
	})
	blogSvc := services.NewBlogService(st, uploader, logger)

	r := server.NewRouter(server.Deps{Auth: authSvc, Blog: blogSvc, Tokens: tokens, Logger: logger})
	logger.Info(ctx, "starting", "store", cfg.StoreDriver, "notifier", cfg.Notifier, "uploader", cfg.Uploader)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serve(ctx, srv, dispatcher, logger)
}

// serve runs srv until ctx is cancelled or the listener fails. Queued mails
// are drained on both paths before the caller closes their transport.
func serve(ctx context.Context, srv *http.Server, pending interface{ Wait() }, logger logging.Logger) error {
	defer pending.Wait()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		return store.NewMemory(db.DefaultCategories...), nil
	}
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		return nil, err
	}
	return store.NewGorm(conn), nil
}

func newCache(ctx context.Context, cfg *config.Config) (tokencache.Cache, func() error, error) {
	switch cfg.TokenCache {
	case "redis":
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return tokencache.NewRedis(rdb), rdb.Close, nil
	case "none":
		return tokencache.Disabled{}, nil, nil
	default:
		return tokencache.NewMemory(), nil, nil
	}
}

func newNotifier(cfg *config.Config, logger logging.Logger) (notify.Notifier, func() error) {
	switch cfg.Notifier {
	case "smtp":
		return notify.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From), nil
	case "kafka":
		k := notify.NewKafkaNotifier(cfg.Kafka.Broker, cfg.Kafka.Topic)
		return k, k.Close
	default:
		return notify.LogNotifier{Logger: logger}, nil
	}
}

func newUploader(ctx context.Context, cfg *config.Config) (upload.Uploader, error) {
	switch cfg.Uploader {
	case "cloudinary":
		return upload.NewCloudinary(cfg.CloudinaryURL)
	case "s3":
		return upload.NewS3(ctx, cfg.S3)
	default:
		return upload.Disabled{}, nil
	}
}
