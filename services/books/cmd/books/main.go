package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/pflag"

	"favbooks/internal/ratelimit"
	"favbooks/internal/usertoken"
	"favbooks/internal/util"
	"favbooks/pkg/storage"
	"favbooks/pkg/store"
	"favbooks/services/books/internal/app"
	"favbooks/services/books/internal/config"
	"favbooks/services/books/internal/server"
)

func main() {
	configPath := pflag.String("config", "", "path to the YAML config file (env FAVBOOKS_CONFIG)")
	pflag.Parse()

	cfg, err := config.Load(config.ResolvePath(*configPath))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("books service stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.FileConfig, logger *slog.Logger) error {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}

	records, closeStore, err := newBookStore(cfg, awsCfg)
	if err != nil {
		return fmt.Errorf("init book store: %w", err)
	}
	defer closeStore()

	objects, err := newObjectStore(ctx, cfg, awsCfg)
	if err != nil {
		return fmt.Errorf("init attachment store: %w", err)
	}
	attachments, err := storage.NewAttachments(objects, storage.AttachmentsConfig{
		KeyPrefix:     cfg.AttachmentKeyPrefix,
		UploadExpiry:  cfg.UploadURLExpiry,
		PublicBaseURL: cfg.AttachmentPublicBase,
	})
	if err != nil {
		return fmt.Errorf("init attachments: %w", err)
	}

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:            cfg.JWKSURL,
		Issuer:             cfg.JWTIssuer,
		Audience:           cfg.JWTAudience,
		Leeway:             cfg.JWTLeeway,
		RefreshInterval:    cfg.JWKSRefreshInterval,
		MinRefetchInterval: cfg.JWKSMinRefetchInterval,
		HTTPClient:         &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		return fmt.Errorf("init token verifier: %w", err)
	}

	appCore, err := app.New(app.Config{Store: records, Attachments: attachments})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	srvCfg := server.Config{
		App:            appCore,
		Verifier:       verifier,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewFixedWindowLimiter(ratelimit.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Prefix:   "favbooks:ratelimit",
			Limit:    cfg.RateLimit,
			Window:   cfg.RateLimitWindow,
		})
		if err != nil {
			return fmt.Errorf("init rate limiter: %w", err)
		}
		defer limiter.Close()
		srvCfg.Limiter = limiter
	}
	httpServer, err := server.New(srvCfg)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("books server listening", "addr", addr, "store", cfg.Store, "attachments", cfg.Attachments)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadAWSConfig(ctx context.Context, cfg config.FileConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func newBookStore(cfg config.FileConfig, awsCfg aws.Config) (store.BookStore, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case config.StorePostgres:
		s, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return s, closer(s), nil
	case config.StoreMemory:
		return store.NewMemoryStore(), noop, nil
	default:
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
			}
		})
		s, err := store.NewDynamoStore(client, cfg.DynamoTable, cfg.DynamoOwnerIndex)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil
	}
}

func newObjectStore(ctx context.Context, cfg config.FileConfig, awsCfg aws.Config) (storage.ObjectStore, error) {
	if cfg.Attachments == config.AttachmentsMinio {
		s, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:     cfg.MinioEndpoint,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			Bucket:       cfg.S3Bucket,
			UseSSL:       cfg.MinioUseSSL,
			Region:       cfg.AWSRegion,
			EnsureBucket: cfg.MinioEnsureBucket,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.NewS3Store(awsCfg, storage.S3Options{
		Bucket:       cfg.S3Bucket,
		Endpoint:     cfg.S3Endpoint,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
}
