package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/pthm/forgewire/internal/config"
	"github.com/pthm/forgewire/lib/shared"
)

// openStore opens the shared-state store named by cfg. The returned close
// function releases its connections.
func openStore(ctx context.Context, cfg config.SharedConfig, logger *zap.Logger) (shared.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case config.DriverMemory, "":
		return shared.NewMemory(), noop, nil

	case config.DriverSQLite:
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
		store := shared.NewSQLStore(db, shared.WithSQLDialect(shared.DialectSQLite))
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("sqlite schema: %w", err)
		}
		logger.Info("shared store ready", zap.String("driver", cfg.Driver), zap.String("dsn", cfg.DSN))
		return store, db.Close, nil

	case config.DriverRedis:
		opt, err := redis.ParseURL(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		store := shared.NewRedisStore(client,
			shared.WithRedisPrefix(cfg.KeyPrefix),
			shared.WithRedisTTL(cfg.GetTTL()),
		)
		logger.Info("shared store ready", zap.String("driver", cfg.Driver), zap.String("addr", opt.Addr))
		return store, client.Close, nil

	case config.DriverS3:
		bucket, prefix, _ := strings.Cut(cfg.DSN, "/")
		client := s3.New(s3.Options{
			Region:      cfg.Region,
			Credentials: aws.NewCredentialsCache(envCredentials{}),
			BaseEndpoint: func() *string {
				if cfg.Endpoint == "" {
					return nil
				}
				return aws.String(cfg.Endpoint)
			}(),
			UsePathStyle: cfg.Endpoint != "",
		})
		logger.Info("shared store ready", zap.String("driver", cfg.Driver), zap.String("bucket", bucket))
		return shared.NewS3Store(client, bucket, prefix), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown shared driver %q", cfg.Driver)
	}
}

// envCredentials reads static credentials from the standard AWS variables.
type envCredentials struct{}

func (envCredentials) Retrieve(context.Context) (aws.Credentials, error) {
	creds := aws.Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return creds, nil
}
