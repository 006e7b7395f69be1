package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/quality-check/internal/classifier"
	"github.com/example/quality-check/internal/config"
	"github.com/example/quality-check/internal/grpcclient"
	"github.com/example/quality-check/internal/objectstore"
	"github.com/example/quality-check/internal/repository"
	"github.com/example/quality-check/internal/usecase"
)

// app holds the collaborators shared by every command. It is built once per
// process and closed on exit.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	analysis *usecase.AnalysisUseCase
	history  *usecase.HistoryUseCase
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	startupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db, err := repository.Open(startupCtx, cfg.RecordStoreDriver, cfg.RecordStoreDSN)
	if err != nil {
		return nil, fmt.Errorf("connect record store: %w", err)
	}
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	repo := repository.NewAnalysisRepository(db, cfg.RecordTable, logger)
	if err := repo.AutoMigrate(startupCtx); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	images, err := objectstore.New(startupCtx, objectstore.Options{
		Endpoint:  cfg.ObjectStoreEndpoint,
		Region:    cfg.ObjectStoreRegion,
		Bucket:    cfg.BucketName,
		AccessKey: cfg.ObjectStoreAccessKey,
		SecretKey: cfg.ObjectStoreSecretKey,
		UseSSL:    cfg.ObjectStoreUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	client, err := a.dialClassifier(startupCtx)
	if err != nil {
		return nil, err
	}

	cache := a.initCache(startupCtx)

	a.analysis = usecase.NewAnalysisUseCase(cfg, images, client, repo, cache, logger)
	a.history = usecase.NewHistoryUseCase(repo, cache, cfg.HistoryCacheTTL, logger)
	return a, nil
}

func (a *app) dialClassifier(ctx context.Context) (classifier.Client, error) {
	switch a.cfg.InferenceTransport {
	case config.TransportGRPC:
		client, conn, err := grpcclient.DialClassifier(ctx, a.cfg.InferenceEndpoint, a.cfg.InferenceGRPCMethod, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect classifier: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		return client, nil
	case config.TransportHTTP:
		return classifier.NewHTTPClient(a.cfg.InferenceEndpoint, a.cfg.InferenceContentType, nil, a.logger), nil
	default:
		return nil, fmt.Errorf("unsupported inference transport %q", a.cfg.InferenceTransport)
	}
}

// initCache returns nil when caching is disabled or redis is unreachable;
// the use cases then read straight from the record store.
func (a *app) initCache(ctx context.Context) usecase.Cache {
	if !a.cfg.CacheEnabled() {
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.logger.Warn("redis unavailable, history cache disabled", zap.Error(err), zap.String("addr", a.cfg.RedisAddr))
		_ = client.Close()
		return nil
	}
	a.closers = append(a.closers, client.Close)
	return usecase.NewRedisCache(client)
}

// Close releases every connection opened by newApp, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
