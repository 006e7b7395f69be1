package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/quality-check/internal/logging"
	"github.com/example/quality-check/internal/repository"
)

// HistoryUseCase lists stored analyses, newest first.
type HistoryUseCase struct {
	records  RecordStore
	cache    Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewHistoryUseCase constructs a new use case instance. A nil cache or a
// non-positive ttl disables caching.
func NewHistoryUseCase(records RecordStore, cache Cache, cacheTTL time.Duration, logger *zap.Logger) *HistoryUseCase {
	if cache == nil || cacheTTL <= 0 {
		cache = NoopCache{}
	}
	return &HistoryUseCase{
		records:  records,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger.Named("history_usecase"),
	}
}

// History returns every stored record sorted by upload date, most recent
// first. The whole store is read on a cache miss.
func (uc *HistoryUseCase) History(ctx context.Context) ([]repository.AnalysisRecord, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.history", requestID)

	cacheKey, cacheable := uc.snapshotKey(ctx, opLogger)
	if cacheable {
		if cached, err := uc.cache.Get(ctx, cacheKey); err == nil {
			var records []repository.AnalysisRecord
			if err := json.Unmarshal([]byte(cached), &records); err != nil {
				opLogger.Warn("failed to decode cached history", zap.Error(err))
			} else {
				return nonNil(records), nil
			}
		} else if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read history cache", zap.Error(err))
		}
	}

	records, err := uc.records.ScanAll(ctx)
	if err != nil {
		wrapped := logging.NewOperationError("repository.scan", requestID, err)
		opLogger.Error("failed to scan analysis records", zap.Error(wrapped))
		return nil, wrapped
	}
	records = nonNil(records)
	SortByUploadDateDesc(records)

	if cacheable {
		if serialized, err := json.Marshal(records); err != nil {
			opLogger.Warn("failed to serialize history", zap.Error(err))
		} else if err := uc.cache.Set(ctx, cacheKey, string(serialized), uc.cacheTTL); err != nil {
			opLogger.Warn("failed to cache history", zap.Error(err))
		}
	}

	opLogger.Info("history loaded", zap.Int("count", len(records)))
	return records, nil
}

// snapshotKey resolves the cache key for the current history generation. It
// must be read before the scan; see historyCacheKeyPrefix.
func (uc *HistoryUseCase) snapshotKey(ctx context.Context, opLogger *zap.Logger) (string, bool) {
	generation, err := uc.cache.Get(ctx, historyGenerationKey)
	switch {
	case errors.Is(err, redis.Nil):
		generation = "0"
	case err != nil:
		opLogger.Warn("failed to read history cache generation", zap.Error(err))
		return "", false
	}
	return historyCacheKeyPrefix + generation, true
}

// SortByUploadDateDesc orders records newest first. Upload dates are
// fixed-width ISO-8601 strings, so they compare lexicographically.
func SortByUploadDateDesc(records []repository.AnalysisRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].UploadDate > records[j].UploadDate
	})
}

func nonNil(records []repository.AnalysisRecord) []repository.AnalysisRecord {
	if records == nil {
		return []repository.AnalysisRecord{}
	}
	return records
}
