package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/quality-check/internal/classifier"
	"github.com/example/quality-check/internal/config"
	"github.com/example/quality-check/internal/logging"
	"github.com/example/quality-check/internal/objectstore"
	"github.com/example/quality-check/internal/prediction"
	"github.com/example/quality-check/internal/repository"
)

// UploadDateLayout is a fixed-width ISO-8601 UTC layout, so string order is
// time order.
const UploadDateLayout = "2006-01-02T15:04:05.000000Z"

// History snapshots are cached under historyCacheKeyPrefix + generation.
// Every stored analysis bumps the generation, so a snapshot scanned before
// the write can only land under a key no reader asks for any more.
const (
	historyGenerationKey  = "analysis:history:generation"
	historyCacheKeyPrefix = "analysis:history:"
)

// ErrImageKeyRequired is returned when no image key is supplied.
var ErrImageKeyRequired = errors.New("imageKey is required in the request body")

// ObjectStore fetches image bytes by key.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// RecordStore defines the persistence operations needed by the use cases.
type RecordStore interface {
	Save(ctx context.Context, record *repository.AnalysisRecord) error
	ScanAll(ctx context.Context) ([]repository.AnalysisRecord, error)
}

// AnalysisUseCase runs one image through the classifier and stores the result.
type AnalysisUseCase struct {
	images       ObjectStore
	classifier   classifier.Client
	records      RecordStore
	cache        Cache
	bucket       string
	imageURLBase string
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
}

// NewAnalysisUseCase constructs a new use case instance. A nil cache disables
// history invalidation.
func NewAnalysisUseCase(cfg *config.Config, images ObjectStore, client classifier.Client, records RecordStore, cache Cache, logger *zap.Logger) *AnalysisUseCase {
	if cache == nil {
		cache = NoopCache{}
	}
	return &AnalysisUseCase{
		images:       images,
		classifier:   client,
		records:      records,
		cache:        cache,
		bucket:       cfg.BucketName,
		imageURLBase: cfg.ImageURLBase,
		logger:       logger.Named("analysis_usecase"),
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Analyze fetches imageKey, classifies it and persists one record. Nothing is
// written unless every earlier step succeeded.
func (uc *AnalysisUseCase) Analyze(ctx context.Context, imageKey string) (string, *repository.AnalysisRecord, error) {
	requestID := uc.newID()
	if strings.TrimSpace(imageKey) == "" {
		return requestID, nil, ErrImageKeyRequired
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze", requestID).With(zap.String("image_key", imageKey))

	opLogger.Info("fetching image", zap.String("bucket", uc.bucket))
	image, err := uc.images.Get(ctx, imageKey)
	if err != nil {
		wrapped := logging.NewOperationError("objectstore.get", requestID, err)
		opLogger.Error("failed to fetch image", zap.Error(wrapped))
		return requestID, nil, wrapped
	}

	opLogger.Info("invoking classifier", zap.Int("image_bytes", len(image)))
	text, err := uc.classifier.Invoke(ctx, image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.classify", requestID, err)
		opLogger.Error("classifier call failed", zap.Error(wrapped))
		return requestID, nil, wrapped
	}

	result, err := prediction.Parse(text)
	if err != nil {
		opLogger.Error("failed to parse classifier response", zap.Error(err), zap.String("raw_response", text))
		return requestID, nil, logging.NewOperationError("prediction.parse", requestID, err)
	}
	opLogger.Info("classifier responded",
		zap.String("raw_response", result.RawResponse),
		zap.String("status", result.Status),
		zap.Stringer("confidence", result.Confidence),
	)

	record := &repository.AnalysisRecord{
		ImageKey:      imageKey,
		Status:        result.Status,
		Confidence:    result.Confidence,
		RawPrediction: result.RawPrediction,
		UploadDate:    uc.now().UTC().Format(UploadDateLayout),
		ImageURL:      objectstore.PublicURL(uc.imageURLBase, uc.bucket, imageKey),
	}
	if err := uc.records.Save(ctx, record); err != nil {
		wrapped := logging.NewOperationError("repository.save", requestID, err)
		opLogger.Error("failed to persist analysis record", zap.Error(wrapped))
		return requestID, nil, wrapped
	}

	if _, err := uc.cache.Incr(ctx, historyGenerationKey); err != nil {
		opLogger.Warn("failed to invalidate history cache", zap.Error(err))
	}

	opLogger.Info("analysis stored", zap.String("upload_date", record.UploadDate))
	return requestID, record, nil
}
