package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BUCKET_NAME", "quality-images")
	t.Setenv("INFERENCE_ENDPOINT", "http://classifier:8080/invocations")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "quality-images", cfg.BucketName)
	assert.Equal(t, "s3.amazonaws.com", cfg.ObjectStoreEndpoint)
	assert.True(t, cfg.ObjectStoreUseSSL)
	assert.Equal(t, DriverPostgres, cfg.RecordStoreDriver)
	assert.Equal(t, "analysis_records", cfg.RecordTable)
	assert.Equal(t, TransportHTTP, cfg.InferenceTransport)
	assert.Equal(t, "application/x-image", cfg.InferenceContentType)
	assert.Equal(t, 30*time.Second, cfg.HistoryCacheTTL)
	assert.False(t, cfg.AuthEnabled())
	assert.False(t, cfg.CacheEnabled())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("INFERENCE_TRANSPORT", "GRPC")
	t.Setenv("RECORD_STORE_DRIVER", "mysql")
	t.Setenv("OBJECT_STORE_USE_SSL", "false")
	t.Setenv("IMAGE_URL_BASE", "https://cdn.example.com/images/")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("HISTORY_CACHE_TTL", "1m")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, TransportGRPC, cfg.InferenceTransport)
	assert.Equal(t, DriverMySQL, cfg.RecordStoreDriver)
	assert.False(t, cfg.ObjectStoreUseSSL)
	assert.Equal(t, "https://cdn.example.com/images", cfg.ImageURLBase)
	assert.Equal(t, time.Minute, cfg.HistoryCacheTTL)
	assert.True(t, cfg.CacheEnabled())
	assert.True(t, cfg.AuthEnabled())
}

func TestLoadReportsAllProblems(t *testing.T) {
	t.Setenv("BUCKET_NAME", "")
	t.Setenv("INFERENCE_ENDPOINT", "")
	t.Setenv("INFERENCE_TRANSPORT", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUCKET_NAME is required")
	assert.Contains(t, err.Error(), "INFERENCE_ENDPOINT is required")
	assert.Contains(t, err.Error(), `unsupported INFERENCE_TRANSPORT "carrier-pigeon"`)
}
