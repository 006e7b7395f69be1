package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Inference transports.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Record store drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config is the process-wide configuration. It is built once at startup and
// handed to constructors; nothing reads the environment after Load.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	ShutdownTimeout time.Duration

	BucketName           string
	ObjectStoreEndpoint  string
	ObjectStoreRegion    string
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string
	ObjectStoreUseSSL    bool
	ImageURLBase         string

	RecordStoreDriver string
	RecordStoreDSN    string
	RecordTable       string

	InferenceTransport   string
	InferenceEndpoint    string
	InferenceGRPCMethod  string
	InferenceContentType string

	RedisAddr       string
	HistoryCacheTTL time.Duration

	JWTSecret   string
	JWTAudience string
}

var defaults = map[string]any{
	"HTTP_ADDR":               ":8080",
	"LOG_LEVEL":               "info",
	"SHUTDOWN_TIMEOUT":        "15s",
	"BUCKET_NAME":             "",
	"OBJECT_STORE_ENDPOINT":   "s3.amazonaws.com",
	"OBJECT_STORE_REGION":     "us-east-1",
	"OBJECT_STORE_ACCESS_KEY": "",
	"OBJECT_STORE_SECRET_KEY": "",
	"OBJECT_STORE_USE_SSL":    true,
	"IMAGE_URL_BASE":          "",
	"RECORD_STORE_DRIVER":     DriverPostgres,
	"RECORD_STORE_DSN":        "host=postgres user=postgres password=postgres dbname=quality port=5432 sslmode=disable",
	"RECORD_TABLE":            "analysis_records",
	"INFERENCE_TRANSPORT":     TransportHTTP,
	"INFERENCE_ENDPOINT":      "",
	"INFERENCE_GRPC_METHOD":   "/inference.Classifier/Classify",
	"INFERENCE_CONTENT_TYPE":  "application/x-image",
	"REDIS_ADDR":              "",
	"HISTORY_CACHE_TTL":       "30s",
	"AUTH_JWT_SECRET":         "",
	"AUTH_JWT_AUDIENCE":       "",
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr:        v.GetString("HTTP_ADDR"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),

		BucketName:           strings.TrimSpace(v.GetString("BUCKET_NAME")),
		ObjectStoreEndpoint:  v.GetString("OBJECT_STORE_ENDPOINT"),
		ObjectStoreRegion:    v.GetString("OBJECT_STORE_REGION"),
		ObjectStoreAccessKey: v.GetString("OBJECT_STORE_ACCESS_KEY"),
		ObjectStoreSecretKey: v.GetString("OBJECT_STORE_SECRET_KEY"),
		ObjectStoreUseSSL:    v.GetBool("OBJECT_STORE_USE_SSL"),
		ImageURLBase:         strings.TrimRight(v.GetString("IMAGE_URL_BASE"), "/"),

		RecordStoreDriver: strings.ToLower(v.GetString("RECORD_STORE_DRIVER")),
		RecordStoreDSN:    v.GetString("RECORD_STORE_DSN"),
		RecordTable:       v.GetString("RECORD_TABLE"),

		InferenceTransport:   strings.ToLower(v.GetString("INFERENCE_TRANSPORT")),
		InferenceEndpoint:    strings.TrimSpace(v.GetString("INFERENCE_ENDPOINT")),
		InferenceGRPCMethod:  v.GetString("INFERENCE_GRPC_METHOD"),
		InferenceContentType: v.GetString("INFERENCE_CONTENT_TYPE"),

		RedisAddr:       strings.TrimSpace(v.GetString("REDIS_ADDR")),
		HistoryCacheTTL: v.GetDuration("HISTORY_CACHE_TTL"),

		JWTSecret:   strings.TrimSpace(v.GetString("AUTH_JWT_SECRET")),
		JWTAudience: strings.TrimSpace(v.GetString("AUTH_JWT_AUDIENCE")),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or unsupported setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.BucketName == "" {
		errs = append(errs, errors.New("BUCKET_NAME is required"))
	}
	if c.InferenceEndpoint == "" {
		errs = append(errs, errors.New("INFERENCE_ENDPOINT is required"))
	}
	if c.RecordTable == "" {
		errs = append(errs, errors.New("RECORD_TABLE must not be empty"))
	}
	switch c.InferenceTransport {
	case TransportHTTP, TransportGRPC:
	default:
		errs = append(errs, fmt.Errorf("unsupported INFERENCE_TRANSPORT %q", c.InferenceTransport))
	}
	switch c.RecordStoreDriver {
	case DriverPostgres, DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("unsupported RECORD_STORE_DRIVER %q", c.RecordStoreDriver))
	}
	return errors.Join(errs...)
}

// AuthEnabled reports whether bearer tokens are required.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// CacheEnabled reports whether history results are cached in redis.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != "" && c.HistoryCacheTTL > 0
}
