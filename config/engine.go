package config

import (
	"sync"
	"time"
)

var (
	engineOnce   sync.Once
	engineConfig *EngineConfig
)

// EngineConfig configures the analysis engine and its collaborators.
type EngineConfig struct {
	RulesPath         string
	WatchRules        bool
	ExtractWorkers    int
	ExtractTimeout    time.Duration
	AlertStore        string // memory | redis | sqlite | postgres
	DocumentStorage   string // s3 | minio | gcs | memory
	ImageDecoder      string // tesseract | textract
	MaxFileSize       int64
	MaxPageCount      int
	AllowedTypes      []string
	HTTPAddr          string
	GRPCHealthAddr    string
	LogLevel          string
	LogEncoding       string
	WorkerConcurrency int
	RetentionPeriod   time.Duration
}

func GetEngineConfig() *EngineConfig {
	engineOnce.Do(func() {
		loadEnv()
		engineConfig = &EngineConfig{
			RulesPath:         getEnv("RULES_PATH", "rules.yaml"),
			WatchRules:        getEnvAsBool("RULES_WATCH", true),
			ExtractWorkers:    getEnvAsInt("EXTRACT_WORKERS", 4),
			ExtractTimeout:    getEnvAsDuration("EXTRACT_TIMEOUT", 2*time.Minute),
			AlertStore:        getEnv("ALERT_STORE", "redis"),
			DocumentStorage:   getEnv("DOCUMENT_STORAGE", "s3"),
			ImageDecoder:      getEnv("IMAGE_DECODER", "tesseract"),
			MaxFileSize:       getEnvAsInt64("MAX_FILE_SIZE", 50*1024*1024),
			MaxPageCount:      getEnvAsInt("MAX_PAGE_COUNT", 1000),
			AllowedTypes:      getEnvAsList("ALLOWED_TYPES", []string{".pdf", ".png", ".jpg", ".jpeg", ".tiff"}),
			HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
			GRPCHealthAddr:    getEnv("GRPC_HEALTH_ADDR", ":9090"),
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			LogEncoding:       getEnv("LOG_ENCODING", "json"),
			WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 10),
			RetentionPeriod:   getEnvAsDuration("RETENTION_PERIOD", 7*24*time.Hour),
		}
	})
	return engineConfig
}
