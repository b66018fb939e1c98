// Package config loads and validates process configuration from the
// environment, aborting startup when a required variable is missing.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every tunable the server needs at startup. Fields are
// populated once in Load and never mutated afterwards.
type Config struct {
	Port    string
	DataDir string
	LogLevel string

	QdrantURL        string
	QdrantCollection string

	DiarizationProviderURL string
	DiarizationProviderKey string
	SummaryProviderURL     string
	SummaryProviderKey     string
	WebhookURL             string

	EmbeddingModelPath  string
	VADModelPath        string
	VoiceprintMirrorPath string

	FFmpegBinary string

	WorkerPoolSize    int
	SessionTTLSeconds int
	ClipMaxDurationMS int
}

// Load reads .env (if present) then the process environment, applying
// defaults for optional variables and failing on any missing required one.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment only")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		DataDir: getEnvOrDefault("DATA_DIR", "./data"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		QdrantURL:        os.Getenv("QDRANT_URL"),
		QdrantCollection: os.Getenv("QDRANT_COLLECTION"),

		DiarizationProviderURL: os.Getenv("DIARIZATION_PROVIDER_URL"),
		DiarizationProviderKey: os.Getenv("DIARIZATION_PROVIDER_KEY"),
		SummaryProviderURL:     os.Getenv("SUMMARY_PROVIDER_URL"),
		SummaryProviderKey:     os.Getenv("SUMMARY_PROVIDER_KEY"),
		WebhookURL:             os.Getenv("WEBHOOK_URL"),

		EmbeddingModelPath:   os.Getenv("EMBEDDING_MODEL_PATH"),
		VADModelPath:         os.Getenv("VAD_MODEL_PATH"),
		VoiceprintMirrorPath: os.Getenv("VOICEPRINT_MIRROR_PATH"),

		FFmpegBinary: getEnvOrDefault("FFMPEG_BINARY", "ffmpeg"),

		WorkerPoolSize:    getIntEnvOrDefault("IDENTIFY_WORKER_POOL_SIZE", defaultWorkerPoolSize()),
		SessionTTLSeconds: getIntEnvOrDefault("SESSION_TTL_SECONDS", 3600),
		ClipMaxDurationMS: getIntEnvOrDefault("CLIP_MAX_DURATION_MS", 5000),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	required := map[string]string{
		"QDRANT_URL":                c.QdrantURL,
		"QDRANT_COLLECTION":         c.QdrantCollection,
		"DIARIZATION_PROVIDER_URL":  c.DiarizationProviderURL,
		"DIARIZATION_PROVIDER_KEY":  c.DiarizationProviderKey,
		"SUMMARY_PROVIDER_URL":      c.SummaryProviderURL,
		"SUMMARY_PROVIDER_KEY":      c.SummaryProviderKey,
		"EMBEDDING_MODEL_PATH":      c.EmbeddingModelPath,
		"VAD_MODEL_PATH":            c.VADModelPath,
		"VOICEPRINT_MIRROR_PATH":    c.VoiceprintMirrorPath,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

func defaultWorkerPoolSize() int {
	n := runtime.NumCPU()
	if n < 4 {
		return 4
	}
	return n
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
