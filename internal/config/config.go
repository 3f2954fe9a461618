// Package config loads Optimus's process configuration from the environment,
// following the teacher's .env-plus-getenv-with-default pattern.
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every setting either binary (dispatcher or engine) may read.
// Unused fields for a given process are simply left at their defaults.
type Config struct {
	Port        string
	Environment string

	StoreURL string

	// WorkerLanguage pins an engine process to a single language's queue,
	// per the single-language-per-process model (SPEC_FULL.md §12).
	WorkerLanguage string

	MaxWorkers     int // P from spec.md §4.2: per-worker job parallelism.
	UseCompileOnce bool

	JobTimeoutMSDefault  int64
	JobTimeoutMSMax      int64
	SourceSizeCapBytes   int64
	OutputTruncCapBytes  int64
	ResultTTLSeconds     int64
	CompileTimeoutMS     int64
	QueuePopTimeoutSec   int64

	Ratelimit      int
	RatelimitBurst int

	LangConfigPath string

	LLMSanityCheckURL string

	LogUploadURL   string
	LogUploadToken string
}

// Load reads .env (if present) then the process environment, applying
// defaults for anything unset.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: error loading .env file: %v", err)
	}

	return Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "production"),

		StoreURL: getEnv("STORE_URL", "redis://127.0.0.1:6379"),

		WorkerLanguage: getEnv("WORKER_LANGUAGE", "python"),

		MaxWorkers:     getEnvInt("MAX_WORKERS", 3),
		UseCompileOnce: getEnvBool("USE_COMPILE_ONCE", false),

		JobTimeoutMSDefault: getEnvInt64("JOB_TIMEOUT_MS_DEFAULT", 5000),
		JobTimeoutMSMax:     getEnvInt64("JOB_TIMEOUT_MS_MAX", 20000),
		SourceSizeCapBytes:  getEnvInt64("SOURCE_SIZE_CAP_BYTES", 1<<20),
		OutputTruncCapBytes: getEnvInt64("OUTPUT_TRUNC_CAP_BYTES", 64<<10),
		ResultTTLSeconds:    getEnvInt64("RESULT_TTL_SECONDS", 3600),
		CompileTimeoutMS:    getEnvInt64("COMPILE_TIMEOUT_MS", 30000),
		QueuePopTimeoutSec:  getEnvInt64("QUEUE_POP_TIMEOUT_SEC", 5),

		Ratelimit:      getEnvInt("RATELIMIT", 10),
		RatelimitBurst: getEnvInt("RATELIMIT_BURST", 20),

		LangConfigPath: getEnv("LANG_CONFIG_PATH", "config/languages.json"),

		LLMSanityCheckURL: getEnv("LLM_SANITY_CHECK_URL", ""),

		LogUploadURL:   getEnv("LOG_UPLOAD_URL", ""),
		LogUploadToken: getEnv("LOG_UPLOAD_TOKEN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
