package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the API, worker pool and scheduler.
type Config struct {
	Port string

	AuthToken   string
	CORSOrigins []string

	DatabaseURL   string
	MigrationsDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	RateLimitRPS   float64
	RateLimitBurst int

	SummaryCacheTTLSeconds int
	SummaryCacheMaxEntries int

	WorkerEnabled    bool
	WorkerPoolSize   int
	AnalyzerStepMS   int
	SchedulerEnabled bool
	RerunSweepSecs   int
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken:   getEnv("API_AUTH_TOKEN", ""),
		CORSOrigins: getEnvList("CORS_ORIGINS", "*"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "viral_ideas_jobs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "viral_ideas_jobs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "viral_ideas_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		SummaryCacheTTLSeconds: getEnvInt("SUMMARY_CACHE_TTL_SECONDS", 2),
		SummaryCacheMaxEntries: getEnvInt("SUMMARY_CACHE_MAX_ENTRIES", 1000),

		WorkerEnabled:    getEnvBool("WORKER_ENABLED", true),
		WorkerPoolSize:   getEnvInt("WORKER_POOL_SIZE", 3),
		AnalyzerStepMS:   getEnvInt("ANALYZER_STEP_MS", 500),
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		RerunSweepSecs:   getEnvInt("RERUN_SWEEP_SECONDS", 60),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key, fallback string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
