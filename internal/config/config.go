package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	TextTimeout   time.Duration

	ImageGenURL    string
	ImageGenAPIKey string
	ImageTimeout   time.Duration

	PublishTimeout time.Duration

	RedisAddr string
	CacheTTL  time.Duration

	KafkaBrokers  []string
	ProgressTopic string

	DraftBucket string
	DraftPrefix string

	JWTSecret       string
	AllowDebugToken bool
	DebugToken      string
}

const (
	defaultAddr           = ":8074"
	defaultModel          = "gpt-4o"
	defaultTextTimeout    = 180 * time.Second
	defaultImageTimeout   = 30 * time.Second
	defaultPublishTimeout = 30 * time.Second
	defaultCacheTTL       = 10 * time.Minute
	defaultProgressTopic  = "pipeline.progress"
)

func Load() (Config, error) {
	cfg := Config{
		Addr:            getEnv("PIPELINE_ADDR", defaultAddr),
		DatabaseURL:     firstNonEmpty(os.Getenv("PIPELINE_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		OpenAIAPIKey:    firstNonEmpty(os.Getenv("PIPELINE_OPENAI_API_KEY"), os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:   os.Getenv("PIPELINE_OPENAI_BASE_URL"),
		OpenAIModel:     getEnv("PIPELINE_OPENAI_MODEL", defaultModel),
		TextTimeout:     getDuration("PIPELINE_TEXT_TIMEOUT", defaultTextTimeout),
		ImageGenURL:     os.Getenv("PIPELINE_IMAGEGEN_URL"),
		ImageGenAPIKey:  os.Getenv("PIPELINE_IMAGEGEN_API_KEY"),
		ImageTimeout:    getDuration("PIPELINE_IMAGE_TIMEOUT", defaultImageTimeout),
		PublishTimeout:  getDuration("PIPELINE_PUBLISH_TIMEOUT", defaultPublishTimeout),
		RedisAddr:       os.Getenv("PIPELINE_REDIS_ADDR"),
		CacheTTL:        getDuration("PIPELINE_CACHE_TTL", defaultCacheTTL),
		KafkaBrokers:    splitList(os.Getenv("PIPELINE_KAFKA_BROKERS")),
		ProgressTopic:   getEnv("PIPELINE_PROGRESS_TOPIC", defaultProgressTopic),
		DraftBucket:     os.Getenv("PIPELINE_DRAFT_BUCKET"),
		DraftPrefix:     os.Getenv("PIPELINE_DRAFT_PREFIX"),
		JWTSecret:       os.Getenv("PIPELINE_JWT_SECRET"),
		AllowDebugToken: getBool("PIPELINE_ALLOW_DEBUG_TOKEN", false),
		DebugToken:      os.Getenv("PIPELINE_DEBUG_TOKEN"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL or PIPELINE_DATABASE_URL required")
	}
	if cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("PIPELINE_OPENAI_API_KEY required")
	}
	if cfg.ImageGenURL == "" {
		return Config{}, fmt.Errorf("PIPELINE_IMAGEGEN_URL required")
	}
	if cfg.JWTSecret == "" && !cfg.AllowDebugToken {
		return Config{}, fmt.Errorf("PIPELINE_JWT_SECRET required unless PIPELINE_ALLOW_DEBUG_TOKEN=true")
	}
	if os.Getenv("NODE_ENV") == "production" && cfg.AllowDebugToken {
		return Config{}, fmt.Errorf("PIPELINE_ALLOW_DEBUG_TOKEN forbidden in production")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
