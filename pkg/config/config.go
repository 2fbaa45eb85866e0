package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env  string
	Port int

	Log    LogConfig
	Shadow ShadowConfig
	Redis  RedisConfig
	Sink   SinkConfig
	Queue  QueueConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// SinkConfig toggles forwarding of shadow report events to Redis pub/sub.
type SinkConfig struct {
	Enabled bool
	Channel string
}

// QueueConfig shapes the async pipeline worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
}

// ShadowConfig carries the raw shadow-traffic rules before finalization.
type ShadowConfig struct {
	Enabled                   bool
	TargetURL                 string
	SampleRate                float64
	Sampler                   string
	SamplingKey               string
	OnlyMethods               []string
	OnlyPaths                 []string
	ConditionTimeout          time.Duration
	ConditionFailureThreshold int
	ConditionCircuitCooldown  time.Duration
	ScrubHeaders              []string
	ScrubJSONFields           []string
	ScrubMask                 string
	DiffEnabled               bool
	DiffIgnoreJSONPaths       []string
	LogRateLimitPerSecond     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Shadow = ShadowConfig{
		Enabled:                   v.GetBool("SHADOW_ENABLED"),
		TargetURL:                 v.GetString("SHADOW_TARGET_URL"),
		SampleRate:                v.GetFloat64("SHADOW_SAMPLE_RATE"),
		Sampler:                   v.GetString("SHADOW_SAMPLER"),
		SamplingKey:               v.GetString("SHADOW_SAMPLING_KEY"),
		OnlyMethods:               splitAndTrim(v.GetString("SHADOW_ONLY_METHODS")),
		OnlyPaths:                 splitAndTrim(v.GetString("SHADOW_ONLY_PATHS")),
		ConditionTimeout:          parseDuration(v.GetString("SHADOW_CONDITION_TIMEOUT"), 100*time.Millisecond),
		ConditionFailureThreshold: v.GetInt("SHADOW_CONDITION_FAILURE_THRESHOLD"),
		ConditionCircuitCooldown:  parseDuration(v.GetString("SHADOW_CONDITION_CIRCUIT_COOLDOWN"), 60*time.Second),
		ScrubHeaders:              splitAndTrim(v.GetString("SHADOW_SCRUB_HEADERS")),
		ScrubJSONFields:           splitAndTrim(v.GetString("SHADOW_SCRUB_JSON_FIELDS")),
		ScrubMask:                 v.GetString("SHADOW_SCRUB_MASK"),
		DiffEnabled:               v.GetBool("SHADOW_DIFF_ENABLED"),
		DiffIgnoreJSONPaths:       splitAndTrim(v.GetString("SHADOW_DIFF_IGNORE_JSON_PATHS")),
		LogRateLimitPerSecond:     v.GetInt("SHADOW_LOG_RATE_LIMIT_PER_SECOND"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Sink = SinkConfig{
		Enabled: v.GetBool("SINK_REDIS_ENABLED"),
		Channel: v.GetString("SINK_REDIS_CHANNEL"),
	}

	cfg.Queue = QueueConfig{
		Workers:    v.GetInt("SHADOW_QUEUE_WORKERS"),
		BufferSize: v.GetInt("SHADOW_QUEUE_BUFFER"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SHADOW_ENABLED", false)
	v.SetDefault("SHADOW_TARGET_URL", "")
	v.SetDefault("SHADOW_SAMPLE_RATE", 0.0)
	v.SetDefault("SHADOW_SAMPLER", "random")
	v.SetDefault("SHADOW_SAMPLING_KEY", "")
	v.SetDefault("SHADOW_ONLY_METHODS", "")
	v.SetDefault("SHADOW_ONLY_PATHS", "")
	v.SetDefault("SHADOW_CONDITION_TIMEOUT", "100ms")
	v.SetDefault("SHADOW_CONDITION_FAILURE_THRESHOLD", 5)
	v.SetDefault("SHADOW_CONDITION_CIRCUIT_COOLDOWN", "60s")
	v.SetDefault("SHADOW_SCRUB_HEADERS", "Authorization,Cookie,Set-Cookie,X-Api-Key")
	v.SetDefault("SHADOW_SCRUB_JSON_FIELDS", "")
	v.SetDefault("SHADOW_SCRUB_MASK", "[FILTERED]")
	v.SetDefault("SHADOW_DIFF_ENABLED", true)
	v.SetDefault("SHADOW_DIFF_IGNORE_JSON_PATHS", "")
	v.SetDefault("SHADOW_LOG_RATE_LIMIT_PER_SECOND", 10)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SINK_REDIS_ENABLED", false)
	v.SetDefault("SINK_REDIS_CHANNEL", "shadow_traffic.events")

	v.SetDefault("SHADOW_QUEUE_WORKERS", 4)
	v.SetDefault("SHADOW_QUEUE_BUFFER", 64)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
