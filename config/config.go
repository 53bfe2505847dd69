// Package config holds the runtime configuration for the dubbing
// service. Everything is sourced from environment variables so the
// service can run unchanged in containers, batch jobs, and local dev
// (with godotenv loading a .env file in main).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dubbot/hashing"
)

// Output types for published artifacts
const (
	OutputLocal  = "local"
	OutputRemote = "s3"
)

// CacheConfig holds the per-category cache directory roots.
type CacheConfig struct {
	RunDir    string
	LineDir   string
	ScriptDir string
	VideoDir  string
	OutputDir string
}

// Dirs returns every cache directory, for creation at startup.
func (c CacheConfig) Dirs() []string {
	return []string{c.RunDir, c.LineDir, c.ScriptDir, c.VideoDir, c.OutputDir}
}

// TTSConfig holds the TTS provider endpoint, static credentials, and
// the global voice defaults templates may override per request.
type TTSConfig struct {
	Endpoint  string
	APIKey    string
	APISecret string

	Voice     string
	Effect    string
	Level     string
	Bitrate   string
	Frequency int
}

// AuthToken derives the provider token from the static credentials.
// The token is a pure function of the key pair, so every job computes
// the same value.
func (t TTSConfig) AuthToken() string {
	return hashing.SumString(t.APIKey + ":" + t.APISecret)
}

// OutputConfig describes where finished artifacts are published.
// Type "local" skips the object store entirely; "s3" publishes to the
// configured bucket under Prefix.
type OutputConfig struct {
	Type         string
	URI          string
	Bucket       string
	Prefix       string
	Region       string
	Profile      string
	UsePathStyle bool
	ACL          string
}

// Key returns the canonical remote key for an output filename.
func (o OutputConfig) Key(filename string) string {
	prefix := strings.Trim(o.Prefix, "/")
	if prefix == "" {
		return filename
	}
	return prefix + "/" + filename
}

// PublicLocation returns the externally addressable location for an
// output filename.
func (o OutputConfig) PublicLocation(filename string) string {
	base := strings.TrimRight(o.URI, "/")
	if o.Type == OutputRemote {
		return base + "/" + o.Key(filename)
	}
	return base + "/" + filename
}

// KafkaConfig configures the optional Kafka intake.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// RedisConfig configures the optional advisory cache-fill lock.
// An empty Addr disables locking.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config is the full service configuration, passed explicitly into
// constructors rather than read from globals.
type Config struct {
	// SourceBase is where source videos are fetched from: an http(s)
	// URL base or a local directory.
	SourceBase string

	Cache  CacheConfig
	TTS    TTSConfig
	Output OutputConfig
	Kafka  KafkaConfig
	Redis  RedisConfig
}

// Load builds a Config from the environment.
func Load() (*Config, error) {
	cacheRoot := GetEnvOrDefault("CACHE_DIR", "cache")

	cfg := &Config{
		SourceBase: GetEnvOrDefault("SOURCE_BASE", "assets"),
		Cache: CacheConfig{
			RunDir:    GetEnvOrDefault("CACHE_RUN_DIR", filepath.Join(cacheRoot, "run")),
			LineDir:   GetEnvOrDefault("CACHE_LINE_DIR", filepath.Join(cacheRoot, "line")),
			ScriptDir: GetEnvOrDefault("CACHE_SCRIPT_DIR", filepath.Join(cacheRoot, "script")),
			VideoDir:  GetEnvOrDefault("CACHE_VIDEO_DIR", filepath.Join(cacheRoot, "video")),
			OutputDir: GetEnvOrDefault("CACHE_OUTPUT_DIR", filepath.Join(cacheRoot, "output")),
		},
		TTS: TTSConfig{
			Endpoint:  GetEnvOrDefault("TTS_ENDPOINT", "https://api.voicehost.example/v1/speech"),
			APIKey:    os.Getenv("TTS_API_KEY"),
			APISecret: os.Getenv("TTS_API_SECRET"),
			Voice:     GetEnvOrDefault("TTS_VOICE", DefaultVoice),
			Effect:    GetEnvOrDefault("TTS_EFFECT", DefaultEffect),
			Level:     GetEnvOrDefault("TTS_LEVEL", DefaultLevel),
			Bitrate:   GetEnvOrDefault("TTS_BITRATE", DefaultBitrate),
			Frequency: getEnvInt("TTS_FREQUENCY", DefaultFrequency),
		},
		Output: OutputConfig{
			Type:         GetEnvOrDefault("OUTPUT_TYPE", OutputLocal),
			URI:          GetEnvOrDefault("OUTPUT_URI", "http://localhost:8080/output"),
			Bucket:       strings.TrimSpace(os.Getenv("S3_BUCKET")),
			Prefix:       strings.TrimSpace(os.Getenv("S3_PREFIX")),
			Region:       strings.TrimSpace(os.Getenv("S3_REGION")),
			Profile:      strings.TrimSpace(os.Getenv("S3_PROFILE")),
			UsePathStyle: strings.EqualFold(strings.TrimSpace(os.Getenv("S3_USE_PATH_STYLE")), "true"),
			ACL:          GetEnvOrDefault("S3_ACL", "public-read"),
		},
		Kafka: KafkaConfig{
			Brokers: splitAndTrim(GetEnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
			Topic:   GetEnvOrDefault("KAFKA_TOPIC", "dub-jobs"),
			GroupID: GetEnvOrDefault("KAFKA_GROUP_ID", "dubbot-workers"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASS"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}

	if cfg.Output.Type != OutputLocal && cfg.Output.Type != OutputRemote {
		return nil, fmt.Errorf("invalid OUTPUT_TYPE %q (want %q or %q)", cfg.Output.Type, OutputLocal, OutputRemote)
	}
	if cfg.Output.Type == OutputRemote && cfg.Output.Bucket == "" {
		return nil, fmt.Errorf("OUTPUT_TYPE=%s requires S3_BUCKET", OutputRemote)
	}

	return cfg, nil
}

// EnsureDirs creates every cache directory.
func (c *Config) EnsureDirs() error {
	for _, dir := range c.Cache.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cache dir %s: %w", dir, err)
		}
	}
	return nil
}

// GetEnvOrDefault returns the environment variable's value, or def
// when unset or empty.
func GetEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
