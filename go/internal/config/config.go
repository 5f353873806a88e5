// Package config loads service settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "altarpro.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	NATS      NATSConfig      `yaml:"nats"`
	Bible     BibleConfig     `yaml:"bible"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Media     MediaConfig     `yaml:"media"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"` // memory, file, sqlite, postgres or nats
	Namespace string `yaml:"namespace"`
	Path      string `yaml:"path"` // directory for file, database file for sqlite
}

type BroadcastConfig struct {
	Backend      string        `yaml:"backend"` // memory, nats, postgres, websocket or none
	Channel      string        `yaml:"channel"`
	GatewayURL   string        `yaml:"gateway_url"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	KVBucket      string        `yaml:"kv_bucket"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type BibleConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CatalogConfig enables the Postgres song catalog; DB_* variables locate it.
type CatalogConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MediaConfig struct {
	S3Region   string        `yaml:"s3_region"`
	AWSProfile string        `yaml:"aws_profile"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the settings used when neither file nor environment say
// otherwise.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Storage: StorageConfig{
			Backend:   "file",
			Namespace: "altarpro",
			Path:      "data",
		},
		Broadcast: BroadcastConfig{
			Backend:      "memory",
			Channel:      "altarpro-presenter",
			GatewayURL:   "ws://localhost:8080/ws/present",
			PingInterval: 90 * time.Second,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			KVBucket:      "altarpro",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Bible: BibleConfig{
			BaseURL: "http://localhost:5174/api",
			Timeout: 10 * time.Second,
		},
		Media: MediaConfig{
			PresignTTL: 15 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads .env, then the YAML file named by ALTARPRO_CONFIG (default
// altarpro.yaml, skipped when missing), then applies env overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg := Default()
	path := getEnv("ALTARPRO_CONFIG", DefaultPath)
	if err := loadFile(path, &cfg); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Namespace = getEnv("STORAGE_NAMESPACE", cfg.Storage.Namespace)
	cfg.Storage.Path = getEnv("STORAGE_PATH", cfg.Storage.Path)

	cfg.Broadcast.Backend = getEnv("BROADCAST_BACKEND", cfg.Broadcast.Backend)
	cfg.Broadcast.Channel = getEnv("BROADCAST_CHANNEL", cfg.Broadcast.Channel)
	cfg.Broadcast.GatewayURL = getEnv("GATEWAY_URL", cfg.Broadcast.GatewayURL)

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.KVBucket = getEnv("NATS_KV_BUCKET", cfg.NATS.KVBucket)
	cfg.NATS.MaxReconnects = getEnvAsInt("NATS_MAX_RECONNECTS", cfg.NATS.MaxReconnects)

	cfg.Bible.BaseURL = getEnv("BIBLE_API_URL", cfg.Bible.BaseURL)
	cfg.Bible.Timeout = time.Duration(getEnvAsInt("BIBLE_TIMEOUT_SEC", int(cfg.Bible.Timeout/time.Second))) * time.Second

	cfg.Catalog.Enabled = getEnvAsBool("CATALOG_ENABLED", cfg.Catalog.Enabled)

	cfg.Media.S3Region = getEnv("AWS_REGION", cfg.Media.S3Region)
	cfg.Media.AWSProfile = getEnv("AWS_PROFILE", cfg.Media.AWSProfile)
	cfg.Media.PresignTTL = time.Duration(getEnvAsInt("MEDIA_PRESIGN_TTL_SEC", int(cfg.Media.PresignTTL/time.Second))) * time.Second

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
}

// ZerologLevel parses the configured log level, defaulting to info.
func (c LogConfig) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
