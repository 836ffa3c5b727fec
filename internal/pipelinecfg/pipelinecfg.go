// Package pipelinecfg loads the YAML configuration shared by every
// cmd/*d process, with environment variable overrides following the
// BC_ prefix (BookCast).
package pipelinecfg

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface for any pipeline process.
// Each process only reads the sections it needs.
type Config struct {
	Broker      BrokerConfig      `yaml:"broker"`
	Store       StoreConfig       `yaml:"store"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	TTS         TTSConfig         `yaml:"tts"`
	Ingress     IngressConfig     `yaml:"ingress"`
}

// BrokerConfig configures the RabbitMQ connection.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

// StoreConfig configures the Redis aggregate store.
type StoreConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ObjectStoreConfig selects and configures the object store adapter.
type ObjectStoreConfig struct {
	Adapter string           `yaml:"adapter"`
	Local   LocalStoreConfig `yaml:"local"`
	S3      S3StoreConfig    `yaml:"s3"`
}

// LocalStoreConfig configures the filesystem-backed adapter.
type LocalStoreConfig struct {
	BasePath string `yaml:"base_path"`
}

// S3StoreConfig configures the S3-compatible adapter.
type S3StoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// PipelineConfig holds cross-cutting worker settings.
type PipelineConfig struct {
	MaxChunkBytes  int `yaml:"max_chunk_bytes"`
	MaxRetries     int `yaml:"max_retries"`
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

// TTSConfig configures the synthesizer's text-to-speech collaborator.
type TTSConfig struct {
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	VoiceID  string `yaml:"voice_id"`
}

// IngressConfig configures the upload/status/download HTTP server.
type IngressConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeoutS int    `yaml:"read_timeout_s"`
}

// Load reads configPath, applies BC_-prefixed environment overrides and
// validates the result.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration is usable and fills in defaults
// for fields the caller left at their zero value.
func Validate(cfg *Config) error {
	if cfg.Broker.Host == "" {
		return fmt.Errorf("broker host is required")
	}
	if cfg.Broker.Port <= 0 || cfg.Broker.Port > 65535 {
		return fmt.Errorf("invalid broker port: %d", cfg.Broker.Port)
	}

	if cfg.Store.Addr == "" {
		return fmt.Errorf("store addr is required")
	}

	if cfg.ObjectStore.Adapter != "local" && cfg.ObjectStore.Adapter != "s3" {
		return fmt.Errorf("invalid object store adapter: %s (must be 'local' or 's3')", cfg.ObjectStore.Adapter)
	}
	if cfg.ObjectStore.Adapter == "local" && cfg.ObjectStore.Local.BasePath == "" {
		return fmt.Errorf("local object store base_path is required")
	}
	if cfg.ObjectStore.Adapter == "s3" {
		if cfg.ObjectStore.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
		if cfg.ObjectStore.S3.Region == "" {
			return fmt.Errorf("s3 region is required")
		}
	}

	if cfg.Pipeline.MaxChunkBytes <= 0 {
		cfg.Pipeline.MaxChunkBytes = 5000
	}
	if cfg.Pipeline.MaxRetries <= 0 {
		cfg.Pipeline.MaxRetries = 3
	}
	if cfg.Pipeline.RetryBackoffMs <= 0 {
		cfg.Pipeline.RetryBackoffMs = 1000
	}

	if cfg.Ingress.Port <= 0 {
		cfg.Ingress.Port = 8080
	}

	return nil
}

// applyEnvOverrides applies BC_-prefixed environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BC_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("BC_BROKER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = n
		}
	}
	if v := os.Getenv("BC_BROKER_USER"); v != "" {
		cfg.Broker.User = v
	}
	if v := os.Getenv("BC_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Password = v
	}
	if v := os.Getenv("BC_BROKER_VHOST"); v != "" {
		cfg.Broker.VHost = v
	}

	if v := os.Getenv("BC_STORE_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("BC_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}

	if v := os.Getenv("BC_OBJECT_STORE_ADAPTER"); v != "" {
		cfg.ObjectStore.Adapter = v
	}
	if v := os.Getenv("BC_OBJECT_STORE_LOCAL_BASE_PATH"); v != "" {
		cfg.ObjectStore.Local.BasePath = v
	}
	if v := os.Getenv("BC_OBJECT_STORE_S3_BUCKET"); v != "" {
		cfg.ObjectStore.S3.Bucket = v
	}
	if v := os.Getenv("BC_OBJECT_STORE_S3_REGION"); v != "" {
		cfg.ObjectStore.S3.Region = v
	}
	if v := os.Getenv("BC_OBJECT_STORE_S3_ENDPOINT"); v != "" {
		cfg.ObjectStore.S3.Endpoint = v
	}
	if v := os.Getenv("BC_OBJECT_STORE_S3_ACCESS_KEY_ID"); v != "" {
		cfg.ObjectStore.S3.AccessKeyID = v
	}
	if v := os.Getenv("BC_OBJECT_STORE_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.ObjectStore.S3.SecretAccessKey = v
	}
}

// GetDefault returns a configuration suitable for local development,
// with the local filesystem adapter and default retry settings.
func GetDefault() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host: "localhost",
			Port: 5672,
			User: "guest",
		},
		Store: StoreConfig{
			Addr: "localhost:6379",
		},
		ObjectStore: ObjectStoreConfig{
			Adapter: "local",
			Local: LocalStoreConfig{
				BasePath: "/var/lib/bookcast/storage",
			},
		},
		Pipeline: PipelineConfig{
			MaxChunkBytes:  5000,
			MaxRetries:     3,
			RetryBackoffMs: 1000,
		},
		Ingress: IngressConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
	}
}
