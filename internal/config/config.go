// Package config loads service configuration in three layers: built-in
// defaults, an optional config.yaml, and environment variable overrides.
// The recognised environment surface is the closed set mapped in envPaths;
// anything else is ignored. Secrets can optionally be overlaid from Vault.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sentinel/config.yaml",
}

// envPaths maps recognised environment variables onto koanf paths.
var envPaths = map[string]string{
	"NATS_URL":                       "nats.url",
	"NATS_CONNECT_TIMEOUT":           "nats.connect_timeout_seconds",
	"NATS_RECONNECT_TIME_WAIT":       "nats.reconnect_time_wait_seconds",
	"NATS_MAX_RECONNECT_ATTEMPTS":    "nats.max_reconnect_attempts",
	"QDRANT_HOST":                    "qdrant.host",
	"QDRANT_PORT":                    "qdrant.port",
	"QDRANT_COLLECTION_NAME":         "qdrant.collection_name",
	"EMBEDDING_MODEL_NAME":           "qdrant.embedding_model_name",
	"EMBEDDING_SERVICE_URL":          "qdrant.embedding_service_url",
	"DATABASE_URL":                   "database.url",
	"SCHEDULER_DEFAULT_POLL_INTERVAL": "scheduler.default_poll_interval_seconds",
	"LLM_PROVIDER":                   "llm.provider",
	"LLM_MODEL_NAME":                 "llm.model_name",
	"OPENAI_API_KEY":                 "llm.openai_api_key",
	"ANTHROPIC_API_KEY":              "llm.anthropic_api_key",
	"ALERTERS":                       "guardian.alerters",
	"FAKE_MESSAGE_WEBHOOK_URL":       "guardian.fake_message_webhook_url",
	"RANKER_CONFIG_PATH":             "ranker.config_path",
	"INSPECTOR_CONFIG_PATH":          "inspector.config_path",
	"FILTER_CONFIG_PATH":             "filter.config_path",
	"API_LISTEN_ADDR":                "api.listen_addr",
	"OTEL_EXPORTER_OTLP_ENDPOINT":    "telemetry.otlp_endpoint",
}

// NATSConfig carries the broker connection and reconnect policy.
type NATSConfig struct {
	URL                      string `koanf:"url"`
	ConnectTimeoutSeconds    int    `koanf:"connect_timeout_seconds"`
	ReconnectTimeWaitSeconds int    `koanf:"reconnect_time_wait_seconds"`
	MaxReconnectAttempts     int    `koanf:"max_reconnect_attempts"`
}

func (c NATSConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

func (c NATSConfig) ReconnectWait() time.Duration {
	return time.Duration(c.ReconnectTimeWaitSeconds) * time.Second
}

// QdrantConfig carries the vector store location and embedding model.
type QdrantConfig struct {
	Host                string `koanf:"host"`
	Port                int    `koanf:"port"`
	CollectionName      string `koanf:"collection_name"`
	EmbeddingModelName  string `koanf:"embedding_model_name"`
	EmbeddingServiceURL string `koanf:"embedding_service_url"`
}

// DatabaseConfig points at the relational source registry.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SchedulerConfig holds the default polling cadence.
type SchedulerConfig struct {
	DefaultPollIntervalSeconds int `koanf:"default_poll_interval_seconds"`
}

func (c SchedulerConfig) DefaultPollInterval() time.Duration {
	return time.Duration(c.DefaultPollIntervalSeconds) * time.Second
}

// LLMConfig selects the completion provider for filter and inspector.
type LLMConfig struct {
	Provider        string `koanf:"provider"`
	ModelName       string `koanf:"model_name"`
	OpenAIAPIKey    string `koanf:"openai_api_key"`
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
}

// APIKey returns the key matching the configured provider.
func (c LLMConfig) APIKey() string {
	switch c.Provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	}
	return ""
}

// GuardianConfig lists the alerters to dispatch dead-letter alerts to.
type GuardianConfig struct {
	Alerters              string `koanf:"alerters"`
	FakeMessageWebhookURL string `koanf:"fake_message_webhook_url"`
}

// AlerterNames splits the csv ALERTERS value.
func (c GuardianConfig) AlerterNames() []string {
	var names []string
	for _, n := range strings.Split(c.Alerters, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// WorkerFileConfig points at a worker's YAML configuration file.
type WorkerFileConfig struct {
	ConfigPath string `koanf:"config_path"`
}

// APIConfig holds the HTTP listen address of the api service.
type APIConfig struct {
	ListenAddr string `koanf:"listen_addr"`
}

// TelemetryConfig enables OTLP tracing when an endpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// Config is the full configuration for one service. It is immutable after
// Load and safe for concurrent reads.
type Config struct {
	Service   string           `koanf:"-"`
	NATS      NATSConfig       `koanf:"nats"`
	Qdrant    QdrantConfig     `koanf:"qdrant"`
	Database  DatabaseConfig   `koanf:"database"`
	Scheduler SchedulerConfig  `koanf:"scheduler"`
	LLM       LLMConfig        `koanf:"llm"`
	Guardian  GuardianConfig   `koanf:"guardian"`
	Ranker    WorkerFileConfig `koanf:"ranker"`
	Inspector WorkerFileConfig `koanf:"inspector"`
	Filter    WorkerFileConfig `koanf:"filter"`
	API       APIConfig        `koanf:"api"`
	Telemetry TelemetryConfig  `koanf:"telemetry"`

	// ReadinessTimeoutMillis is read from <SERVICE>_READINESS_TIME_OUT.
	ReadinessTimeoutMillis int `koanf:"readiness_timeout_millis"`
}

func (c *Config) ReadinessTimeout() time.Duration {
	return time.Duration(c.ReadinessTimeoutMillis) * time.Millisecond
}

func defaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:                      "nats://localhost:4222",
			ConnectTimeoutSeconds:    10,
			ReconnectTimeWaitSeconds: 10,
			MaxReconnectAttempts:     60,
		},
		Qdrant: QdrantConfig{
			Host:               "localhost",
			Port:               6334,
			CollectionName:     "news_events",
			EmbeddingModelName: "all-MiniLM-L6-v2",
		},
		Scheduler: SchedulerConfig{
			DefaultPollIntervalSeconds: 300,
		},
		Guardian: GuardianConfig{
			Alerters: "logging",
		},
		Ranker:    WorkerFileConfig{ConfigPath: "ranker_config.yaml"},
		Inspector: WorkerFileConfig{ConfigPath: "inspector_config.yaml"},
		Filter:    WorkerFileConfig{ConfigPath: "filter_config.yaml"},
		API:       APIConfig{ListenAddr: ":8080"},

		ReadinessTimeoutMillis: 500,
	}
}

// Load builds the configuration for the named service (e.g. "ranker").
// The service name selects which <SERVICE>_READINESS_TIME_OUT variable is
// honoured.
func Load(service string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		break
	}

	readinessVar := strings.ToUpper(service) + "_READINESS_TIME_OUT"
	if err := k.Load(env.Provider("", ".", func(name string) string {
		if name == readinessVar {
			return "readiness_timeout_millis"
		}
		return envPaths[name] // unknown variables map to "" and are skipped
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Service = service

	if err := overlayVaultSecrets(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
