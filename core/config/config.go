package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// MessengerConfig holds Messenger platform settings that are common for all bots.
type MessengerConfig struct {
	AccessToken string `yaml:"access_token" envconfig:"MESSENGER_ACCESS_TOKEN"`
	VerifyToken string `yaml:"verify_token" envconfig:"MESSENGER_VERIFY_TOKEN"`
	APIURL      string `yaml:"api_url" envconfig:"MESSENGER_API_URL"`
	APIVersion  string `yaml:"api_version" envconfig:"MESSENGER_API_VERSION"`
}

// WebhookConfig specifies webhook server settings.
type WebhookConfig struct {
	Listen    string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port      int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	Path      string `yaml:"path" envconfig:"WEBHOOK_PATH"`
	PublicURL string `yaml:"public_url" envconfig:"WEBHOOK_PUBLIC_URL"`
}

// DispatchConfig tunes handler dispatch behavior.
type DispatchConfig struct {
	// Exclusive suppresses generic handlers when a payload, command,
	// or hears match already consumed the event. The default keeps the
	// legacy behavior where generic handlers always run.
	Exclusive bool `yaml:"exclusive" envconfig:"DISPATCH_EXCLUSIVE"`
}

// RedisConfig holds connection settings for the redis session backend.
type RedisConfig struct {
	Addr       string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password   string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB         int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix     string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
	TTLSeconds int    `yaml:"ttl_seconds" envconfig:"REDIS_TTL_SECONDS"`
}

// SessionConfig selects and tunes the session store backend.
type SessionConfig struct {
	Backend  string      `yaml:"backend" envconfig:"SESSION_BACKEND"`
	FilePath string      `yaml:"file_path" envconfig:"SESSION_FILE_PATH"`
	Redis    RedisConfig `yaml:"redis"`
}

// SenderConfig tunes the asynchronous outbound dispatcher.
// Zero values select the dispatcher defaults.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers        int `yaml:"workers" envconfig:"SENDER_WORKERS"`
	MaxRetries     int `yaml:"max_retries" envconfig:"SENDER_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"SENDER_RETRY_BACKOFF_MS"`
	MaxDurationMS  int `yaml:"max_duration_ms" envconfig:"SENDER_MAX_DURATION_MS"`
}

// MetricsConfig toggles the prometheus endpoint on the webhook server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"METRICS_ENABLED"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// BackendMemory selects the in-memory session store.
	BackendMemory = "memory"
	// BackendFile selects the single-file JSON session store.
	BackendFile = "file"
	// BackendRedis selects the redis session store.
	BackendRedis = "redis"
	// BackendPostgres selects the postgres session store.
	BackendPostgres = "postgres"
)

const (
	// DefaultAPIURL is the Graph API host used when none is configured.
	DefaultAPIURL = "https://graph.facebook.com"
	// DefaultAPIVersion pins the Graph API version for outbound calls.
	DefaultAPIVersion = "v19.0"
	// DefaultWebhookPath is the route the webhook server mounts by default.
	DefaultWebhookPath = "/webhook"
	// DefaultSessionFile is the file store path used when none is configured.
	DefaultSessionFile = "sessions.json"
)

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Messenger MessengerConfig `yaml:"messenger"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Session   SessionConfig   `yaml:"session"`
	Sender    SenderConfig    `yaml:"sender"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Messenger.AccessToken) == "" {
		return fmt.Errorf("messenger access_token is required")
	}
	if strings.TrimSpace(cfg.Messenger.VerifyToken) == "" {
		return fmt.Errorf("messenger verify_token is required")
	}
	if strings.TrimSpace(cfg.Messenger.APIURL) == "" {
		cfg.Messenger.APIURL = DefaultAPIURL
	}
	cfg.Messenger.APIURL = strings.TrimRight(cfg.Messenger.APIURL, "/")
	if strings.TrimSpace(cfg.Messenger.APIVersion) == "" {
		cfg.Messenger.APIVersion = DefaultAPIVersion
	}

	if strings.TrimSpace(cfg.Webhook.Listen) == "" {
		cfg.Webhook.Listen = "0.0.0.0"
	}
	if cfg.Webhook.Port <= 0 {
		cfg.Webhook.Port = 8080
	}
	path := strings.TrimSpace(cfg.Webhook.Path)
	if path == "" {
		path = DefaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("webhook.path must start with '/', got %q", cfg.Webhook.Path)
	}
	cfg.Webhook.Path = path

	backend := strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	if backend == "" {
		backend = BackendMemory
	}
	switch backend {
	case BackendMemory, BackendPostgres:
	case BackendFile:
		if strings.TrimSpace(cfg.Session.FilePath) == "" {
			cfg.Session.FilePath = DefaultSessionFile
		}
	case BackendRedis:
		if strings.TrimSpace(cfg.Session.Redis.Addr) == "" {
			return fmt.Errorf("session.redis.addr is required when session.backend is 'redis'")
		}
		if cfg.Session.Redis.TTLSeconds < 0 {
			return fmt.Errorf("session.redis.ttl_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, file, redis, postgres", cfg.Session.Backend)
	}
	cfg.Session.Backend = backend

	if cfg.Sender.QueueSize < 0 || cfg.Sender.Workers < 0 || cfg.Sender.MaxRetries < 0 ||
		cfg.Sender.RetryBackoffMS < 0 || cfg.Sender.MaxDurationMS < 0 {
		return fmt.Errorf("sender values must be >= 0")
	}
	return nil
}
