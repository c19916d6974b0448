package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Worker   WorkerConfig   `yaml:"worker"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration. The password is
// a secret and comes from the environment, not the file.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// RabbitMQConfig holds broker connection and topology configuration.
type RabbitMQConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	VHost          string        `yaml:"vhost"`
	TaskExchange   string        `yaml:"task_exchange"`
	StatusExchange string        `yaml:"status_exchange"`
	PrefetchCount  int           `yaml:"prefetch_count"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
}

// WorkerConfig holds downstream analysis worker settings.
type WorkerConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DispatchConfig holds dispatcher pool and resiliency settings.
type DispatchConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	DequeueWait      time.Duration `yaml:"dequeue_wait"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffCap       time.Duration `yaml:"backoff_cap"`
	BreakerThreshold uint32        `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	OpenRetryDelay   time.Duration `yaml:"open_retry_delay"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	SweepAfter       time.Duration `yaml:"sweep_after"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// WebhookConfig holds webhook verification settings. The shared secret is an
// environment secret.
type WebhookConfig struct {
	SignatureHeader string `yaml:"signature_header"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Secrets holds values that never live in the config file.
type Secrets struct {
	DBPassword    string `envconfig:"DB_PASSWORD"`
	QueuePassword string `envconfig:"QUEUE_PASSWORD"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadSecrets reads secret values from the environment.
func LoadSecrets() (*Secrets, error) {
	var secrets Secrets
	if err := envconfig.Process("", &secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	return &secrets, nil
}

// ValidateAPIConfig checks the fields the api-service needs.
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateBackends(); err != nil {
		return err
	}

	if c.Webhook.SignatureHeader == "" {
		return fmt.Errorf("webhook signature_header is required")
	}

	return nil
}

// ValidateDispatcherConfig checks the fields the dispatcher-service needs.
func (c *Config) ValidateDispatcherConfig() error {
	if err := c.validateBackends(); err != nil {
		return err
	}

	if c.Worker.BaseURL == "" {
		return fmt.Errorf("worker base_url is required")
	}

	if c.Worker.RequestTimeout <= 0 {
		return fmt.Errorf("worker request_timeout must be greater than 0")
	}

	if c.Dispatch.Concurrency <= 0 {
		return fmt.Errorf("dispatch concurrency must be greater than 0")
	}

	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("dispatch max_attempts must be greater than 0")
	}

	if c.Dispatch.BackoffBase <= 0 || c.Dispatch.BackoffCap < c.Dispatch.BackoffBase {
		return fmt.Errorf("dispatch backoff_base must be positive and backoff_cap at least backoff_base")
	}

	if c.Dispatch.BreakerThreshold == 0 {
		return fmt.Errorf("dispatch breaker_threshold must be greater than 0")
	}

	if c.Dispatch.BreakerCooldown <= 0 {
		return fmt.Errorf("dispatch breaker_cooldown must be greater than 0")
	}

	return nil
}

func (c *Config) validateBackends() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.TaskExchange == "" {
		return fmt.Errorf("rabbitmq task_exchange is required")
	}

	return nil
}
