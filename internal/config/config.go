package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	QueueMemory   = "memory"
	QueueRabbitMQ = "rabbitmq"
)

type Config struct {
	// ----------------------------
	// Default SMTP (used when no email account resolves)
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:""`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPSecure   bool   `envconfig:"SMTP_SECURE" default:"false"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:""`

	// ----------------------------
	// Workers
	// ----------------------------
	WorkerCount     int    `envconfig:"WORKER_COUNT" default:"4"`
	QueueSize       int    `envconfig:"QUEUE_SIZE" default:"100"`
	QueueDriver     string `envconfig:"QUEUE_DRIVER" default:"memory"`
	EmbeddedWorkers bool   `envconfig:"EMBEDDED_WORKERS" default:"true"`

	// ----------------------------
	// RabbitMQ
	// ----------------------------
	RMQURL   string `envconfig:"RMQ_URL" default:""`
	RMQQueue string `envconfig:"RMQ_QUEUE" default:"campaign_dispatch"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`
	APIURL  string `envconfig:"API_URL" default:"http://localhost:3000"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL      string        `envconfig:"DATABASE_URL" required:"true"`
	DBConnectTimeout time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"30s"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.QueueDriver {
	case QueueMemory:
		if !c.EmbeddedWorkers {
			return fmt.Errorf("QUEUE_DRIVER=%s needs EMBEDDED_WORKERS=true", QueueMemory)
		}
	case QueueRabbitMQ:
		if c.RMQURL == "" {
			return fmt.Errorf("RMQ_URL is required when QUEUE_DRIVER=%s", QueueRabbitMQ)
		}
	default:
		return fmt.Errorf("unknown QUEUE_DRIVER %q", c.QueueDriver)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", c.WorkerCount)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be positive, got %d", c.QueueSize)
	}
	return nil
}
