package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Shared bearer token for all non-health routes. Empty disables auth
	// (local development only).
	APIToken string `envconfig:"API_TOKEN"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel  string `envconfig:"OPENAI_MODEL"`
	AgentName    string `envconfig:"AGENT_NAME" default:"AI Voice Receptionist"`

	WebhookURL    string `envconfig:"WEBHOOK_URL"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	SnapshotLimit       int           `envconfig:"SNAPSHOT_LIMIT" default:"100"`
	SnapshotTTL         time.Duration `envconfig:"SNAPSHOT_TTL" default:"60s"`
	UpdateCheckInterval time.Duration `envconfig:"UPDATE_CHECK_INTERVAL" default:"30s"`
	SweepInterval       time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	EscalationTimeout   time.Duration `envconfig:"ESCALATION_TIMEOUT" default:"5m"`

	DupSharedWords  int     `envconfig:"DUP_SHARED_WORDS" default:"2"`
	DupOverlapRatio float64 `envconfig:"DUP_OVERLAP_RATIO" default:"0.7"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"frontline-knowledge"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("FRONTLINE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	// envconfig's required tag accepts a present-but-empty variable, so an
	// explicit check is needed to fail at startup instead of on first query.
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("FRONTLINE_DATABASE_URL is required")
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasWebhook() bool {
	return c.WebhookURL != ""
}
