// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-driven setting. Each binary loads it once at
// startup and passes pieces down by constructor; nothing reads os.Getenv later.
type Config struct {
	HTTPAddr    string
	AdminAPIKey string

	Database DatabaseConfig
	Billing  BillingConfig
	Voice    VoiceConfig
	SMS      SMSConfig
	Queue    QueueConfig
	Batch    BatchConfig
	Message  MessageConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// BillingConfig points at the external billing/CRM directory API.
type BillingConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// VoiceConfig points at the outbound AI voice-call platform.
type VoiceConfig struct {
	BaseURL     string
	APIKey      string
	AssistantID string
	Timeout     time.Duration
}

// SMSConfig points at the SMS provider.
type SMSConfig struct {
	BaseURL    string
	APIKey     string
	FromNumber string
	Timeout    time.Duration
}

type QueueConfig struct {
	AMQPURL    string
	EmailQueue string
}

// BatchConfig tunes the ingest/sweep pipeline.
type BatchConfig struct {
	CSVDropDir            string
	BalanceTolerance      float64
	DeliveryLookaheadDays int
	MatchConcurrency      int
}

// MessageConfig carries the company identity baked into outreach messages.
type MessageConfig struct {
	CompanyName  string
	CompanyPhone string
	PaymentURL   string
}

// Load reads configuration from the environment with sane defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		AdminAPIKey: os.Getenv("ADMIN_API_KEY"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "outreach"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     getEnv("DB_NAME", "outreach"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Billing: BillingConfig{
			BaseURL: os.Getenv("BILLING_API_URL"),
			APIKey:  os.Getenv("BILLING_API_KEY"),
			Timeout: getEnvDuration("BILLING_TIMEOUT", 30*time.Second),
		},
		Voice: VoiceConfig{
			BaseURL:     getEnv("VOICE_API_URL", "https://api.voice.example.com"),
			APIKey:      os.Getenv("VOICE_API_KEY"),
			AssistantID: os.Getenv("VOICE_ASSISTANT_ID"),
			Timeout:     getEnvDuration("VOICE_TIMEOUT", 30*time.Second),
		},
		SMS: SMSConfig{
			BaseURL:    getEnv("SMS_API_URL", "https://api.sms.example.com"),
			APIKey:     os.Getenv("SMS_API_KEY"),
			FromNumber: os.Getenv("SMS_FROM_NUMBER"),
			Timeout:    getEnvDuration("SMS_TIMEOUT", 30*time.Second),
		},
		Queue: QueueConfig{
			AMQPURL:    os.Getenv("AMQP_URL"),
			EmailQueue: getEnv("EMAIL_QUEUE", "email_outreach"),
		},
		Batch: BatchConfig{
			CSVDropDir:            getEnv("CSV_DROP_DIR", "data/batches"),
			BalanceTolerance:      getEnvFloat("MATCH_BALANCE_TOLERANCE", 5.0),
			DeliveryLookaheadDays: getEnvInt("DELIVERY_LOOKAHEAD_DAYS", 45),
			MatchConcurrency:      getEnvInt("MATCH_CONCURRENCY", 4),
		},
		Message: MessageConfig{
			CompanyName:  getEnv("COMPANY_NAME", "Ridgewater Water"),
			CompanyPhone: getEnv("COMPANY_PHONE", "(800) 555-0137"),
			PaymentURL:   getEnv("PAYMENT_URL", "pay.ridgewater.com"),
		},
	}

	if cfg.Billing.BaseURL == "" {
		return nil, fmt.Errorf("BILLING_API_URL is required")
	}
	if cfg.Batch.MatchConcurrency < 1 {
		cfg.Batch.MatchConcurrency = 1
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
