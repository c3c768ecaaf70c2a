package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration, loaded once from the environment.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	Providers     ProviderConfig
	RateLimit     RateLimitConfig
	Bucketing     BucketingConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableTLS   bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string

	// Origins allowed to call the quote endpoint when running in production.
	AllowedOrigins []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type PostgresConfig struct {
	URL      string
	MaxConns int
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers   []string
	CostTopic string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type ElasticsearchConfig struct {
	URL        string
	Username   string
	Password   string
	QuoteIndex string
}

type ProviderConfig struct {
	ResendAPIKey    string
	EmailFrom       string
	SMSGatewayURL   string
	SMSAPIKey       string
	StripeSecretKey string
	RecaptchaSecret string
	AIGatewayURL    string
	AIAPIKey        string
	JWTSecret       string
}

type RateLimitConfig struct {
	// FailOpen allows requests through when the counter lookup itself fails.
	// Availability over strict enforcement; flip off for lockdown.
	FailOpen bool
}

type BucketingConfig struct {
	IdentifierBuckets int
}

var loaded *Config

// LoadConfig reads .env (if present) and assembles the typed configuration.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8080),
			TLSPort:        getEnvInt("SERVER_TLS_PORT", 8443),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			EnableTLS:      getEnvBool("ENABLE_TLS", false),
			AutoCert:       getEnvBool("AUTO_CERT", false),
			Domain:         getEnv("SERVER_DOMAIN", "localhost"),
			CertFile:       getEnv("TLS_CERT_FILE", ""),
			KeyFile:        getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:    getEnv("AUTO_CERT_DIR", "./certs"),
			Email:          getEnv("TLS_CONTACT_EMAIL", ""),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", nil),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Postgres: PostgresConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/sourcing?sslmode=disable"),
			MaxConns: getEnvInt("DATABASE_MAX_CONNS", 25),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Kafka: KafkaConfig{
			Brokers:   getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			CostTopic: getEnv("KAFKA_COST_TOPIC", "pricing-invocations"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "sourcing"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			QuoteIndex: getEnv("ELASTICSEARCH_QUOTE_INDEX", "quote-requests"),
		},
		Providers: ProviderConfig{
			ResendAPIKey:    getEnv("RESEND_API_KEY", ""),
			EmailFrom:       getEnv("EMAIL_FROM", "verify@sourcing.example.com"),
			SMSGatewayURL:   getEnv("SMS_GATEWAY_URL", ""),
			SMSAPIKey:       getEnv("SMS_API_KEY", ""),
			StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			RecaptchaSecret: getEnv("RECAPTCHA_SECRET_KEY", ""),
			AIGatewayURL:    getEnv("AI_GATEWAY_URL", "https://ai.gateway.lovable.dev/v1/chat/completions"),
			AIAPIKey:        getEnv("LOVABLE_API_KEY", ""),
			JWTSecret:       getEnv("JWT_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			FailOpen: getEnvBool("RATE_LIMIT_FAIL_OPEN", true),
		},
		Bucketing: BucketingConfig{
			IdentifierBuckets: getEnvInt("IDENTIFIER_BUCKETS", 64),
		},
	}

	loaded = cfg
	return cfg
}

// Get returns the last loaded configuration.
func Get() *Config {
	if loaded == nil {
		return LoadConfig()
	}
	return loaded
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
