// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Pipeline, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the API service.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SocialPosts  string `yaml:"socialPosts"`
	NewsArticles string `yaml:"newsArticles"`
	RunSummaries string `yaml:"runSummaries"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PipelineConfig controls the incremental merge run and all derived
// computations: watermark overlap, sentiment category thresholds, anomaly
// flagging, trend scoring, and retention pruning.
type PipelineConfig struct {
	RunInterval                time.Duration       `yaml:"runInterval"`
	OverlapWindow              time.Duration       `yaml:"overlapWindow"`
	SentimentThresholdPositive float64             `yaml:"sentimentThresholdPositive"`
	SentimentThresholdNegative float64             `yaml:"sentimentThresholdNegative"`
	AnomalyZThreshold          float64             `yaml:"anomalyZThreshold"`
	TrendLookbackDays          int                 `yaml:"trendLookbackDays"`
	MinMentionsForTrend        int                 `yaml:"minMentionsForTrend"`
	RetentionDays              int                 `yaml:"retentionDays"`
	TopicKeywords              map[string][]string `yaml:"topicKeywords"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads an optional .env file, then a YAML config file (if provided),
// and applies environment-variable overrides. It returns a Config populated
// with sensible defaults for any missing values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Pipeline.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p PipelineConfig) validate() error {
	if p.SentimentThresholdPositive <= p.SentimentThresholdNegative {
		return fmt.Errorf("pipeline: positive threshold %v must exceed negative threshold %v",
			p.SentimentThresholdPositive, p.SentimentThresholdNegative)
	}
	if p.OverlapWindow < 0 {
		return fmt.Errorf("pipeline: overlap window must not be negative")
	}
	if p.TrendLookbackDays <= 0 {
		return fmt.Errorf("pipeline: trend lookback must be positive")
	}
	return nil
}

// DefaultTopicKeywords is the built-in keyword-to-topic mapping used when no
// topicKeywords block is configured.
func DefaultTopicKeywords() map[string][]string {
	return map[string][]string{
		"Product Launch": {"launch", "launches", "launching", "unveil", "unveils", "new", "release", "debut"},
		"Quality Issue":  {"recall", "defect", "complaint", "issue", "problem", "fail", "broken"},
		"Pricing":        {"price", "prices", "pricing", "cost", "discount", "deal", "expensive"},
		"Sustainability": {"sustainable", "sustainability", "eco", "green", "recyclable", "climate"},
		"Marketing":      {"ad", "ads", "advert", "campaign", "sponsor", "commercial"},
	}
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "brandsentiment",
			User:            "brandsentiment",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "brandsentiment-group",
			Topics: KafkaTopics{
				SocialPosts:  "raw-social-posts",
				NewsArticles: "raw-news-articles",
				RunSummaries: "pipeline-run-summaries",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			RunInterval:                time.Hour,
			OverlapWindow:              24 * time.Hour,
			SentimentThresholdPositive: 0.3,
			SentimentThresholdNegative: -0.3,
			AnomalyZThreshold:          2.0,
			TrendLookbackDays:          30,
			MinMentionsForTrend:        3,
			RetentionDays:              90,
			TopicKeywords:              DefaultTopicKeywords(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads BS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("BS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("BS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("BS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BS_PIPELINE_RUN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.RunInterval = d
		}
	}
	if v := os.Getenv("BS_PIPELINE_OVERLAP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.OverlapWindow = d
		}
	}
	if v := os.Getenv("BS_PIPELINE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.RetentionDays = n
		}
	}
	if v := os.Getenv("BS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
