// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Redis, Kafka, Postgres, Engine, Worker, Logging,
// Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Engine   EngineConfig   `yaml:"engine"`
	Worker   WorkerConfig   `yaml:"worker"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RatingEvents string `yaml:"ratingEvents"`
}

// PostgresConfig holds PostgreSQL connection parameters for the event log.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// EngineConfig holds the collaborative-filtering knobs.
type EngineConfig struct {
	// ClassName prefixes every key the engine writes.
	ClassName string `yaml:"className"`
	// NearestNeighbors is K for the most/least similar neighbour lookups.
	NearestNeighbors int `yaml:"nearestNeighbors"`
	// FactorLeastSimilar adds the dislikes of the K least similar users to
	// the candidate pool. Off by default: it tends to surface items that
	// everybody disliked.
	FactorLeastSimilar bool `yaml:"factorLeastSimilar"`
	// NumOfRecsStore caps the per-user recommendation set.
	NumOfRecsStore int `yaml:"numOfRecsStore"`
	// SimilarityTTL is the expiry set on a similarity row after each
	// recompute. Zero leaves rows without expiry.
	SimilarityTTL time.Duration `yaml:"similarityTTL"`
	// SimilarityJitter nudges exact ±1 similarities toward zero by less
	// than 1e-13 so identical users do not tie at the index boundary.
	SimilarityJitter bool `yaml:"similarityJitter"`
	// TempSetTTL bounds the lifetime of retrieval scratch sets.
	TempSetTTL time.Duration `yaml:"tempSetTTL"`
	// Concurrency limits parallel comparisons and predictions.
	Concurrency int `yaml:"concurrency"`
	// UpdateRecs runs the similarity and recommendation update after
	// every rating event.
	UpdateRecs bool `yaml:"updateRecs"`
}

// WorkerConfig bounds how the rating worker applies one event.
type WorkerConfig struct {
	EventTimeout        time.Duration `yaml:"eventTimeout"`
	RetryAttempts       int           `yaml:"retryAttempts"`
	RetryInitialDelay   time.Duration `yaml:"retryInitialDelay"`
	BreakerThreshold    int           `yaml:"breakerThreshold"`
	BreakerResetTimeout time.Duration `yaml:"breakerResetTimeout"`
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

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 20,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "recengine-workers",
			Topics: KafkaTopics{
				RatingEvents: "rating-events",
			},
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "recengine",
			User:            "recengine",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Engine: DefaultEngine(),
		Worker: WorkerConfig{
			EventTimeout:        10 * time.Second,
			RetryAttempts:       4,
			RetryInitialDelay:   200 * time.Millisecond,
			BreakerThreshold:    5,
			BreakerResetTimeout: 30 * time.Second,
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

// DefaultEngine returns the engine defaults.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		ClassName:          "item",
		NearestNeighbors:   5,
		FactorLeastSimilar: false,
		NumOfRecsStore:     30,
		SimilarityTTL:      72 * time.Hour,
		SimilarityJitter:   true,
		TempSetTTL:         30 * time.Second,
		Concurrency:        16,
		UpdateRecs:         true,
	}
}

// Validate rejects engine settings the algorithms cannot run with.
func (e EngineConfig) Validate() error {
	if e.ClassName == "" {
		return fmt.Errorf("engine.className must not be empty")
	}
	if e.NearestNeighbors <= 0 {
		return fmt.Errorf("engine.nearestNeighbors must be positive, got %d", e.NearestNeighbors)
	}
	if e.NumOfRecsStore <= 0 {
		return fmt.Errorf("engine.numOfRecsStore must be positive, got %d", e.NumOfRecsStore)
	}
	if e.SimilarityTTL < 0 || e.TempSetTTL < 0 {
		return fmt.Errorf("engine TTLs must not be negative")
	}
	return nil
}

// applyEnvOverrides reads RE_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("RE_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RE_KAFKA_RATING_TOPIC"); v != "" {
		cfg.Kafka.Topics.RatingEvents = v
	}
	if v := os.Getenv("RE_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("RE_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RE_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RE_ENGINE_CLASS_NAME"); v != "" {
		cfg.Engine.ClassName = v
	}
	if v := os.Getenv("RE_ENGINE_NEAREST_NEIGHBORS"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Engine.NearestNeighbors = k
		}
	}
	if v := os.Getenv("RE_ENGINE_NUM_OF_RECS_STORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.NumOfRecsStore = n
		}
	}
	if v := os.Getenv("RE_ENGINE_FACTOR_LEAST_SIMILAR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.FactorLeastSimilar = b
		}
	}
	if v := os.Getenv("RE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
