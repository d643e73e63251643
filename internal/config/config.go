package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Signal names accepted in recommendation.weights.
const (
	SignalCF      = "cf"
	SignalContent = "content"
	SignalCluster = "cluster"
)

var KnownSignals = []string{SignalCF, SignalContent, SignalCluster}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Neo4j          Neo4jConfig          `mapstructure:"neo4j"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Models         ModelConfig          `mapstructure:"models"`
	History        HistoryConfig        `mapstructure:"history"`
	Reference      ReferenceConfig      `mapstructure:"reference"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Security       SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Hot  RedisInstanceConfig `mapstructure:"hot"`
	Warm RedisInstanceConfig `mapstructure:"warm"`
}

type RedisInstanceConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		RecommendationHistory string `mapstructure:"recommendation_history"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RecommendationConfig struct {
	Weights              map[string]float64 `mapstructure:"weights"`
	DefaultTopN          int                `mapstructure:"default_top_n"`
	MaxTopN              int                `mapstructure:"max_top_n"`
	SignalTimeout        time.Duration      `mapstructure:"signal_timeout"`
	PredictorConcurrency int                `mapstructure:"predictor_concurrency"`
	// PopularitySource is "memory" or "neo4j".
	PopularitySource string        `mapstructure:"popularity_source"`
	Caching          CachingConfig `mapstructure:"caching"`
}

type CachingConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	RecommendationsTTL time.Duration `mapstructure:"recommendations_ttl"`
	ClusterTTL         time.Duration `mapstructure:"cluster_ttl"`
}

type ModelConfig struct {
	ArtifactDir  string `mapstructure:"artifact_dir"`
	Manifest     string `mapstructure:"manifest"`
	Predictor    string `mapstructure:"predictor"`
	ContentIndex string `mapstructure:"content_index"`
	Segmentation string `mapstructure:"segmentation"`
}

type HistoryConfig struct {
	// Sink is one of "kafka", "postgres" or "log".
	Sink         string        `mapstructure:"sink"`
	Shards       int           `mapstructure:"shards"`
	QueueSize    int           `mapstructure:"queue_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxRequests      uint32        `mapstructure:"max_requests"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
}

type ReferenceConfig struct {
	// ReloadInterval of zero disables periodic reloads.
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if err := ValidateWeights(c.Recommendation.Weights); err != nil {
		return err
	}
	if c.Recommendation.DefaultTopN < 1 {
		return fmt.Errorf("recommendation.default_top_n must be positive, got %d", c.Recommendation.DefaultTopN)
	}
	if c.Recommendation.MaxTopN < c.Recommendation.DefaultTopN {
		return fmt.Errorf("recommendation.max_top_n (%d) is below default_top_n (%d)",
			c.Recommendation.MaxTopN, c.Recommendation.DefaultTopN)
	}
	if c.Recommendation.PredictorConcurrency < 1 {
		return fmt.Errorf("recommendation.predictor_concurrency must be positive")
	}
	switch c.Recommendation.PopularitySource {
	case "memory", "neo4j":
	default:
		return fmt.Errorf("unknown recommendation.popularity_source %q", c.Recommendation.PopularitySource)
	}
	switch c.History.Sink {
	case "kafka", "postgres", "log":
	default:
		return fmt.Errorf("unknown history.sink %q", c.History.Sink)
	}
	if c.History.Shards < 1 || c.History.QueueSize < 1 {
		return fmt.Errorf("history.shards and history.queue_size must be positive")
	}
	return nil
}

// ValidateWeights checks that every weight names a known signal, is
// non-negative and that the weights sum to 1.0.
func ValidateWeights(weights map[string]float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("signal weights are empty")
	}

	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	sum := 0.0
	for _, name := range names {
		if !isKnownSignal(name) {
			return fmt.Errorf("unknown signal %q in weights", name)
		}
		w := weights[name]
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight for %q must be a non-negative number, got %v", name, w)
		}
		sum += w
	}

	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("signal weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

func isKnownSignal(name string) bool {
	for _, s := range KnownSignals {
		if s == name {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")

	// Database defaults
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.hot.max_retries", 3)
	v.SetDefault("redis.hot.pool_size", 10)
	v.SetDefault("redis.hot.timeout", "5s")
	v.SetDefault("redis.warm.max_retries", 3)
	v.SetDefault("redis.warm.pool_size", 5)
	v.SetDefault("redis.warm.timeout", "10s")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.recommendation_history", "recommendation-history")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Recommendation defaults
	v.SetDefault("recommendation.weights", map[string]float64{
		SignalCF:      0.4,
		SignalContent: 0.4,
		SignalCluster: 0.2,
	})
	v.SetDefault("recommendation.default_top_n", 10)
	v.SetDefault("recommendation.max_top_n", 100)
	v.SetDefault("recommendation.signal_timeout", "2s")
	v.SetDefault("recommendation.predictor_concurrency", 8)
	v.SetDefault("recommendation.popularity_source", "memory")

	// Caching defaults
	v.SetDefault("recommendation.caching.enabled", true)
	v.SetDefault("recommendation.caching.recommendations_ttl", "15m")
	v.SetDefault("recommendation.caching.cluster_ttl", "1h")

	// Model defaults
	v.SetDefault("models.artifact_dir", "./models")
	v.SetDefault("models.manifest", "manifest.yaml")
	v.SetDefault("models.predictor", "predictor.json")
	v.SetDefault("models.content_index", "content_index.json")
	v.SetDefault("models.segmentation", "segmentation.json")

	// History defaults
	v.SetDefault("history.sink", "postgres")
	v.SetDefault("history.shards", 4)
	v.SetDefault("history.queue_size", 256)
	v.SetDefault("history.max_retries", 3)
	v.SetDefault("history.retry_backoff", "200ms")
	v.SetDefault("history.write_timeout", "5s")
	v.SetDefault("history.breaker.max_requests", 1)
	v.SetDefault("history.breaker.interval", "1m")
	v.SetDefault("history.breaker.timeout", "30s")
	v.SetDefault("history.breaker.failure_threshold", 5)

	// Reference data defaults
	v.SetDefault("reference.reload_interval", "0s")
	v.SetDefault("reference.load_timeout", "30s")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
}
