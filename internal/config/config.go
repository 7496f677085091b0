package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Algorithms AlgorithmConfig  `mapstructure:"recommendation"`
	Models     ModelConfig      `mapstructure:"models"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
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
	Cold RedisInstanceConfig `mapstructure:"cold"`
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
		Interactions string `mapstructure:"interactions"`
	} `mapstructure:"topics"`
	GroupID string `mapstructure:"group_id"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AlgorithmConfig carries every recognized recommendation option, plus
// the diversity/caching sub-tables that live alongside algorithm
// weights.
type AlgorithmConfig struct {
	CFMinInteractions     int           `mapstructure:"cf_min_interactions"`
	CFNFactors            int           `mapstructure:"cf_n_factors"`
	CFNEpochs             int           `mapstructure:"cf_n_epochs"`
	RealTimeWindowSeconds int           `mapstructure:"real_time_window_seconds"`
	DiversityFactor       float64       `mapstructure:"diversity_factor"`
	ExplorationFactor     float64       `mapstructure:"exploration_factor"`
	CollaborativeWeight   float64       `mapstructure:"collaborative_weight"`
	ContentWeight         float64       `mapstructure:"content_weight"`
	PopularityWeight      float64       `mapstructure:"popularity_weight"`
	DiversityWeight       float64       `mapstructure:"diversity_weight"`
	CategoryWeight        float64       `mapstructure:"category_weight"`
	TagWeight             float64       `mapstructure:"tag_weight"`
	DescriptionWeight     float64       `mapstructure:"description_weight"`
	LocationWeight        float64       `mapstructure:"location_weight"`
	SimilarityThreshold   float64       `mapstructure:"similarity_threshold"`
	ModelInferenceTimeout time.Duration `mapstructure:"model_inference_timeout"`

	Diversity DiversityConfig `mapstructure:"diversity"`
	Caching   CachingConfig   `mapstructure:"caching"`
}

type DiversityConfig struct {
	CategoryMaxItems      int     `mapstructure:"category_max_items"`
	SerendipityPositions  []int   `mapstructure:"serendipity_positions"`
	TemporalDecayHalfLife float64 `mapstructure:"temporal_decay_half_life_days"`
}

type CachingConfig struct {
	EmbeddingsTTL      time.Duration `mapstructure:"embeddings_ttl"`
	CFCandidatesTTL    time.Duration `mapstructure:"cf_candidates_ttl"`
	CBCandidatesTTL    time.Duration `mapstructure:"cb_candidates_ttl"`
	GraphResultsTTL    time.Duration `mapstructure:"graph_results_ttl"`
	OrchestrationTTL   time.Duration `mapstructure:"orchestration_ttl"`
}

type ModelConfig struct {
	TextEmbedding ModelInstanceConfig `mapstructure:"text_embedding"`
	SnapshotDir   string              `mapstructure:"snapshot_dir"`
}

type ModelInstanceConfig struct {
	Dimensions int `mapstructure:"dimensions"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        string `mapstructure:"port"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// Load reads an optional config file, overlays environment variables
// (prefixed RECO_, "." replaced with "_"), and unmarshals into Config.
// A missing config file is not an error; defaults and env vars still apply.
func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("RECO")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	viper.SetDefault("redis.hot.max_retries", 3)
	viper.SetDefault("redis.hot.pool_size", 10)
	viper.SetDefault("redis.hot.timeout", "5s")
	viper.SetDefault("redis.warm.max_retries", 3)
	viper.SetDefault("redis.warm.pool_size", 5)
	viper.SetDefault("redis.warm.timeout", "10s")
	viper.SetDefault("redis.cold.max_retries", 2)
	viper.SetDefault("redis.cold.pool_size", 3)
	viper.SetDefault("redis.cold.timeout", "30s")

	viper.SetDefault("kafka.topics.interactions", "interactions")
	viper.SetDefault("kafka.group_id", "recoengine")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("recommendation.cf_min_interactions", 5)
	viper.SetDefault("recommendation.cf_n_factors", 50)
	viper.SetDefault("recommendation.cf_n_epochs", 100)
	viper.SetDefault("recommendation.real_time_window_seconds", 300)
	viper.SetDefault("recommendation.diversity_factor", 0.1)
	viper.SetDefault("recommendation.exploration_factor", 0.05)
	viper.SetDefault("recommendation.collaborative_weight", 0.40)
	viper.SetDefault("recommendation.content_weight", 0.35)
	viper.SetDefault("recommendation.popularity_weight", 0.15)
	viper.SetDefault("recommendation.diversity_weight", 0.10)
	viper.SetDefault("recommendation.category_weight", 0.30)
	viper.SetDefault("recommendation.tag_weight", 0.25)
	viper.SetDefault("recommendation.description_weight", 0.25)
	viper.SetDefault("recommendation.location_weight", 0.20)
	viper.SetDefault("recommendation.similarity_threshold", 0.7)
	viper.SetDefault("recommendation.model_inference_timeout", "30s")

	viper.SetDefault("recommendation.diversity.category_max_items", 3)
	viper.SetDefault("recommendation.diversity.serendipity_positions", []int{2, 6, 11, 16, 21})
	viper.SetDefault("recommendation.diversity.temporal_decay_half_life_days", 7.0)

	viper.SetDefault("recommendation.caching.embeddings_ttl", "24h")
	viper.SetDefault("recommendation.caching.cf_candidates_ttl", "1h")
	viper.SetDefault("recommendation.caching.cb_candidates_ttl", "30m")
	viper.SetDefault("recommendation.caching.graph_results_ttl", "2h")
	viper.SetDefault("recommendation.caching.orchestration_ttl", "15m")

	viper.SetDefault("models.text_embedding.dimensions", 384)
	viper.SetDefault("models.snapshot_dir", "data/models")

	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.port", "9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")
}
