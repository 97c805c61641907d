package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the decision core.
type Config struct {
	LeadStore LeadStoreConfig `yaml:"lead_store"`
	Redis     RedisConfig     `yaml:"redis"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Policy    PolicyConfig    `yaml:"policy"`
	Queue     QueueConfig     `yaml:"queue"`
}

// LeadStoreConfig controls the external relational lead store connection.
type LeadStoreConfig struct {
	DatabaseURL string `yaml:"database_url"`
	// Synthesize makes lookups for unknown leads return a minimal placeholder
	// record instead of failing. Dev/test mode only.
	Synthesize     bool `yaml:"synthesize"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

// Timeout returns the lead store query timeout as a duration.
func (c LeadStoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig holds the connection for the global arm-performance signal.
// The messaging bot publishes per-arm stats there; this core only reads.
type RedisConfig struct {
	URL            string `yaml:"url"`
	PerformanceKey string `yaml:"performance_key"`
}

// SnapshotConfig controls the durable state snapshots.
type SnapshotConfig struct {
	Type       string `yaml:"type"` // "local" or "aws"
	LocalPath  string `yaml:"local_path"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"`
}

// GetAWSProfile returns the profile, honoring the AWS_PROFILE env override.
func (c SnapshotConfig) GetAWSProfile() string {
	if p := os.Getenv("AWS_PROFILE"); p != "" {
		return p
	}
	return c.AWSProfile
}

// ScoringConfig holds scoring engine tunables.
type ScoringConfig struct {
	RetrainIntervalMinutes int `yaml:"retrain_interval_minutes"`
}

// RetrainInterval returns the periodic retrain cadence.
func (c ScoringConfig) RetrainInterval() time.Duration {
	return time.Duration(c.RetrainIntervalMinutes) * time.Minute
}

// PolicyConfig holds bandit policy tunables.
type PolicyConfig struct {
	ExplorationC float64 `yaml:"exploration_c"`
	SegmentBoost float64 `yaml:"segment_boost"`
}

// QueueConfig holds work queue tunables.
type QueueConfig struct {
	DefaultAgentCapacity int `yaml:"default_agent_capacity"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LeadStore.TimeoutSeconds == 0 {
		cfg.LeadStore.TimeoutSeconds = 5
	}
	if cfg.Redis.PerformanceKey == "" {
		cfg.Redis.PerformanceKey = "bandits:performance"
	}
	if cfg.Snapshot.Type == "" {
		cfg.Snapshot.Type = "local"
	}
	if cfg.Snapshot.LocalPath == "" {
		cfg.Snapshot.LocalPath = "./data"
	}
	if cfg.Snapshot.AWSRegion == "" {
		cfg.Snapshot.AWSRegion = "us-east-1"
	}
	if cfg.Scoring.RetrainIntervalMinutes == 0 {
		cfg.Scoring.RetrainIntervalMinutes = 60
	}
	if cfg.Policy.ExplorationC == 0 {
		cfg.Policy.ExplorationC = 1.4
	}
	if cfg.Policy.SegmentBoost == 0 {
		cfg.Policy.SegmentBoost = 1.1
	}
	if cfg.Queue.DefaultAgentCapacity == 0 {
		cfg.Queue.DefaultAgentCapacity = 10
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		// Missing config file is fine: run entirely on defaults + env
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = &Config{}
		applyDefaults(cfg)
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.LeadStore.DatabaseURL = dbURL
	}
	if v := os.Getenv("LEADSTORE_SYNTHESIZE"); v == "true" || v == "1" {
		cfg.LeadStore.Synthesize = true
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if v := os.Getenv("SNAPSHOT_S3_BUCKET"); v != "" {
		cfg.Snapshot.S3Bucket = v
		cfg.Snapshot.Type = "aws"
	}
	if v := os.Getenv("SNAPSHOT_LOCAL_PATH"); v != "" {
		cfg.Snapshot.LocalPath = v
	}

	return cfg, nil
}
