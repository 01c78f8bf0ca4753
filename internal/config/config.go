package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for ragproxy
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Backend    BackendConfig    `mapstructure:"backend"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Vision     VisionConfig     `mapstructure:"vision"`
	KB         KBConfig         `mapstructure:"kb"`
	WebSearch  WebSearchConfig  `mapstructure:"web_search"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// BackendConfig holds inference backend configuration
type BackendConfig struct {
	URL            string `mapstructure:"url"`
	MaxRequestSize int64  `mapstructure:"max_request_size"`
}

// CORSConfig holds the allowed browser origin
type CORSConfig struct {
	AllowOrigin string `mapstructure:"allow_origin"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// VisionConfig holds the vision description backend configuration
type VisionConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// KBConfig holds the knowledge-base document server configuration
type KBConfig struct {
	BaseURL string `mapstructure:"base_url"`
	TopK    int    `mapstructure:"top_k"`
}

// WebSearchConfig holds the web search service configuration
type WebSearchConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	MaxResults int    `mapstructure:"max_results"`
}

// EnrichmentConfig holds enrichment orchestration tuning.
// The analyzer weights and threshold are tuned constants, kept here so
// deliberate retuning stays visible in configuration.
type EnrichmentConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MinConfidence  float64 `mapstructure:"min_confidence"`
	KeywordWeight  float64 `mapstructure:"keyword_weight"`
	PatternWeight  float64 `mapstructure:"pattern_weight"`
	NegativeWeight float64 `mapstructure:"negative_weight"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("RAGPROXY")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 11435)

	v.SetDefault("backend.url", "http://localhost:11434")
	v.SetDefault("backend.max_request_size", 100*1024*1024)

	v.SetDefault("cors.allow_origin", "http://localhost:3000")

	v.SetDefault("database.path", "./data/ragproxy.db")

	v.SetDefault("vision.api_url", "https://api.chatfire.cn/v1/chat/completions")
	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.model", "gpt-4o")

	v.SetDefault("kb.base_url", "http://localhost:5001")
	v.SetDefault("kb.top_k", 3)

	v.SetDefault("web_search.base_url", "http://localhost:5002")
	v.SetDefault("web_search.max_results", 5)

	v.SetDefault("enrichment.timeout_seconds", 60)
	v.SetDefault("enrichment.min_confidence", 0.6)
	v.SetDefault("enrichment.keyword_weight", 0.5)
	v.SetDefault("enrichment.pattern_weight", 0.7)
	v.SetDefault("enrichment.negative_weight", -1.0)
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// EnrichmentTimeout returns the coordinator deadline as a duration
func (c *Config) EnrichmentTimeout() time.Duration {
	return time.Duration(c.Enrichment.TimeoutSeconds) * time.Second
}
