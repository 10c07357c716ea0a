package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/prindex/internal/domain"
)

// Config holds the pipeline configuration shared by the fetcher and the indexer.
type Config struct {
	Env       string          `yaml:"-" envconfig:"ENV"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Elastic   ElasticConfig   `yaml:"elastic"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"` // debug, info, warn, error (default: determined by env)
}

// DatasetConfig holds the source dataset and the sampled output file.
type DatasetConfig struct {
	Name       string `yaml:"name" envconfig:"HF_DATASET_PATH"`
	Config     string `yaml:"config" envconfig:"HF_DATASET_CONFIG"` // empty = first config listed
	Split      string `yaml:"split"`
	Token      string `yaml:"token" envconfig:"HF_TOKEN"`
	ServerURL  string `yaml:"server_url" envconfig:"HF_DATASETS_SERVER_URL"`
	CacheDir   string `yaml:"cache_dir"`
	SampleSize int    `yaml:"sample_size"`
	OutputPath string `yaml:"output_path"`
}

// ElasticConfig holds search service connection settings.
type ElasticConfig struct {
	Endpoint       string        `yaml:"endpoint" envconfig:"ELASTIC_ENDPOINT"`
	APIKey         string        `yaml:"api_key" envconfig:"ELASTIC_API_KEY"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryOnTimeout bool          `yaml:"retry_on_timeout"`
}

// IndexConfig holds the target index and bulk settings.
type IndexConfig struct {
	Name       string `yaml:"name"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider string      `yaml:"provider" envconfig:"EMBEDDING_PROVIDER"` // openai, hash
	BaseURL  string      `yaml:"base_url" envconfig:"EMBEDDING_BASE_URL"`
	APIKey   string      `yaml:"api_key" envconfig:"EMBEDDING_API_KEY"`
	Model    string      `yaml:"model" envconfig:"EMBEDDING_MODEL"`
	Cache    CacheConfig `yaml:"cache"`
}

// CacheConfig holds the optional Valkey embedding cache settings. Empty Addr disables it.
type CacheConfig struct {
	Addr     string        `yaml:"addr" envconfig:"EMBEDDING_CACHE_ADDR"`
	Password string        `yaml:"password" envconfig:"EMBEDDING_CACHE_PASSWORD"`
	TTL      time.Duration `yaml:"ttl"`
}

// MetricsConfig holds the Prometheus endpoint settings. Port 0 disables the endpoint.
type MetricsConfig struct {
	Port int `yaml:"port" envconfig:"METRICS_PORT"`
}

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env: "local",
		Dataset: DatasetConfig{
			Name:       "hao-li/AIDev",
			Split:      "train",
			ServerURL:  "https://datasets-server.huggingface.co",
			CacheDir:   "./data/cache",
			SampleSize: 5000,
			OutputPath: "./data/all_pull_request.parquet",
		},
		Elastic: ElasticConfig{
			RequestTimeout: 120 * time.Second,
			MaxRetries:     3,
			RetryOnTimeout: true,
		},
		Index: IndexConfig{
			Name:       "pr-code-reviews",
			Dimensions: 384,
			BatchSize:  100,
		},
		Embedding: EmbeddingConfig{
			Provider: ProviderOpenAI,
			BaseURL:  "http://localhost:8080/v1",
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			Cache: CacheConfig{
				TTL: 30 * 24 * time.Hour,
			},
		},
	}
}

// Load builds the configuration for env: defaults, then config/<env>.yaml if present
// (with ${VAR} expansion), then environment variables.
// Call LoadDotEnv first to pick up a local .env file.
func Load(env string) (Config, error) {
	cfg := Default()

	if path, ok := findConfigPath(env); ok {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}

		// Substitute env variables of the form ${VAR}
		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("env override: %w", err)
	}
	cfg.Env = env

	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadDotEnv loads .env from the working directory if present.
// Variables already set in the process environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	def := Default()
	if c.Dataset.Name == "" {
		c.Dataset.Name = def.Dataset.Name
	}
	if c.Dataset.Split == "" {
		c.Dataset.Split = def.Dataset.Split
	}
	if c.Dataset.ServerURL == "" {
		c.Dataset.ServerURL = def.Dataset.ServerURL
	}
	if c.Dataset.CacheDir == "" {
		c.Dataset.CacheDir = def.Dataset.CacheDir
	}
	if c.Dataset.SampleSize <= 0 {
		c.Dataset.SampleSize = def.Dataset.SampleSize
	}
	if c.Dataset.OutputPath == "" {
		c.Dataset.OutputPath = def.Dataset.OutputPath
	}
	if c.Elastic.RequestTimeout <= 0 {
		c.Elastic.RequestTimeout = def.Elastic.RequestTimeout
	}
	if c.Elastic.MaxRetries < 0 {
		c.Elastic.MaxRetries = 0
	}
	if c.Index.Name == "" {
		c.Index.Name = def.Index.Name
	}
	if c.Index.Dimensions <= 0 {
		c.Index.Dimensions = def.Index.Dimensions
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = def.Index.BatchSize
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = def.Embedding.Provider
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = def.Embedding.Model
	}
	if c.Embedding.Cache.TTL <= 0 {
		c.Embedding.Cache.TTL = def.Embedding.Cache.TTL
	}
}

// ValidateFetcher checks the settings the dataset fetcher depends on.
func (c *Config) ValidateFetcher() error {
	if strings.TrimSpace(c.Dataset.Name) == "" {
		return fmt.Errorf("%w: HF_DATASET_PATH is required", domain.ErrInvalidConfig)
	}
	if c.Dataset.SampleSize <= 0 {
		return fmt.Errorf("%w: dataset.sample_size must be positive, got %d",
			domain.ErrInvalidConfig, c.Dataset.SampleSize)
	}
	if c.Dataset.OutputPath == "" {
		return fmt.Errorf("%w: dataset.output_path is required", domain.ErrInvalidConfig)
	}
	return c.validateMetrics()
}

// ValidateIndexer checks the settings the vector indexer depends on.
func (c *Config) ValidateIndexer() error {
	if strings.TrimSpace(c.Elastic.Endpoint) == "" {
		return fmt.Errorf("%w: ELASTIC_ENDPOINT is required", domain.ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Elastic.APIKey) == "" {
		return fmt.Errorf("%w: ELASTIC_API_KEY is required", domain.ErrInvalidConfig)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("%w: index.batch_size must be positive, got %d",
			domain.ErrInvalidConfig, c.Index.BatchSize)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("%w: EMBEDDING_BASE_URL is required for provider %q",
				domain.ErrInvalidConfig, ProviderOpenAI)
		}
	case ProviderHash:
		// ok
	default:
		return fmt.Errorf("%w: embedding.provider must be %q or %q, got %q",
			domain.ErrInvalidConfig, ProviderOpenAI, ProviderHash, c.Embedding.Provider)
	}
	return c.validateMetrics()
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("%w: metrics.port must be between 0 and 65535, got %d",
			domain.ErrInvalidConfig, c.Metrics.Port)
	}
	return nil
}

// findConfigPath locates config/<env>.yaml. The file is optional.
func findConfigPath(env string) (string, bool) {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path, true
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path, true
	}

	return "", false
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
