package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kailas-cloud/prindex/internal/domain"
)

var configEnvVars = []string{
	"ENV", "LOG_LEVEL",
	"HF_DATASET_PATH", "HF_DATASET_CONFIG", "HF_TOKEN", "HF_DATASETS_SERVER_URL",
	"ELASTIC_ENDPOINT", "ELASTIC_API_KEY",
	"EMBEDDING_PROVIDER", "EMBEDDING_BASE_URL", "EMBEDDING_API_KEY", "EMBEDDING_MODEL",
	"EMBEDDING_CACHE_ADDR", "EMBEDDING_CACHE_PASSWORD",
	"METRICS_PORT",
}

// clearEnv unsets every variable Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvVars {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func writeConfig(t *testing.T, env, body string) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", env+".yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("missing")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Env != "missing" {
		t.Errorf("Env = %q", cfg.Env)
	}
	if cfg.Dataset.Name != "hao-li/AIDev" {
		t.Errorf("Dataset.Name = %q", cfg.Dataset.Name)
	}
	if cfg.Dataset.Split != "train" {
		t.Errorf("Dataset.Split = %q", cfg.Dataset.Split)
	}
	if cfg.Dataset.SampleSize != 5000 {
		t.Errorf("Dataset.SampleSize = %d", cfg.Dataset.SampleSize)
	}
	if cfg.Dataset.OutputPath != "./data/all_pull_request.parquet" {
		t.Errorf("Dataset.OutputPath = %q", cfg.Dataset.OutputPath)
	}
	if cfg.Index.Name != "pr-code-reviews" || cfg.Index.Dimensions != 384 || cfg.Index.BatchSize != 100 {
		t.Errorf("unexpected index config: %+v", cfg.Index)
	}
	if cfg.Elastic.RequestTimeout != 120*time.Second || cfg.Elastic.MaxRetries != 3 || !cfg.Elastic.RetryOnTimeout {
		t.Errorf("unexpected elastic config: %+v", cfg.Elastic)
	}
	if cfg.Embedding.Model != "sentence-transformers/all-MiniLM-L6-v2" {
		t.Errorf("Embedding.Model = %q", cfg.Embedding.Model)
	}
	if cfg.Metrics.Port != 0 {
		t.Errorf("Metrics.Port = %d, expected disabled", cfg.Metrics.Port)
	}
}

func TestLoad_YAMLWithExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_ES_HOST", "es.internal")
	writeConfig(t, "unit", `
dataset:
  name: org/other
  sample_size: 10
elastic:
  endpoint: https://${TEST_ES_HOST}:9200
  request_timeout: 5s
index:
  batch_size: 25
embedding:
  provider: ${TEST_PROVIDER:-hash}
metrics:
  port: 9100
`)

	cfg, err := Load("unit")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dataset.Name != "org/other" || cfg.Dataset.SampleSize != 10 {
		t.Errorf("unexpected dataset config: %+v", cfg.Dataset)
	}
	if cfg.Elastic.Endpoint != "https://es.internal:9200" {
		t.Errorf("Elastic.Endpoint = %q", cfg.Elastic.Endpoint)
	}
	if cfg.Elastic.RequestTimeout != 5*time.Second {
		t.Errorf("Elastic.RequestTimeout = %v", cfg.Elastic.RequestTimeout)
	}
	if cfg.Index.BatchSize != 25 {
		t.Errorf("Index.BatchSize = %d", cfg.Index.BatchSize)
	}
	if cfg.Embedding.Provider != ProviderHash {
		t.Errorf("Embedding.Provider = %q", cfg.Embedding.Provider)
	}
	if cfg.Metrics.Port != 9100 {
		t.Errorf("Metrics.Port = %d", cfg.Metrics.Port)
	}
	// untouched by the file
	if cfg.Index.Name != "pr-code-reviews" {
		t.Errorf("Index.Name = %q", cfg.Index.Name)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	clearEnv(t)
	writeConfig(t, "unit", `
dataset:
  name: org/from-file
elastic:
  endpoint: http://file:9200
`)
	t.Setenv("HF_DATASET_PATH", "org/from-env")
	t.Setenv("ELASTIC_ENDPOINT", "http://env:9200")
	t.Setenv("ELASTIC_API_KEY", "secret")
	t.Setenv("EMBEDDING_CACHE_ADDR", "localhost:6379")
	t.Setenv("METRICS_PORT", "9200")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load("unit")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dataset.Name != "org/from-env" {
		t.Errorf("Dataset.Name = %q", cfg.Dataset.Name)
	}
	if cfg.Elastic.Endpoint != "http://env:9200" {
		t.Errorf("Elastic.Endpoint = %q", cfg.Elastic.Endpoint)
	}
	if cfg.Elastic.APIKey != "secret" {
		t.Errorf("Elastic.APIKey = %q", cfg.Elastic.APIKey)
	}
	if cfg.Embedding.Cache.Addr != "localhost:6379" {
		t.Errorf("Embedding.Cache.Addr = %q", cfg.Embedding.Cache.Addr)
	}
	if cfg.Metrics.Port != 9200 {
		t.Errorf("Metrics.Port = %d", cfg.Metrics.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_ShippedConfigsRequireEndpoint(t *testing.T) {
	for _, env := range []string{"local", "prod"} {
		t.Run(env, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ELASTIC_API_KEY", "key")
			// resolved through the source-relative fallback
			t.Chdir(t.TempDir())

			cfg, err := Load(env)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Elastic.Endpoint != "" {
				t.Errorf("Elastic.Endpoint = %q, want empty without ELASTIC_ENDPOINT", cfg.Elastic.Endpoint)
			}
			if err := cfg.ValidateIndexer(); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if cfg.Metrics.Port != 0 {
				t.Errorf("Metrics.Port = %d, expected disabled", cfg.Metrics.Port)
			}
		})
	}
}

func TestLoad_ShippedConfigsMetricsPortFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("METRICS_PORT", "9090")
	t.Chdir(t.TempDir())

	cfg, err := Load("local")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Metrics.Port = %d, want 9090", cfg.Metrics.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	writeConfig(t, "unit", "dataset: [unclosed")

	if _, err := Load("unit"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	if err := LoadDotEnv(); err != nil {
		t.Fatalf("missing .env must not fail: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("HF_DATASET_PATH=org/dotenv\nELASTIC_API_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("ELASTIC_API_KEY", "from-process")

	if err := LoadDotEnv(); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("HF_DATASET_PATH"); got != "org/dotenv" {
		t.Errorf("HF_DATASET_PATH = %q", got)
	}
	if got := os.Getenv("ELASTIC_API_KEY"); got != "from-process" {
		t.Errorf("process env must win, got %q", got)
	}
}

func TestValidateIndexer(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Elastic.Endpoint = "http://localhost:9200"
		cfg.Elastic.APIKey = "key"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"hash provider", func(c *Config) { c.Embedding.Provider = ProviderHash; c.Embedding.BaseURL = "" }, false},
		{"missing endpoint", func(c *Config) { c.Elastic.Endpoint = "" }, true},
		{"missing api key", func(c *Config) { c.Elastic.APIKey = " " }, true},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "bert" }, true},
		{"openai without base url", func(c *Config) { c.Embedding.BaseURL = "" }, true},
		{"zero batch", func(c *Config) { c.Index.BatchSize = 0 }, true},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.ValidateIndexer()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateIndexer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestValidateFetcher(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateFetcher(); err != nil {
		t.Fatalf("defaults must be valid for the fetcher: %v", err)
	}

	cfg.Dataset.Name = ""
	if err := cfg.ValidateFetcher(); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	cfg = Default()
	cfg.Dataset.SampleSize = -1
	if err := cfg.ValidateFetcher(); err == nil {
		t.Error("expected error for negative sample size")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_SET", "value")

	tests := []struct {
		in, want string
	}{
		{"a: ${TEST_EXPAND_SET}", "a: value"},
		{"a: ${TEST_EXPAND_UNSET_X:-fallback}", "a: fallback"},
		{"a: ${TEST_EXPAND_UNSET_X}", "a: "},
		{"a: plain", "a: plain"},
	}
	for _, tt := range tests {
		if got := string(expandEnvVars([]byte(tt.in))); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetEnv(t *testing.T) {
	clearEnv(t)
	if got := GetEnv(); got != "local" {
		t.Errorf("GetEnv() = %q, want local", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("GetEnv() = %q, want prod", got)
	}
}
