package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the docchat API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Index    IndexConfig    `yaml:"index"`
	Rerank   RerankConfig   `yaml:"rerank"`
	Context  ContextConfig  `yaml:"context"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// OpenAIConfig holds language-model and embedding settings.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	RerankModel    string `yaml:"rerank_model"` // cheaper model for relevance scoring
	EmbeddingModel string `yaml:"embedding_model"`
	Dimensions     int    `yaml:"dimensions"`
	MaxConcurrent  int    `yaml:"max_concurrent"`      // simultaneous in-flight LLM calls
	MaxRetries     int    `yaml:"max_retries"`         // retries on 429/5xx responses
	RetryBaseMS    int    `yaml:"retry_base_delay_ms"` // first backoff delay
	RetryMaxMS     int    `yaml:"retry_max_delay_ms"`  // backoff ceiling
}

// IndexConfig holds vector index and retrieval settings.
type IndexConfig struct {
	Name string `yaml:"name"`
	TopK int    `yaml:"top_k"` // per-query KNN results
	TopN int    `yaml:"top_n"` // merged results kept after fusion
}

// RerankConfig holds relevance reranker settings.
type RerankConfig struct {
	WeightLLM        float64 `yaml:"weight_llm"`
	WeightFeedback   float64 `yaml:"weight_feedback"`
	WeightSimilarity float64 `yaml:"weight_similarity"`
	TopK             int     `yaml:"top_k"`
	BatchSize        int     `yaml:"batch_size"`
	DynamicBatch     *bool   `yaml:"dynamic_batch"` // default true; set false to pin batch_size
	CacheTTLSec      int     `yaml:"cache_ttl_sec"`
}

// ContextConfig holds context selection budgets.
type ContextConfig struct {
	MinScore   float64 `yaml:"min_score"`
	PerDocCap  int     `yaml:"per_doc_cap"`
	DocCap     int     `yaml:"doc_cap"`
	CharBudget int     `yaml:"char_budget"`
}

// CorpusConfig holds corpus discovery settings.
type CorpusConfig struct {
	CacheTTLSec int `yaml:"cache_ttl_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Streaming answers hold the response open well past a normal
		// request/response cycle.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}
	if c.OpenAI.RerankModel == "" {
		c.OpenAI.RerankModel = "gpt-4o-mini"
	}
	if c.OpenAI.EmbeddingModel == "" {
		c.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if c.OpenAI.Dimensions <= 0 {
		c.OpenAI.Dimensions = 1536
	}
	if c.OpenAI.MaxConcurrent <= 0 {
		c.OpenAI.MaxConcurrent = 4
	}
	if c.OpenAI.MaxRetries <= 0 {
		c.OpenAI.MaxRetries = 3
	}
	if c.OpenAI.RetryBaseMS <= 0 {
		c.OpenAI.RetryBaseMS = 500
	}
	if c.OpenAI.RetryMaxMS <= 0 {
		c.OpenAI.RetryMaxMS = 8000
	}
	if c.Index.Name == "" {
		c.Index.Name = "docchat_passages"
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = 10
	}
	if c.Index.TopN <= 0 {
		c.Index.TopN = 10
	}
	if c.Rerank.WeightLLM == 0 && c.Rerank.WeightFeedback == 0 && c.Rerank.WeightSimilarity == 0 {
		c.Rerank.WeightLLM = 0.6
		c.Rerank.WeightFeedback = 0.2
		c.Rerank.WeightSimilarity = 0.2
	}
	if c.Rerank.TopK <= 0 {
		c.Rerank.TopK = 5
	}
	if c.Rerank.BatchSize <= 0 {
		c.Rerank.BatchSize = 5
	}
	if c.Rerank.DynamicBatch == nil {
		dynamic := true
		c.Rerank.DynamicBatch = &dynamic
	}
	if c.Rerank.CacheTTLSec <= 0 {
		c.Rerank.CacheTTLSec = 21600 // 6h
	}
	if c.Context.MinScore <= 0 {
		c.Context.MinScore = 0.05
	}
	if c.Context.PerDocCap <= 0 {
		c.Context.PerDocCap = 2
	}
	if c.Context.DocCap <= 0 {
		c.Context.DocCap = 3
	}
	if c.Context.CharBudget <= 0 {
		c.Context.CharBudget = 6000
	}
	if c.Corpus.CacheTTLSec <= 0 {
		c.Corpus.CacheTTLSec = 600 // 10m
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	sum := c.Rerank.WeightLLM + c.Rerank.WeightFeedback + c.Rerank.WeightSimilarity
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("rerank weights must sum to 1.0, got %.2f", sum)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
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
