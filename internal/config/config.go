package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pdfrag/internal/vectorstore"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	MaxUploadMB     int      `yaml:"max_upload_mb"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateBurst       int      `yaml:"rate_burst"`
	CORSOrigins     []string `yaml:"cors_origins"`
	RequestTimeout  int      `yaml:"request_timeout_secs"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChunkerConfig configures how extracted text is split into chunks.
type ChunkerConfig struct {
	MaxSize int `yaml:"max_size"`
	Overlap int `yaml:"overlap"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string `yaml:"type"`
	Model       string `yaml:"model,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKeyEnv   string `yaml:"api_key_env,omitempty"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	Dimensions  int    `yaml:"dimensions,omitempty"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// IndexConfig configures where and how the vector index is kept.
type IndexConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Metric  string `yaml:"metric"`
}

// RetrievalConfig configures the query path.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// UploadConfig configures which uploads are accepted.
type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	ExtractWorkers    int      `yaml:"extract_workers"`
}

// SummarizerConfig selects and configures the ingest preview summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// BreakerConfig configures the circuit breakers around external services.
type BreakerConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MaxRequests   uint32  `yaml:"max_requests"`
	IntervalSecs  int     `yaml:"interval_secs"`
	TimeoutSecs   int     `yaml:"timeout_secs"`
	MinRequests   uint32  `yaml:"min_requests"`
	FailureRatio  float64 `yaml:"failure_ratio"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// TelemetryConfig configures trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Index      IndexConfig      `yaml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Upload     UploadConfig     `yaml:"upload"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Values missing from the file keep their defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := baseConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfrag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := baseConfig()
	applyConfigDefaults(cfg)
	return cfg
}

// baseConfig holds the defaults that do not depend on the selected providers.
func baseConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:            ":5000",
			MaxUploadMB:     64,
			RateLimitPerSec: 5,
			RateBurst:       10,
			CORSOrigins:     []string{"*"},
			RequestTimeout:  300,
		},
		Log:       LogConfig{Level: "info", Format: "json"},
		Chunker:   ChunkerConfig{MaxSize: 10000, Overlap: 1000},
		Embedder:  EmbedderConfig{Type: "google", TimeoutSecs: 60, BatchSize: 32},
		Generator: GeneratorConfig{Type: "google", Temperature: 0.1, MaxTokens: 2048, TimeoutSecs: 120},
		Index:     IndexConfig{Backend: "sqlite", Path: filepath.Join("faiss_index", "index.db"), Metric: "l2"},
		Retrieval: RetrievalConfig{TopK: 4},
		Upload:    UploadConfig{AllowedExtensions: []string{"pdf"}, ExtractWorkers: 4},
		Summarizer: SummarizerConfig{
			Type:         "frequency",
			MaxSentences: 3,
		},
		Breaker: BreakerConfig{
			Enabled:      true,
			MaxRequests:  1,
			IntervalSecs: 60,
			TimeoutSecs:  30,
			MinRequests:  3,
			FailureRatio: 0.6,
		},
		Telemetry: TelemetryConfig{ServiceName: "pdfrag", Insecure: true, SampleRatio: 1},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.APIKeyEnv == "" {
		cfg.Embedder.APIKeyEnv = defaultKeyEnv(cfg.Embedder.Type)
	}
	if cfg.Embedder.Model == "" {
		switch cfg.Embedder.Type {
		case "google":
			cfg.Embedder.Model = "models/embedding-001"
		case "openai":
			cfg.Embedder.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedder.BatchSize <= 0 {
		cfg.Embedder.BatchSize = 32
	}

	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = defaultKeyEnv(cfg.Generator.Type)
	}
	if cfg.Generator.Model == "" {
		switch cfg.Generator.Type {
		case "google":
			cfg.Generator.Model = "gemini-1.5-pro-latest"
		case "openai":
			cfg.Generator.Model = "gpt-4o-mini"
		case "anthropic":
			cfg.Generator.Model = "claude-3-5-haiku-latest"
		}
	}
	if cfg.Generator.MaxTokens <= 0 {
		cfg.Generator.MaxTokens = 2048
	}

	for i, ext := range cfg.Upload.AllowedExtensions {
		cfg.Upload.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	if cfg.Upload.ExtractWorkers <= 0 {
		cfg.Upload.ExtractWorkers = 4
	}
	if cfg.Summarizer.MaxSentences <= 0 {
		cfg.Summarizer.MaxSentences = 3
	}
}

func defaultKeyEnv(provider string) string {
	switch provider {
	case "google":
		return "GOOGLE_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	}
	return ""
}

// Validate reports the first setting that cannot work.
func (c *AppConfig) Validate() error {
	if c.Chunker.MaxSize <= 0 {
		return fmt.Errorf("chunker.max_size must be positive, got %d", c.Chunker.MaxSize)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.MaxSize {
		return fmt.Errorf("chunker.overlap must be in [0, %d), got %d", c.Chunker.MaxSize, c.Chunker.Overlap)
	}
	if !slices.Contains([]string{"google", "openai", "hashing"}, c.Embedder.Type) {
		return fmt.Errorf("embedder.type %q is not supported", c.Embedder.Type)
	}
	if !slices.Contains([]string{"google", "openai", "anthropic"}, c.Generator.Type) {
		return fmt.Errorf("generator.type %q is not supported", c.Generator.Type)
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("generator.temperature must be in [0, 2], got %v", c.Generator.Temperature)
	}
	if !slices.Contains([]string{"sqlite", "memory"}, c.Index.Backend) {
		return fmt.Errorf("index.backend %q is not supported", c.Index.Backend)
	}
	if c.Index.Backend == "sqlite" && c.Index.Path == "" {
		return errors.New("index.path is required for the sqlite backend")
	}
	if _, err := vectorstore.ParseMetric(c.Index.Metric); err != nil {
		return fmt.Errorf("index.metric: %w", err)
	}
	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("retrieval.top_k must not be negative, got %d", c.Retrieval.TopK)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload.allowed_extensions must not be empty")
	}
	if !slices.Contains([]string{"frequency", "none"}, c.Summarizer.Type) {
		return fmt.Errorf("summarizer.type %q is not supported", c.Summarizer.Type)
	}
	if c.Breaker.Enabled && (c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1) {
		return fmt.Errorf("breaker.failure_ratio must be in (0, 1], got %v", c.Breaker.FailureRatio)
	}
	return nil
}

// APIKey reads the embedder key from the configured environment variable.
func (c EmbedderConfig) APIKey() string { return lookupKey(c.APIKeyEnv) }

// APIKey reads the generator key from the configured environment variable.
func (c GeneratorConfig) APIKey() string { return lookupKey(c.APIKeyEnv) }

func (c EmbedderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func (c GeneratorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

func lookupKey(env string) string {
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}
