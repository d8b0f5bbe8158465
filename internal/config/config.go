// Package config provides configuration loading and structs for the documaster server and CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that carry secrets. They are never read from or written to the YAML file.
const (
	EnvLLMAPIKey       = "DOCUMASTER_LLM_API_KEY"
	EnvEmbeddingAPIKey = "DOCUMASTER_EMBEDDING_API_KEY"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Watch       WatchConfig       `yaml:"watch"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	Collection  string   `yaml:"collection"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings. QARateLimit is requests per second
// accepted by the QA endpoint; 0 disables limiting.
type ServerConfig struct {
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxUploadMB    int     `yaml:"max_upload_mb"`
	QARateLimit    float64 `yaml:"qa_rate_limit"`
	QABurst        int     `yaml:"qa_burst"`
}

// StorageConfig holds paths for the catalog database and the vector index.
// An empty VectorPath keeps the vector index in memory, rebuilt from the catalog on start.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	VectorPath     string `yaml:"vector_path"`
	CompressVector bool   `yaml:"compress_vector"`
}

// VectorStoreConfig holds retrieval settings.
type VectorStoreConfig struct {
	DefaultCollection string  `yaml:"default_collection"`
	DistanceThreshold float32 `yaml:"distance_threshold"`
	NResults          int     `yaml:"n_results"`
}

// EmbeddingConfig selects and configures the embedder. Provider is one of
// "hash", "onnx" or "openai".
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"-"`
}

// LLMConfig selects and configures the inference backend. Provider is one of
// "llamacpp", "openai" or "static". Options are passed to the backend on every
// completion call.
type LLMConfig struct {
	Provider       string         `yaml:"provider"`
	BaseURL        string         `yaml:"base_url"`
	Model          string         `yaml:"model"`
	APIKey         string         `yaml:"-"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	RateLimit      float64        `yaml:"rate_limit"`
	StaticAnswer   string         `yaml:"static_answer"`
	Options        map[string]any `yaml:"options"`
}

// ChunkingConfig holds chunk capacity (in runes) and the chunk id scheme.
type ChunkingConfig struct {
	Min      int    `yaml:"min"`
	Max      int    `yaml:"max"`
	IDScheme string `yaml:"id_scheme"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// A .env file next to the config, or in the working directory, is loaded first and
// secrets are then read from the environment.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	if err := loadDotEnv(filepath.Join(configDir, ".env"), ".env"); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Storage.VectorPath != "" {
		cfg.Storage.VectorPath = expandPath(cfg.Storage.VectorPath, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// loadDotEnv loads the first existing env file. Variables already set in the
// environment are not overridden.
func loadDotEnv(candidates ...string) error {
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat env file: %w", err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", p, err)
		}
		return nil
	}
	return nil
}

// ApplyEnv copies secrets from the environment into cfg.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvLLMAPIKey)); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEmbeddingAPIKey)); v != "" {
		cfg.Embedding.APIKey = v
	}
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
