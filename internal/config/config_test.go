package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
vector_store:
  distance_threshold: 0.5
  n_results: 5
llm:
  provider: openai
  model: gpt-4o-mini
  options:
    temperature: 0.2
    stop: ["Question:"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.VectorStore.DistanceThreshold != 0.5 || cfg.VectorStore.NResults != 5 {
		t.Errorf("unexpected vector store config: %+v", cfg.VectorStore)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Options["temperature"] != 0.2 {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
debug: true
storage:
  database_path: "test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
storage:
  database_path: "./data/catalog.db"
  vector_path: "./data/vectors"
watch:
  directories: ["./inbox"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "catalog.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "data", "vectors"); cfg.Storage.VectorPath != want {
		t.Errorf("vector_path = %s, want %s", cfg.Storage.VectorPath, want)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "inbox") {
		t.Errorf("watch directories: got %v", cfg.Watch.Directories)
	}
}

func TestLoad_EmptyVectorPathStaysInMemory(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), "debug: false\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.VectorPath != "" {
		t.Errorf("vector_path should stay empty, got %q", cfg.Storage.VectorPath)
	}
}

func TestLoad_SecretsFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	os.Unsetenv(EnvLLMAPIKey)
	t.Cleanup(func() { os.Unsetenv(EnvLLMAPIKey) })
	t.Setenv(EnvEmbeddingAPIKey, "from-environment")

	env := EnvLLMAPIKey + "=from-dotenv\n" + EnvEmbeddingAPIKey + "=ignored\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(writeConfig(t, dir, "llm:\n  provider: openai\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "from-dotenv" {
		t.Errorf("llm api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Embedding.APIKey != "from-environment" {
		t.Errorf("existing environment should win, got %q", cfg.Embedding.APIKey)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, t.TempDir(), "server: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: got %+v", cfg.Server)
	}
	if cfg.VectorStore.DefaultCollection != "default" {
		t.Errorf("default collection: got %q", cfg.VectorStore.DefaultCollection)
	}
	if cfg.VectorStore.DistanceThreshold != 0.75 || cfg.VectorStore.NResults != 3 {
		t.Errorf("default retrieval: got %+v", cfg.VectorStore)
	}
	if cfg.Chunking.Min != 700 || cfg.Chunking.Max != 1000 || cfg.Chunking.IDScheme != "deterministic" {
		t.Errorf("default chunking: got %+v", cfg.Chunking)
	}
	if cfg.Embedding.Provider != "hash" || cfg.LLM.Provider != "llamacpp" {
		t.Errorf("default providers: embedding=%q llm=%q", cfg.Embedding.Provider, cfg.LLM.Provider)
	}
	if !strings.HasPrefix(cfg.LLM.BaseURL, "http://") {
		t.Errorf("llama.cpp base url: got %q", cfg.LLM.BaseURL)
	}
	if _, ok := cfg.LLM.Options["max_tokens"]; !ok {
		t.Errorf("default completion options: got %v", cfg.LLM.Options)
	}
	if len(cfg.Watch.Extensions) != 6 || cfg.Watch.Extensions[4] != ".pdf" || cfg.Watch.Extensions[5] != ".xlsx" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if cfg.Server.QABurst != 0 {
		t.Errorf("burst should stay 0 without a rate limit, got %d", cfg.Server.QABurst)
	}
}

func TestApplyDefaults_KeepsExplicitChunking(t *testing.T) {
	cfg := &Config{Chunking: ChunkingConfig{Min: 0, Max: 200}}
	ApplyDefaults(cfg)
	if cfg.Chunking.Min != 0 || cfg.Chunking.Max != 200 {
		t.Errorf("chunking overwritten: %+v", cfg.Chunking)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	f := false
	tests := []struct {
		name string
		w    WatchConfig
		want bool
	}{
		{"nil_returns_true", WatchConfig{}, true},
		{"false_returns_false", WatchConfig{Recursive: &f}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.RecursiveOrDefault(); got != tt.want {
				t.Errorf("RecursiveOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSave_OmitsSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		LLM:     LLMConfig{Provider: "openai", APIKey: "sk-secret"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("api key must not be written to the config file")
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
