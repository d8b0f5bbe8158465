package config

// Defaults for retrieval and chunking.
const (
	DefaultCollection        = "default"
	DefaultDistanceThreshold = 0.75
	DefaultNResults          = 3
	DefaultChunkMin          = 700
	DefaultChunkMax          = 1000
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.TimeoutSeconds == 0 {
		cfg.Server.TimeoutSeconds = 120
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Server.QARateLimit > 0 && cfg.Server.QABurst == 0 {
		cfg.Server.QABurst = 1
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/documaster/data/catalog.db"
	}
	if cfg.VectorStore.DefaultCollection == "" {
		cfg.VectorStore.DefaultCollection = DefaultCollection
	}
	if cfg.VectorStore.DistanceThreshold == 0 {
		cfg.VectorStore.DistanceThreshold = DefaultDistanceThreshold
	}
	if cfg.VectorStore.NResults == 0 {
		cfg.VectorStore.NResults = DefaultNResults
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "llamacpp"
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "llamacpp" {
		cfg.LLM.BaseURL = "http://localhost:8081"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 120
	}
	if cfg.LLM.Options == nil {
		cfg.LLM.Options = map[string]any{
			"max_tokens":  256,
			"temperature": 0.0,
		}
	}
	if cfg.Chunking.Min == 0 && cfg.Chunking.Max == 0 {
		cfg.Chunking.Min = DefaultChunkMin
		cfg.Chunking.Max = DefaultChunkMax
	}
	if cfg.Chunking.IDScheme == "" {
		cfg.Chunking.IDScheme = "deterministic"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".csv", ".pdf", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
