package config

import "time"

// Config is the complete, validated configuration for one Context Engine
// instance. The core never parses a config file itself — a Loader builds
// this struct and validates it before the engine is constructed.
type Config struct {
	WatchRoots        []string `yaml:"watch_roots" mapstructure:"watch_roots"`
	AllowedExtensions []string `yaml:"allowed_extensions" mapstructure:"allowed_extensions"`
	BlockedExtensions []string `yaml:"blocked_extensions" mapstructure:"blocked_extensions"`
	IgnoreFiles       []string `yaml:"ignore_files" mapstructure:"ignore_files"`
	IgnorePatterns    []string `yaml:"ignore_patterns" mapstructure:"ignore_patterns"`
	MaxFileSizeBytes  int64    `yaml:"max_file_size_bytes" mapstructure:"max_file_size_bytes"`
	WarnFileSizeBytes int64    `yaml:"warn_file_size_bytes" mapstructure:"warn_file_size_bytes"`
	SizeExceptions    []string `yaml:"size_exceptions" mapstructure:"size_exceptions"`
	BinaryThreshold   float64  `yaml:"binary_threshold" mapstructure:"binary_threshold"`
	FollowSymlinks    bool     `yaml:"follow_symlinks" mapstructure:"follow_symlinks"`
	MaxSymlinkDepth   int      `yaml:"max_symlink_depth" mapstructure:"max_symlink_depth"`
	DebounceMs        int      `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	WorkerCount       int      `yaml:"worker_count" mapstructure:"worker_count"`

	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking" mapstructure:"chunking"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Query     QueryConfig     `yaml:"query" mapstructure:"query"`
	Budget    BudgetConfig    `yaml:"budget" mapstructure:"budget"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
}

// EmbeddingConfig configures the Embedder.
type EmbeddingConfig struct {
	ModelTag  string `yaml:"model_tag" mapstructure:"model_tag"`
	Dim       int    `yaml:"dim" mapstructure:"dim"`
	Normalize bool   `yaml:"normalize" mapstructure:"normalize"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
	// Endpoint is the local embed server address. Empty uses the
	// built-in deterministic hash embedder instead of a subprocess.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// LanguageChunkingConfig bounds chunk size for one language.
type LanguageChunkingConfig struct {
	MaxTokens      int `yaml:"max_tokens" mapstructure:"max_tokens"`
	OverlapPercent int `yaml:"overlap_percent" mapstructure:"overlap_percent"`
}

// ChunkingConfig configures the Chunker, per language.
type ChunkingConfig struct {
	PerLanguage map[string]LanguageChunkingConfig `yaml:"per_language" mapstructure:"per_language"`
	Default     LanguageChunkingConfig            `yaml:"default" mapstructure:"default"`
}

// ForLanguage returns the chunking config for a language, falling back to Default.
func (c ChunkingConfig) ForLanguage(language string) LanguageChunkingConfig {
	if lc, ok := c.PerLanguage[language]; ok {
		return lc
	}
	return c.Default
}

// ProviderConfig is the enabled/weight pair shared by all search providers.
type ProviderConfig struct {
	Enabled bool    `yaml:"enabled" mapstructure:"enabled"`
	Weight  float64 `yaml:"weight" mapstructure:"weight"`
}

// ProvidersConfig configures the three SearchPipeline providers.
type ProvidersConfig struct {
	Semantic ProviderConfig `yaml:"semantic" mapstructure:"semantic"`
	Symbol   ProviderConfig `yaml:"symbol" mapstructure:"symbol"`
	FullText ProviderConfig `yaml:"full_text" mapstructure:"full_text"`
}

// QueryConfig configures SearchPipeline defaults.
type QueryConfig struct {
	DefaultK          int     `yaml:"default_k" mapstructure:"default_k"`
	MMRLambda         float64 `yaml:"mmr_lambda" mapstructure:"mmr_lambda"`
	MinScoreThreshold float64 `yaml:"min_score_threshold" mapstructure:"min_score_threshold"`
	RerankEnabled     bool    `yaml:"rerank_enabled" mapstructure:"rerank_enabled"`
}

// BudgetConfig bounds the token cost of a query's returned chunks.
type BudgetConfig struct {
	DefaultMaxTokens int `yaml:"default_max_tokens" mapstructure:"default_max_tokens"`
	ReserveForPrompt int `yaml:"reserve_for_prompt" mapstructure:"reserve_for_prompt"`
}

// StorageConfig configures the persistent Store.
type StorageConfig struct {
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// ShutdownTimeout is how long Stop() drains in-flight work before forcing
// cancellation.
func (c *Config) ShutdownTimeout() time.Duration {
	return 10 * time.Second
}

// Default returns a configuration with sensible defaults, matching the
// teacher's internal/config.Default() shape.
func Default() *Config {
	return &Config{
		BlockedExtensions: []string{".exe", ".bin", ".dll", ".so", ".dylib", ".png", ".jpg", ".jpeg", ".gif", ".pdf", ".zip"},
		IgnoreFiles:       []string{".gitignore", ".contextignore", ".dockerignore"},
		IgnorePatterns: []string{
			"node_modules/**", "vendor/**", ".git/**", "dist/**", "build/**",
			"target/**", "__pycache__/**", "*.pyc",
		},
		MaxFileSizeBytes:  2 * 1024 * 1024,
		WarnFileSizeBytes: 512 * 1024,
		BinaryThreshold:   0.05,
		FollowSymlinks:    true,
		MaxSymlinkDepth:   5,
		DebounceMs:        500,
		WorkerCount:       4,
		Embedding: EmbeddingConfig{
			ModelTag:  "hash-embed-v1",
			Dim:       384,
			Normalize: true,
			BatchSize: 32,
		},
		Chunking: ChunkingConfig{
			Default: LanguageChunkingConfig{MaxTokens: 500, OverlapPercent: 10},
			PerLanguage: map[string]LanguageChunkingConfig{
				"markdown":   {MaxTokens: 800, OverlapPercent: 0},
				"go":         {MaxTokens: 500, OverlapPercent: 0},
				"java":       {MaxTokens: 500, OverlapPercent: 0},
				"typescript": {MaxTokens: 500, OverlapPercent: 0},
				"python":     {MaxTokens: 500, OverlapPercent: 0},
				"c":          {MaxTokens: 500, OverlapPercent: 0},
			},
		},
		Providers: ProvidersConfig{
			Semantic: ProviderConfig{Enabled: true, Weight: 0.6},
			Symbol:   ProviderConfig{Enabled: true, Weight: 0.15},
			FullText: ProviderConfig{Enabled: true, Weight: 0.25},
		},
		Query: QueryConfig{
			DefaultK:          10,
			MMRLambda:         0.5,
			MinScoreThreshold: 0.0,
			RerankEnabled:     true,
		},
		Budget: BudgetConfig{
			DefaultMaxTokens: 8000,
			ReserveForPrompt: 1000,
		},
		Storage: StorageConfig{
			DBPath: ".agentfusion/context.db",
		},
	}
}
